package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ServiceName string
	Port        int
	MetricsPort int
	DBURL       string

	// migrations are applied on boot unless disabled
	AutoMigrate bool

	JWTSecret           string
	JWTAccessTTLMinutes int

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTelEndpoint string

	// base used in certificate verify links
	PublicURL         string
	CertificateIssuer string

	// sibling services
	NotificationsURL string
	LogsURL          string
	OutboundTimeout  time.Duration

	Email  EmailConfig
	Worker WorkerConfig
}

type EmailConfig struct {
	Provider     string // smtp | resend | log
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
	// max sends per second across the worker process
	RatePerSecond float64
}

type WorkerConfig struct {
	PollInterval  time.Duration
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration
}

// Load reads the environment for the named service. A .env file in the
// working directory is honoured when present.
func Load(service string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("could not load .env", "err", err)
	}

	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		ServiceName: getEnv("SERVICE_NAME", service),
		Port:        getEnvInt("PORT", defaultPort(service)),
		MetricsPort: getEnvInt("METRICS_PORT", 0),
		DBURL:       buildDBURL(),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		PublicURL:         getEnv("PUBLIC_URL", "http://localhost:8082"),
		CertificateIssuer: getEnv("CERTIFICATE_ISSUER", "CertHub"),

		NotificationsURL: getEnv("NOTIFICATIONS_URL", "http://127.0.0.1:8083"),
		LogsURL:          getEnv("LOGS_URL", "http://127.0.0.1:8084"),
		OutboundTimeout:  getEnvDuration("OUTBOUND_TIMEOUT", 3*time.Second),

		Email: EmailConfig{
			Provider:      getEnv("EMAIL_PROVIDER", "log"),
			From:          getEnv("EMAIL_FROM", "no-reply@certhub.local"),
			SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:      getEnvInt("SMTP_PORT", 587),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
			ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
			RatePerSecond: getEnvFloat("EMAIL_RATE_PER_SECOND", 5),
		},

		Worker: WorkerConfig{
			PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 250*time.Millisecond),
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
			ShutdownGrace: getEnvDuration("WORKER_SHUTDOWN_GRACE", 10*time.Second),
			LockTTL:       getEnvDuration("WORKER_LOCK_TTL", 60*time.Second),
		},
	}
}

func defaultPort(service string) int {
	switch service {
	case "events-service":
		return 8081
	case "certificate-service":
		return 8082
	case "notification-service":
		return 8083
	case "logs-service":
		return 8084
	case "notifier-worker":
		return 8085
	default:
		return 8080
	}
}

func buildDBURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "certhub")
	pass := getEnv("DB_PASSWORD", "certhub")
	name := getEnv("DB_NAME", "certhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			slog.Default().Warn("invalid int env, using fallback", "key", key, "err", err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Default().Warn("invalid float env, using fallback", "key", key, "err", err)
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Default().Warn("invalid duration env, using fallback", "key", key, "err", err)
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
