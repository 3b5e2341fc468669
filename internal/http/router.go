package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/domain/user"
	"github.com/geocoder89/certhub/internal/http/handlers"
	"github.com/geocoder89/certhub/internal/http/middlewares"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	maxBodyBytes   = 1 << 20
	idempotencyTTL = 24 * time.Hour
)

// Base is what every service router needs.
type Base struct {
	Log         *slog.Logger
	Env         string
	ServiceName string
	Prom        *observability.Prom
	// readiness probe, usually a pool ping
	Ping        func(ctx context.Context) error
	CORSOrigins []string
}

func newEngine(b Base) *gin.Engine {
	if b.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if b.Log == nil {
		b.Log = slog.Default()
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(b.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(b.Log))
	if b.Prom != nil {
		r.Use(b.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(b.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	// health
	h := handlers.NewHealthHandler(b.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if b.Prom != nil {
		r.GET("/metrics", gin.WrapH(b.Prom.Handler()))
	}

	return r
}

func idempotencyStore(s cache.Store) cache.Store {
	if s == nil {
		return cache.NewMemoryStore(idempotencyTTL)
	}
	return s
}

type UsersRepository interface {
	handlers.UserReader
	handlers.UserWriter
}

type EventsDeps struct {
	Base
	JWT           *auth.Manager
	Users         UsersRepository
	Events        handlers.EventsRepository
	Registrations handlers.RegistrationRepository
	Notifier      handlers.Notifier
	// replayed responses for Idempotency-Key
	Idempotency cache.Store
	ListCache   *cache.Cache
}

func NewEventsRouter(d EventsDeps) *gin.Engine {
	r := newEngine(d.Base)
	am := middlewares.NewAuthMiddleware(d.JWT)
	idem := middlewares.Idempotency(idempotencyStore(d.Idempotency), idempotencyTTL, d.Log)

	authHandler := handlers.NewAuthHandler(d.Users, d.Users, d.JWT, d.Notifier)
	usersHandler := handlers.NewUsersHandler(d.Users, d.Notifier)
	eventsHandler := handlers.NewEventsHandlerWithCache(d.Events, d.ListCache)
	registrationHandler := handlers.NewRegistrationHandler(d.Registrations, d.Events, d.Notifier)

	// 10 attempts per minute per IP on credential routes
	authLimiter := middlewares.NewRateLimiter(10, time.Minute)
	authGroup := r.Group("/auth", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP), middlewares.RequireJSON())
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/login", authHandler.Login)

	// public reads
	r.GET("/events", eventsHandler.ListEvents)
	r.GET("/events/:id", eventsHandler.GetEventById)

	authed := r.Group("", am.RequireAuth(), middlewares.RequireJSON(), idem)
	authed.POST("/events/:id/registrations", registrationHandler.Register)
	authed.DELETE("/events/:id/registrations/:registrationId", registrationHandler.Cancel)

	admin := authed.Group("", am.RequireRole(user.RoleAdmin))
	admin.POST("/users", usersHandler.Create)
	admin.POST("/events", eventsHandler.CreateEvent)
	admin.GET("/events/:id/registrations", registrationHandler.ListForEvent)
	admin.PATCH("/events/:id/registrations/:registrationId/attendance", registrationHandler.MarkAttendance)

	return r
}

type CertificatesDeps struct {
	Base
	JWT          *auth.Manager
	Certificates handlers.CertificateService
	Idempotency  cache.Store
}

func NewCertificatesRouter(d CertificatesDeps) *gin.Engine {
	r := newEngine(d.Base)
	am := middlewares.NewAuthMiddleware(d.JWT)
	h := handlers.NewCertificatesHandler(d.Certificates)

	// verification is public and the most likely to be scraped
	verifyLimiter := middlewares.NewRateLimiter(120, time.Minute)
	r.GET("/certificates/verify/:code", verifyLimiter.RateLimiterMiddleware(middlewares.KeyByIP), h.Verify)
	r.GET("/certificates/:code/pdf", h.Download)

	authed := r.Group("/certificates", am.RequireAuth())
	authed.GET("/me", h.Me)
	authed.POST("/issue",
		middlewares.RequireJSON(),
		middlewares.Idempotency(idempotencyStore(d.Idempotency), idempotencyTTL, d.Log),
		h.Issue,
	)
	authed.PATCH("/:code/revoke", am.RequireRole(user.RoleAdmin), h.Revoke)

	return r
}

type NotificationsDeps struct {
	Base
	JWT  *auth.Manager
	Jobs handlers.JobsRepository
}

func NewNotificationsRouter(d NotificationsDeps) *gin.Engine {
	r := newEngine(d.Base)
	am := middlewares.NewAuthMiddleware(d.JWT)
	h := handlers.NewNotificationsHandler(d.Jobs, d.Log)

	api := r.Group("/api/notifications")

	admin := api.Group("", am.RequireAuth(), am.RequireRole(user.RoleAdmin))
	admin.GET("/stats", h.Stats)
	admin.GET("/jobs/:id", h.GetJob)
	admin.POST("/jobs/:id/retry", h.RetryJob)

	// service-to-service; Idempotency-Key dedupes at the job level
	api.POST("/:kind", middlewares.RequireJSON(), h.Enqueue)

	return r
}

type LogsDeps struct {
	Base
	Logs handlers.LogsRepository
}

func NewLogsRouter(d LogsDeps) *gin.Engine {
	r := newEngine(d.Base)
	h := handlers.NewLogsHandler(d.Logs)

	r.POST("/logs", middlewares.RequireJSON(), h.Create)
	r.GET("/logs", h.List)

	return r
}
