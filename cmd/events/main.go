package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/clients"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/db"
	apphttp "github.com/geocoder89/certhub/internal/http"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/redisclient"
	"github.com/geocoder89/certhub/internal/repo/postgres"
)

func main() {
	cfg := config.Load("events-service")
	log := observability.NewLogger(cfg.Env, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	if cfg.AutoMigrate {
		if err := db.RunMigrations(log, cfg.DBURL, "events"); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, 10)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	seedCtx, cancel := config.WithTimeout(5 * time.Second)
	if err := db.EnsureAdminUser(seedCtx, pool, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
	}
	cancel()

	store, closeStore := redisclient.NewStore(ctx, redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, time.Hour, log)
	defer func() { _ = closeStore() }()

	prom := observability.NewProm()

	router := apphttp.NewEventsRouter(apphttp.EventsDeps{
		Base: apphttp.Base{
			Log:         log,
			Env:         cfg.Env,
			ServiceName: cfg.ServiceName,
			Prom:        prom,
			Ping:        pool.Ping,
			CORSOrigins: cfg.CORSAllowedOrigins,
		},
		JWT:           auth.NewManager(cfg.JWTSecret, cfg.AccessTTL()),
		Users:         postgres.NewUsersRepo(pool, prom),
		Events:        postgres.NewEventsRepo(pool, prom),
		Registrations: postgres.NewRegistrationsRepo(pool, prom),
		Notifier:      clients.NewNotificationsClient(cfg.NotificationsURL, cfg.OutboundTimeout, log, prom),
		Idempotency:   store,
		ListCache:     cache.New(10 * time.Second),
	})

	servers := []*nethttp.Server{apphttp.NewServer(cfg.Port, router)}
	if ms := apphttp.MetricsServer(cfg.MetricsPort, prom.Handler()); ms != nil {
		servers = append(servers, ms)
	}

	if err := apphttp.ServeAll(ctx, log, 10*time.Second, servers...); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
