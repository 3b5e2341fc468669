package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/db"
	apphttp "github.com/geocoder89/certhub/internal/http"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/repo/postgres"
)

func main() {
	cfg := config.Load("logs-service")
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
		if err := db.RunMigrations(log, cfg.DBURL, "logs"); err != nil {
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

	prom := observability.NewProm()

	router := apphttp.NewLogsRouter(apphttp.LogsDeps{
		Base: apphttp.Base{
			Log:         log,
			Env:         cfg.Env,
			ServiceName: cfg.ServiceName,
			Prom:        prom,
			Ping:        pool.Ping,
			CORSOrigins: cfg.CORSAllowedOrigins,
		},
		Logs: postgres.NewLogsRepo(pool, prom),
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
