package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/certhub/internal/clients"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/db"
	apphttp "github.com/geocoder89/certhub/internal/http"
	"github.com/geocoder89/certhub/internal/notifications"
	"github.com/geocoder89/certhub/internal/observability"
	"github.com/geocoder89/certhub/internal/queue/worker"
	"github.com/geocoder89/certhub/internal/repo/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load("notifier-worker")
	log := observability.NewLogger(cfg.Env, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := db.NewPool(ctx, cfg.DBURL, int32(cfg.Worker.Concurrency)+2)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sender, err := notifications.New(cfg.Email, log)
	if err != nil {
		log.Error("email provider init failed", "err", err)
		os.Exit(1)
	}
	notifier := notifications.NewProtectedNotifier(sender, notifications.ProtectedNotifierConfig{})

	renderer, err := notifications.NewRenderer()
	if err != nil {
		log.Error("template parse failed", "err", err)
		os.Exit(1)
	}

	prom := observability.NewProm()
	host, _ := os.Hostname()

	w := worker.New(worker.Config{
		PollInterval:  cfg.Worker.PollInterval,
		WorkerID:      fmt.Sprintf("%s-%d", host, os.Getpid()),
		Concurrency:   cfg.Worker.Concurrency,
		ShutdownGrace: cfg.Worker.ShutdownGrace,
		LockTTL:       cfg.Worker.LockTTL,
		RatePerSecond: cfg.Email.RatePerSecond,
	},
		postgres.NewJobsRepo(pool, prom),
		notifier,
		renderer,
		worker.WithProm(prom),
		worker.WithLogSink(clients.NewLogsClient(cfg.LogsURL, cfg.OutboundTimeout, log, prom)),
		worker.WithPinger(pool),
		worker.WithLogger(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		return apphttp.Serve(gctx, log, apphttp.NewServer(cfg.Port, w.HealthHandler()), cfg.Worker.ShutdownGrace)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
