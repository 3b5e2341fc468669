package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func NewServer(port int, handler nethttp.Handler) *nethttp.Server {
	return &nethttp.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down within grace.
func Serve(ctx context.Context, log *slog.Logger, srv *nethttp.Server, grace time.Duration) error {
	errCh := make(chan error, 1)

	go func() {
		log.Info("server starting", "addr", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server shutting down", "addr", srv.Addr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete", "addr", srv.Addr)
	return nil
}

// ServeAll runs every server in its own goroutine and returns the first
// failure. All servers are shut down once ctx is cancelled or one fails.
func ServeAll(ctx context.Context, log *slog.Logger, grace time.Duration, servers ...*nethttp.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			return Serve(gctx, log, srv, grace)
		})
	}
	return g.Wait()
}

// MetricsServer exposes the Prometheus handler on its own port. It returns
// nil when port is zero.
func MetricsServer(port int, metrics nethttp.Handler) *nethttp.Server {
	if port == 0 {
		return nil
	}
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", metrics)
	return NewServer(port, mux)
}
