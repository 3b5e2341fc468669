package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type circuitState interface {
	State() string
}

// HealthHandler serves liveness, readiness and in-process stats for the
// worker's admin port.
func (w *Worker) HealthHandler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// readiness: flips false on shutdown; also requires the DB
	r.GET("/readyz", func(c *gin.Context) {
		if !w.isReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		if w.db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()
			if err := w.db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats", func(c *gin.Context) {
		out := gin.H{
			"workerId": w.cfg.WorkerID,
			"jobs":     w.metrics.Snapshot(),
		}
		if cs, ok := w.notifier.(circuitState); ok {
			out["circuit"] = cs.State()
		}
		c.JSON(http.StatusOK, out)
	})

	if w.prom != nil {
		r.GET("/metrics", gin.WrapH(w.prom.Handler()))
	}

	return r
}
