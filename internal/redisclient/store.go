package redisclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/certhub/internal/cache"
)

// NewStore returns a redis-backed cache.Store when addr answers a ping and
// an in-process one otherwise. closeFn is always safe to call.
func NewStore(ctx context.Context, cfg Config, memoryTTL time.Duration, log *slog.Logger) (store cache.Store, closeFn func() error) {
	noop := func() error { return nil }

	if cfg.Addr == "" {
		log.Info("redis not configured, using in-memory cache")
		return cache.NewMemoryStore(memoryTTL), noop
	}

	c := New(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, falling back to in-memory cache", "addr", cfg.Addr, "err", err)
		_ = c.Close()
		return cache.NewMemoryStore(memoryTTL), noop
	}

	log.Info("redis connected", "addr", cfg.Addr)
	return cache.NewRedisStore(c.Raw()), c.Close
}
