package clients

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/certhub/internal/actorctx"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/observability"
)

type LogsClient struct {
	base
}

func NewLogsClient(baseURL string, timeout time.Duration, log *slog.Logger, prom *observability.Prom) *LogsClient {
	return &LogsClient{base: newBase("logs-service", baseURL, timeout, log, prom)}
}

// Post fills requestId and userId from ctx when the caller left them unset.
func (c *LogsClient) Post(ctx context.Context, req logentry.CreateRequest) error {
	if req.RequestID == nil {
		if id, ok := actorctx.RequestIDFrom(ctx); ok {
			req.RequestID = &id
		}
	}
	if req.UserID == nil {
		if id, ok := actorctx.UserIDFrom(ctx); ok {
			req.UserID = &id
		}
	}
	return c.postJSON(ctx, "/logs", req, nil)
}

// Record ships req without waiting for the logs service.
func (c *LogsClient) Record(ctx context.Context, req logentry.CreateRequest) {
	c.detach(ctx, "logs.create", func(ctx context.Context) error {
		return c.Post(ctx, req)
	})
}
