package clients

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/observability"
)

type NotificationsClient struct {
	base
}

func NewNotificationsClient(baseURL string, timeout time.Duration, log *slog.Logger, prom *observability.Prom) *NotificationsClient {
	return &NotificationsClient{base: newBase("notification-service", baseURL, timeout, log, prom)}
}

// Send posts to /api/notifications/{kind} and waits for the 202.
func (c *NotificationsClient) Send(ctx context.Context, kind notification.Kind, req notification.Request, idempotencyKey string) error {
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return c.postJSON(ctx, "/api/notifications/"+string(kind), req, h)
}

// Notify is Send in the background.
func (c *NotificationsClient) Notify(ctx context.Context, kind notification.Kind, req notification.Request, idempotencyKey string) {
	c.detach(ctx, "notify."+string(kind), func(ctx context.Context) error {
		return c.Send(ctx, kind, req, idempotencyKey)
	})
}
