package handlers

import (
	"context"

	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/domain/notification"
)

// Notifier fires a templated email without waiting on the notification
// service.
type Notifier interface {
	Notify(ctx context.Context, kind notification.Kind, req notification.Request, idempotencyKey string)
}

// LogRecorder ships an entry to the logs service without waiting.
type LogRecorder interface {
	Record(ctx context.Context, req logentry.CreateRequest)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notification.Kind, notification.Request, string) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
