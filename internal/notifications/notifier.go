package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/certhub/internal/config"
)

// Message is a rendered email ready for a provider.
type Message struct {
	Kind    string
	To      string
	Subject string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the provider named in cfg.Provider.
func New(cfg config.EmailConfig, log *slog.Logger) (Notifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "smtp":
		return NewSMTPSender(cfg)
	case "resend":
		return NewResendSender(cfg, log)
	case "", "log":
		return NewLogNotifier(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
