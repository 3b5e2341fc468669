package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/certhub/internal/config"
	"github.com/resend/resend-go/v2"
)

type ResendSender struct {
	client *resend.Client
	from   string
	log    *slog.Logger
}

func NewResendSender(cfg config.EmailConfig, log *slog.Logger) (*ResendSender, error) {
	if cfg.ResendAPIKey == "" {
		return nil, errors.New("resend api key is required")
	}
	if err := validateAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	return newResendSender(resend.NewClient(cfg.ResendAPIKey), cfg.From, log), nil
}

func newResendSender(client *resend.Client, from string, log *slog.Logger) *ResendSender {
	if log == nil {
		log = slog.Default()
	}
	return &ResendSender{client: client, from: from, log: log}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			s.log.WarnContext(ctx, "resend rate limit exceeded",
				"limit", rateLimitErr.Limit,
				"remaining", rateLimitErr.Remaining,
				"reset", rateLimitErr.Reset,
			)
			return fmt.Errorf("email rate limit exceeded (resets in %s seconds): %w", rateLimitErr.Reset, err)
		}
		return fmt.Errorf("resend: %w", err)
	}

	s.log.InfoContext(ctx, "notification.sent", "provider", "resend", "kind", msg.Kind, "email_id", sent.Id)
	return nil
}
