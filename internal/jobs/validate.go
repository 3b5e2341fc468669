package jobs

import (
	"strings"

	"github.com/geocoder89/certhub/internal/domain/notification"
)

// ValidatePayload performs minimal validation on payloads before they are
// stored and after they are read back.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	switch t {
	case JobSendNotification:
		var p SendNotificationPayload
		switch v := payload.(type) {
		case SendNotificationPayload:
			p = v
		case *SendNotificationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if !notification.Kind(p.Kind).IsValid() {
			return notification.ErrUnknownKind
		}
		if strings.TrimSpace(p.To) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
