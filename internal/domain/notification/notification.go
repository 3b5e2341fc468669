package notification

import "errors"

type Kind string

const (
	KindEventRegistration   Kind = "event-registration"
	KindEventCancellation   Kind = "event-cancellation"
	KindAttendanceConfirmed Kind = "attendance-confirmed"
	KindCertificateIssued   Kind = "certificate-issued"
	KindAccountCreated      Kind = "account-created"
	KindEventReminder       Kind = "event-reminder"
)

var ErrUnknownKind = errors.New("unknown notification kind")

var kinds = []Kind{
	KindEventRegistration,
	KindEventCancellation,
	KindAttendanceConfirmed,
	KindCertificateIssued,
	KindAccountCreated,
	KindEventReminder,
}

func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) IsValid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Subject is the email subject line for the kind.
func (k Kind) Subject() string {
	switch k {
	case KindEventRegistration:
		return "You're registered"
	case KindEventCancellation:
		return "Your registration was cancelled"
	case KindAttendanceConfirmed:
		return "Thanks for attending"
	case KindCertificateIssued:
		return "Your certificate is ready"
	case KindAccountCreated:
		return "Welcome to CertHub"
	case KindEventReminder:
		return "Your event is coming up"
	default:
		return "CertHub notification"
	}
}

// Request is the body every /api/notifications/{kind} route accepts. Data
// carries the template variables (eventTitle, certificateCode, ...).
type Request struct {
	To   string            `json:"to" binding:"required,email"`
	Name string            `json:"name" binding:"omitempty,max=120"`
	Data map[string]string `json:"data"`
}
