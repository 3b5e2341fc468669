package pendingaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRegisterUserToEvent Type = "REGISTER_USER_TO_EVENT"
	TypeMarkAttendance      Type = "MARK_ATTENDANCE"
	TypeCreateUser          Type = "CREATE_USER"
	TypeCreateEvent         Type = "CREATE_EVENT"
	TypeIssueCertificate    Type = "ISSUE_CERTIFICATE"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

var (
	ErrInvalidType   = errors.New("invalid action type")
	ErrInvalidStatus = errors.New("invalid action status")
	ErrMissingRef    = errors.New("action is missing a required reference")
)

func (t Type) IsValid() bool {
	switch t {
	case TypeRegisterUserToEvent, TypeMarkAttendance, TypeCreateUser, TypeCreateEvent, TypeIssueCertificate:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	default:
		return false
	}
}

// Payload is opaque to the queue; only the dispatcher interprets it.
type Payload map[string]any

// PendingAction is a mutation attempted while offline and waiting to be
// replayed against the backend services.
type PendingAction struct {
	ID             string    `json:"id" yaml:"id"`
	Type           Type      `json:"type" yaml:"type"`
	Payload        Payload   `json:"payload" yaml:"payload"`
	Description    string    `json:"description" yaml:"description"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
	Status         Status    `json:"status" yaml:"status"`
	EventID        *string   `json:"eventId,omitempty" yaml:"eventId,omitempty"`
	RegistrationID *string   `json:"registrationId,omitempty" yaml:"registrationId,omitempty"`
	ErrorMessage   *string   `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey" yaml:"idempotencyKey"`
}

type NewRequest struct {
	Type           Type
	Payload        Payload
	Description    string
	EventID        string
	RegistrationID string
}

func New(req NewRequest) (PendingAction, error) {
	if !req.Type.IsValid() {
		return PendingAction{}, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}

	payload := req.Payload
	if payload == nil {
		payload = Payload{}
	}

	a := PendingAction{
		ID:             uuid.NewString(),
		Type:           req.Type,
		Payload:        payload,
		Description:    req.Description,
		CreatedAt:      time.Now().UTC(),
		Status:         StatusPending,
		IdempotencyKey: uuid.NewString(),
	}

	if req.EventID != "" {
		id := req.EventID
		a.EventID = &id
	}
	if req.RegistrationID != "" {
		id := req.RegistrationID
		a.RegistrationID = &id
	}
	if a.Description == "" {
		a.Description = DefaultDescription(a.Type)
	}

	return a, a.CheckRefs()
}

// CheckRefs reports whether the references the dispatcher needs for this
// type are present.
func (a PendingAction) CheckRefs() error {
	switch a.Type {
	case TypeRegisterUserToEvent, TypeIssueCertificate:
		if a.EventID == nil || *a.EventID == "" {
			return fmt.Errorf("%w: %s needs an event id", ErrMissingRef, a.Type)
		}
	case TypeMarkAttendance:
		if a.EventID == nil || *a.EventID == "" || a.RegistrationID == nil || *a.RegistrationID == "" {
			return fmt.Errorf("%w: %s needs event and registration ids", ErrMissingRef, a.Type)
		}
	}
	return nil
}

func DefaultDescription(t Type) string {
	switch t {
	case TypeRegisterUserToEvent:
		return "Register attendee to event"
	case TypeMarkAttendance:
		return "Mark attendance"
	case TypeCreateUser:
		return "Create user"
	case TypeCreateEvent:
		return "Create event"
	case TypeIssueCertificate:
		return "Issue certificate"
	default:
		return string(t)
	}
}

func (p Payload) JSON() ([]byte, error) {
	if p == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(p)
}
