package certificate

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("certificate not found")
	ErrAlreadyIssued          = errors.New("certificate already issued for this event")
	ErrRegistrationNotFound   = errors.New("registration not found for this event")
	ErrAttendanceNotConfirmed = errors.New("attendance has not been confirmed")
)

type Certificate struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	UserEmail  string    `json:"userEmail"`
	UserName   string    `json:"userName"`
	EventID    string    `json:"eventId"`
	EventTitle string    `json:"eventTitle"`
	EventDate  time.Time `json:"eventDate"`
	IssuedAt   time.Time `json:"issuedAt"`
	IsActive   bool      `json:"isActive"`
}

type IssueRequest struct {
	EventID string `json:"eventId" binding:"required,uuid"`
}

// Attendance is the slice of the events schema the issuer needs: the
// registration row joined with its event.
type Attendance struct {
	RegistrationID string
	Name           string
	Email          string
	Attended       bool
	EventID        string
	EventTitle     string
	EventStartAt   time.Time
}
