package logentry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Entry struct {
	ID        string          `json:"id"`
	Service   string          `json:"service"`
	Level     string          `json:"level"`
	Action    string          `json:"action"`
	Message   string          `json:"message"`
	RequestID *string         `json:"requestId,omitempty"`
	UserID    *string         `json:"userId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type CreateRequest struct {
	Service   string          `json:"service" binding:"required,min=2,max=64"`
	Level     string          `json:"level" binding:"omitempty,oneof=debug info warn error"`
	Action    string          `json:"action" binding:"required,max=120"`
	Message   string          `json:"message" binding:"omitempty,max=2000"`
	RequestID *string         `json:"requestId" binding:"omitempty,max=128"`
	UserID    *string         `json:"userId" binding:"omitempty,max=128"`
	Metadata  json.RawMessage `json:"metadata"`
	// optional; defaults to receipt time
	Timestamp *time.Time `json:"timestamp"`
}

type ListFilter struct {
	Service *string
	Level   *string
	Limit   int
}

func NewFromCreateRequest(req CreateRequest) Entry {
	level := req.Level
	if level == "" {
		level = LevelInfo
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	meta := req.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	return Entry{
		ID:        uuid.NewString(),
		Service:   req.Service,
		Level:     level,
		Action:    req.Action,
		Message:   req.Message,
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Metadata:  meta,
		Timestamp: ts,
	}
}
