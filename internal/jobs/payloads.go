package jobs

import "time"

// SendNotificationPayload carries everything the worker needs to render
// and deliver one email. The worker never reads other services' tables.
type SendNotificationPayload struct {
	Kind        string            `json:"kind"`
	To          string            `json:"to"`
	Name        string            `json:"name,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	RequestedAt time.Time         `json:"requestedAt"`
}
