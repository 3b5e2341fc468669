package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor payload")

type EventCursor struct {
	StartAt time.Time `json:"startAt"`
	ID      string    `json:"id"`
}

type LogCursor struct {
	Timestamp time.Time `json:"ts"`
	ID        string    `json:"id"`
}

func EncodeEventCursor(startAt time.Time, id string) (string, error) {
	return encode(EventCursor{StartAt: startAt, ID: id})
}

func DecodeEventCursor(cursor string) (EventCursor, error) {
	var c EventCursor
	if err := decode(cursor, &c); err != nil {
		return EventCursor{}, err
	}
	if c.ID == "" || c.StartAt.IsZero() {
		return EventCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func EncodeLogCursor(ts time.Time, id string) (string, error) {
	return encode(LogCursor{Timestamp: ts, ID: id})
}

func DecodeLogCursor(cursor string) (LogCursor, error) {
	var c LogCursor
	if err := decode(cursor, &c); err != nil {
		return LogCursor{}, err
	}
	if c.ID == "" || c.Timestamp.IsZero() {
		return LogCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decode(cursor string, out any) error {
	if cursor == "" {
		return errors.New("empty cursor")
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}
