package offline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAction(t *testing.T, typ pendingaction.Type, eventID string) pendingaction.PendingAction {
	t.Helper()
	req := pendingaction.NewRequest{Type: typ, EventID: eventID}
	switch typ {
	case pendingaction.TypeCreateEvent:
		req.Payload = pendingaction.Payload{"title": "Go Meetup", "startAt": "2026-11-01T18:00:00Z", "capacity": 50}
	case pendingaction.TypeMarkAttendance:
		req.RegistrationID = "reg-1"
	}
	a, err := pendingaction.New(req)
	require.NoError(t, err)
	return a
}

func seed(t *testing.T, s *Store, n int) []pendingaction.PendingAction {
	t.Helper()
	out := make([]pendingaction.PendingAction, 0, n)
	for i := 0; i < n; i++ {
		a := newAction(t, pendingaction.TypeCreateEvent, "")
		require.NoError(t, s.Add(context.Background(), a))
		out = append(out, a)
	}
	return out
}

// scriptedDispatcher fails the listed action ids and records every call.
type scriptedDispatcher struct {
	mu     sync.Mutex
	fail   map[string]error
	calls  []string
	before func(a pendingaction.PendingAction)
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, a pendingaction.PendingAction) error {
	d.mu.Lock()
	d.calls = append(d.calls, a.ID)
	hook := d.before
	err := d.fail[a.ID]
	d.mu.Unlock()

	if hook != nil {
		hook(a)
	}
	return err
}

func (d *scriptedDispatcher) called() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

var errRejected = errors.New("POST /events: 400 Invalid request body")
