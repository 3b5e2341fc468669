package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method      string
	Path        string
	Auth        string
	Idempotency string
	Body        map[string]any
}

func captureServer(t *testing.T, status int, respBody string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Method = r.Method
		got.Path = r.URL.Path
		got.Auth = r.Header.Get("Authorization")
		got.Idempotency = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestHTTPDispatcher_Routes(t *testing.T) {
	tests := []struct {
		name       string
		req        pendingaction.NewRequest
		wantMethod string
		wantPath   string
		wantBody   map[string]any
	}{
		{
			name: "create_user",
			req: pendingaction.NewRequest{
				Type:    pendingaction.TypeCreateUser,
				Payload: pendingaction.Payload{"email": "ada@example.com", "password": "longenough", "name": "Ada"},
			},
			wantMethod: http.MethodPost,
			wantPath:   "/users",
		},
		{
			name: "create_event",
			req: pendingaction.NewRequest{
				Type:    pendingaction.TypeCreateEvent,
				Payload: pendingaction.Payload{"title": "Go Meetup", "startAt": "2026-11-01T18:00:00Z", "capacity": 10},
			},
			wantMethod: http.MethodPost,
			wantPath:   "/events",
		},
		{
			name: "register",
			req: pendingaction.NewRequest{
				Type:    pendingaction.TypeRegisterUserToEvent,
				EventID: "evt-1",
				Payload: pendingaction.Payload{"name": "Ada", "email": "ada@example.com"},
			},
			wantMethod: http.MethodPost,
			wantPath:   "/events/evt-1/registrations",
		},
		{
			name: "attendance_defaults_true",
			req: pendingaction.NewRequest{
				Type:           pendingaction.TypeMarkAttendance,
				EventID:        "evt-1",
				RegistrationID: "reg-9",
			},
			wantMethod: http.MethodPatch,
			wantPath:   "/events/evt-1/registrations/reg-9/attendance",
			wantBody:   map[string]any{"attended": true},
		},
		{
			name: "issue_certificate",
			req: pendingaction.NewRequest{
				Type:    pendingaction.TypeIssueCertificate,
				EventID: "evt-1",
			},
			wantMethod: http.MethodPost,
			wantPath:   "/certificates/issue",
			wantBody:   map[string]any{"eventId": "evt-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := captureServer(t, http.StatusCreated, `{}`)
			d := NewHTTPDispatcher(DispatcherConfig{EventsURL: srv.URL, CertificatesURL: srv.URL + "/", Token: "tok"})

			a, err := pendingaction.New(tt.req)
			require.NoError(t, err)

			require.NoError(t, d.Dispatch(context.Background(), a))

			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, "Bearer tok", got.Auth)
			assert.Equal(t, a.IdempotencyKey, got.Idempotency)
			if tt.wantBody != nil {
				assert.Equal(t, tt.wantBody, got.Body)
			}
		})
	}
}

func TestHTTPDispatcher_ServerErrorCarriesMessage(t *testing.T) {
	srv, _ := captureServer(t, http.StatusConflict,
		`{"error":{"code":"already_registered","message":"User already registered for this event"}}`)
	d := NewHTTPDispatcher(DispatcherConfig{EventsURL: srv.URL})

	a, err := pendingaction.New(pendingaction.NewRequest{
		Type:    pendingaction.TypeRegisterUserToEvent,
		EventID: "evt-1",
		Payload: pendingaction.Payload{"name": "Ada", "email": "ada@example.com"},
	})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), a)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.Equal(t, "already_registered", se.Code)
	assert.Contains(t, err.Error(), "User already registered for this event")
	assert.NotErrorIs(t, err, ErrOffline)
}

func TestHTTPDispatcher_TransportErrorIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{EventsURL: base})
	a, err := pendingaction.New(pendingaction.NewRequest{
		Type:    pendingaction.TypeCreateEvent,
		Payload: pendingaction.Payload{"title": "Go Meetup", "startAt": "2026-11-01T18:00:00Z", "capacity": 10},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Dispatch(context.Background(), a), ErrOffline)
}

func TestHTTPDispatcher_InvalidActionsNeverSent(t *testing.T) {
	srv, got := captureServer(t, http.StatusCreated, `{}`)
	d := NewHTTPDispatcher(DispatcherConfig{EventsURL: srv.URL, CertificatesURL: srv.URL})

	missingRef := pendingaction.PendingAction{
		ID:     "a1",
		Type:   pendingaction.TypeMarkAttendance,
		Status: pendingaction.StatusPending,
	}
	assert.ErrorIs(t, d.Dispatch(context.Background(), missingRef), ErrInvalidAction)

	badPayload, err := pendingaction.New(pendingaction.NewRequest{
		Type:    pendingaction.TypeCreateUser,
		Payload: pendingaction.Payload{"email": "not-an-email", "name": "Ada"},
	})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), badPayload)
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "password")

	assert.Empty(t, got.Method)
}

func TestSync_InvalidActionMarkedFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := pendingaction.PendingAction{
		ID:             "a1",
		Type:           pendingaction.TypeIssueCertificate,
		Payload:        pendingaction.Payload{},
		Status:         pendingaction.StatusPending,
		IdempotencyKey: "k1",
	}
	require.NoError(t, s.Add(ctx, a))

	d := NewHTTPDispatcher(DispatcherConfig{CertificatesURL: "http://127.0.0.1:1"})
	report, err := NewRunner(s, d).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, pendingaction.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "event id")
}

func TestHealthProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.True(t, NewHealthProbe(srv.URL+"/", 0).Online(context.Background()))

	srv.Close()
	assert.False(t, NewHealthProbe(srv.URL, 0).Online(context.Background()))
}
