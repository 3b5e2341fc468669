package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/certhub/internal/domain/event"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/domain/registration"
	"github.com/geocoder89/certhub/internal/domain/user"
	"github.com/geocoder89/certhub/internal/http/handlers"
)

type fakeRegistrationsRepo struct {
	createFn        func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error)
	listFn          func(ctx context.Context, eventID string) ([]registration.Registration, error)
	getFn           func(ctx context.Context, eventID, regID string) (registration.Registration, error)
	deleteFn        func(ctx context.Context, eventID, regID string) error
	setAttendanceFn func(ctx context.Context, eventID, regID string, attended bool) (registration.Registration, error)
}

func (f *fakeRegistrationsRepo) Create(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return registration.NewFromCreateRequest(req), nil
}

func (f *fakeRegistrationsRepo) ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error) {
	if f.listFn != nil {
		return f.listFn(ctx, eventID)
	}
	return []registration.Registration{}, nil
}

func (f *fakeRegistrationsRepo) GetByID(ctx context.Context, eventID, regID string) (registration.Registration, error) {
	if f.getFn != nil {
		return f.getFn(ctx, eventID, regID)
	}
	return registration.Registration{}, registration.ErrNotFound
}

func (f *fakeRegistrationsRepo) Delete(ctx context.Context, eventID, regID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, eventID, regID)
	}
	return nil
}

func (f *fakeRegistrationsRepo) SetAttendance(ctx context.Context, eventID, regID string, attended bool) (registration.Registration, error) {
	if f.setAttendanceFn != nil {
		return f.setAttendanceFn(ctx, eventID, regID, attended)
	}
	return registration.Registration{ID: regID, EventID: eventID, Attended: attended}, nil
}

type staticEvents struct{ e event.Event }

func (s staticEvents) GetByID(_ context.Context, id string) (event.Event, error) {
	if s.e.ID != id {
		return event.Event{}, event.ErrNotFound
	}
	return s.e, nil
}

func TestRegisterHandler(t *testing.T) {
	eventID := newUUID()
	userID := newUUID()
	events := staticEvents{e: event.Event{ID: eventID, Title: "GopherCon", StartAt: time.Now().UTC()}}

	tests := []struct {
		name           string
		url            string
		body           string
		authz          bool
		createFn       func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error)
		wantStatusCode int
		wantNotified   bool
	}{
		{
			name:  "success",
			url:   "/events/" + eventID + "/registrations",
			body:  `{"name":"Ada","email":"ADA@example.com"}`,
			authz: true,
			createFn: func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
				if req.EventID != eventID || req.UserID == nil || *req.UserID != userID {
					return registration.Registration{}, errors.New("ids not forwarded")
				}
				if req.Email != "ada@example.com" {
					return registration.Registration{}, errors.New("email not normalized")
				}
				return registration.NewFromCreateRequest(req), nil
			},
			wantStatusCode: http.StatusCreated,
			wantNotified:   true,
		},
		{
			name:           "missing_token",
			url:            "/events/" + eventID + "/registrations",
			body:           `{"name":"Ada","email":"ada@example.com"}`,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid_event_id",
			url:            "/events/nope/registrations",
			body:           `{"name":"Ada","email":"ada@example.com"}`,
			authz:          true,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:  "already_registered",
			url:   "/events/" + eventID + "/registrations",
			body:  `{"name":"Ada","email":"ada@example.com"}`,
			authz: true,
			createFn: func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
				return registration.Registration{}, registration.ErrAlreadyRegistered
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:  "event_full",
			url:   "/events/" + eventID + "/registrations",
			body:  `{"name":"Ada","email":"ada@example.com"}`,
			authz: true,
			createFn: func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
				return registration.Registration{}, registration.ErrEventFull
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:  "event_not_found",
			url:   "/events/" + eventID + "/registrations",
			body:  `{"name":"Ada","email":"ada@example.com"}`,
			authz: true,
			createFn: func(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
				return registration.Registration{}, event.ErrNotFound
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			h := handlers.NewRegistrationHandler(&fakeRegistrationsRepo{createFn: tt.createFn}, events, notifier)
			r := setupAuthedRouter(http.MethodPost, "/events/:id/registrations", h.Register)

			authz := ""
			if tt.authz {
				authz = bearer(t, userID, "ada@example.com", user.RoleUser)
			}
			w := doJSON(r, http.MethodPost, tt.url, tt.body, authz)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantNotified {
				if len(notifier.sent) != 1 || notifier.sent[0].Kind != notification.KindEventRegistration {
					t.Fatalf("expected event-registration notification, got %+v", notifier.sent)
				}
				if notifier.sent[0].Req.Data["eventTitle"] != "GopherCon" {
					t.Fatalf("expected event title in data, got %v", notifier.sent[0].Req.Data)
				}
			} else if len(notifier.sent) != 0 {
				t.Fatalf("expected no notification, got %+v", notifier.sent)
			}
		})
	}
}

func TestCancelRegistrationHandler(t *testing.T) {
	eventID := newUUID()
	regID := newUUID()
	owner := newUUID()
	stranger := newUUID()

	existing := func(ctx context.Context, e, r string) (registration.Registration, error) {
		return registration.Registration{ID: r, EventID: e, UserID: &owner, Email: "ada@example.com"}, nil
	}

	tests := []struct {
		name           string
		userID         string
		role           string
		getFn          func(ctx context.Context, eventID, regID string) (registration.Registration, error)
		wantStatusCode int
	}{
		{"owner_cancels", owner, user.RoleUser, existing, http.StatusNoContent},
		{"admin_cancels", stranger, user.RoleAdmin, existing, http.StatusNoContent},
		{"stranger_forbidden", stranger, user.RoleUser, existing, http.StatusForbidden},
		{"not_found", owner, user.RoleUser, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			deleted := false
			repo := &fakeRegistrationsRepo{
				getFn: tt.getFn,
				deleteFn: func(ctx context.Context, e, r string) error {
					deleted = true
					return nil
				},
			}
			h := handlers.NewRegistrationHandler(repo, nil, notifier)
			r := setupAuthedRouter(http.MethodDelete, "/events/:id/registrations/:registrationId", h.Cancel)

			w := doJSON(r, http.MethodDelete, "/events/"+eventID+"/registrations/"+regID, "",
				bearer(t, tt.userID, "someone@example.com", tt.role))

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusNoContent {
				if !deleted {
					t.Fatalf("expected delete to be called")
				}
				if kinds := notifier.kinds(); len(kinds) != 1 || kinds[0] != notification.KindEventCancellation {
					t.Fatalf("expected event-cancellation notification, got %v", kinds)
				}
			} else if deleted {
				t.Fatalf("delete must not run on %d", w.Code)
			}
		})
	}
}

func TestMarkAttendanceHandler(t *testing.T) {
	eventID := newUUID()
	regID := newUUID()

	tests := []struct {
		name           string
		body           string
		setFn          func(ctx context.Context, eventID, regID string, attended bool) (registration.Registration, error)
		wantStatusCode int
		wantNotified   bool
	}{
		{
			name:           "mark_attended",
			body:           `{"attended":true}`,
			wantStatusCode: http.StatusOK,
			wantNotified:   true,
		},
		{
			name:           "explicit_false_is_valid",
			body:           `{"attended":false}`,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "missing_field",
			body:           `{}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "registration_not_found",
			body: `{"attended":true}`,
			setFn: func(ctx context.Context, eventID, regID string, attended bool) (registration.Registration, error) {
				return registration.Registration{}, registration.ErrNotFound
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			h := handlers.NewRegistrationHandler(&fakeRegistrationsRepo{setAttendanceFn: tt.setFn}, nil, notifier)
			r := setupRouter(http.MethodPatch, "/events/:id/registrations/:registrationId/attendance", h.MarkAttendance)

			w := doJSON(r, http.MethodPatch, "/events/"+eventID+"/registrations/"+regID+"/attendance", tt.body, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			kinds := notifier.kinds()
			if tt.wantNotified && (len(kinds) != 1 || kinds[0] != notification.KindAttendanceConfirmed) {
				t.Fatalf("expected attendance-confirmed notification, got %v", kinds)
			}
			if !tt.wantNotified && len(kinds) != 0 {
				t.Fatalf("expected no notification, got %v", kinds)
			}
		})
	}
}

func TestListRegistrationsHandler(t *testing.T) {
	eventID := newUUID()

	h := handlers.NewRegistrationHandler(&fakeRegistrationsRepo{
		listFn: func(ctx context.Context, id string) ([]registration.Registration, error) {
			return nil, event.ErrNotFound
		},
	}, nil, nil)
	r := setupRouter(http.MethodGet, "/events/:id/registrations", h.ListForEvent)

	w := doJSON(r, http.MethodGet, "/events/"+eventID+"/registrations", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}
