package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/certhub/internal/domain/job"
	"github.com/geocoder89/certhub/internal/http/handlers"
	"github.com/geocoder89/certhub/internal/jobs"
	"github.com/geocoder89/certhub/internal/repo/postgres"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeJobsRepo struct {
	byKey  map[string]job.Job
	byID   map[string]job.Job
	counts map[job.Status]int
	retry  func(id string) error
	fail   error
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{byKey: map[string]job.Job{}, byID: map[string]job.Job{}}
}

func (f *fakeJobsRepo) Create(_ context.Context, req job.CreateRequest) (job.Job, error) {
	if f.fail != nil {
		return job.Job{}, f.fail
	}
	if req.IdempotencyKey != nil {
		if _, ok := f.byKey[*req.IdempotencyKey]; ok {
			return job.Job{}, &pgconn.PgError{Code: "23505", ConstraintName: "jobs_idempotency_key_uniq"}
		}
	}
	j := job.New(req)
	f.byID[j.ID] = j
	if req.IdempotencyKey != nil {
		f.byKey[*req.IdempotencyKey] = j
	}
	return j, nil
}

func (f *fakeJobsRepo) GetByIdempotencyKey(_ context.Context, key string) (job.Job, error) {
	j, ok := f.byKey[key]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobsRepo) GetByID(_ context.Context, id string) (job.Job, error) {
	j, ok := f.byID[id]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobsRepo) Retry(_ context.Context, id string) error {
	if f.retry != nil {
		return f.retry(id)
	}
	return nil
}

func (f *fakeJobsRepo) CountByStatus(context.Context) (map[job.Status]int, error) {
	return f.counts, nil
}

type enqueueResponse struct {
	JobID           string `json:"jobId"`
	AlreadyEnqueued bool   `json:"alreadyEnqueued"`
}

func enqueue(t *testing.T, r http.Handler, kind, body, key string) (*httptest.ResponseRecorder, enqueueResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/"+kind, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp enqueueResponse
	if w.Code == http.StatusAccepted {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return w, resp
}

func TestEnqueueNotificationHandler(t *testing.T) {
	tests := []struct {
		name           string
		kind           string
		body           string
		fail           error
		wantStatusCode int
	}{
		{"accepted", "certificate-issued", `{"to":"ada@example.com","name":"Ada","data":{"certificateCode":"CERT-1"}}`, nil, http.StatusAccepted},
		{"every_kind_route_exists", "event-reminder", `{"to":"ada@example.com"}`, nil, http.StatusAccepted},
		{"unknown_kind", "birthday", `{"to":"ada@example.com"}`, nil, http.StatusNotFound},
		{"invalid_email", "account-created", `{"to":"not-an-email"}`, nil, http.StatusBadRequest},
		{"missing_to", "account-created", `{"name":"Ada"}`, nil, http.StatusBadRequest},
		{"repo_error", "account-created", `{"to":"ada@example.com"}`, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeJobsRepo()
			repo.fail = tt.fail
			h := handlers.NewNotificationsHandler(repo, nil)
			r := setupRouter(http.MethodPost, "/api/notifications/:kind", h.Enqueue)

			w, resp := enqueue(t, r, tt.kind, tt.body, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if w.Code == http.StatusAccepted {
				j := repo.byID[resp.JobID]
				if j.Type != string(jobs.JobSendNotification) || j.Status != job.StatusPending {
					t.Fatalf("unexpected job %+v", j)
				}
				payload, err := jobs.DecodePayload(j)
				if err != nil {
					t.Fatalf("stored payload does not decode: %v", err)
				}
				if p := payload.(jobs.SendNotificationPayload); p.Kind != tt.kind {
					t.Fatalf("got kind %q, want %q", p.Kind, tt.kind)
				}
			}
		})
	}
}

func TestEnqueueNotificationHandler_IdempotencyKeyDeduplicates(t *testing.T) {
	repo := newFakeJobsRepo()
	h := handlers.NewNotificationsHandler(repo, nil)
	r := setupRouter(http.MethodPost, "/api/notifications/:kind", h.Enqueue)

	body := `{"to":"ada@example.com"}`

	w1, first := enqueue(t, r, "account-created", body, "k-1")
	w2, second := enqueue(t, r, "account-created", body, "k-1")
	_, third := enqueue(t, r, "account-created", body, "k-2")

	if w1.Code != http.StatusAccepted || w2.Code != http.StatusAccepted {
		t.Fatalf("got %d then %d", w1.Code, w2.Code)
	}
	if first.JobID != second.JobID || !second.AlreadyEnqueued {
		t.Fatalf("duplicate key should return the first job: %+v %+v", first, second)
	}
	if third.JobID == first.JobID {
		t.Fatalf("different key must enqueue a new job")
	}
	if len(repo.byID) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(repo.byID))
	}
}

func TestRetryJobHandler(t *testing.T) {
	id := newUUID()

	tests := []struct {
		name           string
		err            error
		wantStatusCode int
	}{
		{"retried", nil, http.StatusAccepted},
		{"not_found", job.ErrJobNotFound, http.StatusNotFound},
		{"not_failed", postgres.ErrJobNotFailed, http.StatusConflict},
		{"repo_error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeJobsRepo()
			repo.retry = func(string) error { return tt.err }
			h := handlers.NewNotificationsHandler(repo, nil)
			r := setupRouter(http.MethodPost, "/api/notifications/jobs/:id/retry", h.RetryJob)

			w := doJSON(r, http.MethodPost, "/api/notifications/jobs/"+id+"/retry", "", "")
			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestGetJobAndStatsHandlers(t *testing.T) {
	repo := newFakeJobsRepo()
	repo.counts = map[job.Status]int{job.StatusDone: 3, job.StatusFailed: 1}
	existing := job.New(job.CreateRequest{Type: string(jobs.JobSendNotification)})
	repo.byID[existing.ID] = existing

	h := handlers.NewNotificationsHandler(repo, nil)
	r := setupRouter(http.MethodGet, "/api/notifications/jobs/:id", h.GetJob)
	r.GET("/api/notifications/stats", h.Stats)

	if w := doJSON(r, http.MethodGet, "/api/notifications/jobs/"+existing.ID, "", ""); w.Code != http.StatusOK {
		t.Fatalf("get job got %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/notifications/jobs/"+newUUID(), "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing job got %d", w.Code)
	}

	w := doJSON(r, http.MethodGet, "/api/notifications/stats", "", "")
	var resp struct {
		Jobs map[string]int `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Jobs["done"] != 3 || resp.Jobs["failed"] != 1 || resp.Jobs["pending"] != 0 {
		t.Fatalf("unexpected stats %v", resp.Jobs)
	}
}
