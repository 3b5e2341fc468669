package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/certificates"
	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/geocoder89/certhub/internal/domain/logentry"
	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/geocoder89/certhub/internal/offline"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLogs struct{}

func (stubLogs) Create(ctx context.Context, req logentry.CreateRequest) (logentry.Entry, error) {
	return logentry.Entry{ID: "l1", Service: req.Service, Action: req.Action, Timestamp: time.Now().UTC()}, nil
}

func (stubLogs) ListCursor(ctx context.Context, f logentry.ListFilter, afterTS time.Time, afterID string) ([]logentry.Entry, *string, bool, error) {
	return nil, nil, false, nil
}

func serve(h nethttp.Handler, method, path, body, contentType string) *httptest.ResponseRecorder {
	var req *nethttp.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	down := errors.New("db down")

	tests := []struct {
		name     string
		ping     func(ctx context.Context) error
		path     string
		wantCode int
	}{
		{name: "healthz_ignores_db", ping: func(context.Context) error { return down }, path: "/healthz", wantCode: nethttp.StatusOK},
		{name: "readyz_db_up", ping: func(context.Context) error { return nil }, path: "/readyz", wantCode: nethttp.StatusOK},
		{name: "readyz_db_down", ping: func(context.Context) error { return down }, path: "/readyz", wantCode: nethttp.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLogsRouter(LogsDeps{Base: Base{Env: "dev", ServiceName: "logs-service", Ping: tt.ping}, Logs: stubLogs{}})

			w := serve(r, nethttp.MethodGet, tt.path, "", "")
			if w.Code != tt.wantCode {
				t.Fatalf("got %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestEngineSetsRequestIDAndSecurityHeaders(t *testing.T) {
	r := NewLogsRouter(LogsDeps{Base: Base{Env: "dev", ServiceName: "logs-service"}, Logs: stubLogs{}})

	w := serve(r, nethttp.MethodGet, "/logs", "", "")
	if w.Code != nethttp.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers, got %v", w.Header())
	}
}

func TestLogsRouterRequiresJSON(t *testing.T) {
	r := NewLogsRouter(LogsDeps{Base: Base{Env: "dev", ServiceName: "logs-service"}, Logs: stubLogs{}})

	w := serve(r, nethttp.MethodPost, "/logs", "service=x", "application/x-www-form-urlencoded")
	if w.Code != nethttp.StatusUnsupportedMediaType {
		t.Fatalf("got %d, want 415", w.Code)
	}

	w = serve(r, nethttp.MethodPost, "/logs", `{"service":"events-service","action":"user.created"}`, "application/json")
	if w.Code != nethttp.StatusCreated {
		t.Fatalf("got %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestNotificationsAdminRoutesNeedAuth(t *testing.T) {
	r := NewNotificationsRouter(NotificationsDeps{
		Base: Base{Env: "dev", ServiceName: "notification-service"},
		JWT:  auth.NewManager("router-test-secret", time.Hour),
	})

	for _, path := range []string{"/api/notifications/stats", "/api/notifications/jobs/abc"} {
		w := serve(r, nethttp.MethodGet, path, "", "")
		if w.Code != nethttp.StatusUnauthorized {
			t.Fatalf("%s: got %d, want 401", path, w.Code)
		}
	}
}

// gatedIssuer rejects issuance until attendance is confirmed.
type gatedIssuer struct {
	mu        sync.Mutex
	confirmed bool
	calls     int
}

func (g *gatedIssuer) confirm() {
	g.mu.Lock()
	g.confirmed = true
	g.mu.Unlock()
}

func (g *gatedIssuer) Issue(ctx context.Context, email, eventID string) (certificates.IssueResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if !g.confirmed {
		return certificates.IssueResult{}, certificate.ErrAttendanceNotConfirmed
	}
	return certificates.IssueResult{
		Certificate: certificate.Certificate{Code: "CERT-1", UserEmail: email, EventID: eventID, IsActive: true},
		Stage:       certificates.StageNotified,
	}, nil
}

func (g *gatedIssuer) Verify(ctx context.Context, code string) (certificate.Certificate, error) {
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (g *gatedIssuer) ListForUser(ctx context.Context, email string) ([]certificate.Certificate, error) {
	return nil, nil
}

func (g *gatedIssuer) Render(ctx context.Context, code string) (certificate.Certificate, []byte, error) {
	return certificate.Certificate{}, nil, certificate.ErrNotFound
}

func (g *gatedIssuer) Revoke(ctx context.Context, code string) error { return certificate.ErrNotFound }

func TestOfflineIssueRetriedAfterRejection(t *testing.T) {
	jwt := auth.NewManager("router-test-secret", time.Hour)
	issuer := &gatedIssuer{}

	srv := httptest.NewServer(NewCertificatesRouter(CertificatesDeps{
		Base:         Base{Env: "dev", ServiceName: "certificate-service"},
		JWT:          jwt,
		Certificates: issuer,
	}))
	defer srv.Close()

	token, err := jwt.GenerateAccessToken("u1", "ada@example.com", "Ada", "user")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	store, err := offline.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	a, err := pendingaction.New(pendingaction.NewRequest{
		Type:    pendingaction.TypeIssueCertificate,
		EventID: "8f1b7c1e-4c2a-4b0e-9d55-0d8c8f5f2a10",
	})
	if err != nil {
		t.Fatalf("new action: %v", err)
	}
	if err := store.Add(ctx, a); err != nil {
		t.Fatalf("add: %v", err)
	}

	runner := offline.NewRunner(store, offline.NewHTTPDispatcher(offline.DispatcherConfig{
		CertificatesURL: srv.URL,
		Token:           token,
	}))

	first, err := runner.Sync(ctx)
	if err != nil || first.Failed != 1 {
		t.Fatalf("first sync: %+v %v", first, err)
	}

	issuer.confirm()
	if err := store.ResetFailed(ctx, a.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}

	second, err := runner.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Synced != 1 || second.Failed != 0 {
		t.Fatalf("second sync: got %+v, want one synced", second)
	}
	if issuer.calls != 2 {
		t.Fatalf("issuer ran %d times, want 2", issuer.calls)
	}
}
