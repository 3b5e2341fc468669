package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/domain/notification"
	"github.com/geocoder89/certhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "handlers-test-secret"

func newUUID() string {
	return uuid.NewString()
}

// small helper function which returns the gin engine to mount one handler per test
func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

// setupAuthedRouter mounts h behind the real auth middleware.
func setupAuthedRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	am := middlewares.NewAuthMiddleware(auth.NewManager(testSecret, time.Hour))
	r := gin.New()
	r.Handle(method, path, am.RequireAuth(), h)
	return r
}

func bearer(t *testing.T, userID, email, role string) string {
	t.Helper()
	tok, err := auth.NewManager(testSecret, time.Hour).GenerateAccessToken(userID, email, "Test User", role)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + tok
}

func doJSON(r http.Handler, method, url, body, authz string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type sentNotification struct {
	Kind notification.Kind
	Req  notification.Request
	Key  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, kind notification.Kind, req notification.Request, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Kind: kind, Req: req, Key: key})
}

func (n *recordingNotifier) kinds() []notification.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Kind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}
