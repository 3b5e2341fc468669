package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/certhub/internal/auth"
	"github.com/geocoder89/certhub/internal/cache"
	"github.com/geocoder89/certhub/internal/certificates"
	"github.com/geocoder89/certhub/internal/clients"
	"github.com/geocoder89/certhub/internal/config"
	"github.com/geocoder89/certhub/internal/db"
	apphttp "github.com/geocoder89/certhub/internal/http"
	"github.com/geocoder89/certhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	testSecret    = "integration-secret-32-bytes-----"
	adminEmail    = "admin@certhub.test"
	adminPassword = "admin-password"
)

type testEnv struct {
	Context       context.Context
	Pool          *pgxpool.Pool
	Events        *httptest.Server
	Certificates  *httptest.Server
	Notifications *httptest.Server
	Logs          *httptest.Server
	Jobs          *postgres.JobsRepo
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("certhub"),
		tcpostgres.WithUsername("certhub"),
		tcpostgres.WithPassword("certhub"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := testLogger()
	// certificates reads the events schema, so events goes first
	for _, service := range []string{"events", "certificates", "notifications", "logs"} {
		require.NoError(t, db.RunMigrations(log, dbURL, service))
	}

	pool, err := db.NewPool(ctx, dbURL, 5)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.EnsureAdminUser(ctx, pool, config.Config{
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
		AdminName:     "Admin",
		AdminRole:     "admin",
	}))

	jwtManager := auth.NewManager(testSecret, time.Hour)
	base := func(name string) apphttp.Base {
		return apphttp.Base{Log: log, Env: "test", ServiceName: name, Ping: pool.Ping}
	}

	jobsRepo := postgres.NewJobsRepo(pool, nil)
	notificationsSrv := httptest.NewServer(apphttp.NewNotificationsRouter(apphttp.NotificationsDeps{
		Base: base("notification-service"),
		JWT:  jwtManager,
		Jobs: jobsRepo,
	}))
	t.Cleanup(notificationsSrv.Close)

	logsSrv := httptest.NewServer(apphttp.NewLogsRouter(apphttp.LogsDeps{
		Base: base("logs-service"),
		Logs: postgres.NewLogsRepo(pool, nil),
	}))
	t.Cleanup(logsSrv.Close)

	notifier := clients.NewNotificationsClient(notificationsSrv.URL, 2*time.Second, log, nil)
	logSink := clients.NewLogsClient(logsSrv.URL, 2*time.Second, log, nil)

	eventsSrv := httptest.NewServer(apphttp.NewEventsRouter(apphttp.EventsDeps{
		Base:          base("events-service"),
		JWT:           jwtManager,
		Users:         postgres.NewUsersRepo(pool, nil),
		Events:        postgres.NewEventsRepo(pool, nil),
		Registrations: postgres.NewRegistrationsRepo(pool, nil),
		Notifier:      notifier,
		Idempotency:   cache.NewMemoryStore(time.Hour),
		ListCache:     cache.New(time.Second),
	}))
	t.Cleanup(eventsSrv.Close)

	issuer := certificates.NewIssuer(
		postgres.NewCertificatesRepo(pool, nil),
		postgres.NewAttendanceRepo(pool, nil),
		certificates.NewPDFRenderer("CertHub", "http://certhub.test"),
		certificates.WithNotifier(notifier),
		certificates.WithLogSink(logSink),
		certificates.WithLogger(log),
	)
	certificatesSrv := httptest.NewServer(apphttp.NewCertificatesRouter(apphttp.CertificatesDeps{
		Base:         base("certificate-service"),
		JWT:          jwtManager,
		Certificates: issuer,
		Idempotency:  cache.NewMemoryStore(time.Hour),
	}))
	t.Cleanup(certificatesSrv.Close)

	return &testEnv{
		Context:       ctx,
		Pool:          pool,
		Events:        eventsSrv,
		Certificates:  certificatesSrv,
		Notifications: notificationsSrv,
		Logs:          logsSrv,
		Jobs:          jobsRepo,
	}
}

type apiResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r apiResponse) decode(t *testing.T, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, out), "body=%s", string(r.Body))
}

func (r apiResponse) errorCode(t *testing.T) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	r.decode(t, &env)
	return env.Error.Code
}

func call(t *testing.T, method, url, token string, body any, headers map[string]string) apiResponse {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return apiResponse{Status: res.StatusCode, Header: res.Header, Body: b}
}

func login(t *testing.T, env *testEnv, email, password string) string {
	t.Helper()
	res := call(t, http.MethodPost, env.Events.URL+"/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Body))

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	res.decode(t, &out)
	return out.AccessToken
}
