package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsync/internal/config"
	"attendsync/internal/connectivity"
	"attendsync/internal/exporter"
	"attendsync/internal/queue"
	"attendsync/internal/scan"
	"attendsync/internal/store"
	"attendsync/internal/submit"
)

type stubSubmitter struct {
	outcome submit.Outcome
}

func (s *stubSubmitter) Submit(ctx context.Context, rendered string) submit.Outcome {
	return s.outcome
}

type testEnv struct {
	server   *Server
	store    *store.Store
	sub      *stubSubmitter
	triggers *queue.InMemory
	monitor  *connectivity.StaticMonitor
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		Env:               "dev",
		BaseURL:           "https://asistencia.example.edu/asistencia/registrar",
		ValidityWindowMin: 10,
		JWTIssuer:         "attendsync-agent",
		JWTSigningKey:     "test-signing-key",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        24 * time.Hour,
		RateLimitPerMin:   1000,
		ExportDir:         t.TempDir(),
	}

	st, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sub := &stubSubmitter{outcome: submit.Outcome{Kind: submit.Accepted, Status: 200}}
	orch := scan.NewOrchestrator(cfg.BaseURL, cfg.ValidityWindowMin, st, sub, nil)
	triggers := queue.NewInMemory(8)
	monitor := connectivity.NewStaticMonitor(connectivity.ProfileNone)
	exp := exporter.New(st, cfg.ExportDir)

	env := &testEnv{
		server:   New(cfg, st, orch, triggers, exp, monitor, nil),
		store:    st,
		sub:      sub,
		triggers: triggers,
		monitor:  monitor,
	}
	env.token = env.register(t)
	return env
}

func (e *testEnv) register(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/devices/register", bytes.NewBufferString(`{}`))
	e.server.Engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.server.Engine.ServeHTTP(w, req)
	return w
}

func scanBody(t *testing.T) string {
	t.Helper()
	payload := fmt.Sprintf(`{"idDocente":"42","tipo":"Entrada","fecha":%q}`,
		time.Now().Format("2006-01-02 15:04:05"))
	body, err := json.Marshal(gin.H{"payload": payload})
	require.NoError(t, err)
	return string(body)
}

func TestScansRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scans", bytes.NewBufferString(scanBody(t)))
	env.server.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScanConfirmed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/scans", scanBody(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "registered")

	events, err := env.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events, "accepted submissions are not persisted")
}

func TestScanQueuedWhenUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.sub.outcome = submit.Outcome{Kind: submit.Unreachable}

	w := env.do(t, http.MethodPost, "/v1/scans", scanBody(t))
	assert.Equal(t, http.StatusAccepted, w.Code)

	pending, err := env.store.ListPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	w = env.do(t, http.MethodGet, "/v1/events?pending=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":1`)
}

func TestScanValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(gin.H{"payload": "not json"})
	w := env.do(t, http.MethodPost, "/v1/scans", string(body))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSyncTriggerPublished(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	triggers, err := env.triggers.Consume(ctx)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/sync", `{"force":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	got := <-triggers
	assert.Equal(t, queue.SourceManual, got.Source)
	assert.True(t, got.Force)
}

func TestNetworkChangeToWiFiPublishesConnectivityTrigger(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	triggers, err := env.triggers.Consume(ctx)
	require.NoError(t, err)

	w := env.do(t, http.MethodPut, "/v1/network", `{"profile":"wifi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, connectivity.ProfileWiFi, env.monitor.Profile())

	got := <-triggers
	assert.Equal(t, queue.SourceConnectivity, got.Source)

	// Reporting wifi again is not a restoration; no second trigger.
	w = env.do(t, http.MethodPut, "/v1/network", `{"profile":"wifi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case tr := <-triggers:
		t.Fatalf("unexpected trigger %+v", tr)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTeacherPendingCount(t *testing.T) {
	env := newTestEnv(t)
	env.sub.outcome = submit.Outcome{Kind: submit.Unreachable}

	w := env.do(t, http.MethodPost, "/v1/scans", scanBody(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, http.MethodGet, "/v1/teachers/42/pending", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":1`)

	w = env.do(t, http.MethodGet, "/v1/teachers/7/pending", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":0`)

	w = env.do(t, http.MethodGet, "/v1/teachers/zero/pending", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEvents(t *testing.T) {
	env := newTestEnv(t)
	env.sub.outcome = submit.Outcome{Kind: submit.Unreachable}

	w := env.do(t, http.MethodPost, "/v1/scans", scanBody(t))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/events?pending=true", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	events, err := env.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.server.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"db":true`)
}
