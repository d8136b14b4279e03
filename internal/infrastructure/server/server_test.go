package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/projtracker/core/internal/adapters/repository"
	"github.com/projtracker/core/internal/application/services"
	"github.com/projtracker/core/internal/domain/entities"
	"github.com/projtracker/core/internal/infrastructure/config"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/infrastructure/metrics"
)

type testServer struct {
	*Server
	statePath string
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "Project Tracker", Version: "test"},
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 3001},
		Security: config.SecurityConfig{CORSAllowedOrigins: "*"},
		Metrics:  config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, statePath string) *testServer {
	t.Helper()
	if statePath == "" {
		statePath = filepath.Join(t.TempDir(), "counter-state.json")
	}
	log := logger.NewNop()
	recorder := metrics.New()
	repo := repository.NewStateRepository(statePath, nil, log)
	svc := services.NewProjectService(context.Background(), repo, services.ProjectServiceConfig{
		StartPolicy: cfg.Tracker.GetStartPolicy(),
		Metrics:     recorder,
	}, log)

	srv, err := New(cfg, svc, repo.Location(), recorder, log)
	require.NoError(t, err)
	return &testServer{Server: srv, statePath: statePath}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) entities.AppState {
	t.Helper()
	var state entities.AppState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state), rec.Body.String())
	return state
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["error"]
}

func TestServer_GetStateDefault(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
	assert.JSONEq(t, `{"activeProject": null, "deliveredProjects": []}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Scenario(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodPost, "/start-project", `{"name": " Website ", "deadlineDays": 10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("X-State-Persisted"))
	state := decodeState(t, rec)
	require.NotNil(t, state.ActiveProject)
	assert.Equal(t, "Website", state.ActiveProject.Name)
	assert.Equal(t, 10, state.ActiveProject.DeadlineDays)

	rec = srv.do(t, http.MethodPost, "/deliver-project", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = decodeState(t, rec)
	assert.Nil(t, state.ActiveProject)
	require.Len(t, state.DeliveredProjects, 1)
	assert.Equal(t, "Website", state.DeliveredProjects[0].Name)

	rec = srv.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats entities.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalDelivered)
	assert.Equal(t, 1, stats.DeliveredThisMonth)

	rec = srv.do(t, http.MethodPost, "/reset-state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeProject": null, "deliveredProjects": []}`, rec.Body.String())

	data, err := os.ReadFile(srv.statePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"activeProject": null, "deliveredProjects": []}`, string(data))
}

func TestServer_StartProjectValidation(t *testing.T) {
	cases := map[string]struct {
		body    string
		status  int
		message string
	}{
		"empty name":         {`{"name": "", "deadlineDays": 5}`, http.StatusBadRequest, services.MsgNameRequired},
		"blank name":         {`{"name": "   ", "deadlineDays": 5}`, http.StatusBadRequest, services.MsgNameRequired},
		"missing name":       {`{"deadlineDays": 5}`, http.StatusBadRequest, services.MsgNameRequired},
		"numeric name":       {`{"name": 42, "deadlineDays": 5}`, http.StatusBadRequest, services.MsgNameRequired},
		"zero days":          {`{"name": "x", "deadlineDays": 0}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"negative days":      {`{"name": "x", "deadlineDays": -3}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"fractional days":    {`{"name": "x", "deadlineDays": 2.5}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"string days":        {`{"name": "x", "deadlineDays": "5"}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"missing days":       {`{"name": "x"}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"days beyond limit":  {`{"name": "x", "deadlineDays": 36501}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"days beyond int32":  {`{"name": "x", "deadlineDays": 200000000000}`, http.StatusBadRequest, services.MsgDeadlineDaysRequired},
		"name checked first": {`{"name": "", "deadlineDays": 2.5}`, http.StatusBadRequest, services.MsgNameRequired},
		"array body":         {`[1, 2]`, http.StatusBadRequest, services.MsgNameRequired},
		"malformed json":     {`{"name": "x",`, http.StatusInternalServerError, "Failed to process request."},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, testConfig(), "")

			rec := srv.do(t, http.MethodPost, "/start-project", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec))

			rec = srv.do(t, http.MethodGet, "/state", "")
			assert.JSONEq(t, `{"activeProject": null, "deliveredProjects": []}`, rec.Body.String())
			_, err := os.Stat(srv.statePath)
			assert.True(t, os.IsNotExist(err), "rejected input must not be persisted")
		})
	}
}

func TestServer_StartProjectAcceptsIntegralFloat(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodPost, "/start-project", `{"name": "x", "deadlineDays": 3.0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeState(t, rec).ActiveProject.DeadlineDays)
}

func TestServer_LongDeadlineStats(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodPost, "/start-project", `{"name": "Long", "deadlineDays": 36500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decodeState(t, rec).ActiveProject.StartedAt

	rec = srv.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats entities.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	require.NotNil(t, stats.Deadline)
	assert.True(t, stats.Deadline.Equal(started.AddDate(0, 0, 36500)), "deadline %s", stats.Deadline)
	assert.True(t, stats.Deadline.After(started))
	require.NotNil(t, stats.Countdown)
	assert.False(t, stats.Countdown.Expired)
	assert.GreaterOrEqual(t, stats.Countdown.Days, 36499)
}

func TestServer_DeliverWithoutActiveProject(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodPost, "/deliver-project", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No active project to deliver.", decodeError(t, rec))
}

func TestServer_RejectPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Tracker.StartPolicy = string(entities.StartPolicyReject)
	srv := newTestServer(t, cfg, "")

	rec := srv.do(t, http.MethodPost, "/start-project", `{"name": "First", "deadlineDays": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/start-project", `{"name": "Second", "deadlineDays": 1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "A project is already active.", decodeError(t, rec))
}

func TestServer_PersistenceFailure(t *testing.T) {
	blocked := func(t *testing.T) string {
		dir := t.TempDir()
		file := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		return filepath.Join(file, "state.json")
	}

	t.Run("best effort start succeeds with header", func(t *testing.T) {
		srv := newTestServer(t, testConfig(), blocked(t))

		rec := srv.do(t, http.MethodPost, "/start-project", `{"name": "Website", "deadlineDays": 10}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "false", rec.Header().Get("X-State-Persisted"))
		assert.Equal(t, "Website", decodeState(t, rec).ActiveProject.Name)
	})

	t.Run("strict start fails but keeps memory state", func(t *testing.T) {
		cfg := testConfig()
		cfg.Storage.StrictPersistence = true
		srv := newTestServer(t, cfg, blocked(t))

		rec := srv.do(t, http.MethodPost, "/start-project", `{"name": "Website", "deadlineDays": 10}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to process request.", decodeError(t, rec))

		rec = srv.do(t, http.MethodGet, "/state", "")
		assert.Equal(t, "Website", decodeState(t, rec).ActiveProject.Name)
	})

	t.Run("strict deliver fails with delivery message", func(t *testing.T) {
		cfg := testConfig()
		cfg.Storage.StrictPersistence = true
		srv := newTestServer(t, cfg, blocked(t))

		srv.do(t, http.MethodPost, "/start-project", `{"name": "Website", "deadlineDays": 10}`)

		rec := srv.do(t, http.MethodPost, "/deliver-project", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "false", rec.Header().Get("X-State-Persisted"))
		assert.Equal(t, "Failed to process delivery.", decodeError(t, rec))

		rec = srv.do(t, http.MethodGet, "/state", "")
		state := decodeState(t, rec)
		assert.Nil(t, state.ActiveProject)
		require.Len(t, state.DeliveredProjects, 1)
	})

	t.Run("reset always reports failure", func(t *testing.T) {
		srv := newTestServer(t, testConfig(), blocked(t))

		rec := srv.do(t, http.MethodPost, "/reset-state", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to reset state.", decodeError(t, rec))
	})
}

func TestServer_CORSAndOptions(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	for _, path := range []string{"/start-project", "/state", "/anything/else"} {
		rec := srv.do(t, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestServer_CORSSpecificOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CORSAllowedOrigins = "http://localhost:5173,app://tracker"
	srv := newTestServer(t, cfg, "")

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Origin", "app://tracker")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "app://tracker", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestServer_NotFound(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	cases := []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/state"},
		{http.MethodGet, "/start-project"},
		{http.MethodDelete, "/reset-state"},
	}
	for _, tc := range cases {
		rec := srv.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "Not Found", rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, srv.statePath, health["storage"])

	srv.do(t, http.MethodPost, "/start-project", `{"name": "Website", "deadlineDays": 10}`)

	rec = srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tracker_projects_started_total{replaced="none"} 1`)
	assert.Contains(t, body, "tracker_active_project 1")
	assert.Contains(t, body, `http_requests_total{method="POST",path="/start-project",status="200"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	srv := newTestServer(t, cfg, "")

	rec := srv.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SwaggerDocs(t *testing.T) {
	srv := newTestServer(t, testConfig(), "")

	rec := srv.do(t, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/start-project")
}

func TestServer_LoadsExistingState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter-state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "activeProject": {"name": "Website", "startedAt": "2025-04-02T13:45:10.123Z", "deadlineDays": 10},
  "deliveredProjects": []
}`), 0o644))

	srv := newTestServer(t, testConfig(), path)
	rec := srv.do(t, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Website", decodeState(t, rec).ActiveProject.Name)
}

func TestServer_RequestLogsCarryRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := logger.FromZap(zap.New(core))

	repo := repository.NewStateRepository(filepath.Join(t.TempDir(), "state.json"), nil, log)
	svc := services.NewProjectService(context.Background(), repo, services.ProjectServiceConfig{}, log)
	srv, err := New(testConfig(), svc, repo.Location(), metrics.New(), log)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	requestID := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)

	entries := logs.FilterMessage("HTTP request").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, requestID, fields["request_id"])
	assert.Equal(t, "/state", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status_code"])
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(testConfig(), nil, "", nil, logger.NewNop())
	assert.Error(t, err)
}
