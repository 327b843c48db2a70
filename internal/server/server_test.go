package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()
	cfg := &config.Config{
		DataDir:       t.TempDir(),
		Port:          8001,
		YahooBaseURL:  "http://127.0.0.1:0",
		HistoryRange:  "1y",
		DefaultLambda: 0.5,
	}
	log := zerolog.New(nil).Level(zerolog.Disabled)

	container, jobs, err := di.Wire(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{
		Log:           log,
		Port:          cfg.Port,
		DevMode:       true,
		DefaultLambda: cfg.DefaultLambda,
		Container:     container,
		Jobs:          jobs,
	}), container
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "allocator", body.Service)
	assert.Equal(t, "ok", body.Database)
	assert.True(t, body.Ready)
	assert.Zero(t, body.Positions)
}

func TestServer_HealthDegradedWhenDatabaseClosed(t *testing.T) {
	srv, container := newTestServer(t)
	require.NoError(t, container.HistoryDB.Close())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.NotEqual(t, "ok", body.Database)
}

func TestServer_SystemStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "ok", status.Database)
	assert.Zero(t, status.PositionCount)
	assert.False(t, status.HasCorrelation)
	assert.GreaterOrEqual(t, status.UptimeSeconds, 0.0)
}

func TestServer_MountsAnalysisRoutes(t *testing.T) {
	srv, container := newTestServer(t)

	body := `{"name":"AAPL","price":200,"expected_return":0.1,"volatility":0.2,"quantity":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/positions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"AAPL"}, container.AnalysisService.Tickers())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/optimization/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_TriggerJobs(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/system/jobs/price-sync", "/api/system/jobs/history-maintenance"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}
}

func TestSystemHandlers_WithoutContainer(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), nil, nil)

	rec := httptest.NewRecorder()
	h.HandleTriggerPriceSync(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSystemStatus(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "unavailable", status.Database)
}
