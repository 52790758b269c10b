package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable/internal/consumer"
	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/repository"
	"wisefido-wearable/internal/tracker"
)

// fakeIngestor 内存摄入器，可注入失败
type fakeIngestor struct {
	envelopes []*models.TelemetryEnvelope
	err       error
}

func (f *fakeIngestor) Ingest(ctx context.Context, env *models.TelemetryEnvelope) error {
	if f.err != nil {
		return f.err
	}
	f.envelopes = append(f.envelopes, env)
	return nil
}

// fakeLatestSource 内存最新信封源
type fakeLatestSource struct {
	envelopes map[string]*models.TelemetryEnvelope
}

func (f *fakeLatestSource) Latest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error) {
	env, ok := f.envelopes[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return env, nil
}

func setupTestRouter(ingestor consumer.Ingestor) (*Router, *tracker.Tracker, *fakeIngestor) {
	router, trk, fi, _ := setupTestRouterWithLatest(ingestor)
	return router, trk, fi
}

func setupTestRouterWithLatest(ingestor consumer.Ingestor) (*Router, *tracker.Tracker, *fakeIngestor, *fakeLatestSource) {
	logger := zap.NewNop()
	trk := tracker.New(10*time.Second, 60, 100, logger)

	fi, _ := ingestor.(*fakeIngestor)
	latest := &fakeLatestSource{envelopes: make(map[string]*models.TelemetryEnvelope)}
	handler := NewTelemetryHandler(ingestor, latest, trk, logger)
	router := NewRouter(logger)
	router.RegisterTelemetryRoutes(handler)

	return router, trk, fi, latest
}

func postTelemetry(t *testing.T, router *Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostTelemetry_Success(t *testing.T) {
	router, _, fi := setupTestRouter(&fakeIngestor{})

	rec := postTelemetry(t, router, `{"device_id":"wearable-001","status":"WARNING","temperature":26.5}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fi.envelopes, 1)
	assert.Equal(t, "wearable-001", fi.envelopes[0].DeviceID)
	assert.Equal(t, "WARNING", fi.envelopes[0].Status)

	var resp Result[map[string]string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ResultSuccess, resp.Code)
	assert.Equal(t, "received", resp.Result["ack"])
}

func TestPostTelemetry_EmptyStatusDefaultsNormal(t *testing.T) {
	router, _, fi := setupTestRouter(&fakeIngestor{})

	rec := postTelemetry(t, router, `{"device_id":"wearable-001"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fi.envelopes, 1)
	assert.Equal(t, "NORMAL", fi.envelopes[0].Status)
}

func TestPostTelemetry_MissingDeviceID(t *testing.T) {
	router, _, fi := setupTestRouter(&fakeIngestor{})

	rec := postTelemetry(t, router, `{"status":"NORMAL"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fi.envelopes)
}

func TestPostTelemetry_MalformedJSON(t *testing.T) {
	router, _, fi := setupTestRouter(&fakeIngestor{})

	rec := postTelemetry(t, router, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fi.envelopes)
}

func TestPostTelemetry_NoIngestor(t *testing.T) {
	router, _, _ := setupTestRouter(nil)

	rec := postTelemetry(t, router, `{"device_id":"wearable-001"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostTelemetry_StoreUnavailable(t *testing.T) {
	router, _, _ := setupTestRouter(&fakeIngestor{
		err: fmt.Errorf("%w: connection refused", consumer.ErrStoreUnavailable),
	})

	rec := postTelemetry(t, router, `{"device_id":"wearable-001"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostTelemetry_IngestFailure(t *testing.T) {
	router, _, _ := setupTestRouter(&fakeIngestor{err: assert.AnError})

	rec := postTelemetry(t, router, `{"device_id":"wearable-001"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetDevices(t *testing.T) {
	router, trk, _ := setupTestRouter(&fakeIngestor{})
	now := time.Now()

	require.NoError(t, trk.Apply(&models.TelemetryEnvelope{DeviceID: "wearable-001", Status: "NORMAL"}, now))
	require.NoError(t, trk.Apply(&models.TelemetryEnvelope{DeviceID: "wearable-002", Status: "SOS"}, now))

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Result[[]*tracker.DeviceView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Result, 2)
}

func TestGetDevice_Success(t *testing.T) {
	router, trk, _ := setupTestRouter(&fakeIngestor{})

	require.NoError(t, trk.Apply(&models.TelemetryEnvelope{
		DeviceID: "wearable-001",
		Status:   "EMERGENCY",
		Cause:    models.CauseHighTemp,
	}, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices/wearable-001", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Result[*tracker.DeviceView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wearable-001", resp.Result.DeviceID)
	assert.Equal(t, "EMERGENCY", resp.Result.DisplayedState)
}

func TestGetDevice_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(&fakeIngestor{})

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices/wearable-void", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAlerts(t *testing.T) {
	router, trk, _ := setupTestRouter(&fakeIngestor{})
	now := time.Now()

	require.NoError(t, trk.Apply(&models.TelemetryEnvelope{DeviceID: "wearable-001", Status: "NORMAL"}, now))
	require.NoError(t, trk.Apply(&models.TelemetryEnvelope{DeviceID: "wearable-001", Status: "WARNING"}, now.Add(time.Second)))

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Result[[]models.AlertLogEntry]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "WARNING", resp.Result[0].StateName)
}

func TestGetDeviceLatest_Success(t *testing.T) {
	router, _, _, latest := setupTestRouterWithLatest(&fakeIngestor{})
	latest.envelopes["wearable-001"] = &models.TelemetryEnvelope{
		DeviceID:    "wearable-001",
		Status:      "SOS",
		Cause:       models.CauseSOSButton,
		Temperature: 26.5,
	}

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices/wearable-001/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Result[*models.TelemetryEnvelope]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SOS", resp.Result.Status)
	assert.Equal(t, models.CauseSOSButton, resp.Result.Cause)
}

func TestGetDeviceLatest_NotFound(t *testing.T) {
	router, _, _, _ := setupTestRouterWithLatest(&fakeIngestor{})

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices/wearable-void/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeviceLatest_NoSource(t *testing.T) {
	logger := zap.NewNop()
	trk := tracker.New(10*time.Second, 60, 100, logger)
	handler := NewTelemetryHandler(&fakeIngestor{}, nil, trk, logger)
	router := NewRouter(logger)
	router.RegisterTelemetryRoutes(handler)

	req := httptest.NewRequest(http.MethodGet, "/console/api/v1/devices/wearable-001/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTelemetryRoute_MethodNotAllowed(t *testing.T) {
	router, _, _ := setupTestRouter(&fakeIngestor{})

	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
