package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable/internal/consumer"
	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/repository"
	"wisefido-wearable/internal/tracker"
)

// LatestSource 设备最新信封的读取源
type LatestSource interface {
	Latest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error)
}

// TelemetryHandler 遥测入口与控制台查询处理器
type TelemetryHandler struct {
	ingestor consumer.Ingestor
	latest   LatestSource
	tracker  *tracker.Tracker
	logger   *zap.Logger
}

// NewTelemetryHandler 创建处理器
func NewTelemetryHandler(ingestor consumer.Ingestor, latest LatestSource, trk *tracker.Tracker, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		ingestor: ingestor,
		latest:   latest,
		tracker:  trk,
		logger:   logger,
	}
}

// telemetryRequest 带外客户端的简化信封
type telemetryRequest struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Movement    string  `json:"movement"`
	Status      string  `json:"status"`
	TotalAcc    float64 `json:"total_acc"`
	Cause       string  `json:"cause"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timestamp   int64   `json:"timestamp"`
}

// PostTelemetry 接收一个遥测信封
//
// 缺 device_id => 400；后端存储不可用 => 503；其它失败 => 500。
// 格式错误的请求不产生任何部分写入。
func (h *TelemetryHandler) PostTelemetry(w http.ResponseWriter, req *http.Request) {
	var body telemetryRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if body.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_id is required"))
		return
	}

	if h.ingestor == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("backing store not configured"))
		return
	}

	env := body.toEnvelope()
	if err := h.ingestor.Ingest(req.Context(), env); err != nil {
		if errors.Is(err, consumer.ErrStoreUnavailable) {
			h.logger.Error("Backing store unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("backing store unavailable"))
			return
		}
		h.logger.Error("Failed to ingest telemetry", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to ingest telemetry"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]string{
		"device_id": body.DeviceID,
		"ack":       "received",
	}))
}

// GetDevices 所有设备的展示视图
func (h *TelemetryHandler) GetDevices(w http.ResponseWriter, req *http.Request) {
	views := h.tracker.Views(time.Now())
	writeJSON(w, http.StatusOK, Ok(views))
}

// GetDevice 单台设备的展示视图
func (h *TelemetryHandler) GetDevice(w http.ResponseWriter, req *http.Request, deviceID string) {
	view, err := h.tracker.View(deviceID, time.Now())
	if err != nil {
		if errors.Is(err, tracker.ErrDeviceNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found"))
			return
		}
		h.logger.Error("Failed to build device view", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build device view"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// GetDeviceLatest 设备最近一次落账的完整遥测信封
//
// 先走缓存，未命中回源 device_latest 表。
func (h *TelemetryHandler) GetDeviceLatest(w http.ResponseWriter, req *http.Request, deviceID string) {
	if h.latest == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("latest state source not configured"))
		return
	}

	env, err := h.latest.Latest(req.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found"))
			return
		}
		h.logger.Error("Failed to read latest state", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to read latest state"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(env))
}

// GetAlerts 报警日志
func (h *TelemetryHandler) GetAlerts(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.tracker.Alerts()))
}

// toEnvelope 把简化信封补全为完整遥测信封
func (r *telemetryRequest) toEnvelope() *models.TelemetryEnvelope {
	env := &models.TelemetryEnvelope{
		DeviceID:     r.DeviceID,
		Status:       r.Status,
		Cause:        r.Cause,
		Temperature:  r.Temperature,
		TotalAcc:     r.TotalAcc,
		Movement:     r.Movement,
		MPUStatus:    "OK",
		DHTStatus:    "OK",
		GPSStatus:    "OK",
		SystemStatus: "OK",
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Timestamp:    r.Timestamp,
	}
	if env.Status == "" {
		env.Status = models.StateNormal.String()
	}
	return env
}
