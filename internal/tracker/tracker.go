// Package tracker 消费侧设备状态跟踪
//
// 为每台设备维护最近一次信封的到达时间、上报状态和滚动分析，
// 并派生 OFFLINE 覆盖显示：超时未收到遥测时显示状态被覆盖为
// OFFLINE，与设备最后上报的内容无关。覆盖只影响显示层派生，
// 从不改写上报状态历史。
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-wearable/internal/analytics"
	"wisefido-wearable/internal/models"
)

// ErrDeviceNotFound 设备尚无任何遥测记录
var ErrDeviceNotFound = fmt.Errorf("device not found")

// DeviceView 单台设备的展示视图
type DeviceView struct {
	DeviceID       string                     `json:"device_id"`
	DisplayedState string                     `json:"displayed_state"` // 含 OFFLINE 覆盖
	ReportedState  string                     `json:"reported_state"`  // 设备最后上报的状态
	Cause          string                     `json:"cause,omitempty"`
	LastSeen       time.Time                  `json:"last_seen"`
	Latitude       float64                    `json:"latitude"`
	Longitude      float64                    `json:"longitude"`
	Temperature    *analytics.TemperatureStats `json:"temperature,omitempty"`
	MovingPercent  float64                    `json:"moving_percent"`
	StateBreakdown map[string]float64         `json:"state_breakdown"`
}

// deviceEntry 单台设备的内部状态
type deviceEntry struct {
	lastSeen     time.Time
	lastEnvelope *models.TelemetryEnvelope
	lastState    models.DeviceState
	offline      bool
	analytics    *analytics.DeviceAnalytics
}

// Tracker 设备跟踪器
//
// 单把互斥锁串行化所有设备更新，同一设备的信封处理因此严格串行，
// 滚动窗口和报警日志保持一致。
type Tracker struct {
	mu      sync.Mutex
	devices map[string]*deviceEntry

	livenessTimeout  time.Duration
	windowCapacity   int
	alertLogCapacity int
	alertLog         []models.AlertLogEntry

	logger *zap.Logger
}

// New 创建跟踪器
func New(livenessTimeout time.Duration, windowCapacity, alertLogCapacity int, logger *zap.Logger) *Tracker {
	return &Tracker{
		devices:          make(map[string]*deviceEntry),
		livenessTimeout:  livenessTimeout,
		windowCapacity:   windowCapacity,
		alertLogCapacity: alertLogCapacity,
		logger:           logger,
	}
}

// Apply 消化一个已接受的遥测信封
//
// "latest wins"：乱序或重复信封直接覆盖最后已知状态；
// 分析窗口按到达顺序追加。下一个信封立即清除 OFFLINE 覆盖。
func (t *Tracker) Apply(env *models.TelemetryEnvelope, receivedAt time.Time) error {
	state, err := models.ParseDeviceState(env.Status)
	if err != nil {
		return fmt.Errorf("failed to parse envelope status: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.devices[env.DeviceID]
	if !ok {
		entry = &deviceEntry{
			lastState: models.StateNormal,
			analytics: analytics.NewDeviceAnalytics(t.windowCapacity),
		}
		t.devices[env.DeviceID] = entry
	}

	prevState := entry.lastState
	wasOffline := entry.offline

	entry.lastSeen = receivedAt
	entry.lastEnvelope = env
	entry.lastState = state
	entry.offline = false
	entry.analytics.Observe(env, state)

	if wasOffline {
		t.appendAlert(env.DeviceID, receivedAt, state,
			fmt.Sprintf("back online, reporting %s", state))
		t.logger.Info("Device back online",
			zap.String("device_id", env.DeviceID),
			zap.String("state", state.String()),
		)
	}

	// 严重程度 >= WARNING 的状态迁移进报警日志
	if state != prevState && state >= models.StateWarning {
		cause := env.Cause
		if cause == "" {
			cause = "unspecified"
		}
		t.appendAlert(env.DeviceID, receivedAt, state,
			fmt.Sprintf("state changed %s -> %s (%s)", prevState, state, cause))
	}

	return nil
}

// Sweep 重新评估所有设备的在线状态
//
// 控制台按固定周期调用；超时转为 OFFLINE 的迁移写入报警日志。
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for deviceID, entry := range t.devices {
		if !entry.offline && now.Sub(entry.lastSeen) > t.livenessTimeout {
			entry.offline = true
			t.appendAlert(deviceID, now, models.StateOffline,
				fmt.Sprintf("no telemetry for %s", now.Sub(entry.lastSeen).Round(time.Second)))
			t.logger.Warn("Device went offline",
				zap.String("device_id", deviceID),
				zap.Time("last_seen", entry.lastSeen),
			)
		}
	}
}

// DisplayState 当前显示状态（持续重评估，不依赖 Sweep 的落账）
func (t *Tracker) DisplayState(deviceID string, now time.Time) (models.DeviceState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.devices[deviceID]
	if !ok {
		return models.StateOffline, ErrDeviceNotFound
	}
	return t.displayStateLocked(entry, now), nil
}

func (t *Tracker) displayStateLocked(entry *deviceEntry, now time.Time) models.DeviceState {
	if now.Sub(entry.lastSeen) > t.livenessTimeout {
		return models.StateOffline
	}
	return entry.lastState
}

// View 单台设备的展示视图
func (t *Tracker) View(deviceID string, now time.Time) (*DeviceView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return t.viewLocked(deviceID, entry, now), nil
}

// Views 所有设备的展示视图
func (t *Tracker) Views(now time.Time) []*DeviceView {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make([]*DeviceView, 0, len(t.devices))
	for deviceID, entry := range t.devices {
		views = append(views, t.viewLocked(deviceID, entry, now))
	}
	return views
}

func (t *Tracker) viewLocked(deviceID string, entry *deviceEntry, now time.Time) *DeviceView {
	view := &DeviceView{
		DeviceID:       deviceID,
		DisplayedState: t.displayStateLocked(entry, now).String(),
		ReportedState:  entry.lastState.String(),
		LastSeen:       entry.lastSeen,
		MovingPercent:  entry.analytics.MovingPercent(),
		StateBreakdown: entry.analytics.StateBreakdown(),
	}
	if entry.lastEnvelope != nil {
		view.Cause = entry.lastEnvelope.Cause
		view.Latitude = entry.lastEnvelope.Latitude
		view.Longitude = entry.lastEnvelope.Longitude
	}
	if stats, ok := entry.analytics.TemperatureStats(); ok {
		view.Temperature = &stats
	}
	return view
}

// Alerts 报警日志副本（最旧在前）
func (t *Tracker) Alerts() []models.AlertLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.AlertLogEntry, len(t.alertLog))
	copy(out, t.alertLog)
	return out
}

// appendAlert 追加报警日志，超出容量淘汰最旧（调用方持锁）
func (t *Tracker) appendAlert(deviceID string, at time.Time, state models.DeviceState, cause string) {
	if len(t.alertLog) >= t.alertLogCapacity {
		t.alertLog = t.alertLog[1:]
	}
	t.alertLog = append(t.alertLog, models.AlertLogEntry{
		ID:         uuid.New().String(),
		DeviceID:   deviceID,
		ReceivedAt: at,
		State:      state,
		StateName:  state.String(),
		Cause:      cause,
	})
}
