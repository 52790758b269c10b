// Package publisher 遥测发布器
//
// 按固定发布周期把最新解析状态和原始读数打包成遥测信封，
// 交给传输层投递。投递与采样循环解耦：同一时刻至多一次
// 在途尝试，慢网络或断网不会拖慢采样节奏。
package publisher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/resolver"
)

// Outcome 单次投递尝试的终态分类
type Outcome int

const (
	// OutcomeDelivered 传输层确认送达
	OutcomeDelivered Outcome = iota
	// OutcomeRejected 远端明确拒绝（应用层错误，不重试）
	OutcomeRejected
	// OutcomeUnreachable 无连接或超时（下个发布周期再试，绝不立即重试）
	OutcomeUnreachable
)

// String 返回分类名
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "DELIVERED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeUnreachable:
		return "UNREACHABLE"
	default:
		return "UNKNOWN"
	}
}

// Transport 遥测传输层接口
type Transport interface {
	// Send 投递一个信封，返回终态分类；err 仅用于日志补充
	Send(ctx context.Context, env *models.TelemetryEnvelope) (Outcome, error)
	Close()
}

// Metrics 投递统计
type Metrics struct {
	mu          sync.RWMutex
	Delivered   int64
	Rejected    int64
	Unreachable int64
	Skipped     int64 // 上一次尝试还在途时跳过的发布周期
}

// Snapshot 获取统计快照（线程安全）
func (m *Metrics) Snapshot() (delivered, rejected, unreachable, skipped int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Delivered, m.Rejected, m.Unreachable, m.Skipped
}

func (m *Metrics) record(outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch outcome {
	case OutcomeDelivered:
		m.Delivered++
	case OutcomeRejected:
		m.Rejected++
	case OutcomeUnreachable:
		m.Unreachable++
	}
}

func (m *Metrics) recordSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Skipped++
}

// Publisher 遥测发布器
type Publisher struct {
	deviceID  string
	interval  time.Duration
	timeout   time.Duration
	transport Transport
	logger    *zap.Logger

	lastPublish time.Time
	inFlight    int32
	metrics     *Metrics
}

// New 创建发布器
func New(deviceID string, interval, timeout time.Duration, transport Transport, logger *zap.Logger) *Publisher {
	return &Publisher{
		deviceID:  deviceID,
		interval:  interval,
		timeout:   timeout,
		transport: transport,
		logger:    logger,
		metrics:   &Metrics{},
	}
}

// Due 当前时刻是否到达发布周期
func (p *Publisher) Due(now time.Time) bool {
	return p.lastPublish.IsZero() || now.Sub(p.lastPublish) >= p.interval
}

// Metrics 投递统计
func (p *Publisher) Metrics() *Metrics {
	return p.metrics
}

// BuildEnvelope 从快照和解析结果构建遥测信封
func (p *Publisher) BuildEnvelope(snap models.SensorSnapshot, res resolver.Resolution, now time.Time) *models.TelemetryEnvelope {
	temperature := snap.Temperature
	if !snap.TempValid {
		temperature = models.InvalidTemperature
	}

	return &models.TelemetryEnvelope{
		DeviceID:     p.deviceID,
		Status:       res.State.String(),
		Cause:        res.Cause,
		Temperature:  temperature,
		TotalAcc:     snap.AccDeviation,
		Movement:     models.MovementText(res.Moving, res.StillFor),
		MPUStatus:    statusOK(res.Health.MotionOK, "ERROR"),
		DHTStatus:    statusOK(res.Health.EnvOK, "ERROR"),
		GPSStatus:    statusOK(res.Health.FixOK, "NO_SIGNAL"),
		SystemStatus: res.Health.SystemStatus(),
		Latitude:     snap.Latitude,
		Longitude:    snap.Longitude,
		Timestamp:    now.UnixMilli(),
	}
}

// MaybePublish 发布周期到达且无在途尝试时，异步发起一次投递
//
// 返回是否发起了新的尝试。投递结果只影响统计和日志，
// 失败（UNREACHABLE）留待下一个调度周期，不在本周期内重试。
func (p *Publisher) MaybePublish(ctx context.Context, snap models.SensorSnapshot, res resolver.Resolution, now time.Time) bool {
	if !p.Due(now) {
		return false
	}
	if !atomic.CompareAndSwapInt32(&p.inFlight, 0, 1) {
		// 上一次尝试仍在途：跳过本周期，下一个周期自然接管
		p.metrics.recordSkipped()
		p.logger.Debug("Publish tick skipped, attempt in flight")
		return false
	}

	p.lastPublish = now
	env := p.BuildEnvelope(snap, res, now)

	go func() {
		defer atomic.StoreInt32(&p.inFlight, 0)

		sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		outcome, err := p.transport.Send(sendCtx, env)
		p.metrics.record(outcome)

		switch outcome {
		case OutcomeDelivered:
			p.logger.Debug("Telemetry delivered",
				zap.String("status", env.Status),
			)
		case OutcomeRejected:
			p.logger.Error("Telemetry rejected by remote",
				zap.String("status", env.Status),
				zap.Error(err),
			)
		case OutcomeUnreachable:
			p.logger.Warn("Telemetry unreachable, will retry next tick",
				zap.String("status", env.Status),
				zap.Error(err),
			)
		}
	}()

	return true
}

func statusOK(ok bool, failText string) string {
	if ok {
		return "OK"
	}
	return failText
}
