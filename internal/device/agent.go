// Package device 设备端采样循环
//
// 单一周期性评估循环：采样、SOS去抖、状态解析、本地告警和
// 发布周期检查共享同一条时间线。状态解析与SOS锁存都是有界
// 非阻塞操作，唯一可能慢的网络投递由发布器隔离在自己的
// 协程里，不会拖慢循环周期。
package device

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/publisher"
	"wisefido-wearable/internal/resolver"
	"wisefido-wearable/internal/soslatch"
)

// Sampler 传感器读数适配层接口
//
// 每次调用返回一个新鲜快照；读数失败通过快照内的健康标志
// 逐项上报，从不静默替换为正常值。
type Sampler interface {
	Sample(now time.Time) models.SensorSnapshot
}

// Agent 设备代理
type Agent struct {
	config    *config.DeviceConfig
	sampler   Sampler
	latch     *soslatch.Latch
	resolver  *resolver.Resolver
	timer     *resolver.MotionTimer
	publisher *publisher.Publisher
	logger    *zap.Logger

	lastState models.DeviceState
}

// NewAgent 创建设备代理
func NewAgent(
	cfg *config.DeviceConfig,
	sampler Sampler,
	latch *soslatch.Latch,
	res *resolver.Resolver,
	pub *publisher.Publisher,
	logger *zap.Logger,
) *Agent {
	return &Agent{
		config:    cfg,
		sampler:   sampler,
		latch:     latch,
		resolver:  res,
		timer:     resolver.NewMotionTimer(time.Now()),
		publisher: pub,
		logger:    logger,
		lastState: models.StateNormal,
	}
}

// Run 运行采样循环直到上下文取消
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.SampleInterval)
	defer ticker.Stop()

	a.logger.Info("Device agent started",
		zap.String("device_id", a.config.DeviceID),
		zap.Duration("sample_interval", a.config.SampleInterval),
		zap.Duration("publish_interval", a.config.PublishInterval),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Device agent stopped")
			return nil
		case now := <-ticker.C:
			a.Tick(ctx, now)
		}
	}
}

// Tick 执行一个评估周期
//
// 任何单项传感器失败只降低本周期解析结果的置信度，
// 绝不中断循环。
func (a *Agent) Tick(ctx context.Context, now time.Time) resolver.Resolution {
	snap := a.sampler.Sample(now)

	if snap.ButtonEdge {
		a.latch.Edge(now)
	}

	res := a.resolver.Resolve(snap, a.timer, a.latch.Active())

	if res.State != a.lastState {
		a.localAlert(res)
		a.lastState = res.State
	}

	a.publisher.MaybePublish(ctx, snap, res, now)

	return res
}

// localAlert 本地告警边界（硬件上对应蜂鸣器/指示灯，这里落到日志）
//
// 本地告警不依赖网络，传输不可用时照常触发。
func (a *Agent) localAlert(res resolver.Resolution) {
	fields := []zap.Field{
		zap.String("state", res.State.String()),
		zap.String("cause", res.Cause),
	}
	switch {
	case res.State >= models.StateEmergency:
		a.logger.Error("Device state escalated", fields...)
	case res.State == models.StateWarning:
		a.logger.Warn("Device state escalated", fields...)
	default:
		a.logger.Info("Device state recovered", fields...)
	}
}
