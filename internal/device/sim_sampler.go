package device

import (
	"math"
	"time"

	"wisefido-wearable/internal/models"
)

// SimSampler 模拟传感器适配层
//
// 无硬件时用于端到端跑通设备代理：佩戴者周期性地活动和静止，
// 环境温度缓慢波动，位置沿固定路线漂移。确定性输出，便于演示
// 静止升级和恢复。
type SimSampler struct {
	step int64

	baseLat  float64
	baseLon  float64
	baseTemp float64
}

// NewSimSampler 创建模拟采样器
func NewSimSampler() *SimSampler {
	return &SimSampler{
		baseLat:  31.2304,
		baseLon:  121.4737,
		baseTemp: 26.5,
	}
}

// Sample 产出一个模拟快照
//
// 每60个周期中前40个为活动期（偏差超过阈值），后20个静止，
// 足以触发 WARNING 级静止升级后再恢复。
func (s *SimSampler) Sample(now time.Time) models.SensorSnapshot {
	s.step++
	phase := s.step % 60

	deviation := 0.02
	if phase < 40 {
		deviation = 0.3 + 0.1*math.Sin(float64(s.step)/5)
	}

	return models.SensorSnapshot{
		AccDeviation: deviation,
		MotionOK:     true,
		Temperature:  s.baseTemp + 2*math.Sin(float64(s.step)/120),
		TempValid:    true,
		Latitude:     s.baseLat + 0.0001*float64(s.step%100),
		Longitude:    s.baseLon + 0.0001*float64(s.step%100),
		HasFix:       true,
		ButtonEdge:   false,
		Timestamp:    now,
	}
}
