// Package analytics 消费侧滚动分析
//
// 为每台设备维护温度、移动布尔和状态计数的滚动窗口，
// 派生输出全部是当前窗口内容的纯函数，按需重算，无隐藏状态。
package analytics

import (
	"wisefido-wearable/internal/models"
)

// TemperatureStats 温度窗口统计
type TemperatureStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// DeviceAnalytics 单台设备的滚动分析状态
type DeviceAnalytics struct {
	temps   *RollingWindow[float64]
	motion  *RollingWindow[bool]
	tallies map[models.DeviceState]int
}

// NewDeviceAnalytics 创建设备分析状态
func NewDeviceAnalytics(windowCapacity int) *DeviceAnalytics {
	return &DeviceAnalytics{
		temps:   NewRollingWindow[float64](windowCapacity),
		motion:  NewRollingWindow[bool](windowCapacity),
		tallies: make(map[models.DeviceState]int),
	}
}

// Observe 消化一个已接受的遥测信封
//
// 无效温度哨兵值不进温度窗口（避免污染统计），
// 移动布尔和状态计数照常记录。
func (a *DeviceAnalytics) Observe(env *models.TelemetryEnvelope, state models.DeviceState) {
	if env.Temperature != models.InvalidTemperature {
		a.temps.Push(env.Temperature)
	}
	a.motion.Push(env.Moving())
	a.tallies[state]++
}

// TemperatureStats 温度窗口的最小/平均/最大值；窗口为空时 ok=false
func (a *DeviceAnalytics) TemperatureStats() (TemperatureStats, bool) {
	items := a.temps.Items()
	if len(items) == 0 {
		return TemperatureStats{}, false
	}

	stats := TemperatureStats{Min: items[0], Max: items[0]}
	sum := 0.0
	for _, v := range items {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Avg = sum / float64(len(items))
	return stats, true
}

// MovingPercent 移动窗口中"移动中"样本的百分比（0-100）
func (a *DeviceAnalytics) MovingPercent() float64 {
	items := a.motion.Items()
	if len(items) == 0 {
		return 0
	}
	moving := 0
	for _, m := range items {
		if m {
			moving++
		}
	}
	return float64(moving) / float64(len(items)) * 100
}

// StateBreakdown 状态计数的归一化百分比分布
func (a *DeviceAnalytics) StateBreakdown() map[string]float64 {
	total := 0
	for _, n := range a.tallies {
		total += n
	}

	breakdown := make(map[string]float64, len(a.tallies))
	if total == 0 {
		return breakdown
	}
	for state, n := range a.tallies {
		breakdown[state.String()] = float64(n) / float64(total) * 100
	}
	return breakdown
}
