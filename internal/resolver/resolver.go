// Package resolver 状态解析器
//
// 把单个评估周期的传感器快照融合为唯一的设备状态。
// 规则按固定优先级顺序评估，后续规则只能抬高严重程度；
// SOS 锁存为绝对覆盖，任何规则不能降级。
package resolver

import (
	"time"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
)

// MotionTimer 记录最近一次检测到移动的时间
//
// 由状态解析器独占持有：移动偏差超过阈值时重置，
// 其余组件只读不写。
type MotionTimer struct {
	lastMoved time.Time
}

// NewMotionTimer 创建运动计时器（以当前时间为基线）
func NewMotionTimer(now time.Time) *MotionTimer {
	return &MotionTimer{lastMoved: now}
}

// Touch 记录一次移动
func (t *MotionTimer) Touch(now time.Time) {
	t.lastMoved = now
}

// StillFor 计算截至 now 的持续静止时长
func (t *MotionTimer) StillFor(now time.Time) time.Duration {
	return now.Sub(t.lastMoved)
}

// Resolution 单次评估的结果
type Resolution struct {
	State    models.DeviceState
	Cause    string
	Health   models.HealthFlags
	Moving   bool
	StillFor time.Duration
}

// Resolver 状态解析器
//
// 纯内存计算，无阻塞无I/O，可按固定周期无限次调用。
type Resolver struct {
	thresholds config.ThresholdConfig
}

// New 创建状态解析器
func New(thresholds config.ThresholdConfig) *Resolver {
	return &Resolver{thresholds: thresholds}
}

// Resolve 解析一个快照，产出唯一状态并更新运动计时器
//
// 规则顺序：
//  1. SOS 锁存激活 => SOS（绝对覆盖，计时器仍更新以保持连续性）
//  2. 基线 NORMAL
//  3. 移动/静止：移动重置计时器；静止 >= StillWarning 升至 WARNING，
//     >= StillEmergency 升至 EMERGENCY
//  4. 温度：> TempCritical 升至 EMERGENCY；[TempWarning, TempCritical] 升至 WARNING；
//     读数无效只置健康标志，不参与判定
func (r *Resolver) Resolve(snap models.SensorSnapshot, timer *MotionTimer, sosActive bool) Resolution {
	res := Resolution{
		State: models.StateNormal,
		Cause: models.CauseNone,
		Health: models.HealthFlags{
			MotionOK: snap.MotionOK,
			EnvOK:    snap.TempValid,
			FixOK:    snap.HasFix,
		},
	}

	// 规则3：移动/静止（读数无效时跳过，计时器不动）
	if snap.MotionOK {
		if abs(snap.AccDeviation) > r.thresholds.Movement {
			timer.Touch(snap.Timestamp)
			res.Moving = true
		} else {
			res.StillFor = timer.StillFor(snap.Timestamp)
			if res.StillFor >= r.thresholds.StillEmergency {
				r.raise(&res, models.StateEmergency, models.CauseStillness)
			} else if res.StillFor >= r.thresholds.StillWarning {
				r.raise(&res, models.StateWarning, models.CauseStillness)
			}
		}
	}

	// 规则4：温度
	if snap.TempValid {
		if snap.Temperature > r.thresholds.TempCritical {
			r.raise(&res, models.StateEmergency, models.CauseHighTemp)
		} else if snap.Temperature >= r.thresholds.TempWarning {
			r.raise(&res, models.StateWarning, models.CauseElevatedTemp)
		}
	}

	// 规则1：SOS 绝对覆盖（放在最后赋值，保证不被其它规则影响）
	if sosActive {
		res.State = models.StateSOS
		res.Cause = models.CauseSOSButton
	}

	return res
}

// raise 只升不降；升级时同时更新状态原因
func (r *Resolver) raise(res *Resolution, state models.DeviceState, cause string) {
	if state > res.State {
		res.State = state
		res.Cause = cause
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
