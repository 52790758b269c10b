package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
)

func testThresholds() config.ThresholdConfig {
	return config.ThresholdConfig{
		Movement:       0.15,
		StillWarning:   5 * time.Second,
		StillEmergency: 15 * time.Second,
		TempWarning:    40.0,
		TempCritical:   50.0,
		Debounce:       200 * time.Millisecond,
	}
}

func validSnapshot(at time.Time) models.SensorSnapshot {
	return models.SensorSnapshot{
		AccDeviation: 0.3,
		MotionOK:     true,
		Temperature:  25.0,
		TempValid:    true,
		Latitude:     31.23,
		Longitude:    121.47,
		HasFix:       true,
		Timestamp:    at,
	}
}

func TestResolve_MovingNormal(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	res := r.Resolve(validSnapshot(base.Add(time.Second)), timer, false)

	assert.Equal(t, models.StateNormal, res.State)
	assert.True(t, res.Moving)
	assert.Equal(t, models.CauseNone, res.Cause)
}

func TestResolve_MovementResetsMotionTimer(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	// 移动10秒后静止3秒：静止时长从移动时刻起算，不升级
	moveAt := base.Add(10 * time.Second)
	r.Resolve(validSnapshot(moveAt), timer, false)

	snap := validSnapshot(moveAt.Add(3 * time.Second))
	snap.AccDeviation = 0.01
	res := r.Resolve(snap, timer, false)

	assert.Equal(t, models.StateNormal, res.State)
	assert.Equal(t, 3*time.Second, res.StillFor)
}

func TestResolve_StillnessEscalation(t *testing.T) {
	tests := []struct {
		name  string
		still time.Duration
		want  models.DeviceState
	}{
		{"below warning window", 4 * time.Second, models.StateNormal},
		{"at warning window", 5 * time.Second, models.StateWarning},
		{"inside warning window", 14 * time.Second, models.StateWarning},
		{"at emergency window", 15 * time.Second, models.StateEmergency},
		{"beyond emergency window", 60 * time.Second, models.StateEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testThresholds())
			base := time.Now()
			timer := NewMotionTimer(base)

			snap := validSnapshot(base.Add(tt.still))
			snap.AccDeviation = 0.01
			res := r.Resolve(snap, timer, false)

			assert.Equal(t, tt.want, res.State)
			if tt.want != models.StateNormal {
				assert.Equal(t, models.CauseStillness, res.Cause)
			}
		})
	}
}

func TestResolve_TemperatureEscalation(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want models.DeviceState
	}{
		{"normal temp", 25.0, models.StateNormal},
		{"warning temp", 42.0, models.StateWarning},
		{"at warning threshold", 40.0, models.StateWarning},
		{"critical temp", 55.0, models.StateEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testThresholds())
			base := time.Now()
			timer := NewMotionTimer(base)

			snap := validSnapshot(base.Add(time.Second))
			snap.Temperature = tt.temp
			res := r.Resolve(snap, timer, false)

			assert.Equal(t, tt.want, res.State)
		})
	}
}

// 场景：温度55 + 静止20秒 + SOS未激活 => EMERGENCY
func TestResolve_HighTempAndStillness(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	snap := validSnapshot(base.Add(20 * time.Second))
	snap.AccDeviation = 0.01
	snap.Temperature = 55.0
	res := r.Resolve(snap, timer, false)

	assert.Equal(t, models.StateEmergency, res.State)
}

// 场景：SOS激活 + 正常温度 + 移动中 => SOS（任何组合都不能压制）
func TestResolve_SOSDominatesEverything(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	snap := validSnapshot(base.Add(time.Second))
	snap.Temperature = 20.0
	res := r.Resolve(snap, timer, true)

	assert.Equal(t, models.StateSOS, res.State)
	assert.Equal(t, models.CauseSOSButton, res.Cause)

	// 温度和静止同时恶化也不会改变SOS
	snap2 := validSnapshot(base.Add(30 * time.Second))
	snap2.AccDeviation = 0.01
	snap2.Temperature = 60.0
	res2 := r.Resolve(snap2, timer, true)

	assert.Equal(t, models.StateSOS, res2.State)
}

// SOS激活时运动计时器仍然更新（保持连续性）
func TestResolve_MotionTimerUpdatedDuringSOS(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	moveAt := base.Add(10 * time.Second)
	r.Resolve(validSnapshot(moveAt), timer, true)

	assert.Equal(t, 2*time.Second, timer.StillFor(moveAt.Add(2*time.Second)))
}

// 场景：温度无效 + 移动中 + SOS未激活 => NORMAL，环境健康标志 ERROR
func TestResolve_InvalidTemperatureDegradesHealthOnly(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	snap := validSnapshot(base.Add(time.Second))
	snap.TempValid = false
	snap.Temperature = 0
	res := r.Resolve(snap, timer, false)

	assert.Equal(t, models.StateNormal, res.State)
	assert.False(t, res.Health.EnvOK)
	assert.True(t, res.Health.MotionOK)
}

// 运动读数无效：跳过移动规则，计时器不动，健康标志 ERROR
func TestResolve_InvalidMotionSkipsMovementRule(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	snap := validSnapshot(base.Add(20 * time.Second))
	snap.MotionOK = false
	res := r.Resolve(snap, timer, false)

	assert.Equal(t, models.StateNormal, res.State)
	assert.False(t, res.Health.MotionOK)
	// 计时器基线未被移动规则触碰
	assert.Equal(t, 20*time.Second, timer.StillFor(base.Add(20*time.Second)))
}

func TestResolve_NoFixDegradesGPSHealth(t *testing.T) {
	r := New(testThresholds())
	base := time.Now()
	timer := NewMotionTimer(base)

	snap := validSnapshot(base.Add(time.Second))
	snap.HasFix = false
	res := r.Resolve(snap, timer, false)

	assert.Equal(t, models.StateNormal, res.State)
	assert.False(t, res.Health.FixOK)
	// 定位丢失不算传感器失败
	assert.Equal(t, "OK", res.Health.SystemStatus())
}
