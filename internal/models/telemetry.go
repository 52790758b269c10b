package models

import (
	"fmt"
	"strings"
	"time"
)

// InvalidTemperature 温度无效哨兵值（环境传感器读数失败时上报）
const InvalidTemperature = -999.0

// SensorSnapshot 单个评估周期的传感器读数快照
//
// 每个周期由传感器适配层新建，解析器读取后不可变，从不持久化。
// 读数失败通过 *OK / *Valid 标志逐项上报，绝不静默替换成正常值。
type SensorSnapshot struct {
	AccDeviation float64 // 加速度模长相对静息(1g)的带符号偏差，单位 g
	MotionOK     bool    // 运动传感器本周期读数是否有效

	Temperature float64 // 环境温度（摄氏度）
	TempValid   bool    // 温度读数是否有效

	Latitude  float64
	Longitude float64
	HasFix    bool // 是否有定位

	ButtonEdge bool // 本周期是否出现SOS按键释放沿

	Timestamp time.Time // 快照时间（设备本地时钟）
}

// HealthFlags 各子系统健康标志
type HealthFlags struct {
	MotionOK bool // 运动传感器
	EnvOK    bool // 环境温度传感器
	FixOK    bool // 定位
}

// SystemStatus 汇总系统健康："OK" 或 "SENSOR_FAILURE"
func (h HealthFlags) SystemStatus() string {
	if h.MotionOK && h.EnvOK {
		return "OK"
	}
	return "SENSOR_FAILURE"
}

// TelemetryEnvelope 遥测信封（线上JSON格式）
//
// 发布器在每个发送周期构建一次，构建后不可变，
// 所有权交给传输层投递，从不复用。
type TelemetryEnvelope struct {
	DeviceID     string  `json:"device_id"`
	Status       string  `json:"status"`          // 基础严重程度名（NORMAL/WARNING/EMERGENCY/SOS）
	Cause        string  `json:"cause,omitempty"` // 结构化状态原因
	Temperature  float64 `json:"temperature"`     // 无效时为 InvalidTemperature
	TotalAcc     float64 `json:"total_acc"`
	Movement     string  `json:"movement"` // "MOVING" 或 "STILL (12s)"
	MPUStatus    string  `json:"mpu_status"`
	DHTStatus    string  `json:"dht_status"`
	GPSStatus    string  `json:"gps_status"`
	SystemStatus string  `json:"system_status"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timestamp    int64   `json:"timestamp"` // 设备本地时间（毫秒），不保证重启后单调
}

// Moving 从 movement 字段还原移动/静止布尔值
func (e *TelemetryEnvelope) Moving() bool {
	return strings.HasPrefix(e.Movement, "MOVING")
}

// MovementText 构建 movement 字段文本
func MovementText(moving bool, stillFor time.Duration) string {
	if moving {
		return "MOVING"
	}
	return fmt.Sprintf("STILL (%ds)", int(stillFor.Seconds()))
}

// AlertLogEntry 消费侧报警日志条目
//
// 当观察到严重程度 >= WARNING 的状态迁移、或在线状态进出 OFFLINE 时追加。
type AlertLogEntry struct {
	ID         string      `json:"id"`
	DeviceID   string      `json:"device_id"`
	ReceivedAt time.Time   `json:"received_at"`
	State      DeviceState `json:"-"`
	StateName  string      `json:"state"`
	Cause      string      `json:"cause"` // 人类可读原因
}
