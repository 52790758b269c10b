package models

import (
	"fmt"
	"strings"
)

// DeviceState 设备状态（按严重程度升序的封闭枚举）
//
// 解析器每个评估周期只产出前四个值之一；OFFLINE 仅由消费侧
// 在线状态覆盖推导，设备端永远不会上报。
type DeviceState int

const (
	StateNormal DeviceState = iota
	StateWarning
	StateEmergency
	StateSOS
	// StateOffline 消费侧派生值（超时未收到遥测信封）
	StateOffline
)

// String 返回线上格式的状态名
func (s DeviceState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWarning:
		return "WARNING"
	case StateEmergency:
		return "EMERGENCY"
	case StateSOS:
		return "SOS"
	case StateOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// MaxState 取两个状态中严重程度更高者（平局取高，从不降级）
func MaxState(a, b DeviceState) DeviceState {
	if b > a {
		return b
	}
	return a
}

// ParseDeviceState 从线上字符串解析状态
//
// 兼容旧设备的带后缀形式（如 "EMERGENCY (HIGH TEMP)"）：
// 前缀匹配即可还原基础严重程度。
func ParseDeviceState(s string) (DeviceState, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, state := range []DeviceState{StateOffline, StateEmergency, StateWarning, StateNormal, StateSOS} {
		if strings.HasPrefix(upper, state.String()) {
			return state, nil
		}
	}
	return StateNormal, fmt.Errorf("unknown device state: %q", s)
}

// 状态原因（结构化，替代旧固件嵌在状态字符串里的自由文本后缀）
const (
	CauseNone         = ""
	CauseSOSButton    = "SOS_BUTTON"
	CauseStillness    = "PROLONGED_STILLNESS"
	CauseElevatedTemp = "ELEVATED_TEMP"
	CauseHighTemp     = "HIGH_TEMP"
)
