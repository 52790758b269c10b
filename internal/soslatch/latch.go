// Package soslatch SOS锁存状态机
//
// 跟踪手动求救信号的激活/解除：按键释放沿触发（edge-on-release），
// 去抖窗口内的重复沿全部忽略（不排队）。解除需要激活期间的两次
// 有效按键，单次误触不能取消求救。
package soslatch

import (
	"time"

	"go.uber.org/zap"
)

// State 锁存状态
type State int

const (
	StateIdle   State = iota // 未激活
	StateActive              // 求救已锁存
)

// Latch SOS锁存
//
// 字段只在去抖通过的按键沿上变更，跨评估周期持续存在，
// 仅由解除协议复位。
type Latch struct {
	state                State
	pendingDeactivations int
	lastAcceptedEdge     time.Time
	debounce             time.Duration
	logger               *zap.Logger
}

// New 创建SOS锁存
func New(debounce time.Duration, logger *zap.Logger) *Latch {
	return &Latch{
		state:    StateIdle,
		debounce: debounce,
		logger:   logger,
	}
}

// Edge 处理一次按键释放沿，返回该沿是否被接受
//
// 距离上一个被接受的沿不足去抖间隔的沿被忽略。
// 按键故障导致的沿洪泛因此被限速为每个去抖间隔至多一次状态迁移。
func (l *Latch) Edge(now time.Time) bool {
	if !l.lastAcceptedEdge.IsZero() && now.Sub(l.lastAcceptedEdge) < l.debounce {
		return false
	}
	l.lastAcceptedEdge = now

	switch l.state {
	case StateIdle:
		l.state = StateActive
		l.pendingDeactivations = 0
		l.logger.Warn("SOS latched", zap.Time("at", now))
	case StateActive:
		l.pendingDeactivations++
		if l.pendingDeactivations >= 2 {
			l.state = StateIdle
			l.pendingDeactivations = 0
			l.logger.Info("SOS cleared", zap.Time("at", now))
		} else {
			l.logger.Info("SOS deactivation pending",
				zap.Int("presses", l.pendingDeactivations),
			)
		}
	}

	return true
}

// Active 锁存是否处于激活态
func (l *Latch) Active() bool {
	return l.state == StateActive
}

// State 当前锁存状态
func (l *Latch) State() State {
	return l.state
}
