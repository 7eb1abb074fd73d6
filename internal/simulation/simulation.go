// internal/simulation/simulation.go
// Package simulation 房间温度模拟：被服务的房间向目标温度逼近，
// 其余房间向环境温度回温。
package simulation

import (
	"time"

	"backend/internal/config"
	"backend/internal/registry"
	"backend/internal/types"
)

type Engine struct {
	ambient   float64
	recovery  float64 // 度/分
	rebound   float64
	changeMap map[types.Speed]float64 // 度/分
}

func NewEngine(cfg config.SimulationConfig) *Engine {
	changeMap := make(map[types.Speed]float64, len(cfg.ChangePerMinute))
	for speed, rate := range cfg.ChangePerMinute {
		changeMap[types.Speed(speed)] = rate
	}
	return &Engine{
		ambient:   cfg.AmbientTemp,
		recovery:  cfg.RecoveryPerMinute,
		rebound:   cfg.ReboundThreshold,
		changeMap: changeMap,
	}
}

// Advance 被服务的房间按风速对应速率向目标温度移动，到达后截断
func (e *Engine) Advance(r *registry.Room, dt time.Duration) {
	rate := e.changeMap[r.FanSpeed]
	delta := rate / 60.0 * dt.Seconds()

	switch r.Mode {
	case types.ModeHeat:
		r.CurrentTemp += delta
		if r.CurrentTemp > r.TargetTemp {
			r.CurrentTemp = r.TargetTemp
		}
	default: // COOL
		r.CurrentTemp -= delta
		if r.CurrentTemp < r.TargetTemp {
			r.CurrentTemp = r.TargetTemp
		}
	}
}

// Drift 未被服务的房间向环境温度回温，到达后截断
func (e *Engine) Drift(r *registry.Room, dt time.Duration) {
	delta := e.recovery / 60.0 * dt.Seconds()

	if r.CurrentTemp < e.ambient {
		r.CurrentTemp += delta
		if r.CurrentTemp > e.ambient {
			r.CurrentTemp = e.ambient
		}
	} else if r.CurrentTemp > e.ambient {
		r.CurrentTemp -= delta
		if r.CurrentTemp < e.ambient {
			r.CurrentTemp = e.ambient
		}
	}
}

// AtTarget 是否已达到目标温度(按模式方向判断)
func (e *Engine) AtTarget(r *registry.Room) bool {
	if r.Mode == types.ModeHeat {
		return r.CurrentTemp >= r.TargetTemp
	}
	return r.CurrentTemp <= r.TargetTemp
}

// NeedsService IDLE 房间温度是否已偏离目标超过回弹阈值
func (e *Engine) NeedsService(r *registry.Room) bool {
	if r.Mode == types.ModeHeat {
		return r.CurrentTemp <= r.TargetTemp-e.rebound
	}
	return r.CurrentTemp >= r.TargetTemp+e.rebound
}
