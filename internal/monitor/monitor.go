// internal/monitor/monitor.go
// Package monitor 调度监控：订阅调度事件累计计数，
// 周期性汇总系统指标，并为监控接口提供队列快照。
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/registry"
	"backend/internal/types"
)

// Metrics 系统运行指标
type Metrics struct {
	TotalRooms    int   `json:"total_rooms"`
	OccupiedRooms int   `json:"occupied_rooms"`
	PoweredOn     int   `json:"powered_on"`
	Serving       int   `json:"serving"`
	Waiting       int   `json:"waiting"`
	Preemptions   int64 `json:"preemptions"`
	Rotations     int64 `json:"rotations"`
	Pauses        int64 `json:"pauses"`
}

// ChannelView 服务通道占用情况
type ChannelView struct {
	RoomID      string `json:"room_id"`
	FanSpeed    string `json:"fan_speed"`
	ServiceTime int64  `json:"service_time"` // 本轮连续服务时长(秒)
}

// WaitingView 等待队列成员
type WaitingView struct {
	RoomID     string `json:"room_id"`
	FanSpeed   string `json:"fan_speed"`
	WaitedTime int64  `json:"waited_time"` // 连续等待时长(秒)
}

type Monitor struct {
	mu       sync.Mutex
	reg      *registry.Registry
	bus      *events.EventBus
	interval time.Duration
	tickSec  int64

	preemptions int64
	rotations   int64
	pauses      int64

	subs []events.Subscription
}

func NewMonitor(reg *registry.Registry, bus *events.EventBus, interval time.Duration, tick time.Duration) *Monitor {
	m := &Monitor{
		reg:      reg,
		bus:      bus,
		interval: interval,
		tickSec:  int64(tick / time.Second),
	}
	if bus != nil {
		m.subs = append(m.subs,
			bus.Subscribe(events.EventServicePreempted, m.onEvent),
			bus.Subscribe(events.EventServiceRotated, m.onEvent),
			bus.Subscribe(events.EventServicePaused, m.onEvent),
		)
	}
	return m
}

func (m *Monitor) onEvent(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch e.Type {
	case events.EventServicePreempted:
		m.preemptions++
	case events.EventServiceRotated:
		m.rotations++
	case events.EventServicePaused:
		m.pauses++
	}
}

// Run 周期性输出系统指标日志，ctx 取消后返回
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.unsubscribe()
			return ctx.Err()
		case <-ticker.C:
			s := m.Metrics()
			logger.Debug("监控: 服务 %d 等待 %d 开机 %d/%d, 抢占 %d 轮转 %d",
				s.Serving, s.Waiting, s.PoweredOn, s.TotalRooms, s.Preemptions, s.Rotations)
		}
	}
}

func (m *Monitor) unsubscribe() {
	if m.bus == nil {
		return
	}
	for _, sub := range m.subs {
		m.bus.Unsubscribe(sub)
	}
}

// Metrics 当前系统指标
func (m *Monitor) Metrics() Metrics {
	rooms := m.reg.Snapshot()

	m.mu.Lock()
	s := Metrics{
		Preemptions: m.preemptions,
		Rotations:   m.rotations,
		Pauses:      m.pauses,
	}
	m.mu.Unlock()

	s.TotalRooms = len(rooms)
	for _, r := range rooms {
		if r.Occupancy == types.OccupancyOccupied {
			s.OccupiedRooms++
		}
		if r.IsOn {
			s.PoweredOn++
		}
		switch r.Status {
		case types.StatusServing:
			s.Serving++
		case types.StatusWaiting:
			s.Waiting++
		}
	}
	return s
}

// Queues 服务通道与等待队列快照。等待队列按调度顺序排列。
func (m *Monitor) Queues() ([]ChannelView, []WaitingView) {
	rooms := m.reg.Snapshot()

	var serving []ChannelView
	var waiting []registry.Room
	for _, r := range rooms {
		switch r.Status {
		case types.StatusServing:
			serving = append(serving, ChannelView{
				RoomID:      r.ID,
				FanSpeed:    string(r.FanSpeed),
				ServiceTime: int64(r.ServedTicks) * m.tickSec,
			})
		case types.StatusWaiting:
			waiting = append(waiting, r)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		a, b := waiting[i], waiting[j]
		if a.Priority() != b.Priority() {
			return a.Priority() > b.Priority()
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.ID < b.ID
	})

	out := make([]WaitingView, 0, len(waiting))
	for _, r := range waiting {
		out = append(out, WaitingView{
			RoomID:     r.ID,
			FanSpeed:   string(r.FanSpeed),
			WaitedTime: int64(r.WaitedTicks) * m.tickSec,
		})
	}
	return serving, out
}
