// internal/scheduler/scheduler.go
// Package scheduler 服务通道调度器：K 个通道在 WAITING 房间之间按
// 优先级分配，支持高优先级抢占与同级时间片轮转。
// 所有接纳/抢占/轮转决策在同一个节拍内原子完成。
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/registry"
	"backend/internal/simulation"
	"backend/internal/types"
)

type Scheduler struct {
	channels int
	quantum  int
	tick     time.Duration

	reg    *registry.Registry
	ledger *billing.Ledger
	meter  *billing.Meter
	sim    *simulation.Engine
	bus    *events.EventBus
}

func New(
	cfg config.SchedulerConfig,
	reg *registry.Registry,
	ledger *billing.Ledger,
	meter *billing.Meter,
	sim *simulation.Engine,
	bus *events.EventBus,
) *Scheduler {
	return &Scheduler{
		channels: cfg.Channels,
		quantum:  cfg.QuantumTicks,
		tick:     cfg.Tick(),
		reg:      reg,
		ledger:   ledger,
		meter:    meter,
		sim:      sim,
		bus:      bus,
	}
}

// Run 以固定节拍驱动调度，ctx 取消后返回
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	logger.Info("调度器启动: %d 个服务通道, 节拍 %v, 时间片 %d 拍", s.channels, s.tick, s.quantum)
	for {
		select {
		case <-ctx.Done():
			logger.Info("调度器停止")
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(now, s.tick)
		}
	}
}

// Tick 执行一次调度节拍。对外暴露以便测试以可控时间驱动。
func (s *Scheduler) Tick(now time.Time, dt time.Duration) {
	s.reg.Tick(func(rooms []*registry.Room) {
		s.schedule(now, rooms)
		s.advance(now, dt, rooms)
		s.checkInvariants(rooms)
	})
}

// schedule 重算通道分配：接纳、抢占、轮转
func (s *Scheduler) schedule(now time.Time, rooms []*registry.Room) {
	var serving, waiting []*registry.Room
	for _, r := range rooms {
		switch r.Status {
		case types.StatusServing:
			serving = append(serving, r)
		case types.StatusWaiting:
			waiting = append(waiting, r)
		}
	}
	sortWaiting(waiting)

	// 1. 接纳：通道未满时按 (优先级, 入队时间) 依次放行
	for len(waiting) > 0 && len(serving) < s.channels {
		w := waiting[0]
		waiting = waiting[1:]
		if s.park(w) {
			continue
		}
		s.admit(w, now)
		serving = append(serving, w)
	}

	// 2. 抢占：严格更高优先级的等待者挤掉最低优先级的服务对象。
	// 已到目标温度的等待者直接停靠，不白白挤占别人。
	// 被抢占者重置入队时间，回到其优先级档的队尾，避免反复抢占同一房间。
	for len(waiting) > 0 && len(serving) >= s.channels {
		w := waiting[0]
		v := selectVictim(serving)
		if v == nil || w.Priority() <= v.Priority() {
			break
		}
		waiting = waiting[1:]
		if s.park(w) {
			continue
		}
		s.demote(v, now, events.EventServicePreempted)
		serving = removeRoom(serving, v)
		s.admit(w, now)
		serving = append(serving, w)
	}

	// 3. 同级时间片轮转：服务满一个时间片且有同级等待者时让位，
	// 同级中等待最久的先上；已到目标温度的候选者直接停靠，
	// 在位者只为真正需要服务的候选者让位
	for _, r := range append([]*registry.Room(nil), serving...) {
		if r.ServedTicks < s.quantum {
			continue
		}
		for {
			w := longestWaitingAt(waiting, r.Priority())
			if w == nil {
				break
			}
			waiting = removeRoom(waiting, w)
			if s.park(w) {
				continue
			}
			s.demote(r, now, events.EventServiceRotated)
			serving = removeRoom(serving, r)
			s.admit(w, now)
			serving = append(serving, w)
			break
		}
	}
}

// advance 推进所有房间的温度与计费
func (s *Scheduler) advance(now time.Time, dt time.Duration, rooms []*registry.Room) {
	seconds := int64(dt / time.Second)
	for _, r := range rooms {
		switch r.Status {
		case types.StatusServing:
			r.ServedTicks++
			s.sim.Advance(r, dt)
			inc := s.meter.Charge(r.Mode, r.FanSpeed, seconds)
			r.AccumulatedFee += inc
			s.ledger.Accrue(r.ID, inc)
			if s.sim.AtTarget(r) {
				// 到达目标温度：暂停服务，释放通道，停止计费
				s.ledger.CloseSession(r.ID, now)
				r.Status = types.StatusIdle
				r.ServedTicks = 0
				s.publish(events.EventServicePaused, r.ID, now)
			}
		case types.StatusWaiting:
			r.WaitedTicks++
			s.sim.Drift(r, dt)
		case types.StatusIdle:
			s.sim.Drift(r, dt)
			if r.IsOn && s.sim.NeedsService(r) {
				r.Status = types.StatusWaiting
				r.EnqueuedAt = now
				r.WaitedTicks = 0
			}
		default: // OFF
			s.sim.Drift(r, dt)
		}
	}
}

// checkInvariants |SERVING| > K 或 SERVING 但未开机属于计费完整性缺陷，
// 直接崩溃而不是悄悄纠正
func (s *Scheduler) checkInvariants(rooms []*registry.Room) {
	count := 0
	for _, r := range rooms {
		if r.Status != types.StatusServing {
			continue
		}
		count++
		if !r.IsOn {
			panic(fmt.Sprintf("scheduler: room %s SERVING while powered off", r.ID))
		}
	}
	if count > s.channels {
		panic(fmt.Sprintf("scheduler: %d rooms SERVING, only %d channels", count, s.channels))
	}
}

// park 目标温度已满足的房间直接转 IDLE，不产生零时长详单
func (s *Scheduler) park(r *registry.Room) bool {
	if !s.sim.AtTarget(r) {
		return false
	}
	r.Status = types.StatusIdle
	r.ServedTicks = 0
	r.WaitedTicks = 0
	return true
}

func (s *Scheduler) admit(r *registry.Room, now time.Time) {
	r.Status = types.StatusServing
	r.ServedTicks = 0
	r.WaitedTicks = 0
	s.ledger.OpenSession(r.ID, now, r.Mode, r.FanSpeed)
	s.publish(events.EventServiceStarted, r.ID, now)
}

func (s *Scheduler) demote(r *registry.Room, now time.Time, evt events.EventType) {
	s.ledger.CloseSession(r.ID, now)
	r.Status = types.StatusWaiting
	r.EnqueuedAt = now
	r.ServedTicks = 0
	r.WaitedTicks = 0
	s.publish(evt, r.ID, now)
}

func (s *Scheduler) publish(evt events.EventType, roomID string, now time.Time) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: evt, RoomID: roomID, Timestamp: now})
	}
}

// sortWaiting 等待集排序：优先级降序，入队时间升序，房间号兜底
func sortWaiting(waiting []*registry.Room) {
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
}

// selectVictim 选择被抢占对象：优先级最低，平级取服务最久
func selectVictim(serving []*registry.Room) *registry.Room {
	var victim *registry.Room
	for _, r := range serving {
		if victim == nil ||
			r.Priority() < victim.Priority() ||
			(r.Priority() == victim.Priority() && r.ServedTicks > victim.ServedTicks) {
			victim = r
		}
	}
	return victim
}

// longestWaitingAt 指定优先级档中等待最久的房间
func longestWaitingAt(waiting []*registry.Room, priority int) *registry.Room {
	var best *registry.Room
	for _, r := range waiting {
		if r.Priority() != priority {
			continue
		}
		if best == nil || r.EnqueuedAt.Before(best.EnqueuedAt) ||
			(r.EnqueuedAt.Equal(best.EnqueuedAt) && r.ID < best.ID) {
			best = r
		}
	}
	return best
}

func removeRoom(list []*registry.Room, target *registry.Room) []*registry.Room {
	out := list[:0]
	for _, r := range list {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}
