package scheduler

import (
	"testing"
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/registry"
	"backend/internal/simulation"
	"backend/internal/types"
)

func newTestScheduler(t *testing.T) (*Scheduler, *registry.Registry, *billing.Ledger) {
	t.Helper()
	cfg := config.Default()
	reg := registry.New(nil)
	ledger := billing.NewLedger(nil, nil)
	meter := billing.NewMeter(cfg.Billing)
	sim := simulation.NewEngine(cfg.Simulation)
	s := New(cfg.Scheduler, reg, ledger, meter, sim, nil)
	return s, reg, ledger
}

func addWaitingRoom(reg *registry.Registry, id string, speed types.Speed, current, target float64, enqueued time.Time) {
	reg.AddRoom(&registry.Room{
		ID:          id,
		Occupancy:   types.OccupancyOccupied,
		IsOn:        true,
		Mode:        types.ModeCool,
		FanSpeed:    speed,
		TargetTemp:  target,
		CurrentTemp: current,
		Status:      types.StatusWaiting,
		EnqueuedAt:  enqueued,
	})
}

func mustGet(t *testing.T, reg *registry.Registry, id string) registry.Room {
	t.Helper()
	room, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return room
}

func countStatus(reg *registry.Registry, status types.Status) int {
	n := 0
	for _, r := range reg.Snapshot() {
		if r.Status == status {
			n++
		}
	}
	return n
}

func TestScheduling(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := time.Second

	t.Run("Admission Up To Channel Limit", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103", "104"} {
			addWaitingRoom(reg, id, types.SpeedHigh, 30.0, 20.0, base.Add(time.Duration(i)*time.Second))
		}

		s.Tick(base.Add(tick), tick)

		if got := countStatus(reg, types.StatusServing); got != 3 {
			t.Errorf("Expected 3 rooms serving, got %d", got)
		}
		if got := countStatus(reg, types.StatusWaiting); got != 1 {
			t.Errorf("Expected 1 room waiting, got %d", got)
		}
		// 入队最晚的房间落选
		if r := mustGet(t, reg, "104"); r.Status != types.StatusWaiting {
			t.Errorf("Room 104 should wait, got %s", r.Status)
		}
	})

	t.Run("High Priority Preemption", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103"} {
			addWaitingRoom(reg, id, types.SpeedLow, 30.0, 20.0, base.Add(time.Duration(i)*time.Second))
		}
		now := base.Add(tick)
		s.Tick(now, tick)
		if got := countStatus(reg, types.StatusServing); got != 3 {
			t.Fatalf("Setup: expected 3 serving, got %d", got)
		}

		addWaitingRoom(reg, "104", types.SpeedHigh, 30.0, 20.0, now)
		now = now.Add(tick)
		s.Tick(now, tick)

		if r := mustGet(t, reg, "104"); r.Status != types.StatusServing {
			t.Errorf("High speed room should preempt, got %s", r.Status)
		}
		if got := countStatus(reg, types.StatusServing); got != 3 {
			t.Errorf("Expected 3 serving after preemption, got %d", got)
		}
		// 被抢占者回到等待集，入队时间重置为抢占时刻
		waitingLow := 0
		for _, id := range []string{"101", "102", "103"} {
			r := mustGet(t, reg, id)
			if r.Status == types.StatusWaiting {
				waitingLow++
				if !r.EnqueuedAt.Equal(now) {
					t.Errorf("Preempted room %s should re-enqueue at preemption time", id)
				}
			}
		}
		if waitingLow != 1 {
			t.Errorf("Expected exactly 1 preempted room, got %d", waitingLow)
		}
	})

	t.Run("Same Priority Never Preempts", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103"} {
			addWaitingRoom(reg, id, types.SpeedMid, 30.0, 20.0, base.Add(time.Duration(i)*time.Second))
		}
		now := base.Add(tick)
		s.Tick(now, tick)

		addWaitingRoom(reg, "104", types.SpeedMid, 30.0, 20.0, now)
		now = now.Add(tick)
		s.Tick(now, tick)

		if r := mustGet(t, reg, "104"); r.Status != types.StatusWaiting {
			t.Errorf("Equal priority request should wait, got %s", r.Status)
		}
	})

	t.Run("Quantum Rotation Among Equals", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103"} {
			addWaitingRoom(reg, id, types.SpeedMid, 30.0, 18.0, base.Add(time.Duration(i)*time.Second))
		}
		now := base
		now = now.Add(tick)
		s.Tick(now, tick)

		addWaitingRoom(reg, "104", types.SpeedMid, 30.0, 18.0, now)

		// 时间片耗尽前不轮转
		quantum := config.Default().Scheduler.QuantumTicks
		for i := 0; i < quantum-1; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
			if r := mustGet(t, reg, "104"); r.Status != types.StatusWaiting {
				t.Fatalf("Room 104 rotated in too early at tick %d", i)
			}
		}

		now = now.Add(tick)
		s.Tick(now, tick)
		if r := mustGet(t, reg, "104"); r.Status != types.StatusServing {
			t.Errorf("Room 104 should rotate in after quantum, got %s", r.Status)
		}
		if got := countStatus(reg, types.StatusServing); got != 3 {
			t.Errorf("Expected 3 serving after rotation, got %d", got)
		}
		if got := countStatus(reg, types.StatusWaiting); got != 1 {
			t.Errorf("Expected 1 waiting after rotation, got %d", got)
		}
	})

	t.Run("Pause At Target Releases Channel", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		// HIGH 风速一个节拍降 0.01 度，一拍内到达目标
		addWaitingRoom(reg, "101", types.SpeedHigh, 20.005, 20.0, base)
		addWaitingRoom(reg, "102", types.SpeedLow, 30.0, 20.0, base)

		now := base.Add(tick)
		s.Tick(now, tick)

		r := mustGet(t, reg, "101")
		if r.Status != types.StatusIdle {
			t.Fatalf("Room at target should be IDLE, got %s", r.Status)
		}
		if ledger.HasOpen("101") {
			t.Error("Session should be closed on pause")
		}
		sessions := ledger.StaySessions("101")
		if len(sessions) != 1 {
			t.Fatalf("Expected 1 closed session, got %d", len(sessions))
		}
		// 一个节拍 HIGH 风速: 6 单位
		if sessions[0].Fee != 6 {
			t.Errorf("Expected fee 6 units, got %d", sessions[0].Fee)
		}
	})

	t.Run("No Session For Room Already At Target", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		addWaitingRoom(reg, "101", types.SpeedHigh, 20.0, 20.0, base)

		s.Tick(base.Add(tick), tick)

		if r := mustGet(t, reg, "101"); r.Status != types.StatusIdle {
			t.Errorf("Room already at target should park IDLE, got %s", r.Status)
		}
		if len(ledger.StaySessions("101")) != 0 {
			t.Error("No session should be recorded for zero service")
		}
	})

	t.Run("Rebound Requeues Idle Room", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		reg.AddRoom(&registry.Room{
			ID:          "101",
			Occupancy:   types.OccupancyOccupied,
			IsOn:        true,
			Mode:        types.ModeCool,
			FanSpeed:    types.SpeedMid,
			TargetTemp:  20.0,
			CurrentTemp: 20.0,
			Status:      types.StatusIdle,
		})

		// 回温 0.5 度/分，越过 1 度回弹阈值需要约 2 分钟
		now := base
		for i := 0; i < 150; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
		}
		r := mustGet(t, reg, "101")
		if r.Status == types.StatusIdle || r.Status == types.StatusOff {
			t.Errorf("Rebounded room should request service, got %s (temp %.2f)", r.Status, r.CurrentTemp)
		}
	})

	t.Run("Exact Fee Accrual", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		addWaitingRoom(reg, "101", types.SpeedHigh, 32.0, 18.0, base)

		// 600 秒 HIGH 风速服务: 600 * 6 = 3600 单位 = 10.00 元
		now := base
		for i := 0; i < 600; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
		}
		r := mustGet(t, reg, "101")
		if r.Status != types.StatusServing {
			t.Fatalf("Room should still be serving, got %s (temp %.2f)", r.Status, r.CurrentTemp)
		}
		if r.AccumulatedFee != 3600 {
			t.Errorf("Expected 3600 fee units, got %d", r.AccumulatedFee)
		}
		if got := r.AccumulatedFee.Yuan(); got != 10.0 {
			t.Errorf("Expected exactly 10.00 yuan, got %v", got)
		}

		ledger.CloseSession("101", now)
		sessions := ledger.StaySessions("101")
		if len(sessions) != 1 || sessions[0].Fee != 3600 {
			t.Errorf("Ledger session should carry the same 3600 units, got %+v", sessions)
		}
	})

	t.Run("Preemption Skips Parked Waiter", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103"} {
			addWaitingRoom(reg, id, types.SpeedLow, 30.0, 20.0, base.Add(time.Duration(i)*time.Second))
		}
		now := base.Add(tick)
		s.Tick(now, tick)

		// 高风速等待者已过度制冷，到达目标，不应挤掉任何在位者
		addWaitingRoom(reg, "104", types.SpeedHigh, 17.0, 18.0, now)
		now = now.Add(tick)
		s.Tick(now, tick)

		if r := mustGet(t, reg, "104"); r.Status != types.StatusIdle {
			t.Errorf("Parked waiter should be IDLE, got %s", r.Status)
		}
		for _, id := range []string{"101", "102", "103"} {
			if r := mustGet(t, reg, id); r.Status != types.StatusServing {
				t.Errorf("Room %s should keep serving, got %s", id, r.Status)
			}
		}
		if ledger.HasOpen("104") || len(ledger.StaySessions("104")) != 0 {
			t.Error("Parked waiter should have no sessions")
		}
	})

	t.Run("Rotation Skips Parked Waiter", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		for i, id := range []string{"101", "102", "103"} {
			addWaitingRoom(reg, id, types.SpeedMid, 30.0, 18.0, base.Add(time.Duration(i)*time.Second))
		}
		now := base.Add(tick)
		s.Tick(now, tick)

		// 同级等待者已到目标：时间片耗尽也不为它让位
		addWaitingRoom(reg, "104", types.SpeedMid, 17.0, 18.0, now)
		quantum := config.Default().Scheduler.QuantumTicks
		for i := 0; i < quantum+2; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
		}

		if r := mustGet(t, reg, "104"); r.Status != types.StatusIdle {
			t.Errorf("Parked waiter should be IDLE, got %s", r.Status)
		}
		for _, id := range []string{"101", "102", "103"} {
			if r := mustGet(t, reg, id); r.Status != types.StatusServing {
				t.Errorf("Room %s should keep serving, got %s", id, r.Status)
			}
			if len(ledger.StaySessions(id)) != 0 {
				t.Errorf("Room %s session split needlessly", id)
			}
		}
	})

	t.Run("Restored Stay Conserves Fees", func(t *testing.T) {
		s, reg, ledger := newTestScheduler(t)
		// 重启后的状态：累计费用与已落库详单恢复，房间重新排队
		ledger.RestoreSessions([]db.ACSessionRecord{
			{RoomID: "101", StartTime: base.Add(-time.Hour), EndTime: base.Add(-58 * time.Minute),
				Mode: "COOL", FanSpeed: "MID", DurationSec: 120, Fee: 360},
		})
		reg.AddRoom(&registry.Room{
			ID:             "101",
			Occupancy:      types.OccupancyOccupied,
			IsOn:           true,
			Mode:           types.ModeCool,
			FanSpeed:       types.SpeedMid,
			TargetTemp:     18.0,
			CurrentTemp:    30.0,
			Status:         types.StatusWaiting,
			EnqueuedAt:     base,
			AccumulatedFee: 360,
		})

		now := base
		for i := 0; i < 60; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
		}
		r := mustGet(t, reg, "101")
		// 60 秒 MID: 180 单位，叠加重启前的 360
		if r.AccumulatedFee != 540 {
			t.Fatalf("Accumulated fee %d, want 540", r.AccumulatedFee)
		}

		// 每一分钱都有详单覆盖
		ledger.CloseSession("101", now)
		var covered billing.Amount
		for _, sess := range ledger.StaySessions("101") {
			covered += sess.Fee
		}
		if covered != r.AccumulatedFee {
			t.Errorf("Sessions cover %d units, accumulated %d", covered, r.AccumulatedFee)
		}
	})

	t.Run("Channel Limit Holds Under Churn", func(t *testing.T) {
		s, reg, _ := newTestScheduler(t)
		speeds := []types.Speed{types.SpeedLow, types.SpeedMid, types.SpeedHigh}
		for i := 0; i < 8; i++ {
			id := string(rune('A' + i))
			addWaitingRoom(reg, id, speeds[i%3], 30.0+float64(i), 19.0, base.Add(time.Duration(i)*time.Second))
		}

		now := base
		for i := 0; i < 200; i++ {
			now = now.Add(tick)
			s.Tick(now, tick)
			serving := 0
			for _, r := range reg.Snapshot() {
				if r.Status == types.StatusServing {
					serving++
					if !r.IsOn {
						t.Fatalf("Room %s serving while powered off", r.ID)
					}
				}
			}
			if serving > 3 {
				t.Fatalf("Tick %d: %d rooms serving, limit is 3", i, serving)
			}
		}
	})
}
