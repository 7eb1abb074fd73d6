// internal/ac/service.go
// Package ac 空调控制服务：开关机、风速/模式/目标温度调节、
// 入住与结账。所有写操作经由 registry 串行化，与调度节拍互斥。
package ac

import (
	"fmt"
	"time"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/events"
	"backend/internal/logger"
	"backend/internal/registry"
	"backend/internal/types"
)

// ControlPatch 一次控制请求，字段为 nil 表示不修改
type ControlPatch struct {
	IsOn       *bool    `json:"is_on"`
	TargetTemp *float64 `json:"target_temp"`
	Mode       *string  `json:"mode"`
	FanSpeed   *string  `json:"fan_speed"`
}

type Service struct {
	cfg    *config.Config
	reg    *registry.Registry
	ledger *billing.Ledger
	bus    *events.EventBus
}

func NewService(cfg *config.Config, reg *registry.Registry, ledger *billing.Ledger, bus *events.EventBus) *Service {
	return &Service{cfg: cfg, reg: reg, ledger: ledger, bus: bus}
}

// Apply 原子地应用一次控制请求：先整体校验，再按
// 开关机、模式、风速、温度的顺序生效，任一字段非法则整个请求不生效。
func (s *Service) Apply(roomID string, patch ControlPatch) error {
	now := time.Now()
	return s.reg.Update(roomID, func(r *registry.Room) error {
		if err := s.validatePatch(r, patch); err != nil {
			return err
		}
		if patch.IsOn != nil {
			if *patch.IsOn {
				if err := s.powerOn(r, now); err != nil {
					return err
				}
			} else {
				s.powerOff(r, now)
			}
		}
		if patch.Mode != nil {
			if err := s.setMode(r, types.Mode(*patch.Mode), now); err != nil {
				return err
			}
		}
		if patch.FanSpeed != nil {
			if err := s.setFanSpeed(r, types.Speed(*patch.FanSpeed), now); err != nil {
				return err
			}
		}
		if patch.TargetTemp != nil {
			if err := s.setTargetTemp(r, *patch.TargetTemp); err != nil {
				return err
			}
		}
		return nil
	})
}

// validatePatch 在不触碰状态的前提下校验整个请求
func (s *Service) validatePatch(r *registry.Room, patch ControlPatch) error {
	on := r.IsOn
	if patch.IsOn != nil {
		if *patch.IsOn && r.Occupancy != types.OccupancyOccupied {
			return fmt.Errorf("%w: 房间 %s", registry.ErrNotOccupied, r.ID)
		}
		on = *patch.IsOn
	}

	mode := r.Mode
	if patch.Mode != nil {
		mode = types.Mode(*patch.Mode)
		if !mode.Valid() {
			return fmt.Errorf("%w: 无效模式 %s", registry.ErrInvalidTransition, mode)
		}
		if !on {
			return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
		}
	}
	if patch.FanSpeed != nil {
		if !types.Speed(*patch.FanSpeed).Valid() {
			return fmt.Errorf("%w: 无效风速 %s", registry.ErrInvalidTransition, *patch.FanSpeed)
		}
		if !on {
			return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
		}
	}
	if patch.TargetTemp != nil {
		if !on {
			return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
		}
		rng := s.cfg.TempRangeFor(mode)
		if !rng.Contains(*patch.TargetTemp) {
			return fmt.Errorf("%w: 目标温度 %.1f 超出 %s 模式范围 [%.1f, %.1f]",
				registry.ErrInvalidTransition, *patch.TargetTemp, mode, rng.Min, rng.Max)
		}
	}
	return nil
}

// PowerOn 开机：进入等待队列，由调度器决定何时放行
func (s *Service) PowerOn(roomID string) error {
	now := time.Now()
	return s.reg.Update(roomID, func(r *registry.Room) error {
		return s.powerOn(r, now)
	})
}

// PowerOff 关机：关闭打开的详单，立即释放通道
func (s *Service) PowerOff(roomID string) error {
	now := time.Now()
	return s.reg.Update(roomID, func(r *registry.Room) error {
		s.powerOff(r, now)
		return nil
	})
}

// SetFanSpeed 调整风速
func (s *Service) SetFanSpeed(roomID string, speed types.Speed) error {
	now := time.Now()
	return s.reg.Update(roomID, func(r *registry.Room) error {
		return s.setFanSpeed(r, speed, now)
	})
}

// SetMode 切换工作模式
func (s *Service) SetMode(roomID string, mode types.Mode) error {
	now := time.Now()
	return s.reg.Update(roomID, func(r *registry.Room) error {
		return s.setMode(r, mode, now)
	})
}

// SetTargetTemp 设定目标温度
func (s *Service) SetTargetTemp(roomID string, temp float64) error {
	return s.reg.Update(roomID, func(r *registry.Room) error {
		return s.setTargetTemp(r, temp)
	})
}

func (s *Service) powerOn(r *registry.Room, now time.Time) error {
	if r.Occupancy != types.OccupancyOccupied {
		return fmt.Errorf("%w: 房间 %s", registry.ErrNotOccupied, r.ID)
	}
	if r.IsOn {
		return nil
	}
	r.IsOn = true
	if !r.FanSpeed.Valid() {
		r.FanSpeed = types.Speed(s.cfg.AC.DefaultFanSpeed)
	}
	if !r.Mode.Valid() {
		r.Mode = types.Mode(s.cfg.AC.DefaultMode)
	}
	if r.TargetTemp == 0 {
		r.TargetTemp = s.cfg.AC.DefaultTargetTemp
	}
	r.Status = types.StatusWaiting
	r.EnqueuedAt = now
	r.WaitedTicks = 0
	logger.Info("房间 %s 开机: 模式 %s 风速 %s 目标 %.1f", r.ID, r.Mode, r.FanSpeed, r.TargetTemp)
	s.publish(events.EventPowerOn, r.ID, now)
	return nil
}

func (s *Service) powerOff(r *registry.Room, now time.Time) {
	if !r.IsOn {
		return
	}
	s.ledger.CloseSession(r.ID, now)
	r.IsOn = false
	r.Status = types.StatusOff
	r.ServedTicks = 0
	r.WaitedTicks = 0
	logger.Info("房间 %s 关机", r.ID)
	s.publish(events.EventPowerOff, r.ID, now)
}

func (s *Service) setFanSpeed(r *registry.Room, speed types.Speed, now time.Time) error {
	if !speed.Valid() {
		return fmt.Errorf("%w: 无效风速 %s", registry.ErrInvalidTransition, speed)
	}
	if !r.IsOn {
		return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
	}
	if speed == r.FanSpeed {
		return nil
	}
	// 服务中换风速费率改变，切分详单；新详单由后续节拍计费
	if r.Status == types.StatusServing {
		s.ledger.CloseSession(r.ID, now)
		s.ledger.OpenSession(r.ID, now, r.Mode, speed)
	}
	r.FanSpeed = speed
	logger.Info("房间 %s 风速调整为 %s", r.ID, speed)
	return nil
}

func (s *Service) setMode(r *registry.Room, mode types.Mode, now time.Time) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: 无效模式 %s", registry.ErrInvalidTransition, mode)
	}
	if !r.IsOn {
		return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
	}
	if mode == r.Mode {
		return nil
	}
	if r.Status == types.StatusServing {
		s.ledger.CloseSession(r.ID, now)
		s.ledger.OpenSession(r.ID, now, mode, r.FanSpeed)
	}
	r.Mode = mode
	// 旧目标温度可能落在新模式范围之外，夹到边界
	rng := s.cfg.TempRangeFor(mode)
	if r.TargetTemp < rng.Min {
		r.TargetTemp = rng.Min
	} else if r.TargetTemp > rng.Max {
		r.TargetTemp = rng.Max
	}
	logger.Info("房间 %s 切换为 %s 模式, 目标 %.1f", r.ID, mode, r.TargetTemp)
	return nil
}

func (s *Service) setTargetTemp(r *registry.Room, temp float64) error {
	if !r.IsOn {
		return fmt.Errorf("%w: 房间 %s 未开机", registry.ErrInvalidTransition, r.ID)
	}
	rng := s.cfg.TempRangeFor(r.Mode)
	if !rng.Contains(temp) {
		return fmt.Errorf("%w: 目标温度 %.1f 超出 %s 模式范围 [%.1f, %.1f]",
			registry.ErrInvalidTransition, temp, r.Mode, rng.Min, rng.Max)
	}
	r.TargetTemp = temp
	// 不切分详单：目标温度不影响费率。是否继续/暂停服务交由下一节拍判定
	return nil
}

// CheckIn 办理入住
func (s *Service) CheckIn(roomID, guestID string) error {
	now := time.Now()
	err := s.reg.Update(roomID, func(r *registry.Room) error {
		if r.Occupancy == types.OccupancyOccupied {
			return registry.ErrAlreadyOccupied
		}
		r.Occupancy = types.OccupancyOccupied
		r.GuestID = guestID
		r.CheckinTime = now
		r.AccumulatedFee = 0
		r.IsOn = false
		r.Status = types.StatusOff
		r.Mode = types.Mode(s.cfg.AC.DefaultMode)
		r.FanSpeed = types.Speed(s.cfg.AC.DefaultFanSpeed)
		r.TargetTemp = s.cfg.AC.DefaultTargetTemp
		r.ServedTicks = 0
		r.WaitedTicks = 0
		s.ledger.ResetStay(roomID)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("房间 %s 入住: 客人 %s", roomID, guestID)
	s.publish(events.EventRoomCheckIn, roomID, now)
	return nil
}

// CheckOut 结账：关机、关闭详单、汇总账单并清空房间
func (s *Service) CheckOut(roomID string) (*billing.Bill, error) {
	now := time.Now()
	var bill *billing.Bill
	err := s.reg.Update(roomID, func(r *registry.Room) error {
		if r.Occupancy != types.OccupancyOccupied {
			return registry.ErrNotOccupied
		}
		s.powerOff(r, now)
		bill = s.ledger.ComputeBill(roomID, r.GuestID, r.CheckinTime, now, r.DailyRate)
		s.ledger.ResetStay(roomID)

		r.Occupancy = types.OccupancyEmpty
		r.GuestID = ""
		r.CheckinTime = time.Time{}
		r.AccumulatedFee = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("房间 %s 结账: 住宿 %.2f + 空调 %.2f = %.2f 元",
		roomID, bill.AccommodationFee.Yuan(), bill.ACFee.Yuan(), bill.Total.Yuan())
	s.publish(events.EventRoomCheckOut, roomID, now)
	return bill, nil
}

func (s *Service) publish(evt events.EventType, roomID string, now time.Time) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: evt, RoomID: roomID, Timestamp: now})
	}
}
