// internal/billing/ledger.go
// 账务台账：维护每个房间当前打开的服务详单与本次入住的历史详单，
// 结账时汇总为账单。详单一旦关闭即只读。
package billing

import (
	"sync"
	"time"

	"backend/internal/db"
	"backend/internal/logger"
	"backend/internal/types"
)

// Session 一段连续计费的服务区间
type Session struct {
	RoomID   string      `json:"room_id"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Mode     types.Mode  `json:"mode"`
	FanSpeed types.Speed `json:"fan"`
	Fee      Amount      `json:"fee"`
}

// Bill 结账账单
type Bill struct {
	RoomID           string    `json:"room_id"`
	GuestID          string    `json:"-"`
	CheckinTime      time.Time `json:"-"`
	CheckoutTime     time.Time `json:"-"`
	Days             int       `json:"days"`
	DailyRate        float64   `json:"daily_rate"`
	AccommodationFee Amount    `json:"accommodation_fee"`
	ACFee            Amount    `json:"ac_fee"`
	Total            Amount    `json:"total"`
	Details          []Session `json:"ac_details"`
}

// Ledger 台账。内存中的详单是权威数据，数据库仅作留痕；
// sessions/bills 为 nil 时只保留内存(测试用)。
type Ledger struct {
	mu       sync.Mutex
	open     map[string]*Session
	closed   map[string][]Session
	sessions *db.SessionRepository
	bills    *db.BillRepository
}

func NewLedger(sessions *db.SessionRepository, bills *db.BillRepository) *Ledger {
	return &Ledger{
		open:     make(map[string]*Session),
		closed:   make(map[string][]Session),
		sessions: sessions,
		bills:    bills,
	}
}

// Restore 重启时从数据库恢复未结账的详单，入住中房间的历史
// 费用由此保持连续，结账汇总不丢失重启前的区间。
func (l *Ledger) Restore() error {
	if l.sessions == nil {
		return nil
	}
	recs, err := l.sessions.GetUnbilledSessions()
	if err != nil {
		return err
	}
	l.RestoreSessions(recs)
	return nil
}

// RestoreSessions 将已持久化的详单装回内存台账
func (l *Ledger) RestoreSessions(recs []db.ACSessionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range recs {
		l.closed[rec.RoomID] = append(l.closed[rec.RoomID], Session{
			RoomID:   rec.RoomID,
			Start:    rec.StartTime,
			End:      rec.EndTime,
			Mode:     types.Mode(rec.Mode),
			FanSpeed: types.Speed(rec.FanSpeed),
			Fee:      Amount(rec.Fee),
		})
	}
}

// OpenSession 打开新的服务详单。已有打开详单时为幂等空操作。
func (l *Ledger) OpenSession(roomID string, now time.Time, mode types.Mode, speed types.Speed) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.open[roomID]; exists {
		return
	}
	l.open[roomID] = &Session{
		RoomID:   roomID,
		Start:    now,
		Mode:     mode,
		FanSpeed: speed,
	}
}

// Accrue 向当前打开的详单累加费用增量
func (l *Ledger) Accrue(roomID string, inc Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, exists := l.open[roomID]; exists {
		s.Fee += inc
	}
}

// CloseSession 关闭当前详单。无打开详单时为空操作(同一节拍内可能被
// 关机与调度两路同时触发)。零时长零费用的详单直接丢弃。
func (l *Ledger) CloseSession(roomID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, exists := l.open[roomID]
	if !exists {
		return
	}
	delete(l.open, roomID)

	s.End = now
	if s.Fee == 0 && !s.End.After(s.Start) {
		return
	}
	l.closed[roomID] = append(l.closed[roomID], *s)

	if l.sessions != nil {
		rec := &db.ACSessionRecord{
			RoomID:      s.RoomID,
			StartTime:   s.Start,
			EndTime:     s.End,
			Mode:        string(s.Mode),
			FanSpeed:    string(s.FanSpeed),
			DurationSec: int64(s.End.Sub(s.Start) / time.Second),
			Fee:         int64(s.Fee),
		}
		if err := l.sessions.CreateSession(rec); err != nil {
			logger.Error("持久化详单失败 - 房间 %s: %v", roomID, err)
		}
	}
}

// HasOpen 是否存在打开的详单
func (l *Ledger) HasOpen(roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.open[roomID]
	return exists
}

// StaySessions 本次入住已关闭的详单副本
func (l *Ledger) StaySessions(roomID string) []Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Session, len(l.closed[roomID]))
	copy(out, l.closed[roomID])
	return out
}

// ResetStay 入住或结账后清空房间的内存详单
func (l *Ledger) ResetStay(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.closed, roomID)
	delete(l.open, roomID)
}

// ComputeBill 计算结账账单并持久化。调用方必须先关闭打开的详单。
// 天数按每 24 小时向上取整，不足一天按一天计。
func (l *Ledger) ComputeBill(roomID, guestID string, checkin, checkout time.Time, dailyRate float64) *Bill {
	days := int((checkout.Sub(checkin) + 24*time.Hour - 1) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}

	details := l.StaySessions(roomID)
	var acFee Amount
	for _, s := range details {
		acFee += s.Fee
	}
	accommodation := FromYuan(dailyRate) * Amount(days)

	bill := &Bill{
		RoomID:           roomID,
		GuestID:          guestID,
		CheckinTime:      checkin,
		CheckoutTime:     checkout,
		Days:             days,
		DailyRate:        dailyRate,
		AccommodationFee: accommodation,
		ACFee:            acFee,
		Total:            accommodation + acFee,
		Details:          details,
	}

	if l.bills != nil {
		rec := &db.BillRecord{
			RoomID:           bill.RoomID,
			GuestID:          bill.GuestID,
			CheckinTime:      bill.CheckinTime,
			CheckoutTime:     bill.CheckoutTime,
			Days:             bill.Days,
			DailyRate:        bill.DailyRate,
			AccommodationFee: int64(bill.AccommodationFee),
			ACFee:            int64(bill.ACFee),
			Total:            int64(bill.Total),
		}
		if err := l.bills.CreateBill(rec); err != nil {
			logger.Error("持久化账单失败 - 房间 %s: %v", roomID, err)
		} else if l.sessions != nil {
			if err := l.sessions.AttachBill(roomID, rec.ID, checkin); err != nil {
				logger.Error("关联详单到账单失败 - 房间 %s: %v", roomID, err)
			}
		}
	}
	return bill
}
