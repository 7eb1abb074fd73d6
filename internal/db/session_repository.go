// internal/db/session_repository.go
package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession 持久化一条已关闭的详单
func (r *SessionRepository) CreateSession(rec *ACSessionRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("创建详单记录失败: %v", err)
	}
	return nil
}

// GetUnbilledSessions 尚未关联账单的详单，重启时恢复台账用
func (r *SessionRepository) GetUnbilledSessions() ([]ACSessionRecord, error) {
	var recs []ACSessionRecord
	err := r.db.Where("bill_id = 0").
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("获取未结账详单失败: %v", err)
	}
	return recs, nil
}

// GetSessionsByBill 获取关联到指定账单的详单，历史账单查询用
func (r *SessionRepository) GetSessionsByBill(billID uint) ([]ACSessionRecord, error) {
	var recs []ACSessionRecord
	err := r.db.Where("bill_id = ?", billID).
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("获取详单记录失败: %v", err)
	}
	return recs, nil
}

// AttachBill 结账时将本次入住的详单关联到账单
func (r *SessionRepository) AttachBill(roomID string, billID uint, since time.Time) error {
	return r.db.Model(&ACSessionRecord{}).
		Where("room_id = ? AND bill_id = 0 AND start_time >= ?", roomID, since).
		Update("bill_id", billID).Error
}

