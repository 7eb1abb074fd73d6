package db

import (
	"gorm.io/gorm"
)

type BillRepository struct {
	db *gorm.DB
}

func NewBillRepository(db *gorm.DB) *BillRepository {
	return &BillRepository{db: db}
}

func (r *BillRepository) CreateBill(rec *BillRecord) error {
	return r.db.Create(rec).Error
}

// GetBillsByRoom 获取指定房间的历史账单，最近的在前
func (r *BillRepository) GetBillsByRoom(roomID string) ([]BillRecord, error) {
	var bills []BillRecord
	err := r.db.Where("room_id = ?", roomID).
		Order("checkout_time DESC").
		Find(&bills).Error
	return bills, err
}
