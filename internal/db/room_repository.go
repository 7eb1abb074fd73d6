package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetAllRooms 获取所有房间信息
func (r *RoomRepository) GetAllRooms() ([]RoomInfo, error) {
	var rooms []RoomInfo
	if err := r.db.Order("room_id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("获取所有房间失败: %v", err)
	}
	return rooms, nil
}

// Save 写回房间完整状态
func (r *RoomRepository) Save(room *RoomInfo) error {
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error
}

// SaveAll 批量写回，调度节拍结束时调用
func (r *RoomRepository) SaveAll(rooms []*RoomInfo) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, room := range rooms {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
