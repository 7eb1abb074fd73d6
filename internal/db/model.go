package db

import "time"

// 房间信息表。费用字段均为定点单位(1元=360单位)
type RoomInfo struct {
	RoomID         string `gorm:"primaryKey;type:varchar(10)"`
	DailyRate      float64
	Occupancy      string `gorm:"type:varchar(10)"`
	GuestID        string `gorm:"type:varchar(50)"`
	CheckinTime    time.Time
	IsOn           bool
	Mode           string `gorm:"type:varchar(10)"`
	FanSpeed       string `gorm:"type:varchar(10)"`
	TargetTemp     float64
	CurrentTemp    float64
	InitialTemp    float64
	Status         string `gorm:"type:varchar(10)"`
	AccumulatedFee int64
}

// 空调服务详单表，一行对应一次连续服务区间，关闭后只读
type ACSessionRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"index;type:varchar(10)"`
	BillID      uint   `gorm:"index"`
	StartTime   time.Time
	EndTime     time.Time
	Mode        string `gorm:"type:varchar(10)"`
	FanSpeed    string `gorm:"type:varchar(10)"`
	DurationSec int64
	Fee         int64
}

// 账单表，结账时生成
type BillRecord struct {
	ID               uint   `gorm:"primaryKey"`
	RoomID           string `gorm:"index;type:varchar(10)"`
	GuestID          string `gorm:"type:varchar(50)"`
	CheckinTime      time.Time
	CheckoutTime     time.Time
	Days             int
	DailyRate        float64
	AccommodationFee int64
	ACFee            int64
	Total            int64
}
