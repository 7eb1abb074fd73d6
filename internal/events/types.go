package events

import "time"

// EventType 事件类型定义
type EventType int

const (
	// 调度事件
	EventServiceStarted EventType = iota
	EventServicePreempted
	EventServiceRotated
	EventServicePaused // 到达目标温度，暂停服务
	EventServiceStopped

	// 房间事件
	EventPowerOn
	EventPowerOff
	EventRoomCheckIn
	EventRoomCheckOut
)

// Event 事件结构
type Event struct {
	Type      EventType   `json:"type"`
	RoomID    string      `json:"room_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler 事件处理函数类型
type Handler func(Event)

// Subscription 事件订阅信息
type Subscription struct {
	EventType EventType
	id        int
}
