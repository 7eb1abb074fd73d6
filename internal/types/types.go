// internal/types/types.go

package types

// Mode 空调工作模式
type Mode string

const (
	ModeCool Mode = "COOL"
	ModeHeat Mode = "HEAT"
)

// Speed 风速
type Speed string

const (
	SpeedLow  Speed = "LOW"
	SpeedMid  Speed = "MID"
	SpeedHigh Speed = "HIGH"
)

// Status 房间空调状态机: OFF -> WAITING -> SERVING -> WAITING/IDLE -> ... -> OFF
type Status string

const (
	StatusOff     Status = "OFF"
	StatusIdle    Status = "IDLE"
	StatusWaiting Status = "WAITING"
	StatusServing Status = "SERVING"
)

// Occupancy 入住状态
type Occupancy string

const (
	OccupancyEmpty    Occupancy = "EMPTY"
	OccupancyOccupied Occupancy = "OCCUPIED"
)

// SpeedPriority 风速优先级映射，高风速优先
var SpeedPriority = map[Speed]int{
	SpeedLow:  1,
	SpeedMid:  2,
	SpeedHigh: 3,
}

func (m Mode) Valid() bool {
	return m == ModeCool || m == ModeHeat
}

func (s Speed) Valid() bool {
	_, ok := SpeedPriority[s]
	return ok
}

// Priority 返回风速对应的调度优先级，未知风速按中速处理
func (s Speed) Priority() int {
	if p, ok := SpeedPriority[s]; ok {
		return p
	}
	return SpeedPriority[SpeedMid]
}

// TempRange 温度设定范围
type TempRange struct {
	Min float64
	Max float64
}

func (r TempRange) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}
