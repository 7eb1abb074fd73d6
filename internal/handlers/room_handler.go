package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/ac"
	"backend/internal/registry"
	"backend/internal/types"
)

// RoomHandler 房间状态查询与空调控制接口
type RoomHandler struct {
	reg *registry.Registry
	svc *ac.Service
}

func NewRoomHandler(reg *registry.Registry, svc *ac.Service) *RoomHandler {
	return &RoomHandler{reg: reg, svc: svc}
}

func roomView(r registry.Room) gin.H {
	return gin.H{
		"room_id":          r.ID,
		"current_temp":     r.CurrentTemp,
		"target_temp":      r.TargetTemp,
		"fan_speed":        string(r.FanSpeed),
		"mode":             string(r.Mode),
		"fee":              r.AccumulatedFee,
		"status":           string(r.Status),
		"is_on":            r.IsOn,
		"occupancy_status": string(r.Occupancy),
	}
}

// GetRoom GET /api/room/:id/ 单个房间状态(面板轮询)
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.reg.Get(c.Param("id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, roomView(room))
}

// ListRooms GET /api/rooms/ 所有已入住房间状态(前台轮询)
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms := h.reg.Snapshot()
	views := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		if r.Occupancy != types.OccupancyOccupied {
			continue
		}
		views = append(views, roomView(r))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": views})
}

// Control POST /api/control/:id/ 空调控制(部分字段更新)
func (h *RoomHandler) Control(c *gin.Context) {
	var patch ac.ControlPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.Apply(c.Param("id"), patch); err != nil {
		failFrom(c, err)
		return
	}
	ok(c, nil)
}
