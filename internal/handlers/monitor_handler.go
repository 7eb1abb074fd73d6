package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/monitor"
)

// MonitorHandler 调度监控接口
type MonitorHandler struct {
	mon *monitor.Monitor
}

func NewMonitorHandler(mon *monitor.Monitor) *MonitorHandler {
	return &MonitorHandler{mon: mon}
}

// Queues GET /api/scheduler/ 服务通道与等待队列快照
func (h *MonitorHandler) Queues(c *gin.Context) {
	serving, waiting := h.mon.Queues()
	if serving == nil {
		serving = []monitor.ChannelView{}
	}
	if waiting == nil {
		waiting = []monitor.WaitingView{}
	}
	c.JSON(http.StatusOK, gin.H{
		"serving": serving,
		"waiting": waiting,
		"metrics": h.mon.Metrics(),
	})
}
