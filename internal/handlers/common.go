package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/registry"
)

func ok(c *gin.Context, extra gin.H) {
	body := gin.H{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"status": "error", "message": msg})
}

// failFrom 将领域错误映射为 HTTP 响应
func failFrom(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		fail(c, http.StatusNotFound, "Room not found")
	case errors.Is(err, registry.ErrAlreadyOccupied):
		fail(c, http.StatusConflict, "Room occupied")
	case errors.Is(err, registry.ErrNotOccupied):
		fail(c, http.StatusConflict, "Room not occupied")
	case errors.Is(err, registry.ErrInvalidTransition):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
