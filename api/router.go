// api/router.go
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"backend/internal/config"
	"backend/internal/handlers"
	"backend/internal/logger"
	"backend/middleware"
)

// SetupRouter 组装中间件与路由
func SetupRouter(cfg *config.Config, rh *handlers.RoomHandler, dh *handlers.DeskHandler, mh *handlers.MonitorHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// 面板页面与后端不同源
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 请求日志
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		logger.Info("[%s] %s %s %v", c.Request.Method, path, c.ClientIP(), latency)
	})

	if cfg.Server.RateLimitPerSec > 0 {
		burst := int(cfg.Server.RateLimitPerSec) * 2
		router.Use(middleware.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), burst))
	}

	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	store := cache.New(ttl, 2*ttl)

	api := router.Group("/api")
	{
		// 面板轮询
		api.GET("/room/:id/", rh.GetRoom)
		api.POST("/control/:id/", rh.Control)

		// 前台
		api.GET("/rooms/", middleware.Cache(store, ttl), rh.ListRooms)
		api.POST("/checkin/", dh.CheckIn)
		api.POST("/checkout/", dh.CheckOut)
		api.GET("/bills/:id/", dh.History)

		// 监控
		api.GET("/scheduler/", middleware.Cache(store, ttl), mh.Queues)
	}
	return router
}
