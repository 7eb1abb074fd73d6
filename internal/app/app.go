// internal/app/app.go
// Package app 负责组装各组件并管理生命周期
package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"backend/api"
	"backend/internal/ac"
	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/events"
	"backend/internal/handlers"
	"backend/internal/monitor"
	"backend/internal/registry"
	"backend/internal/scheduler"
	"backend/internal/simulation"
	"backend/internal/types"
	"backend/server"
)

type App struct {
	cfg *config.Config

	reg       *registry.Registry
	ledger    *billing.Ledger
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	server    *server.Server
}

func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Initialize 打开数据库、恢复房间状态并组装所有组件
func (a *App) Initialize() error {
	database, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	roomRepo := db.NewRoomRepository(database)
	sessionRepo := db.NewSessionRepository(database)
	billRepo := db.NewBillRepository(database)

	bus := events.NewEventBus()
	meter := billing.NewMeter(a.cfg.Billing)
	a.ledger = billing.NewLedger(sessionRepo, billRepo)
	if err := a.ledger.Restore(); err != nil {
		return err
	}

	a.reg = registry.New(roomRepo)
	seeds := make([]*registry.Room, 0, len(a.cfg.Rooms))
	for _, s := range a.cfg.Rooms {
		seeds = append(seeds, &registry.Room{
			ID:          s.ID,
			DailyRate:   s.DailyRate,
			Occupancy:   types.OccupancyEmpty,
			Status:      types.StatusOff,
			Mode:        types.Mode(a.cfg.AC.DefaultMode),
			FanSpeed:    types.Speed(a.cfg.AC.DefaultFanSpeed),
			TargetTemp:  a.cfg.AC.DefaultTargetTemp,
			CurrentTemp: s.InitialTemp,
			InitialTemp: s.InitialTemp,
		})
	}
	if err := a.reg.Load(seeds); err != nil {
		return err
	}

	sim := simulation.NewEngine(a.cfg.Simulation)
	a.scheduler = scheduler.New(a.cfg.Scheduler, a.reg, a.ledger, meter, sim, bus)
	a.monitor = monitor.NewMonitor(a.reg, bus, 30*time.Second, a.cfg.Scheduler.Tick())

	svc := ac.NewService(a.cfg, a.reg, a.ledger, bus)
	rh := handlers.NewRoomHandler(a.reg, svc)
	dh := handlers.NewDeskHandler(svc, billRepo, sessionRepo)
	mh := handlers.NewMonitorHandler(a.monitor)

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(a.cfg, rh, dh, mh)
	a.server = server.New(a.cfg.Server.Port, router)
	return nil
}

// Run 并行运行调度器、监控与 HTTP 服务，任一退出即整体退出
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(ctx) })
	g.Go(func() error { return a.monitor.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	return g.Wait()
}
