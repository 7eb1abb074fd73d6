// cmd/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"backend/internal/app"
	"backend/internal/config"
	"backend/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	debug := flag.Bool("debug", false, "输出调试日志")
	flag.Parse()

	if *debug {
		logger.SetLevel(logger.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("加载配置失败: %v", err)
		os.Exit(1)
	}

	a := app.New(cfg)
	if err := a.Initialize(); err != nil {
		logger.Error("初始化失败: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("运行异常退出: %v", err)
		os.Exit(1)
	}
	logger.Info("已退出")
}
