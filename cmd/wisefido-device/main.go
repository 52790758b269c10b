package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/device"
	"wisefido-wearable/internal/logger"
	"wisefido-wearable/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadDevice()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-device")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务（硬件适配层就绪前使用模拟采样器）
	deviceService, err := service.NewDeviceService(cfg, device.NewSimSampler(), log)
	if err != nil {
		log.Fatal("Failed to create device service",
			zap.Error(err),
		)
	}
	defer deviceService.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动服务
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := deviceService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 6. 等待信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		log.Fatal("Service error",
			zap.Error(err),
		)
	}

	log.Info("Device agent stopped")
}
