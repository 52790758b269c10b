package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/consumer"
	"wisefido-wearable/internal/database"
	"wisefido-wearable/internal/httpapi"
	mqttcommon "wisefido-wearable/internal/mqtt"
	rediscommon "wisefido-wearable/internal/redis"
	"wisefido-wearable/internal/repository"
	"wisefido-wearable/internal/tracker"
)

// ConsoleService 控制台服务
//
// 聚合遥测入口（HTTP + MQTT）、Stream消费流水线、
// 在线状态扫描和查询API。
type ConsoleService struct {
	config      *config.ConsoleConfig
	logger      *zap.Logger
	db          *sql.DB
	redisClient *rediscommon.Client
	mqttClient  *mqttcommon.Client

	tracker        *tracker.Tracker
	telemetryRepo  *repository.TelemetryRepository
	streamConsumer *consumer.StreamConsumer
	mqttConsumer   *consumer.MQTTConsumer
	httpServer     *http.Server
}

// NewConsoleService 创建控制台服务
func NewConsoleService(cfg *config.ConsoleConfig, logger *zap.Logger) (*ConsoleService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	telemetryRepo := repository.NewTelemetryRepository(db, logger)
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	trk := tracker.New(
		cfg.Telemetry.LivenessTimeout,
		cfg.Telemetry.WindowCapacity,
		cfg.Telemetry.AlertLogCapacity,
		logger,
	)

	ingestor := consumer.NewStreamIngestor(redisClient, cfg.Stream.Name, logger)
	streamConsumer := consumer.NewStreamConsumer(cfg, redisClient, trk, telemetryRepo, cacheManager, logger)

	// MQTT 入口可选：未配置 broker 时只保留 HTTP 入口
	var mqttClient *mqttcommon.Client
	var mqttConsumer *consumer.MQTTConsumer
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT ingress disabled", zap.Error(err))
		} else {
			mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttClient, ingestor, logger)
		}
	}

	latestReader := consumer.NewLatestReader(cacheManager, telemetryRepo, logger)
	handler := httpapi.NewTelemetryHandler(ingestor, latestReader, trk, logger)
	router := httpapi.NewRouter(logger)
	router.RegisterTelemetryRoutes(handler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	return &ConsoleService{
		config:         cfg,
		logger:         logger,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		tracker:        trk,
		telemetryRepo:  telemetryRepo,
		streamConsumer: streamConsumer,
		mqttConsumer:   mqttConsumer,
		httpServer:     httpServer,
	}, nil
}

// Tracker 设备跟踪器（测试与查询用）
func (s *ConsoleService) Tracker() *tracker.Tracker {
	return s.tracker
}

// Start 启动所有组件并阻塞直到上下文取消
func (s *ConsoleService) Start(ctx context.Context) error {
	s.logger.Info("Starting console service components")

	s.preloadTracker(ctx)

	errChan := make(chan error, 3)

	go func() {
		if err := s.streamConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("stream consumer: %w", err)
		}
	}()

	if s.mqttConsumer != nil {
		go func() {
			if err := s.mqttConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 在线状态扫描循环
	go s.sweepLoop(ctx)

	s.logger.Info("Console service started successfully")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// preloadTracker 重启后从 device_latest 预热跟踪器
//
// 已知设备立即可查（新遥测到达前显示为 OFFLINE），而不是 404。
// 预热失败只降级记录，不阻止启动。
func (s *ConsoleService) preloadTracker(ctx context.Context) {
	records, err := s.telemetryRepo.ListLatest(ctx)
	if err != nil {
		s.logger.Warn("Failed to preload latest states", zap.Error(err))
		return
	}

	for _, record := range records {
		env := consumer.RecordToEnvelope(record)
		if err := s.tracker.Apply(env, record.ReceivedAt); err != nil {
			s.logger.Warn("Failed to preload device state",
				zap.String("device_id", record.DeviceID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Tracker preloaded from database",
		zap.Int("devices", len(records)),
	)
}

// sweepLoop 周期性重评估所有设备的在线状态
func (s *ConsoleService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Telemetry.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tracker.Sweep(now)
		}
	}
}

// Stop 优雅停止服务
func (s *ConsoleService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping console service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Console service stopped")
	return nil
}
