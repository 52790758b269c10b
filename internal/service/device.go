package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/device"
	mqttcommon "wisefido-wearable/internal/mqtt"
	"wisefido-wearable/internal/publisher"
	"wisefido-wearable/internal/resolver"
	"wisefido-wearable/internal/soslatch"
)

// DeviceService 设备端服务
type DeviceService struct {
	config    *config.DeviceConfig
	logger    *zap.Logger
	agent     *device.Agent
	transport publisher.Transport
}

// NewDeviceService 创建设备端服务
func NewDeviceService(cfg *config.DeviceConfig, sampler device.Sampler, logger *zap.Logger) (*DeviceService, error) {
	transport, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	pub := publisher.New(cfg.DeviceID, cfg.PublishInterval, cfg.PublishTimeout, transport, logger)
	latch := soslatch.New(cfg.Thresholds.Debounce, logger)
	res := resolver.New(cfg.Thresholds)
	agent := device.NewAgent(cfg, sampler, latch, res, pub, logger)

	return &DeviceService{
		config:    cfg,
		logger:    logger,
		agent:     agent,
		transport: transport,
	}, nil
}

// Start 运行采样循环直到上下文取消
func (s *DeviceService) Start(ctx context.Context) error {
	return s.agent.Run(ctx)
}

// Stop 停止服务
func (s *DeviceService) Stop() {
	if s.transport != nil {
		s.transport.Close()
	}
	s.logger.Info("Device service stopped")
}

// buildTransport 按配置选择遥测传输
func buildTransport(cfg *config.DeviceConfig, logger *zap.Logger) (publisher.Transport, error) {
	switch cfg.Transport {
	case "mqtt":
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create mqtt transport: %w", err)
		}
		return publisher.NewMQTTTransport(client, cfg.MQTT.QoS), nil
	case "http":
		return publisher.NewHTTPTransport(cfg.HTTP.Endpoint, cfg.PublishTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}
