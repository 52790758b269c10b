package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
	mqttcommon "wisefido-wearable/internal/mqtt"
)

// MQTTConsumer MQTT遥测消费者
//
// 订阅设备遥测主题，把信封转投到 Redis Stream，
// 与 HTTP 入口汇入同一条流水线。
type MQTTConsumer struct {
	config     *config.ConsoleConfig
	mqttClient *mqttcommon.Client
	ingestor   Ingestor
	logger     *zap.Logger

	// ctx 由 Start 注入；订阅回调里的转投随服务关闭一起取消
	ctx context.Context
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.ConsoleConfig,
	mqttClient *mqttcommon.Client,
	ingestor Ingestor,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		ingestor:   ingestor,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	topic := c.config.Telemetry.MQTTTopic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(c.config.Telemetry.MQTTTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 处理一条MQTT消息
//
// 主题格式: wearable/{device_id}/telemetry
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	topicDeviceID := parts[1]

	var env models.TelemetryEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	// 信封缺失 device_id 时回填主题里的标识
	if env.DeviceID == "" {
		env.DeviceID = topicDeviceID
	}
	if env.DeviceID != topicDeviceID {
		return fmt.Errorf("device_id mismatch: envelope=%s topic=%s", env.DeviceID, topicDeviceID)
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return c.ingestor.Ingest(ctx, &env)
}
