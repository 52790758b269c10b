package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-wearable/internal/redis"

	"wisefido-wearable/internal/models"
)

// ErrStoreUnavailable 后端存储不可用（调用方必须被告知，不容许静默丢数据）
var ErrStoreUnavailable = errors.New("backing store unavailable")

// Ingestor 遥测入口：把一个信封交进处理流水线
type Ingestor interface {
	Ingest(ctx context.Context, env *models.TelemetryEnvelope) error
}

// StreamIngestor 把信封发布到 Redis Stream 的入口实现
//
// HTTP 入口和 MQTT 消费者共用，保证所有信封走同一条
// 消费者组流水线。
type StreamIngestor struct {
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

// NewStreamIngestor 创建 Stream 入口
func NewStreamIngestor(redisClient *redis.Client, stream string, logger *zap.Logger) *StreamIngestor {
	return &StreamIngestor{
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// Ingest 发布信封到遥测流
func (i *StreamIngestor) Ingest(ctx context.Context, env *models.TelemetryEnvelope) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, i.redisClient, i.stream, env); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	i.logger.Debug("Envelope ingested",
		zap.String("device_id", env.DeviceID),
		zap.String("status", env.Status),
	)
	return nil
}
