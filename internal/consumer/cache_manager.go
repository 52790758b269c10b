package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
)

// CacheManager 最新状态缓存管理器
//
// 把每台设备最近一次遥测信封写进 Redis（带 TTL），
// 供展示层低延迟读取，键格式 wearable:device:{device_id}:latest。
type CacheManager struct {
	config      *config.ConsoleConfig
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.ConsoleConfig, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// latestKey 构建最新状态缓存键
func (c *CacheManager) latestKey(deviceID string) string {
	return c.config.Cache.LatestKeyPrefix + deviceID + c.config.Cache.LatestSuffix
}

// UpdateLatest 写入设备最新信封
func (c *CacheManager) UpdateLatest(ctx context.Context, env *models.TelemetryEnvelope) error {
	jsonData, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ttl := time.Duration(c.config.Cache.LatestTTL) * time.Second
	if err := c.redisClient.Set(ctx, c.latestKey(env.DeviceID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update latest cache: %w", err)
	}

	return nil
}

// GetLatest 读取设备最新信封
func (c *CacheManager) GetLatest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error) {
	val, err := c.redisClient.Get(ctx, c.latestKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("latest state not found: %s", deviceID)
		}
		return nil, fmt.Errorf("failed to get latest cache: %w", err)
	}

	var env models.TelemetryEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &env, nil
}
