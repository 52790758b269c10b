package consumer

import (
	"context"

	"go.uber.org/zap"

	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/repository"
)

// LatestStore 最新状态的落库读取口
type LatestStore interface {
	GetLatest(ctx context.Context, deviceID string) (*repository.DeviceRecord, error)
}

// CacheReader 最新状态的缓存读取口
type CacheReader interface {
	GetLatest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error)
}

// LatestReader 设备最新信封的读取器
//
// 先查 Redis 缓存，未命中或缓存过期时回源 device_latest 表。
type LatestReader struct {
	cache  CacheReader
	store  LatestStore
	logger *zap.Logger
}

// NewLatestReader 创建最新状态读取器
func NewLatestReader(cache CacheReader, store LatestStore, logger *zap.Logger) *LatestReader {
	return &LatestReader{
		cache:  cache,
		store:  store,
		logger: logger,
	}
}

// Latest 读取设备最新信封
//
// 设备不存在时返回 repository.ErrNotFound。
func (r *LatestReader) Latest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error) {
	if r.cache != nil {
		if env, err := r.cache.GetLatest(ctx, deviceID); err == nil {
			return env, nil
		}
	}

	record, err := r.store.GetLatest(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Latest state served from database",
		zap.String("device_id", deviceID),
	)
	return RecordToEnvelope(record), nil
}

// RecordToEnvelope 把落库记录还原为遥测信封
func RecordToEnvelope(record *repository.DeviceRecord) *models.TelemetryEnvelope {
	return &models.TelemetryEnvelope{
		DeviceID:     record.DeviceID,
		Status:       record.Status,
		Cause:        record.Cause,
		Temperature:  record.Temperature,
		TotalAcc:     record.TotalAcc,
		Movement:     record.Movement,
		SystemStatus: record.SystemStatus,
		Latitude:     record.Latitude,
		Longitude:    record.Longitude,
		Timestamp:    record.DeviceTime,
	}
}
