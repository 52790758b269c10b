package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable/internal/models"
	"wisefido-wearable/internal/repository"
)

// fakeLatestCache 内存缓存读取口
type fakeLatestCache struct {
	envelopes map[string]*models.TelemetryEnvelope
}

func (f *fakeLatestCache) GetLatest(ctx context.Context, deviceID string) (*models.TelemetryEnvelope, error) {
	env, ok := f.envelopes[deviceID]
	if !ok {
		return nil, assert.AnError
	}
	return env, nil
}

// fakeLatestStore 内存落库读取口
type fakeLatestStore struct {
	records map[string]*repository.DeviceRecord
	calls   int
}

func (f *fakeLatestStore) GetLatest(ctx context.Context, deviceID string) (*repository.DeviceRecord, error) {
	f.calls++
	record, ok := f.records[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return record, nil
}

func TestLatestReader_CacheHit(t *testing.T) {
	cache := &fakeLatestCache{envelopes: map[string]*models.TelemetryEnvelope{
		"wearable-001": {DeviceID: "wearable-001", Status: "SOS"},
	}}
	store := &fakeLatestStore{}
	reader := NewLatestReader(cache, store, zap.NewNop())

	env, err := reader.Latest(context.Background(), "wearable-001")

	require.NoError(t, err)
	assert.Equal(t, "SOS", env.Status)
	assert.Equal(t, 0, store.calls)
}

func TestLatestReader_CacheMissFallsBackToStore(t *testing.T) {
	cache := &fakeLatestCache{envelopes: map[string]*models.TelemetryEnvelope{}}
	store := &fakeLatestStore{records: map[string]*repository.DeviceRecord{
		"wearable-001": {
			DeviceID:     "wearable-001",
			Status:       "WARNING",
			Cause:        models.CauseStillness,
			Temperature:  26.5,
			Movement:     "STILL (8s)",
			SystemStatus: "OK",
			DeviceTime:   1700000000000,
			ReceivedAt:   time.Now(),
		},
	}}
	reader := NewLatestReader(cache, store, zap.NewNop())

	env, err := reader.Latest(context.Background(), "wearable-001")

	require.NoError(t, err)
	assert.Equal(t, "WARNING", env.Status)
	assert.Equal(t, models.CauseStillness, env.Cause)
	assert.Equal(t, int64(1700000000000), env.Timestamp)
	assert.Equal(t, 1, store.calls)
}

func TestLatestReader_NotFound(t *testing.T) {
	cache := &fakeLatestCache{envelopes: map[string]*models.TelemetryEnvelope{}}
	store := &fakeLatestStore{}
	reader := NewLatestReader(cache, store, zap.NewNop())

	_, err := reader.Latest(context.Background(), "wearable-void")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}
