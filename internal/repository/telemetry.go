package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// DeviceRecord 落库后的设备遥测记录
type DeviceRecord struct {
	DeviceID     string
	Status       string
	Cause        string
	Temperature  float64
	TotalAcc     float64
	Movement     string
	SystemStatus string
	Latitude     float64
	Longitude    float64
	DeviceTime   int64 // 设备本地时间戳（仅供参考，不保证单调）
	ReceivedAt   time.Time
}

// TelemetryRepository 遥测数据仓库
//
// 两张表：device_latest（每设备一行的最新状态）和
// device_history（只追加的历史读数日志）。
type TelemetryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTelemetryRepository 创建遥测数据仓库
func NewTelemetryRepository(db *sql.DB, logger *zap.Logger) *TelemetryRepository {
	return &TelemetryRepository{
		db:     db,
		logger: logger,
	}
}

// SaveLatest 更新设备最新状态（upsert）
func (r *TelemetryRepository) SaveLatest(ctx context.Context, env *models.TelemetryEnvelope, receivedAt time.Time) error {
	query := `
		INSERT INTO device_latest (
			device_id, status, cause, temperature, total_acc, movement,
			system_status, latitude, longitude, device_time, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (device_id) DO UPDATE SET
			status = EXCLUDED.status,
			cause = EXCLUDED.cause,
			temperature = EXCLUDED.temperature,
			total_acc = EXCLUDED.total_acc,
			movement = EXCLUDED.movement,
			system_status = EXCLUDED.system_status,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			device_time = EXCLUDED.device_time,
			received_at = EXCLUDED.received_at
	`

	_, err := r.db.ExecContext(ctx, query,
		env.DeviceID, env.Status, env.Cause, env.Temperature, env.TotalAcc,
		env.Movement, env.SystemStatus, env.Latitude, env.Longitude,
		env.Timestamp, receivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device_latest: %w", err)
	}

	return nil
}

// AppendHistory 追加一条历史读数
func (r *TelemetryRepository) AppendHistory(ctx context.Context, env *models.TelemetryEnvelope, receivedAt time.Time) error {
	query := `
		INSERT INTO device_history (
			device_id, status, cause, temperature, total_acc, movement,
			system_status, latitude, longitude, device_time, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		env.DeviceID, env.Status, env.Cause, env.Temperature, env.TotalAcc,
		env.Movement, env.SystemStatus, env.Latitude, env.Longitude,
		env.Timestamp, receivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert device_history: %w", err)
	}

	return nil
}

// GetLatest 查询设备最新状态
func (r *TelemetryRepository) GetLatest(ctx context.Context, deviceID string) (*DeviceRecord, error) {
	query := `
		SELECT device_id, status, cause, temperature, total_acc, movement,
		       system_status, latitude, longitude, device_time, received_at
		FROM device_latest
		WHERE device_id = $1
	`

	record := &DeviceRecord{}
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&record.DeviceID, &record.Status, &record.Cause, &record.Temperature,
		&record.TotalAcc, &record.Movement, &record.SystemStatus,
		&record.Latitude, &record.Longitude, &record.DeviceTime, &record.ReceivedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query device_latest: %w", err)
	}

	return record, nil
}

// ListLatest 查询所有设备的最新状态
func (r *TelemetryRepository) ListLatest(ctx context.Context) ([]*DeviceRecord, error) {
	query := `
		SELECT device_id, status, cause, temperature, total_acc, movement,
		       system_status, latitude, longitude, device_time, received_at
		FROM device_latest
		ORDER BY device_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query device_latest: %w", err)
	}
	defer rows.Close()

	var records []*DeviceRecord
	for rows.Next() {
		record := &DeviceRecord{}
		if err := rows.Scan(
			&record.DeviceID, &record.Status, &record.Cause, &record.Temperature,
			&record.TotalAcc, &record.Movement, &record.SystemStatus,
			&record.Latitude, &record.Longitude, &record.DeviceTime, &record.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device_latest row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device_latest rows: %w", err)
	}

	return records, nil
}
