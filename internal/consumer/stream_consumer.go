package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
	rediscommon "wisefido-wearable/internal/redis"
	"wisefido-wearable/internal/tracker"
)

// Metrics 消费处理统计
type Metrics struct {
	mu sync.RWMutex

	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 处理失败的消息数

	ErrorsParse   int64 // 解析错误
	ErrorsApply   int64 // 跟踪器更新失败
	ErrorsPersist int64 // 落库失败
	ErrorsCache   int64 // 缓存更新失败

	LastProcessTime time.Time
	StartTime       time.Time
}

// Snapshot 获取指标快照（线程安全）
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed: m.MessagesProcessed,
		MessagesSucceeded: m.MessagesSucceeded,
		MessagesFailed:    m.MessagesFailed,
		ErrorsParse:       m.ErrorsParse,
		ErrorsApply:       m.ErrorsApply,
		ErrorsPersist:     m.ErrorsPersist,
		ErrorsCache:       m.ErrorsCache,
		LastProcessTime:   m.LastProcessTime,
		StartTime:         m.StartTime,
	}
}

func (m *Metrics) incrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

func (m *Metrics) incrementSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.LastProcessTime = time.Now()
}

func (m *Metrics) incrementFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
	switch errorType {
	case "parse":
		m.ErrorsParse++
	case "apply":
		m.ErrorsApply++
	case "persist":
		m.ErrorsPersist++
	case "cache":
		m.ErrorsCache++
	}
}

// TelemetryStore 遥测持久化接口（单元测试中用假实现替换 PostgreSQL）
type TelemetryStore interface {
	SaveLatest(ctx context.Context, env *models.TelemetryEnvelope, receivedAt time.Time) error
	AppendHistory(ctx context.Context, env *models.TelemetryEnvelope, receivedAt time.Time) error
}

// LatestCache 最新状态缓存接口
type LatestCache interface {
	UpdateLatest(ctx context.Context, env *models.TelemetryEnvelope) error
}

// StreamConsumer Redis Streams 遥测消费者
//
// 消费者组方式读取遥测流。同一设备的信封处理串行化
//（per-device 锁），不同设备可并发处理。
type StreamConsumer struct {
	config      *config.ConsoleConfig
	redisClient *redis.Client
	tracker     *tracker.Tracker
	store       TelemetryStore
	cache       LatestCache
	logger      *zap.Logger
	metrics     *Metrics

	deviceMu    sync.Mutex
	deviceLocks map[string]*sync.Mutex
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.ConsoleConfig,
	redisClient *redis.Client,
	trk *tracker.Tracker,
	store TelemetryStore,
	cache LatestCache,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		tracker:     trk,
		store:       store,
		cache:       cache,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
		deviceLocks: make(map[string]*sync.Mutex),
	}
}

// Metrics 处理统计
func (c *StreamConsumer) Metrics() *Metrics {
	return c.metrics
}

// Start 启动消费循环直到上下文取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Stream.Name
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Stream.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", c.config.Stream.ConsumerGroup),
		zap.String("consumer_name", c.config.Stream.ConsumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeBatch(ctx, stream); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				// 指数退避后重试
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeBatch 读取并处理一批消息
func (c *StreamConsumer) consumeBatch(ctx context.Context, stream string) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		c.config.Stream.ConsumerGroup,
		c.config.Stream.ConsumerName,
		c.config.Stream.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	// 不同设备并发处理；同一设备的消息按流内顺序在同一个
	// 协程里串行处理，保证 "latest wins" 不被调度顺序颠倒
	groups := make(map[string][]rediscommon.StreamMessage)
	var order []string
	for _, msg := range messages {
		key := groupKey(msg)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], msg)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		wg.Add(1)
		go func(msgs []rediscommon.StreamMessage) {
			defer wg.Done()
			for _, msg := range msgs {
				c.metrics.incrementProcessed()
				if err := c.ProcessMessage(ctx, msg); err != nil {
					c.logger.Error("Failed to process message",
						zap.String("stream_id", msg.ID),
						zap.Error(err),
					)
					// 继续处理其它消息，不中断
				}
			}
		}(groups[key])
	}
	wg.Wait()

	return nil
}

// groupKey 提取消息的设备标识用于分组
//
// 无法识别的消息归入空键组，由 ProcessMessage 统一记账处理。
func groupKey(msg rediscommon.StreamMessage) string {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return ""
	}
	var peek struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal([]byte(data), &peek); err != nil {
		return ""
	}
	return peek.DeviceID
}

// ProcessMessage 处理单条流消息
//
// 解析失败是终态错误：重投不可能成功，记账后直接确认，
// 避免坏消息永久滞留在消费者组的 pending 列表里。
func (c *StreamConsumer) ProcessMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		c.metrics.incrementFailed("parse")
		c.ackPoison(ctx, msg.ID)
		return fmt.Errorf("message %s has no data field", msg.ID)
	}

	var env models.TelemetryEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		c.metrics.incrementFailed("parse")
		c.ackPoison(ctx, msg.ID)
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.DeviceID == "" {
		c.metrics.incrementFailed("parse")
		c.ackPoison(ctx, msg.ID)
		return fmt.Errorf("message %s has empty device_id", msg.ID)
	}

	lock := c.lockForDevice(env.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	receivedAt := time.Now()

	if err := c.tracker.Apply(&env, receivedAt); err != nil {
		// 状态字符串无法解析同样是终态错误
		c.metrics.incrementFailed("apply")
		c.ackPoison(ctx, msg.ID)
		return fmt.Errorf("failed to apply envelope: %w", err)
	}

	// 落库失败降级：显示层（tracker/缓存）仍然更新，错误记账后继续
	if err := c.store.SaveLatest(ctx, &env, receivedAt); err != nil {
		c.metrics.incrementFailed("persist")
		c.logger.Error("Failed to save latest state",
			zap.String("device_id", env.DeviceID),
			zap.Error(err),
		)
	}
	if err := c.store.AppendHistory(ctx, &env, receivedAt); err != nil {
		c.metrics.incrementFailed("persist")
		c.logger.Error("Failed to append history",
			zap.String("device_id", env.DeviceID),
			zap.Error(err),
		)
	}

	if err := c.cache.UpdateLatest(ctx, &env); err != nil {
		c.metrics.incrementFailed("cache")
		c.logger.Error("Failed to update latest cache",
			zap.String("device_id", env.DeviceID),
			zap.Error(err),
		)
	}

	if err := rediscommon.AckMessage(ctx, c.redisClient, c.config.Stream.Name, c.config.Stream.ConsumerGroup, msg.ID); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("stream_id", msg.ID),
			zap.Error(err),
		)
	}

	c.metrics.incrementSucceeded()
	return nil
}

// ackPoison 确认不可重试的坏消息
func (c *StreamConsumer) ackPoison(ctx context.Context, messageID string) {
	if err := rediscommon.AckMessage(ctx, c.redisClient, c.config.Stream.Name, c.config.Stream.ConsumerGroup, messageID); err != nil {
		c.logger.Warn("Failed to ack poison message",
			zap.String("stream_id", messageID),
			zap.Error(err),
		)
	}
}

// lockForDevice 获取设备级别的串行化锁
func (c *StreamConsumer) lockForDevice(deviceID string) *sync.Mutex {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	lock, ok := c.deviceLocks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		c.deviceLocks[deviceID] = lock
	}
	return lock
}
