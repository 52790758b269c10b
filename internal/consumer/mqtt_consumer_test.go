package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable/internal/config"
	"wisefido-wearable/internal/models"
)

// ctxCapturingIngestor 记录收到的上下文和信封
type ctxCapturingIngestor struct {
	lastCtx   context.Context
	envelopes []*models.TelemetryEnvelope
}

func (f *ctxCapturingIngestor) Ingest(ctx context.Context, env *models.TelemetryEnvelope) error {
	f.lastCtx = ctx
	f.envelopes = append(f.envelopes, env)
	return ctx.Err()
}

func newTestMQTTConsumer(ingestor Ingestor) *MQTTConsumer {
	cfg := &config.ConsoleConfig{}
	cfg.Telemetry.MQTTTopic = "wearable/+/telemetry"
	return NewMQTTConsumer(cfg, nil, ingestor, zap.NewNop())
}

func TestMQTTConsumer_HandleMessage(t *testing.T) {
	ingestor := &ctxCapturingIngestor{}
	c := newTestMQTTConsumer(ingestor)

	err := c.handleMessage("wearable/wearable-001/telemetry",
		[]byte(`{"device_id":"wearable-001","status":"WARNING"}`))

	require.NoError(t, err)
	require.Len(t, ingestor.envelopes, 1)
	assert.Equal(t, "wearable-001", ingestor.envelopes[0].DeviceID)
}

// 信封缺 device_id 时回填主题里的标识
func TestMQTTConsumer_BackfillsDeviceIDFromTopic(t *testing.T) {
	ingestor := &ctxCapturingIngestor{}
	c := newTestMQTTConsumer(ingestor)

	err := c.handleMessage("wearable/wearable-007/telemetry",
		[]byte(`{"status":"NORMAL"}`))

	require.NoError(t, err)
	require.Len(t, ingestor.envelopes, 1)
	assert.Equal(t, "wearable-007", ingestor.envelopes[0].DeviceID)
}

func TestMQTTConsumer_DeviceIDMismatch(t *testing.T) {
	ingestor := &ctxCapturingIngestor{}
	c := newTestMQTTConsumer(ingestor)

	err := c.handleMessage("wearable/wearable-001/telemetry",
		[]byte(`{"device_id":"wearable-002","status":"NORMAL"}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device_id mismatch")
	assert.Empty(t, ingestor.envelopes)
}

// 订阅回调里的转投使用服务上下文，随关闭一起取消
func TestMQTTConsumer_HandlerUsesServiceContext(t *testing.T) {
	ingestor := &ctxCapturingIngestor{}
	c := newTestMQTTConsumer(ingestor)

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	cancel()

	err := c.handleMessage("wearable/wearable-001/telemetry",
		[]byte(`{"device_id":"wearable-001","status":"NORMAL"}`))

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, ingestor.lastCtx)
	assert.ErrorIs(t, ingestor.lastCtx.Err(), context.Canceled)
}
