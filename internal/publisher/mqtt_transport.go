package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	mqttcommon "wisefido-wearable/internal/mqtt"
	"wisefido-wearable/internal/models"
)

// MQTTTransport 基于MQTT的遥测传输
//
// 主题格式: wearable/{device_id}/telemetry
type MQTTTransport struct {
	client *mqttcommon.Client
	qos    byte
}

// NewMQTTTransport 创建MQTT传输
func NewMQTTTransport(client *mqttcommon.Client, qos byte) *MQTTTransport {
	return &MQTTTransport{client: client, qos: qos}
}

// Send 投递信封
//
// MQTT broker 没有应用层拒绝语义，成功发布即视为 DELIVERED；
// 未连接或发布失败归类为 UNREACHABLE。
func (t *MQTTTransport) Send(ctx context.Context, env *models.TelemetryEnvelope) (Outcome, error) {
	if !t.client.IsConnected() {
		return OutcomeUnreachable, fmt.Errorf("mqtt broker not connected")
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	topic := fmt.Sprintf("wearable/%s/telemetry", env.DeviceID)
	if err := t.client.Publish(topic, t.qos, false, payload); err != nil {
		return OutcomeUnreachable, err
	}

	return OutcomeDelivered, nil
}

// Close 断开连接
func (t *MQTTTransport) Close() {
	t.client.Disconnect()
}
