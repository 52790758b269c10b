package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"wisefido-wearable/internal/models"
)

// HTTPTransport 基于HTTP的遥测传输（POST 到控制台 /telemetry）
type HTTPTransport struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPTransport 创建HTTP传输
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPTransport{
		client:   client,
		endpoint: endpoint,
	}
}

// Send 投递信封
//
// 2xx => DELIVERED；4xx => REJECTED（远端明确拒绝，不重试）；
// 5xx、超时、连接失败 => UNREACHABLE（下个周期再试）。
func (t *HTTPTransport) Send(ctx context.Context, env *models.TelemetryEnvelope) (Outcome, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(env).
		Post(t.endpoint)
	if err != nil {
		return OutcomeUnreachable, err
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return OutcomeDelivered, nil
	case code >= 400 && code < 500:
		return OutcomeRejected, fmt.Errorf("remote rejected envelope: %s", resp.Status())
	default:
		return OutcomeUnreachable, fmt.Errorf("remote unavailable: %s", resp.Status())
	}
}

// Close 释放资源（resty 无需显式关闭）
func (t *HTTPTransport) Close() {}
