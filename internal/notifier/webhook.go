package notifier

import (
	"context"
	"fmt"
	"time"

	"hydro-events/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AlertWebhookMessage 报警 webhook 消息体
// 携带与推送信封一致的事件戳，接收端可与推送/台账互相追溯
type AlertWebhookMessage struct {
	EventID  uint64        `json:"event_id"`
	ServerTS uint64        `json:"server_ts"`
	Alert    *domain.Alert `json:"alert"`
}

// WebhookNotifier 报警外呼通知器
// 推送丢失由快照兜底，webhook 同样尽力而为：失败由 resty 自动重试，
// 重试耗尽后错误交由调用方记录日志
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建报警外呼通知器
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// NotifyAlert 外呼一条报警
func (n *WebhookNotifier) NotifyAlert(ctx context.Context, alert *domain.Alert, stamp domain.EventStamp) error {
	if n.url == "" {
		return nil
	}

	message := AlertWebhookMessage{
		EventID:  stamp.EventID,
		ServerTS: stamp.ServerTS,
		Alert:    alert,
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(message).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to deliver alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Delivered alert webhook",
		zap.String("alert_id", alert.ID),
		zap.Uint64("event_id", stamp.EventID),
	)
	return nil
}
