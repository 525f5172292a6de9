package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hydro-events/internal/config"
	"hydro-events/internal/domain"
	"hydro-events/internal/service"

	mqttcommon "hydro-events/common/mqtt"

	"go.uber.org/zap"
)

// telemetryMessage 节点遥测上报消息体
// 主题格式 hydro/<zone_id>/telemetry，zone_id 缺省时从主题解析
type telemetryMessage struct {
	ZoneID  string                   `json:"zone_id,omitempty"`
	NodeID  string                   `json:"node_id,omitempty"`
	Samples []domain.TelemetrySample `json:"samples"`
}

// TelemetryConsumer 遥测 MQTT 消费者
type TelemetryConsumer struct {
	config       *config.Config
	mqttClient   *mqttcommon.Client
	telemetrySvc *service.TelemetryService
	logger       *zap.Logger
}

// NewTelemetryConsumer 创建遥测消费者
func NewTelemetryConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	telemetrySvc *service.TelemetryService,
	logger *zap.Logger,
) *TelemetryConsumer {
	return &TelemetryConsumer{
		config:       cfg,
		mqttClient:   mqttClient,
		telemetrySvc: telemetrySvc,
		logger:       logger,
	}
}

// Start 启动消费者
func (c *TelemetryConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.TelemetryTopic
	if topic == "" {
		return fmt.Errorf("telemetry MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", err)
	}

	c.logger.Info("Telemetry MQTT consumer started",
		zap.String("topic", topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *TelemetryConsumer) Stop(ctx context.Context) error {
	topic := c.config.MQTT.TelemetryTopic
	if topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("Telemetry MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息
func (c *TelemetryConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal telemetry message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	zoneID := msg.ZoneID
	if zoneID == "" {
		zoneID = zoneIDFromTopic(topic)
	}
	if zoneID == "" {
		return fmt.Errorf("cannot resolve zone_id from topic %q", topic)
	}

	// 样本级缺省值从消息头补齐
	for i := range msg.Samples {
		if msg.Samples[i].ZoneID == "" {
			msg.Samples[i].ZoneID = zoneID
		}
		if msg.Samples[i].NodeID == "" {
			msg.Samples[i].NodeID = msg.NodeID
		}
	}

	accepted, err := c.telemetrySvc.IngestBatch(context.Background(), msg.Samples)
	if err != nil {
		c.logger.Error("Failed to ingest telemetry batch",
			zap.String("zone_id", zoneID),
			zap.Int("samples", len(msg.Samples)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("Ingested telemetry batch",
		zap.String("zone_id", zoneID),
		zap.Int("accepted", accepted),
	)
	return nil
}

// zoneIDFromTopic 从 hydro/<zone_id>/telemetry 主题解析区域ID
func zoneIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[0] == "hydro" && parts[2] == "telemetry" {
		return parts[1]
	}
	return ""
}
