package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"hydro-events/internal/domain"
	"hydro-events/internal/sequencer"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 推送频道命名约定
const (
	zoneChannelPrefix = "zone."  // 每区域频道 zone.<id>
	commandsChannel   = "commands" // 命令全局频道
	alertsChannel     = "alerts"   // 报警全局频道
)

// ZoneChannel 区域频道名
func ZoneChannel(zoneID string) string {
	return zoneChannelPrefix + zoneID
}

// Ledger 台账写入端（由 repository.ZoneEventsRepository 满足）
type Ledger interface {
	Append(ctx context.Context, event *domain.ZoneEvent) (int64, error)
}

// RecordFilter 遥测台账过滤器（只门控台账写入，从不门控广播）
type RecordFilter interface {
	ShouldRecord(ctx context.Context, zoneID, metricType string, value float64, at time.Time) bool
}

// EmitterStats 发射器计数（被吞掉的错误通过此处暴露给监控）
type EmitterStats struct {
	Emitted         uint64 `json:"emitted"`
	PublishFailures uint64 `json:"publish_failures"`
	LedgerFailures  uint64 `json:"ledger_failures"`
	LedgerSkipped   uint64 `json:"ledger_skipped"`
}

// Emitter 事件发射器 / 广播分发器
// 发射顺序：取事件戳 → 构造信封 → Redis 发布 → 台账写入。
// 广播是主路径（低延迟、尽力而为），台账是持久化/对账兜底：
// 台账写入失败只记录日志与计数，绝不阻塞或回滚广播
type Emitter struct {
	seq         sequencer.Sequencer
	redisClient *redis.Client
	ledger      Ledger
	filter      RecordFilter
	logger      *zap.Logger

	emitted         atomic.Uint64
	publishFailures atomic.Uint64
	ledgerFailures  atomic.Uint64
	ledgerSkipped   atomic.Uint64
}

// NewEmitter 创建事件发射器
func NewEmitter(
	seq sequencer.Sequencer,
	redisClient *redis.Client,
	ledger Ledger,
	filter RecordFilter,
	logger *zap.Logger,
) *Emitter {
	return &Emitter{
		seq:         seq,
		redisClient: redisClient,
		ledger:      ledger,
		filter:      filter,
		logger:      logger,
	}
}

// Emit 发射一个领域事件
// 返回分配的事件戳；Sequencer 不可用时中止（绝不发射未盖戳事件）。
// 发布失败会返回错误，但调用方已提交的领域写入不受影响；
// 无论发布成败都会尝试台账写入
func (e *Emitter) Emit(ctx context.Context, zoneID string, kind domain.EventKind, entityType, entityID string, payload interface{}) (domain.EventStamp, error) {
	if zoneID == "" {
		return domain.EventStamp{}, fmt.Errorf("zone_id is required")
	}
	if !kind.IsValid() {
		return domain.EventStamp{}, fmt.Errorf("unknown event kind: %s", kind)
	}

	// 1. 取事件戳（失败即中止）
	stamp, err := e.seq.Next(ctx)
	if err != nil {
		return domain.EventStamp{}, fmt.Errorf("failed to stamp event: %w", err)
	}

	// 2. 构造信封
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return domain.EventStamp{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	envelope := &domain.Envelope{
		EventID:    stamp.EventID,
		ServerTS:   stamp.ServerTS,
		Kind:       kind,
		ZoneID:     zoneID,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payloadJSON,
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		return domain.EventStamp{}, fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	// 3. 发布（区域频道 + 类型对应的全局频道）
	publishErr := e.publish(ctx, zoneID, kind, message)

	// 4. 台账写入（遥测经过滤器降采样；失败吞掉并计数）
	e.record(ctx, zoneID, kind, entityType, entityID, payloadJSON, stamp)

	e.emitted.Add(1)

	if publishErr != nil {
		return stamp, fmt.Errorf("broadcast failed: %w", publishErr)
	}
	return stamp, nil
}

// publish 发布信封到所有相关频道
func (e *Emitter) publish(ctx context.Context, zoneID string, kind domain.EventKind, message []byte) error {
	channels := []string{ZoneChannel(zoneID)}
	if kind.IsCommand() {
		channels = append(channels, commandsChannel)
	}
	if kind.IsAlert() {
		channels = append(channels, alertsChannel)
	}

	var firstErr error
	for _, channel := range channels {
		if err := e.redisClient.Publish(ctx, channel, message).Err(); err != nil {
			e.publishFailures.Add(1)
			e.logger.Error("Failed to publish event",
				zap.String("channel", channel),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// record 写入台账行
func (e *Emitter) record(ctx context.Context, zoneID string, kind domain.EventKind, entityType, entityID string, payloadJSON []byte, stamp domain.EventStamp) {
	// 遥测降采样：广播每条都发，台账按显著性规则落盘
	if kind == domain.EventKindTelemetryUpdated && e.filter != nil {
		var tp domain.TelemetryPayload
		if err := json.Unmarshal(payloadJSON, &tp); err == nil {
			at := time.UnixMilli(int64(stamp.ServerTS))
			if !e.filter.ShouldRecord(ctx, zoneID, tp.MetricType, tp.Value, at) {
				e.ledgerSkipped.Add(1)
				return
			}
		}
	}

	event := &domain.ZoneEvent{
		ZoneID:     zoneID,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payloadJSON,
		EventID:    stamp.EventID,
		ServerTS:   stamp.ServerTS,
	}

	if _, err := e.ledger.Append(ctx, event); err != nil {
		// 台账写入失败不影响已发出的广播，也不回传给调用方；
		// 反复失败意味着对账兜底失效，必须可被监控发现
		e.ledgerFailures.Add(1)
		e.logger.Error("Failed to append event to ledger",
			zap.String("zone_id", zoneID),
			zap.String("kind", string(kind)),
			zap.Uint64("event_id", stamp.EventID),
			zap.Error(err),
		)
	}
}

// Stats 返回发射器计数
func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		Emitted:         e.emitted.Load(),
		PublishFailures: e.publishFailures.Load(),
		LedgerFailures:  e.ledgerFailures.Load(),
		LedgerSkipped:   e.ledgerSkipped.Load(),
	}
}
