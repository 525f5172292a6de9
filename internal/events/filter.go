package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RecordRule 单指标显著性规则
// 同时满足 |Δvalue| < MinDelta 且距上次落盘不足 MinInterval 时跳过台账写入
type RecordRule struct {
	MinDelta    float64
	MinInterval time.Duration
}

// DefaultRecordRule 默认规则
var DefaultRecordRule = RecordRule{
	MinDelta:    0.1,
	MinInterval: 30 * time.Second,
}

// lastRecord 上次落盘状态
type lastRecord struct {
	Value float64 `json:"value"`
	AtMS  int64   `json:"at_ms"`
}

// decide 纯判定函数：给定上次落盘状态与当前样本，返回是否落盘
// 不依赖任何外部状态，保证测试可断言精确的记录/跳过决策
func decide(last *lastRecord, value float64, at time.Time, rule RecordRule) bool {
	if last == nil {
		return true
	}
	if math.Abs(value-last.Value) >= rule.MinDelta {
		return true
	}
	if at.Sub(time.UnixMilli(last.AtMS)) >= rule.MinInterval {
		return true
	}
	return false
}

// RecordStateStore 上次落盘状态存储
type RecordStateStore interface {
	Get(ctx context.Context, key string) (*lastRecord, error)
	Set(ctx context.Context, key string, record lastRecord) error
}

// ============================================
// Redis 实现（多实例共享状态）
// ============================================

// 落盘状态键 TTL：远大于 MinInterval 即可，过期后退化为"首样本必记"
const recordStateTTL = 24 * time.Hour

// RedisRecordStateStore 基于 Redis 的落盘状态存储
type RedisRecordStateStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRecordStateStore 创建基于 Redis 的落盘状态存储
func NewRedisRecordStateStore(client *redis.Client) *RedisRecordStateStore {
	return &RedisRecordStateStore{client: client, keyPrefix: "telemetry:last-recorded:"}
}

var _ RecordStateStore = (*RedisRecordStateStore)(nil)

// Get 读取上次落盘状态
func (s *RedisRecordStateStore) Get(ctx context.Context, key string) (*lastRecord, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record state: %w", err)
	}

	var record lastRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record state: %w", err)
	}
	return &record, nil
}

// Set 写入上次落盘状态
func (s *RedisRecordStateStore) Set(ctx context.Context, key string, record lastRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record state: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, jsonData, recordStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set record state: %w", err)
	}
	return nil
}

// ============================================
// 内存实现（单实例 / 测试）
// ============================================

// MemoryRecordStateStore 进程内落盘状态存储
type MemoryRecordStateStore struct {
	mu      sync.Mutex
	records map[string]lastRecord
}

// NewMemoryRecordStateStore 创建进程内落盘状态存储
func NewMemoryRecordStateStore() *MemoryRecordStateStore {
	return &MemoryRecordStateStore{records: make(map[string]lastRecord)}
}

var _ RecordStateStore = (*MemoryRecordStateStore)(nil)

// Get 读取上次落盘状态
func (s *MemoryRecordStateStore) Get(ctx context.Context, key string) (*lastRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok {
		r := record
		return &r, nil
	}
	return nil, nil
}

// Set 写入上次落盘状态
func (s *MemoryRecordStateStore) Set(ctx context.Context, key string, record lastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	return nil
}

// ============================================
// 过滤器
// ============================================

// TelemetryFilter 遥测台账过滤器
// 只门控台账写入，从不门控广播：客户端始终收到每条实时样本，
// 只有持久化历史被降采样
type TelemetryFilter struct {
	store  RecordStateStore
	rules  map[string]RecordRule // 按 metric_type 覆盖
	logger *zap.Logger
}

// NewTelemetryFilter 创建遥测台账过滤器
func NewTelemetryFilter(store RecordStateStore, rules map[string]RecordRule, logger *zap.Logger) *TelemetryFilter {
	if rules == nil {
		rules = make(map[string]RecordRule)
	}
	return &TelemetryFilter{store: store, rules: rules, logger: logger}
}

var _ RecordFilter = (*TelemetryFilter)(nil)

// ruleFor 指标对应的规则
func (f *TelemetryFilter) ruleFor(metricType string) RecordRule {
	if rule, ok := f.rules[metricType]; ok {
		return rule
	}
	return DefaultRecordRule
}

// ShouldRecord 判定样本是否落盘
// 状态存储不可用时放行（fail-open）：多记几条样本好过丢历史
func (f *TelemetryFilter) ShouldRecord(ctx context.Context, zoneID, metricType string, value float64, at time.Time) bool {
	key := zoneID + ":" + metricType

	last, err := f.store.Get(ctx, key)
	if err != nil {
		f.logger.Warn("Failed to read telemetry record state, recording sample",
			zap.String("key", key),
			zap.Error(err),
		)
		last = nil
	}

	record := decide(last, value, at, f.ruleFor(metricType))
	if record {
		if err := f.store.Set(ctx, key, lastRecord{Value: value, AtMS: at.UnixMilli()}); err != nil {
			f.logger.Warn("Failed to update telemetry record state",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return record
}
