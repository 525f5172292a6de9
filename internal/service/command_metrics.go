package service

import (
	"context"
	"fmt"
	"time"

	"hydro-events/internal/domain"

	"github.com/go-redis/redis/v8"
)

// CommandMetrics 命令时延指标记录器
// 命令进入终态时记录 (命令类型, 终态) 维度的时延
type CommandMetrics interface {
	RecordLatency(ctx context.Context, commandType string, status domain.CommandStatus, latency time.Duration) error
}

// RedisCommandMetrics 基于 Redis Hash 的命令时延指标
// 每个 (类型, 终态) 一个 hash：count 累计次数，total_ms 累计毫秒，
// 外部采集器定期拉取后换算均值
type RedisCommandMetrics struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCommandMetrics 创建命令时延指标记录器
func NewRedisCommandMetrics(client *redis.Client) *RedisCommandMetrics {
	return &RedisCommandMetrics{client: client, keyPrefix: "metrics:command-latency:"}
}

var _ CommandMetrics = (*RedisCommandMetrics)(nil)

// RecordLatency 记录一次命令时延
func (m *RedisCommandMetrics) RecordLatency(ctx context.Context, commandType string, status domain.CommandStatus, latency time.Duration) error {
	key := fmt.Sprintf("%s%s:%s", m.keyPrefix, commandType, status)

	pipe := m.client.Pipeline()
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HIncrBy(ctx, key, "total_ms", latency.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record command latency: %w", err)
	}
	return nil
}
