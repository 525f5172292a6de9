package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelemetryFilter_DeltaAndIntervalScenario(t *testing.T) {
	// 规则：|Δvalue| < 0.1 且距上次落盘 < 30s 时跳过
	filter := NewTelemetryFilter(NewMemoryRecordStateStore(), map[string]RecordRule{
		"temperature": {MinDelta: 0.1, MinInterval: 30 * time.Second},
	}, zap.NewNop())

	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	samples := []struct {
		value  float64
		offset time.Duration
		want   bool
	}{
		{20.0, 0, true},                 // 首样本必记
		{20.05, 5 * time.Second, false}, // Δ=0.05 < 0.1 且 5s < 30s
		{20.2, 10 * time.Second, true},  // Δ=0.2（相对上次落盘的 20.0）
	}

	for i, s := range samples {
		got := filter.ShouldRecord(ctx, "zone-1", "temperature", s.value, base.Add(s.offset))
		assert.Equal(t, s.want, got, "sample %d (value=%v)", i, s.value)
	}
}

func TestTelemetryFilter_IntervalElapsedForcesRecord(t *testing.T) {
	filter := NewTelemetryFilter(NewMemoryRecordStateStore(), nil, zap.NewNop())

	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "humidity", 55.0, base))
	// 值不变但间隔已到：仍然落盘
	assert.False(t, filter.ShouldRecord(ctx, "zone-1", "humidity", 55.0, base.Add(10*time.Second)))
	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "humidity", 55.0, base.Add(31*time.Second)))
}

func TestTelemetryFilter_ZonesAndMetricsIndependent(t *testing.T) {
	filter := NewTelemetryFilter(NewMemoryRecordStateStore(), nil, zap.NewNop())

	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "temperature", 20.0, at))
	// 不同 zone / 不同指标互不影响
	assert.True(t, filter.ShouldRecord(ctx, "zone-2", "temperature", 20.0, at))
	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "humidity", 20.0, at))
}

func TestTelemetryFilter_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	filter := NewTelemetryFilter(NewRedisRecordStateStore(client), nil, zap.NewNop())

	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "ph", 6.1, base))
	assert.False(t, filter.ShouldRecord(ctx, "zone-1", "ph", 6.15, base.Add(5*time.Second)))
	assert.True(t, filter.ShouldRecord(ctx, "zone-1", "ph", 6.4, base.Add(6*time.Second)))
}

func TestTelemetryFilter_StoreUnavailableFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	filter := NewTelemetryFilter(NewRedisRecordStateStore(client), nil, zap.NewNop())
	mr.Close()

	// 状态存储不可用：放行落盘，不报错
	got := filter.ShouldRecord(context.Background(), "zone-1", "ec", 1.8, time.Now())
	assert.True(t, got)
}

func TestDecide_Pure(t *testing.T) {
	rule := RecordRule{MinDelta: 0.1, MinInterval: 30 * time.Second}
	at := time.Unix(1700000100, 0)
	last := &lastRecord{Value: 20.0, AtMS: at.Add(-5 * time.Second).UnixMilli()}

	require.True(t, decide(nil, 20.0, at, rule))
	assert.False(t, decide(last, 20.05, at, rule))
	assert.True(t, decide(last, 20.2, at, rule))
	assert.True(t, decide(&lastRecord{Value: 20.0, AtMS: at.Add(-31 * time.Second).UnixMilli()}, 20.0, at, rule))
}
