package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// 串行化冲突重试默认参数
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 50 * time.Millisecond
)

// RetryOptions 串行化重试参数
type RetryOptions struct {
	MaxRetries int           // 最大重试次数（不含首次执行），0 表示使用默认值
	BaseDelay  time.Duration // 首次重试延迟，按 2^(n-1) 指数退避，0 表示使用默认值
}

// retrySleep 可注入的退避等待（测试中替换以避免真实等待）
var retrySleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsSerializationConflict 判断错误是否为串行化/死锁冲突
// 依据 PostgreSQL 原生 SQLSTATE（40001 serialization_failure / 40P01 deadlock_detected），
// 不做错误消息字符串匹配
func IsSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// WithSerializableRetry 在 SERIALIZABLE 事务中执行 fn，冲突时指数退避重试
// 仅对串行化/死锁冲突重试；其它错误立即回滚并原样返回。
// 重试耗尽后返回最后一次冲突错误。
// 注意：退避期间阻塞当前 goroutine，需要非阻塞行为的调用方应放入独立 worker
func WithSerializableRetry[T any](ctx context.Context, db *sql.DB, logger *zap.Logger, opts RetryOptions, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// 延迟 = baseDelay * 2^(attempt-1)
			delay := baseDelay << (attempt - 1)
			logger.Warn("Serialization conflict, retrying transaction",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := retrySleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := runSerializable(ctx, db, fn)
		if err == nil {
			return result, nil
		}
		if !IsSerializationConflict(err) {
			// 非冲突错误不重试
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("serialization conflict not resolved after %d retries: %w", maxRetries, lastErr)
}

// runSerializable 单次 SERIALIZABLE 事务执行
func runSerializable[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, err
	}

	return result, nil
}

// hashAdvisoryKey 将字符串锁名哈希为 advisory lock 的整型键
func hashAdvisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// WithAdvisoryLock 在当前事务内尝试获取非阻塞命名锁
// 锁已被他人持有时返回 (nil, nil) —— 这是并发幂等触发去重的预期结果，不是错误。
// 锁随事务提交/回滚自动释放，没有显式解锁调用，崩溃不会泄漏锁。
// 必须在活动事务内调用；tx 为 nil 属编程错误，直接 panic
func WithAdvisoryLock[T any](ctx context.Context, tx *sql.Tx, key string, fn func(tx *sql.Tx) (T, error)) (*T, error) {
	if tx == nil {
		panic("repository: WithAdvisoryLock called outside of a transaction")
	}

	var acquired bool
	err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, hashAdvisoryKey(key)).Scan(&acquired)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
	}
	if !acquired {
		return nil, nil
	}

	result, err := fn(tx)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
