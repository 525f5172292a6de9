package service

import (
	"context"
	"database/sql"
	"time"

	"hydro-events/internal/domain"
	"hydro-events/internal/repository"

	"go.uber.org/zap"
)

// 清扫去重锁名（多实例并发触发时只有一个实例真正清扫）
const timeoutSweepLockKey = "commands:timeout-sweep"

// TimeoutSweeper 命令超时清扫 worker
// 周期性把超期仍未进入终态的命令批量置为 TIMEOUT。
// 批量改写在 SERIALIZABLE 事务 + advisory lock 下执行：
// 冲突由重试解决，并发实例由锁去重（拿不到锁直接跳过本轮）
type TimeoutSweeper struct {
	db           *sql.DB
	commandsRepo repository.CommandsRepository
	commands     *CommandService
	logger       *zap.Logger

	interval time.Duration // 清扫周期
	timeout  time.Duration // 命令超时阈值
	batch    int
}

// NewTimeoutSweeper 创建命令超时清扫 worker
func NewTimeoutSweeper(
	db *sql.DB,
	commandsRepo repository.CommandsRepository,
	commands *CommandService,
	interval, timeout time.Duration,
	logger *zap.Logger,
) *TimeoutSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &TimeoutSweeper{
		db:           db,
		commandsRepo: commandsRepo,
		commands:     commands,
		logger:       logger,
		interval:     interval,
		timeout:      timeout,
		batch:        100,
	}
}

// Run 启动清扫循环（阻塞直到 ctx 取消）
func (s *TimeoutSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Command timeout sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("timeout", s.timeout),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Command timeout sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Timeout sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce 执行一轮清扫
// 事务提交之后才对被改写的命令逐一发射事件（post-commit 发射，
// 绝不在事务内广播可能被回滚的变更）
func (s *TimeoutSweeper) SweepOnce(ctx context.Context) error {
	olderThan := time.Now().Add(-s.timeout)

	swept, err := repository.WithSerializableRetry(ctx, s.db, s.logger, repository.RetryOptions{},
		func(tx *sql.Tx) ([]*domain.Command, error) {
			result, err := repository.WithAdvisoryLock(ctx, tx, timeoutSweepLockKey,
				func(tx *sql.Tx) ([]*domain.Command, error) {
					return s.commandsRepo.MarkTimeoutTx(ctx, tx, olderThan, s.batch)
				})
			if err != nil {
				return nil, err
			}
			if result == nil {
				// 另一个实例正在清扫：预期的跳过，不是错误
				return nil, nil
			}
			return *result, nil
		})
	if err != nil {
		return err
	}

	if len(swept) == 0 {
		return nil
	}

	s.logger.Info("Marked timed out commands",
		zap.Int("count", len(swept)),
		zap.Time("older_than", olderThan),
	)

	for _, cmd := range swept {
		s.commands.NotifyStatusChange(ctx, cmd, false)
	}
	return nil
}
