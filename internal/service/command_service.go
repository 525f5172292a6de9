package service

import (
	"context"
	"fmt"
	"time"

	"hydro-events/internal/domain"
	"hydro-events/internal/repository"

	"go.uber.org/zap"
)

// EventEmitter 事件发射端（由 events.Emitter 满足）
type EventEmitter interface {
	Emit(ctx context.Context, zoneID string, kind domain.EventKind, entityType, entityID string, payload interface{}) (domain.EventStamp, error)
}

// CommandService 命令生命周期服务
// 状态机规则：任意状态可被执行端上报为 SENT/ACK 或任一终态；
// 状态机本身只检测"无实际变化"（幂等），不校验边的合法性。
// 事件发射与指标记录都在状态变更持久提交之后执行，且均尽力而为
type CommandService struct {
	commandsRepo repository.CommandsRepository
	emitter      EventEmitter
	metrics      CommandMetrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewCommandService 创建命令生命周期服务
func NewCommandService(
	commandsRepo repository.CommandsRepository,
	emitter EventEmitter,
	metrics CommandMetrics,
	logger *zap.Logger,
) *CommandService {
	return &CommandService{
		commandsRepo: commandsRepo,
		emitter:      emitter,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateCommand 创建命令（初始状态 QUEUED）并发射 command_created 事件
func (s *CommandService) CreateCommand(ctx context.Context, cmd *domain.Command) error {
	if cmd.Status != "" && cmd.Status != domain.CommandQueued {
		return fmt.Errorf("new command must start in QUEUED, got %s", cmd.Status)
	}

	if err := s.commandsRepo.CreateCommand(ctx, cmd); err != nil {
		return err
	}

	// 创建已落库，此后的发射失败不回滚创建
	s.NotifyStatusChange(ctx, cmd, true)
	return nil
}

// UpdateCommandStatus 应用执行端上报的状态跳变
// new_status == current_status 时为无操作：不发射事件、不写台账行
func (s *CommandService) UpdateCommandStatus(ctx context.Context, id string, status domain.CommandStatus, errorMessage string) (*domain.Command, error) {
	cmd, changed, err := s.commandsRepo.UpdateStatus(ctx, id, status, errorMessage)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.logger.Debug("Command status unchanged, skipping emission",
			zap.String("command_id", id),
			zap.String("status", string(status)),
		)
		return cmd, nil
	}

	s.NotifyStatusChange(ctx, cmd, false)
	return cmd, nil
}

// ListRecent 拉取指定 zone 的最近命令
func (s *CommandService) ListRecent(ctx context.Context, zoneID string, limit int) ([]*domain.Command, error) {
	return s.commandsRepo.ListRecent(ctx, zoneID, limit)
}

// NotifyStatusChange 状态跳变后置处理（事件发射 + 终态时延指标）
// 必须在触发写入持久提交之后调用；任何失败只记录日志，绝不回传给
// 改变状态的调用方（状态变更本身已经提交）
func (s *CommandService) NotifyStatusChange(ctx context.Context, cmd *domain.Command, created bool) {
	kind := domain.EventKindCommandStatus
	if created {
		kind = domain.EventKindCommandCreated
	} else if cmd.Status.IsFailure() {
		kind = domain.EventKindCommandFailed
	}

	payload := domain.CommandStatusPayload{
		CommandID:   cmd.ID,
		NodeID:      cmd.NodeID,
		CommandType: cmd.Type,
		Status:      cmd.Status,
		Message:     cmd.Status.StatusMessage(),
	}
	if cmd.Status.IsFailure() {
		payload.ErrorMessage = cmd.ErrorMessage
		if payload.ErrorMessage == "" {
			payload.ErrorMessage = cmd.Status.StatusMessage()
		}
	}

	if _, err := s.emitter.Emit(ctx, cmd.ZoneID, kind, "command", cmd.ID, payload); err != nil {
		s.logger.Error("Failed to emit command event",
			zap.String("command_id", cmd.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	// 终态：记录 (类型, 终态) 维度时延
	if !created && cmd.Status.IsTerminal() && s.metrics != nil {
		latency := s.now().Sub(cmd.CreatedAt)
		if err := s.metrics.RecordLatency(ctx, cmd.Type, cmd.Status, latency); err != nil {
			s.logger.Error("Failed to record command latency",
				zap.String("command_id", cmd.ID),
				zap.String("status", string(cmd.Status)),
				zap.Error(err),
			)
		}
	}
}
