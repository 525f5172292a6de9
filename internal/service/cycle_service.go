package service

import (
	"context"
	"fmt"

	"hydro-events/internal/domain"

	"go.uber.org/zap"
)

// CycleService 种植周期事件服务
// 周期本体由上游自动化服务持有，本服务只负责把"周期已更新"
// 的事实盖戳、广播并落台账
type CycleService struct {
	emitter EventEmitter
	logger  *zap.Logger
}

// NewCycleService 创建种植周期事件服务
func NewCycleService(emitter EventEmitter, logger *zap.Logger) *CycleService {
	return &CycleService{emitter: emitter, logger: logger}
}

// NotifyCycleUpdated 发射 cycle_updated 事件
// 调用方必须在自身的周期写入持久提交之后调用
func (s *CycleService) NotifyCycleUpdated(ctx context.Context, zoneID string, payload domain.CyclePayload) (domain.EventStamp, error) {
	if payload.CycleID == "" {
		return domain.EventStamp{}, fmt.Errorf("cycle_id is required")
	}

	stamp, err := s.emitter.Emit(ctx, zoneID, domain.EventKindCycleUpdated, "cycle", payload.CycleID, payload)
	if err != nil {
		s.logger.Error("Failed to emit cycle event",
			zap.String("zone_id", zoneID),
			zap.String("cycle_id", payload.CycleID),
			zap.Error(err),
		)
		return stamp, err
	}
	return stamp, nil
}
