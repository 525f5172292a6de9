package service

import (
	"context"
	"fmt"

	"hydro-events/internal/domain"
	"hydro-events/internal/repository"

	"go.uber.org/zap"
)

// TelemetryService 遥测摄入服务
// 批量样本先完成领域写入（最新值物化 + 节点活跃），再逐条发射事件；
// 广播每条都发，台账降采样由发射层的过滤器负责
type TelemetryService struct {
	telemetryRepo repository.TelemetryRepository
	nodesRepo     repository.NodesRepository
	emitter       EventEmitter
	logger        *zap.Logger
}

// NewTelemetryService 创建遥测摄入服务
func NewTelemetryService(
	telemetryRepo repository.TelemetryRepository,
	nodesRepo repository.NodesRepository,
	emitter EventEmitter,
	logger *zap.Logger,
) *TelemetryService {
	return &TelemetryService{
		telemetryRepo: telemetryRepo,
		nodesRepo:     nodesRepo,
		emitter:       emitter,
		logger:        logger,
	}
}

// IngestBatch 摄入一批遥测样本，返回成功接受的数量
// 单条样本失败不中断整批处理
func (s *TelemetryService) IngestBatch(ctx context.Context, samples []domain.TelemetrySample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	accepted := 0
	for i := range samples {
		sample := &samples[i]
		if err := s.ingestOne(ctx, sample); err != nil {
			s.logger.Error("Failed to ingest telemetry sample",
				zap.String("zone_id", sample.ZoneID),
				zap.String("metric_type", sample.MetricType),
				zap.Error(err),
			)
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return 0, fmt.Errorf("no samples accepted out of %d", len(samples))
	}
	return accepted, nil
}

// ingestOne 摄入单条样本
func (s *TelemetryService) ingestOne(ctx context.Context, sample *domain.TelemetrySample) error {
	if sample.ZoneID == "" || sample.MetricType == "" {
		return fmt.Errorf("zone_id and metric_type are required")
	}

	// 1. 领域写入（最新值物化）——必须先提交再发射
	if err := s.telemetryRepo.UpsertLatest(ctx, sample); err != nil {
		return err
	}

	// 2. 发射 telemetry_updated（发射失败不回滚领域写入）
	payload := domain.TelemetryPayload{
		NodeID:     sample.NodeID,
		MetricType: sample.MetricType,
		Value:      sample.Value,
		Unit:       sample.Unit,
		MeasuredAt: sample.MeasuredAt,
	}
	if _, err := s.emitter.Emit(ctx, sample.ZoneID, domain.EventKindTelemetryUpdated, "zone", sample.ZoneID, payload); err != nil {
		s.logger.Warn("Failed to broadcast telemetry sample",
			zap.String("zone_id", sample.ZoneID),
			zap.String("metric_type", sample.MetricType),
			zap.Error(err),
		)
	}

	// 3. 节点活跃状态（在线跳变时发射 node_status）
	if sample.NodeID != "" {
		changed, err := s.nodesRepo.TouchSeen(ctx, sample.ZoneID, sample.NodeID, domain.NodeStatusOnline)
		if err != nil {
			s.logger.Warn("Failed to touch node",
				zap.String("node_id", sample.NodeID),
				zap.Error(err),
			)
		} else if changed {
			nodePayload := domain.NodeStatusPayload{NodeID: sample.NodeID, Status: domain.NodeStatusOnline}
			if _, err := s.emitter.Emit(ctx, sample.ZoneID, domain.EventKindNodeStatus, "node", sample.NodeID, nodePayload); err != nil {
				s.logger.Warn("Failed to broadcast node status",
					zap.String("node_id", sample.NodeID),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}
