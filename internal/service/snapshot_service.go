package service

import (
	"context"
	"fmt"

	"hydro-events/internal/domain"
	"hydro-events/internal/repository"
	"hydro-events/internal/sequencer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotService 对账快照服务
// 快照的 server_ts 与事件戳同源（同一个 Sequencer），二者可比较；
// 客户端丢弃 server_ts 小于快照的缓冲推送，其余按 event_id 升序应用
type SnapshotService struct {
	seq            sequencer.Sequencer
	telemetryRepo  repository.TelemetryRepository
	alertsRepo     repository.AlertsRepository
	commandsRepo   repository.CommandsRepository
	nodesRepo      repository.NodesRepository
	zoneEventsRepo repository.ZoneEventsRepository
	logger         *zap.Logger

	recentCommands int
}

// NewSnapshotService 创建对账快照服务
func NewSnapshotService(
	seq sequencer.Sequencer,
	telemetryRepo repository.TelemetryRepository,
	alertsRepo repository.AlertsRepository,
	commandsRepo repository.CommandsRepository,
	nodesRepo repository.NodesRepository,
	zoneEventsRepo repository.ZoneEventsRepository,
	logger *zap.Logger,
) *SnapshotService {
	return &SnapshotService{
		seq:            seq,
		telemetryRepo:  telemetryRepo,
		alertsRepo:     alertsRepo,
		commandsRepo:   commandsRepo,
		nodesRepo:      nodesRepo,
		zoneEventsRepo: zoneEventsRepo,
		logger:         logger,
		recentCommands: 50,
	}
}

// Snapshot 构建区域状态快照
// 先盖戳后读库：任何 server_ts 小于快照戳的事件，其触发写入必定
// 在该事件盖戳之前已提交，因而一定反映在随后的读取里——不存在
// "更小 server_ts 仍在途"的事件。
// 空区域返回空集合而非错误，任何时刻调用都安全
func (s *SnapshotService) Snapshot(ctx context.Context, zoneID string) (*domain.ZoneSnapshot, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}

	stamp, err := s.seq.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp snapshot: %w", err)
	}

	telemetry, err := s.telemetryRepo.ListLatest(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry for snapshot: %w", err)
	}

	alerts, err := s.alertsRepo.ListActive(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts for snapshot: %w", err)
	}

	commands, err := s.commandsRepo.ListRecent(ctx, zoneID, s.recentCommands)
	if err != nil {
		return nil, fmt.Errorf("failed to read commands for snapshot: %w", err)
	}

	nodes, err := s.nodesRepo.ListByZone(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes for snapshot: %w", err)
	}

	snapshot := &domain.ZoneSnapshot{
		SnapshotID:     uuid.New().String(),
		ServerTS:       stamp.ServerTS,
		ZoneID:         zoneID,
		Telemetry:      telemetry,
		ActiveAlerts:   alerts,
		RecentCommands: commands,
		Nodes:          nodes,
	}

	s.logger.Debug("Built zone snapshot",
		zap.String("zone_id", zoneID),
		zap.String("snapshot_id", snapshot.SnapshotID),
		zap.Uint64("server_ts", snapshot.ServerTS),
	)

	return snapshot, nil
}

// ListEventsSince 台账增量读取（完整快照之外的轻量对账路径）
func (s *SnapshotService) ListEventsSince(ctx context.Context, zoneID string, afterEventID uint64, limit int) ([]*domain.ZoneEvent, error) {
	return s.zoneEventsRepo.ListSince(ctx, zoneID, afterEventID, limit)
}
