package service

import (
	"context"

	"hydro-events/internal/domain"
	"hydro-events/internal/repository"

	"go.uber.org/zap"
)

// AlertNotifier 报警外呼通知端（由 notifier.WebhookNotifier 满足）
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *domain.Alert, stamp domain.EventStamp) error
}

// AlertService 区域报警服务
type AlertService struct {
	alertsRepo repository.AlertsRepository
	emitter    EventEmitter
	notifier   AlertNotifier // 可为 nil（未配置 webhook）
	logger     *zap.Logger
}

// NewAlertService 创建区域报警服务
func NewAlertService(
	alertsRepo repository.AlertsRepository,
	emitter EventEmitter,
	notifier AlertNotifier,
	logger *zap.Logger,
) *AlertService {
	return &AlertService{
		alertsRepo: alertsRepo,
		emitter:    emitter,
		notifier:   notifier,
		logger:     logger,
	}
}

// RaiseAlert 创建报警并发射 alert_created
func (s *AlertService) RaiseAlert(ctx context.Context, alert *domain.Alert) error {
	if err := s.alertsRepo.CreateAlert(ctx, alert); err != nil {
		return err
	}

	stamp := s.emitAlert(ctx, domain.EventKindAlertCreated, alert)
	s.notify(ctx, alert, stamp)
	return nil
}

// UpdateAlertStatus 更新报警状态；状态未变化时不发射
func (s *AlertService) UpdateAlertStatus(ctx context.Context, id, status, message string) (*domain.Alert, error) {
	alert, changed, err := s.alertsRepo.UpdateAlertStatus(ctx, id, status, message)
	if err != nil {
		return nil, err
	}
	if !changed {
		return alert, nil
	}

	stamp := s.emitAlert(ctx, domain.EventKindAlertUpdated, alert)
	s.notify(ctx, alert, stamp)
	return alert, nil
}

// ListActive 拉取指定 zone 当前活跃报警
func (s *AlertService) ListActive(ctx context.Context, zoneID string) ([]*domain.Alert, error) {
	return s.alertsRepo.ListActive(ctx, zoneID)
}

// emitAlert 发射报警事件（失败只记录日志）
func (s *AlertService) emitAlert(ctx context.Context, kind domain.EventKind, alert *domain.Alert) domain.EventStamp {
	payload := domain.AlertPayload{
		AlertID: alert.ID,
		Type:    alert.Type,
		Level:   alert.Level,
		Status:  alert.Status,
		Message: alert.Message,
		NodeID:  alert.NodeID,
	}

	stamp, err := s.emitter.Emit(ctx, alert.ZoneID, kind, "alert", alert.ID, payload)
	if err != nil {
		s.logger.Error("Failed to emit alert event",
			zap.String("alert_id", alert.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	return stamp
}

// notify 外呼 webhook（尽力而为）
func (s *AlertService) notify(ctx context.Context, alert *domain.Alert, stamp domain.EventStamp) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAlert(ctx, alert, stamp); err != nil {
		s.logger.Warn("Failed to deliver alert webhook",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}
