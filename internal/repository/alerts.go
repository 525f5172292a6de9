package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hydro-events/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertsRepository 区域报警仓库接口
type AlertsRepository interface {
	// CreateAlert 创建报警（初始状态 active）
	CreateAlert(ctx context.Context, alert *domain.Alert) error

	// UpdateAlertStatus 条件更新报警状态，changed=false 表示状态未变化
	UpdateAlertStatus(ctx context.Context, id, status, message string) (*domain.Alert, bool, error)

	// ListActive 拉取指定 zone 当前活跃报警
	ListActive(ctx context.Context, zoneID string) ([]*domain.Alert, error)
}

const alertColumns = `alert_id, zone_id, node_id, alert_type, level, status, message, created_at, updated_at`

// PostgresAlertsRepository 区域报警仓库
type PostgresAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepository 创建区域报警仓库
func NewPostgresAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{db: db, logger: logger}
}

var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

// scanAlert 从行扫描报警
func scanAlert(row interface{ Scan(dest ...interface{}) error }) (*domain.Alert, error) {
	var alert domain.Alert
	var nodeID, message sql.NullString

	err := row.Scan(
		&alert.ID,
		&alert.ZoneID,
		&nodeID,
		&alert.Type,
		&alert.Level,
		&alert.Status,
		&message,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.NodeID = nodeID.String
	alert.Message = message.String
	return &alert, nil
}

// CreateAlert 创建报警
func (r *PostgresAlertsRepository) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ZoneID == "" {
		return fmt.Errorf("zone_id is required")
	}
	if alert.Type == "" {
		return fmt.Errorf("alert type is required")
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Level == "" {
		alert.Level = "warning"
	}
	if alert.Status == "" {
		alert.Status = domain.AlertStatusActive
	}

	query := `
		INSERT INTO alerts (alert_id, zone_id, node_id, alert_type, level, status, message)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''))
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		alert.ID, alert.ZoneID, alert.NodeID, alert.Type, alert.Level, alert.Status, alert.Message,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// UpdateAlertStatus 条件更新报警状态
func (r *PostgresAlertsRepository) UpdateAlertStatus(ctx context.Context, id, status, message string) (*domain.Alert, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("alert id is required")
	}
	if status == "" {
		return nil, false, fmt.Errorf("alert status is required")
	}

	query := `
		UPDATE alerts
		SET status = $2,
		    message = COALESCE(NULLIF($3, ''), message),
		    updated_at = now()
		WHERE alert_id = $1
		  AND status <> $2
		RETURNING ` + alertColumns

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id, status, message))
	if err == nil {
		return alert, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to update alert status: %w", err)
	}

	// 未命中：区分"未变化"和"不存在"
	current, err := scanAlert(r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE alert_id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, fmt.Errorf("alert not found: %s", id)
		}
		return nil, false, fmt.Errorf("failed to get alert: %w", err)
	}
	return current, false, nil
}

// ListActive 拉取指定 zone 当前活跃报警
func (r *PostgresAlertsRepository) ListActive(ctx context.Context, zoneID string) ([]*domain.Alert, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE zone_id = $1
		  AND status IN ('active', 'acknowledged')
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}
