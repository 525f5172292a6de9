package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hydro-events/internal/domain"

	"go.uber.org/zap"
)

// TelemetryRepository 遥测物化视图仓库接口
// 只维护每 (zone, metric, node) 的最新值；历史降采样入台账由发射层负责
type TelemetryRepository interface {
	// UpsertLatest 写入/覆盖最新遥测值
	UpsertLatest(ctx context.Context, sample *domain.TelemetrySample) error

	// ListLatest 拉取指定 zone 的全部最新遥测值（快照读取用）
	ListLatest(ctx context.Context, zoneID string) ([]*domain.TelemetryLatest, error)
}

// PostgresTelemetryRepository 遥测物化视图仓库
type PostgresTelemetryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresTelemetryRepository 创建遥测物化视图仓库
func NewPostgresTelemetryRepository(db *sql.DB, logger *zap.Logger) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{db: db, logger: logger}
}

var _ TelemetryRepository = (*PostgresTelemetryRepository)(nil)

// UpsertLatest 写入/覆盖最新遥测值
func (r *PostgresTelemetryRepository) UpsertLatest(ctx context.Context, sample *domain.TelemetrySample) error {
	if sample.ZoneID == "" {
		return fmt.Errorf("zone_id is required")
	}
	if sample.MetricType == "" {
		return fmt.Errorf("metric_type is required")
	}

	measuredAt := time.UnixMilli(sample.MeasuredAt)
	if sample.MeasuredAt == 0 {
		measuredAt = time.Now()
	}

	query := `
		INSERT INTO telemetry_latest (zone_id, node_id, metric_type, value, unit, measured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (zone_id, metric_type)
		DO UPDATE SET
			node_id = EXCLUDED.node_id,
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			measured_at = EXCLUDED.measured_at,
			updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query,
		sample.ZoneID, sample.NodeID, sample.MetricType, sample.Value, sample.Unit, measuredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert telemetry: %w", err)
	}

	return nil
}

// ListLatest 拉取指定 zone 的全部最新遥测值
func (r *PostgresTelemetryRepository) ListLatest(ctx context.Context, zoneID string) ([]*domain.TelemetryLatest, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}

	query := `
		SELECT zone_id, node_id, metric_type, value, unit, measured_at, updated_at
		FROM telemetry_latest
		WHERE zone_id = $1
		ORDER BY metric_type ASC
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest telemetry: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.TelemetryLatest, 0)
	for rows.Next() {
		var item domain.TelemetryLatest
		var nodeID, unit sql.NullString
		if err := rows.Scan(
			&item.ZoneID,
			&nodeID,
			&item.MetricType,
			&item.Value,
			&unit,
			&item.MeasuredAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		item.NodeID = nodeID.String
		item.Unit = unit.String
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate telemetry: %w", err)
	}

	return items, nil
}
