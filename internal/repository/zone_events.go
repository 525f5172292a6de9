package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hydro-events/internal/domain"

	"go.uber.org/zap"
)

// 默认增量拉取窗口
const defaultListSinceLimit = 500

// ZoneEventsRepository 区域事件台账仓库接口
// 台账 append-only：同一 zone 内后插入的行 id 更大且 event_id 更大
// （event_id 在发射时先于插入分配，本仓库从不重排）
type ZoneEventsRepository interface {
	// Append 追加一条台账行，返回存储分配的行 id
	Append(ctx context.Context, event *domain.ZoneEvent) (int64, error)

	// ListSince 拉取指定 zone 中 event_id 大于 afterEventID 的行（按 event_id 升序）
	// 客户端断线重连后的增量对账原语
	ListSince(ctx context.Context, zoneID string, afterEventID uint64, limit int) ([]*domain.ZoneEvent, error)

	// PurgeBefore 按保留策略删除早于指定时间的行，返回删除数量
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// PostgresZoneEventsRepository 区域事件台账仓库
type PostgresZoneEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresZoneEventsRepository 创建区域事件台账仓库
func NewPostgresZoneEventsRepository(db *sql.DB, logger *zap.Logger) *PostgresZoneEventsRepository {
	return &PostgresZoneEventsRepository{db: db, logger: logger}
}

var _ ZoneEventsRepository = (*PostgresZoneEventsRepository)(nil)

// Append 追加一条台账行
func (r *PostgresZoneEventsRepository) Append(ctx context.Context, event *domain.ZoneEvent) (int64, error) {
	if event.ZoneID == "" {
		return 0, fmt.Errorf("zone_id is required")
	}
	if event.EventID == 0 {
		return 0, fmt.Errorf("event_id is required")
	}

	query := `
		INSERT INTO zone_events (zone_id, kind, entity_type, entity_id, payload, event_id, server_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.QueryRowContext(ctx, query,
		event.ZoneID,
		string(event.Kind),
		event.EntityType,
		event.EntityID,
		payload,
		event.EventID,
		event.ServerTS,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to append zone event: %w", err)
	}

	return event.ID, nil
}

// ListSince 拉取增量事件
func (r *PostgresZoneEventsRepository) ListSince(ctx context.Context, zoneID string, afterEventID uint64, limit int) ([]*domain.ZoneEvent, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}
	if limit <= 0 {
		limit = defaultListSinceLimit
	}

	query := `
		SELECT id, zone_id, kind, entity_type, entity_id, payload, event_id, server_ts, created_at
		FROM zone_events
		WHERE zone_id = $1
		  AND event_id > $2
		ORDER BY event_id ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID, afterEventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list zone events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.ZoneEvent, 0)
	for rows.Next() {
		var ev domain.ZoneEvent
		var kind string
		if err := rows.Scan(
			&ev.ID,
			&ev.ZoneID,
			&kind,
			&ev.EntityType,
			&ev.EntityID,
			&ev.Payload,
			&ev.EventID,
			&ev.ServerTS,
			&ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan zone event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zone events: %w", err)
	}

	return events, nil
}

// PurgeBefore 按保留策略删除旧行
func (r *PostgresZoneEventsRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM zone_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge zone events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("Purged zone events by retention policy",
			zap.Int64("deleted", n),
			zap.Time("before", before),
		)
	}
	return n, nil
}
