package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hydro-events/internal/domain"

	"go.uber.org/zap"
)

// NodesRepository 节点状态仓库接口
type NodesRepository interface {
	// TouchSeen 更新节点最近活跃时间并置状态，changed=true 表示在线状态发生跳变
	TouchSeen(ctx context.Context, zoneID, nodeID, status string) (bool, error)

	// ListByZone 拉取指定 zone 的全部节点
	ListByZone(ctx context.Context, zoneID string) ([]*domain.Node, error)
}

// PostgresNodesRepository 节点状态仓库
type PostgresNodesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresNodesRepository 创建节点状态仓库
func NewPostgresNodesRepository(db *sql.DB, logger *zap.Logger) *PostgresNodesRepository {
	return &PostgresNodesRepository{db: db, logger: logger}
}

var _ NodesRepository = (*PostgresNodesRepository)(nil)

// TouchSeen 更新节点最近活跃时间并置状态
// upsert 返回旧状态，调用方据 changed 决定是否发射 node_status 事件
func (r *PostgresNodesRepository) TouchSeen(ctx context.Context, zoneID, nodeID, status string) (bool, error) {
	if zoneID == "" || nodeID == "" {
		return false, fmt.Errorf("zone_id and node_id are required")
	}
	if status == "" {
		status = domain.NodeStatusOnline
	}

	// 先读旧状态再 upsert，changed 仅反映在线状态跳变
	var oldStatus sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT status FROM nodes WHERE node_id = $1`, nodeID).Scan(&oldStatus)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to read node status: %w", err)
	}

	upsert := `
		INSERT INTO nodes (node_id, zone_id, name, node_type, status, last_seen_at, updated_at)
		VALUES ($1, $2, $1, 'unknown', $3, now(), now())
		ON CONFLICT (node_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			last_seen_at = now(),
			updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, upsert, nodeID, zoneID, status); err != nil {
		return false, fmt.Errorf("failed to upsert node: %w", err)
	}

	changed := !oldStatus.Valid || oldStatus.String != status
	return changed, nil
}

// ListByZone 拉取指定 zone 的全部节点
func (r *PostgresNodesRepository) ListByZone(ctx context.Context, zoneID string) ([]*domain.Node, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}

	query := `
		SELECT node_id, zone_id, name, node_type, status, last_seen_at, updated_at
		FROM nodes
		WHERE zone_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*domain.Node, 0)
	for rows.Next() {
		var node domain.Node
		if err := rows.Scan(
			&node.ID,
			&node.ZoneID,
			&node.Name,
			&node.Type,
			&node.Status,
			&node.LastSeenAt,
			&node.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}

	return nodes, nil
}
