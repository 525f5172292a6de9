package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hydro-events/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandsRepository 设备命令仓库接口
type CommandsRepository interface {
	// CreateCommand 创建命令（初始状态 QUEUED）
	CreateCommand(ctx context.Context, cmd *domain.Command) error

	// GetCommand 按 id 获取命令
	GetCommand(ctx context.Context, id string) (*domain.Command, error)

	// UpdateStatus 条件更新命令状态
	// 返回更新后的命令和 changed 标志；new_status == current_status 时不产生写入，
	// changed=false（幂等跳变检测，调用方据此决定是否发射事件）
	UpdateStatus(ctx context.Context, id string, status domain.CommandStatus, errorMessage string) (*domain.Command, bool, error)

	// ListRecent 按 zone 拉取最近命令（按 created_at 降序，有界窗口）
	ListRecent(ctx context.Context, zoneID string, limit int) ([]*domain.Command, error)

	// MarkTimeoutTx 在给定事务内把超期未完成的命令批量置为 TIMEOUT，返回被改写的命令
	// 供超时清扫 worker 在 SERIALIZABLE 事务 + advisory lock 下调用
	MarkTimeoutTx(ctx context.Context, tx *sql.Tx, olderThan time.Time, limit int) ([]*domain.Command, error)
}

const defaultRecentCommandsLimit = 50

// commandColumns 命令查询列
const commandColumns = `command_id, zone_id, node_id, command_type, status, params, error_message, created_at, updated_at`

// PostgresCommandsRepository 设备命令仓库
type PostgresCommandsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresCommandsRepository 创建设备命令仓库
func NewPostgresCommandsRepository(db *sql.DB, logger *zap.Logger) *PostgresCommandsRepository {
	return &PostgresCommandsRepository{db: db, logger: logger}
}

var _ CommandsRepository = (*PostgresCommandsRepository)(nil)

// scanCommand 从行扫描命令
func scanCommand(row interface{ Scan(dest ...interface{}) error }) (*domain.Command, error) {
	var cmd domain.Command
	var nodeID, errorMessage sql.NullString
	var params []byte
	var status string

	err := row.Scan(
		&cmd.ID,
		&cmd.ZoneID,
		&nodeID,
		&cmd.Type,
		&status,
		&params,
		&errorMessage,
		&cmd.CreatedAt,
		&cmd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Status = domain.CommandStatus(status)
	cmd.NodeID = nodeID.String
	cmd.ErrorMessage = errorMessage.String
	cmd.Params = params
	return &cmd, nil
}

// CreateCommand 创建命令
func (r *PostgresCommandsRepository) CreateCommand(ctx context.Context, cmd *domain.Command) error {
	if cmd.ZoneID == "" {
		return fmt.Errorf("zone_id is required")
	}
	if cmd.Type == "" {
		return fmt.Errorf("command type is required")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.Status == "" {
		cmd.Status = domain.CommandQueued
	}

	params := cmd.Params
	if len(params) == 0 {
		params = []byte("{}")
	}

	query := `
		INSERT INTO commands (command_id, zone_id, node_id, command_type, status, params)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		cmd.ID, cmd.ZoneID, cmd.NodeID, cmd.Type, string(cmd.Status), params,
	).Scan(&cmd.CreatedAt, &cmd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create command: %w", err)
	}

	return nil
}

// GetCommand 按 id 获取命令
func (r *PostgresCommandsRepository) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	if id == "" {
		return nil, fmt.Errorf("command id is required")
	}

	query := `SELECT ` + commandColumns + ` FROM commands WHERE command_id = $1`

	cmd, err := scanCommand(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("command not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get command: %w", err)
	}

	return cmd, nil
}

// UpdateStatus 条件更新命令状态
// WHERE status <> $2 使"设置为当前值"的写入成为无操作，避免重复发射
func (r *PostgresCommandsRepository) UpdateStatus(ctx context.Context, id string, status domain.CommandStatus, errorMessage string) (*domain.Command, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("command id is required")
	}
	if !status.IsValid() {
		return nil, false, fmt.Errorf("invalid command status: %s", status)
	}

	query := `
		UPDATE commands
		SET status = $2,
		    error_message = NULLIF($3, ''),
		    updated_at = now()
		WHERE command_id = $1
		  AND status <> $2
		RETURNING ` + commandColumns

	cmd, err := scanCommand(r.db.QueryRowContext(ctx, query, id, string(status), errorMessage))
	if err == nil {
		return cmd, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to update command status: %w", err)
	}

	// 没有命中：要么命令不存在，要么状态未变化
	current, getErr := r.GetCommand(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return current, false, nil
}

// ListRecent 按 zone 拉取最近命令
func (r *PostgresCommandsRepository) ListRecent(ctx context.Context, zoneID string, limit int) ([]*domain.Command, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("zone_id is required")
	}
	if limit <= 0 {
		limit = defaultRecentCommandsLimit
	}

	query := `SELECT ` + commandColumns + ` FROM commands WHERE zone_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	commands := make([]*domain.Command, 0)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commands: %w", err)
	}

	return commands, nil
}

// MarkTimeoutTx 把超期未完成的命令批量置为 TIMEOUT
func (r *PostgresCommandsRepository) MarkTimeoutTx(ctx context.Context, tx *sql.Tx, olderThan time.Time, limit int) ([]*domain.Command, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}
	if limit <= 0 {
		limit = defaultRecentCommandsLimit
	}

	query := `
		UPDATE commands
		SET status = 'TIMEOUT',
		    error_message = 'command timed out waiting for node',
		    updated_at = now()
		WHERE command_id IN (
			SELECT command_id FROM commands
			WHERE status IN ('QUEUED', 'SENT', 'ACK')
			  AND created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		RETURNING ` + commandColumns

	rows, err := tx.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to mark timed out commands: %w", err)
	}
	defer rows.Close()

	commands := make([]*domain.Command, 0)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timed out commands: %w", err)
	}

	return commands, nil
}
