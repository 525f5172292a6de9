package sequencer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"hydro-events/internal/domain"
)

// ErrSequencerUnavailable 计数器存储不可达时返回
// 调用方必须中止发射，绝不允许发出未盖戳的事件
var ErrSequencerUnavailable = errors.New("sequencer unavailable")

// Sequencer 事件戳发生器
// Next 并发安全：任意两次调用返回的 event_id 全局唯一且严格递增，
// server_ts 随 event_id 顺序非递减
type Sequencer interface {
	Next(ctx context.Context) (domain.EventStamp, error)
}

// ============================================
// PostgreSQL 实现（多实例部署时唯一正确的选择）
// ============================================

// PostgresSequencer 基于数据库序列的事件戳发生器
// event_id 与 server_ts 在同一条查询中取得，序列保证跨实例唯一且递增；
// 单靠单调时钟不可行：墙钟受校时影响且并发调用下不唯一
type PostgresSequencer struct {
	db *sql.DB
}

// NewPostgresSequencer 创建基于数据库序列的事件戳发生器
func NewPostgresSequencer(db *sql.DB) *PostgresSequencer {
	return &PostgresSequencer{db: db}
}

var _ Sequencer = (*PostgresSequencer)(nil)

// Next 获取下一个事件戳
func (s *PostgresSequencer) Next(ctx context.Context) (domain.EventStamp, error) {
	query := `SELECT nextval('event_seq'), (extract(epoch FROM clock_timestamp()) * 1000)::bigint`

	var stamp domain.EventStamp
	err := s.db.QueryRowContext(ctx, query).Scan(&stamp.EventID, &stamp.ServerTS)
	if err != nil {
		return domain.EventStamp{}, fmt.Errorf("%w: %v", ErrSequencerUnavailable, err)
	}

	return stamp, nil
}

// ============================================
// 内存实现（单实例部署 / 开发 / 测试）
// ============================================

// MemorySequencer 进程内事件戳发生器
// 仅当同一区域空间只有一个发射实例时可用；
// server_ts 被钳制为非递减，避免墙钟回拨破坏不变量
type MemorySequencer struct {
	mu     sync.Mutex
	lastID uint64
	lastTS uint64
	now    func() time.Time
}

// NewMemorySequencer 创建进程内事件戳发生器
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{now: time.Now}
}

var _ Sequencer = (*MemorySequencer)(nil)

// Next 获取下一个事件戳
func (s *MemorySequencer) Next(ctx context.Context) (domain.EventStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++

	ts := uint64(s.now().UnixMilli())
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts

	return domain.EventStamp{EventID: s.lastID, ServerTS: ts}, nil
}
