package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"hydro-events/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCommandsRepo 进程内命令仓库假实现
type fakeCommandsRepo struct {
	mu       sync.Mutex
	commands map[string]*domain.Command
	nextID   int
}

func newFakeCommandsRepo() *fakeCommandsRepo {
	return &fakeCommandsRepo{commands: make(map[string]*domain.Command)}
}

func (f *fakeCommandsRepo) CreateCommand(ctx context.Context, cmd *domain.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd.ID == "" {
		f.nextID++
		cmd.ID = fmt.Sprintf("cmd-%d", f.nextID)
	}
	if cmd.Status == "" {
		cmd.Status = domain.CommandQueued
	}
	cmd.CreatedAt = time.Now()
	cmd.UpdatedAt = cmd.CreatedAt
	copied := *cmd
	f.commands[cmd.ID] = &copied
	return nil
}

func (f *fakeCommandsRepo) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd, ok := f.commands[id]; ok {
		copied := *cmd
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCommandsRepo) UpdateStatus(ctx context.Context, id string, status domain.CommandStatus, errorMessage string) (*domain.Command, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd, ok := f.commands[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if cmd.Status == status {
		copied := *cmd
		return &copied, false, nil
	}
	cmd.Status = status
	cmd.ErrorMessage = errorMessage
	cmd.UpdatedAt = time.Now()
	copied := *cmd
	return &copied, true, nil
}

func (f *fakeCommandsRepo) ListRecent(ctx context.Context, zoneID string, limit int) ([]*domain.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Command, 0)
	for _, cmd := range f.commands {
		if cmd.ZoneID == zoneID {
			copied := *cmd
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeCommandsRepo) MarkTimeoutTx(ctx context.Context, tx *sql.Tx, olderThan time.Time, limit int) ([]*domain.Command, error) {
	return nil, nil
}

// fakeEmitter 记录发射调用的假实现
type fakeEmitter struct {
	mu     sync.Mutex
	nextID uint64
	emits  []emitCall
}

type emitCall struct {
	zoneID  string
	kind    domain.EventKind
	payload interface{}
}

func (f *fakeEmitter) Emit(ctx context.Context, zoneID string, kind domain.EventKind, entityType, entityID string, payload interface{}) (domain.EventStamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.emits = append(f.emits, emitCall{zoneID: zoneID, kind: kind, payload: payload})
	return domain.EventStamp{EventID: f.nextID, ServerTS: uint64(time.Now().UnixMilli())}, nil
}

func (f *fakeEmitter) calls() []emitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitCall, len(f.emits))
	copy(out, f.emits)
	return out
}

// fakeMetrics 记录时延指标调用的假实现
type fakeMetrics struct {
	mu      sync.Mutex
	records []metricCall
}

type metricCall struct {
	commandType string
	status      domain.CommandStatus
	latency     time.Duration
}

func (f *fakeMetrics) RecordLatency(ctx context.Context, commandType string, status domain.CommandStatus, latency time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, metricCall{commandType: commandType, status: status, latency: latency})
	return nil
}

func setupCommandService(t *testing.T) (*fakeCommandsRepo, *fakeEmitter, *fakeMetrics, *CommandService) {
	repo := newFakeCommandsRepo()
	emitter := &fakeEmitter{}
	metrics := &fakeMetrics{}
	svc := NewCommandService(repo, emitter, metrics, zap.NewNop())
	return repo, emitter, metrics, svc
}

func TestCommandLifecycle_QueuedSentTimeout(t *testing.T) {
	_, emitter, metrics, svc := setupCommandService(t)
	ctx := context.Background()

	// QUEUED（创建）→ SENT → TIMEOUT
	cmd := &domain.Command{ZoneID: "zone-1", NodeID: "node-3", Type: "set_pump"}
	require.NoError(t, svc.CreateCommand(ctx, cmd))

	_, err := svc.UpdateCommandStatus(ctx, cmd.ID, domain.CommandSent, "")
	require.NoError(t, err)

	_, err = svc.UpdateCommandStatus(ctx, cmd.ID, domain.CommandTimeout, "")
	require.NoError(t, err)

	calls := emitter.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, domain.EventKindCommandCreated, calls[0].kind)
	assert.Equal(t, domain.EventKindCommandStatus, calls[1].kind)
	assert.Equal(t, domain.EventKindCommandFailed, calls[2].kind)

	// TIMEOUT 是失败终态：failed 事件要带错误消息
	failedPayload, ok := calls[2].payload.(domain.CommandStatusPayload)
	require.True(t, ok)
	assert.Equal(t, domain.CommandTimeout, failedPayload.Status)
	assert.NotEmpty(t, failedPayload.ErrorMessage)

	// 恰好一条时延指标（终态跳变一次）
	require.Len(t, metrics.records, 1)
	assert.Equal(t, "set_pump", metrics.records[0].commandType)
	assert.Equal(t, domain.CommandTimeout, metrics.records[0].status)
}

func TestUpdateCommandStatus_NoChangeDoesNotEmit(t *testing.T) {
	_, emitter, metrics, svc := setupCommandService(t)
	ctx := context.Background()

	cmd := &domain.Command{ZoneID: "zone-1", Type: "set_light"}
	require.NoError(t, svc.CreateCommand(ctx, cmd))
	require.Len(t, emitter.calls(), 1)

	// 把状态设置为当前值：无操作
	got, err := svc.UpdateCommandStatus(ctx, cmd.ID, domain.CommandQueued, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandQueued, got.Status)

	assert.Len(t, emitter.calls(), 1) // 没有新发射
	assert.Empty(t, metrics.records)
}

func TestUpdateCommandStatus_DoneEmitsStatusAndLatency(t *testing.T) {
	_, emitter, metrics, svc := setupCommandService(t)
	ctx := context.Background()

	cmd := &domain.Command{ZoneID: "zone-1", Type: "set_fan"}
	require.NoError(t, svc.CreateCommand(ctx, cmd))

	_, err := svc.UpdateCommandStatus(ctx, cmd.ID, domain.CommandDone, "")
	require.NoError(t, err)

	calls := emitter.calls()
	require.Len(t, calls, 2)
	// DONE 是成功终态：普通状态事件而非 failed 事件
	assert.Equal(t, domain.EventKindCommandStatus, calls[1].kind)

	require.Len(t, metrics.records, 1)
	assert.Equal(t, domain.CommandDone, metrics.records[0].status)
}

func TestCreateCommand_RejectsNonQueuedInitial(t *testing.T) {
	_, _, _, svc := setupCommandService(t)

	err := svc.CreateCommand(context.Background(), &domain.Command{
		ZoneID: "zone-1",
		Type:   "set_light",
		Status: domain.CommandSent,
	})
	require.Error(t, err)
}

func TestCommandStatus_TerminalAndFailureSets(t *testing.T) {
	terminals := []domain.CommandStatus{
		domain.CommandDone, domain.CommandNoEffect, domain.CommandError,
		domain.CommandInvalid, domain.CommandBusy, domain.CommandTimeout, domain.CommandSendFailed,
	}
	for _, s := range terminals {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}
	assert.False(t, domain.CommandQueued.IsTerminal())
	assert.False(t, domain.CommandSent.IsTerminal())
	assert.False(t, domain.CommandAck.IsTerminal())

	assert.True(t, domain.CommandTimeout.IsFailure())
	assert.False(t, domain.CommandDone.IsFailure())
	assert.False(t, domain.CommandNoEffect.IsFailure())
}
