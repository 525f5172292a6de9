package events

import (
	"testing"

	"hydro-events/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(eventID, serverTS uint64) *domain.Envelope {
	return &domain.Envelope{EventID: eventID, ServerTS: serverTS, ZoneID: "zone-1"}
}

func TestReconcile_DiscardsStaleAppliesRestInOrder(t *testing.T) {
	// 快照 ts=100；缓冲了 ts=90、ts=105、ts=110 的推送
	buffered := []*domain.Envelope{
		env(3, 110),
		env(1, 90),
		env(2, 105),
	}

	apply := Reconcile(100, buffered)

	require.Len(t, apply, 2)
	assert.Equal(t, uint64(2), apply[0].EventID) // ts=105
	assert.Equal(t, uint64(3), apply[1].EventID) // ts=110
}

func TestReconcile_EqualTimestampKept(t *testing.T) {
	// server_ts 等于快照时间戳的事件保留（客户端幂等应用，宁可重放不可丢失）
	apply := Reconcile(100, []*domain.Envelope{env(1, 100)})
	require.Len(t, apply, 1)
	assert.Equal(t, uint64(1), apply[0].EventID)
}

func TestReconcile_Empty(t *testing.T) {
	assert.Empty(t, Reconcile(100, nil))
	assert.Empty(t, Reconcile(100, []*domain.Envelope{env(1, 50), nil}))
}

func TestReconcile_SortsByEventID(t *testing.T) {
	buffered := []*domain.Envelope{
		env(30, 300),
		env(10, 300),
		env(20, 300),
	}

	apply := Reconcile(100, buffered)

	require.Len(t, apply, 3)
	assert.Equal(t, uint64(10), apply[0].EventID)
	assert.Equal(t, uint64(20), apply[1].EventID)
	assert.Equal(t, uint64(30), apply[2].EventID)
}
