package sequencer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySequencer_StrictlyIncreasing(t *testing.T) {
	seq := NewMemorySequencer()
	ctx := context.Background()

	var last uint64
	var lastTS uint64
	for i := 0; i < 1000; i++ {
		stamp, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, stamp.EventID, last)
		assert.GreaterOrEqual(t, stamp.ServerTS, lastTS)
		last = stamp.EventID
		lastTS = stamp.ServerTS
	}
}

func TestMemorySequencer_ConcurrentUnique(t *testing.T) {
	seq := NewMemorySequencer()
	ctx := context.Background()

	const workers = 20
	const perWorker = 200

	var mu sync.Mutex
	ids := make([]uint64, 0, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				stamp, err := seq.Next(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, stamp.EventID)
			}
			// 每个调用方自身拿到的 event_id 按完成顺序严格递增
			for i := 1; i < len(local); i++ {
				if local[i] <= local[i-1] {
					t.Errorf("per-caller ids not increasing: %d then %d", local[i-1], local[i])
					return
				}
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 全局无重复
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		require.NotEqual(t, ids[i-1], ids[i], "duplicate event_id issued")
	}
	assert.Len(t, ids, workers*perWorker)
}

func TestMemorySequencer_ClockRollback(t *testing.T) {
	seq := NewMemorySequencer()

	base := time.Now()
	times := []time.Time{base, base.Add(-2 * time.Second), base.Add(time.Second)}
	idx := 0
	seq.now = func() time.Time {
		ts := times[idx]
		idx++
		return ts
	}

	ctx := context.Background()
	s1, err := seq.Next(ctx)
	require.NoError(t, err)
	s2, err := seq.Next(ctx)
	require.NoError(t, err)
	s3, err := seq.Next(ctx)
	require.NoError(t, err)

	// 墙钟回拨时 server_ts 不回退
	assert.GreaterOrEqual(t, s2.ServerTS, s1.ServerTS)
	assert.GreaterOrEqual(t, s3.ServerTS, s2.ServerTS)
}

func TestPostgresSequencer_Next(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seq := NewPostgresSequencer(db)

	rows := sqlmock.NewRows([]string{"nextval", "server_ts"}).AddRow(int64(42), int64(1700000000123))
	mock.ExpectQuery(`SELECT nextval`).WillReturnRows(rows)

	stamp, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), stamp.EventID)
	assert.Equal(t, uint64(1700000000123), stamp.ServerTS)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSequencer_Unavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seq := NewPostgresSequencer(db)

	mock.ExpectQuery(`SELECT nextval`).WillReturnError(errors.New("connection refused"))

	_, err = seq.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSequencerUnavailable))

	require.NoError(t, mock.ExpectationsWereMet())
}
