package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 捕获退避延迟而不真实等待
func captureRetryDelays(t *testing.T) *[]time.Duration {
	t.Helper()
	delays := &[]time.Duration{}
	orig := retrySleep
	retrySleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	t.Cleanup(func() { retrySleep = orig })
	return delays
}

func serializationFailure() error {
	return &pq.Error{Code: "40001", Message: "could not serialize access"}
}

func TestWithSerializableRetry_SucceedsAfterConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	delays := captureRetryDelays(t)

	// 前两次事务遇到串行化冲突，第三次成功
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	result, err := WithSerializableRetry(context.Background(), db, zap.NewNop(), RetryOptions{}, func(tx *sql.Tx) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", serializationFailure()
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)

	// 恰好 2 次重试，延迟 50ms、100ms
	require.Len(t, *delays, 2)
	assert.Equal(t, 50*time.Millisecond, (*delays)[0])
	assert.Equal(t, 100*time.Millisecond, (*delays)[1])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSerializableRetry_ExhaustsRetries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	delays := captureRetryDelays(t)

	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	attempts := 0
	_, err = WithSerializableRetry(context.Background(), db, zap.NewNop(), RetryOptions{MaxRetries: 3}, func(tx *sql.Tx) (int, error) {
		attempts++
		return 0, serializationFailure()
	})

	require.Error(t, err)
	assert.True(t, IsSerializationConflict(err))
	assert.Equal(t, 4, attempts) // 首次 + 3 次重试
	assert.Len(t, *delays, 3)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSerializableRetry_NonConflictNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	delays := captureRetryDelays(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("constraint violation")
	attempts := 0
	_, err = WithSerializableRetry(context.Background(), db, zap.NewNop(), RetryOptions{}, func(tx *sql.Tx) (int, error) {
		attempts++
		return 0, boom
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithAdvisoryLock_Acquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	ran := false
	result, err := WithAdvisoryLock(context.Background(), tx, "sweep:zone-1", func(tx *sql.Tx) (int, error) {
		ran = true
		return 7, nil
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 7, *result)
	assert.True(t, ran)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithAdvisoryLock_AlreadyHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	ran := false
	result, err := WithAdvisoryLock(context.Background(), tx, "sweep:zone-1", func(tx *sql.Tx) (int, error) {
		ran = true
		return 7, nil
	})

	// 锁被持有：返回 nil，不报错，fn 不执行
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.False(t, ran)

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithAdvisoryLock_SameKeyOnlyOneRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 两个独立事务争用同一把锁：第一个拿到，第二个拿不到
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectCommit()
	mock.ExpectRollback()

	ctx := context.Background()

	tx1, err := db.Begin()
	require.NoError(t, err)
	tx2, err := db.Begin()
	require.NoError(t, err)

	runs := 0
	r1, err := WithAdvisoryLock(ctx, tx1, "dedup-key", func(tx *sql.Tx) (bool, error) {
		runs++
		return true, nil
	})
	require.NoError(t, err)
	r2, err := WithAdvisoryLock(ctx, tx2, "dedup-key", func(tx *sql.Tx) (bool, error) {
		runs++
		return true, nil
	})
	require.NoError(t, err)

	assert.NotNil(t, r1)
	assert.Nil(t, r2)
	assert.Equal(t, 1, runs)

	require.NoError(t, tx1.Commit())
	require.NoError(t, tx2.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithAdvisoryLock_PanicsOutsideTransaction(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = WithAdvisoryLock(context.Background(), nil, "key", func(tx *sql.Tx) (int, error) {
			return 0, nil
		})
	})
}

func TestHashAdvisoryKey_Deterministic(t *testing.T) {
	assert.Equal(t, hashAdvisoryKey("zone-1"), hashAdvisoryKey("zone-1"))
	assert.NotEqual(t, hashAdvisoryKey("zone-1"), hashAdvisoryKey("zone-2"))
}
