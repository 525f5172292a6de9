package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"hydro-events/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupZoneEventsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresZoneEventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresZoneEventsRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestZoneEventsAppend_Success(t *testing.T) {
	db, mock, repo := setupZoneEventsRepo(t)
	defer db.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO zone_events`).
		WithArgs("zone-1", "command_status", "command", "cmd-9", []byte(`{"status":"SENT"}`), uint64(101), uint64(1700000000500)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), createdAt))

	event := &domain.ZoneEvent{
		ZoneID:     "zone-1",
		Kind:       domain.EventKindCommandStatus,
		EntityType: "command",
		EntityID:   "cmd-9",
		Payload:    []byte(`{"status":"SENT"}`),
		EventID:    101,
		ServerTS:   1700000000500,
	}

	id, err := repo.Append(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, int64(12), event.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZoneEventsAppend_MissingStamp(t *testing.T) {
	db, _, repo := setupZoneEventsRepo(t)
	defer db.Close()

	_, err := repo.Append(context.Background(), &domain.ZoneEvent{ZoneID: "zone-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_id is required")
}

func TestZoneEventsListSince_OrderedByEventID(t *testing.T) {
	db, mock, repo := setupZoneEventsRepo(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "zone_id", "kind", "entity_type", "entity_id", "payload", "event_id", "server_ts", "created_at",
	}).
		AddRow(int64(1), "zone-1", "telemetry_updated", "zone", "zone-1", []byte(`{}`), uint64(10), uint64(100), now).
		AddRow(int64(2), "zone-1", "command_status", "command", "cmd-1", []byte(`{}`), uint64(11), uint64(105), now).
		AddRow(int64(3), "zone-1", "alert_created", "alert", "al-1", []byte(`{}`), uint64(15), uint64(110), now)

	mock.ExpectQuery(`SELECT (.+) FROM zone_events`).
		WithArgs("zone-1", uint64(0), 500).
		WillReturnRows(rows)

	events, err := repo.ListSince(context.Background(), "zone-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// event_id 严格递增
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].EventID, events[i-1].EventID)
	}
	assert.Equal(t, domain.EventKindCommandStatus, events[1].Kind)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZoneEventsListSince_Empty(t *testing.T) {
	db, mock, repo := setupZoneEventsRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM zone_events`).
		WithArgs("zone-2", uint64(99), 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "zone_id", "kind", "entity_type", "entity_id", "payload", "event_id", "server_ts", "created_at",
		}))

	events, err := repo.ListSince(context.Background(), "zone-2", 99, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestZoneEventsPurgeBefore(t *testing.T) {
	db, mock, repo := setupZoneEventsRepo(t)
	defer db.Close()

	before := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM zone_events`).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := repo.PurgeBefore(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
