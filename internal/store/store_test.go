package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestLinkEventRoundTrip(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := db.InsertLinkEvent("connected", "VMU link established", base)
	require.NoError(t, err)
	_, err = db.InsertLinkEvent("disconnected", "VMU link lost", base.Add(time.Minute))
	require.NoError(t, err)
	_, err = db.InsertLinkEvent("reconnected", "VMU link restored", base.Add(2*time.Minute))
	require.NoError(t, err)

	events, err := db.ListLinkEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, "reconnected", events[0].Kind)
	assert.Equal(t, "disconnected", events[1].Kind)
	assert.Equal(t, "connected", events[2].Kind)
	assert.Equal(t, base.Add(2*time.Minute), events[0].At)
}

func TestListLinkEventsLimit(t *testing.T) {
	db := openTestDB(t)

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := db.InsertLinkEvent("connected", "x", at.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	events, err := db.ListLinkEvents(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestInsertFrameLog(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.InsertFrameLog("tx", 0x0B, 2, time.Now()))
	require.NoError(t, db.InsertFrameLog("rx", 0x08, 130, time.Now()))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM frame_log`).Scan(&n))
	assert.Equal(t, 2, n)
}
