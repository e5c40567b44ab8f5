package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightswitch/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndQuery(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventGesture, "ep-1", "sse", map[string]any{"gesture": "double"}))
	require.NoError(t, l.Append(EventCommandOK, "ep-1", "sse", map[string]any{"op": "ActivateScene"}))
	require.NoError(t, l.Append(EventGesture, "ep-2", "sse", nil))

	episode, err := l.GetByEpisode("ep-1")
	require.NoError(t, err)
	require.Len(t, episode, 2)
	assert.Equal(t, EventGesture, episode[0].EventType)
	assert.Equal(t, "double", episode[0].Payload["gesture"])
	assert.Equal(t, EventCommandOK, episode[1].EventType)
	assert.Equal(t, "sse", episode[1].Source)

	gestures, err := l.GetByType(EventGesture, 10)
	require.NoError(t, err)
	assert.Len(t, gestures, 2)

	recent, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ep-2", recent[0].EpisodeID)
	assert.Nil(t, recent[0].Payload)
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base.Add(-48 * time.Hour) }
	require.NoError(t, l.Append(EventGesture, "old", "mqtt", nil))
	l.now = func() time.Time { return base }
	require.NoError(t, l.Append(EventGesture, "new", "mqtt", nil))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	recent, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].EpisodeID)
	assert.Equal(t, base, recent[0].Timestamp)
}
