package repo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	r, err := NewSQLiteRepo(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := newTestRepo(t)

	require.NoError(t, r.Record("c1", "scan", "user@example.com", "eHZodUNoe2Rwc29oMWZycA==", "scanned"))
	require.NoError(t, r.Record("c1", "entry", "user@example.com", "eHZodUNoe2Rwc29oMWZycA==", "Entry recorded successfully."))

	events, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	kinds := []string{events[0].Kind, events[1].Kind}
	assert.ElementsMatch(t, []string{"scan", "entry"}, kinds)
	for _, e := range events {
		assert.Equal(t, "c1", e.CycleID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestRecentLimit(t *testing.T) {
	r := newTestRepo(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record("c", "scan", "x", "eA==", "scanned"))
	}
	events, err := r.Recent(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestRecentEmpty(t *testing.T) {
	r := newTestRepo(t)
	events, err := r.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
