package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hub.db")

	pair, err := Init(path)
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	for _, table := range []string{"audit_events", "cast_schedules"} {
		cols, err := tableColumns(pair.Reader(), table)
		require.NoError(t, err)
		require.NotEmpty(t, cols, table)
	}

	cols, err := tableColumns(pair.Reader(), "cast_schedules")
	require.NoError(t, err)
	require.True(t, cols["last_run_at"])
	require.True(t, cols["last_status"])
}

func TestInit_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")

	pair, err := Init(path)
	require.NoError(t, err)
	_, err = pair.Writer().Exec(`INSERT INTO cast_schedules (schedule_id, name, cron, action, created_at, updated_at)
		VALUES ('sch_1', 'Morning news', '0 7 * * 1-5', 'start', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, pair.Close())

	pair, err = Init(path)
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	var count int
	require.NoError(t, pair.Reader().QueryRow("SELECT COUNT(*) FROM cast_schedules").Scan(&count))
	require.Equal(t, 1, count)
}

func TestInit_RequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}

func TestSchema_RejectsUnknownAction(t *testing.T) {
	pair, err := Init(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	_, err = pair.Writer().Exec(`INSERT INTO cast_schedules (schedule_id, name, cron, action, created_at, updated_at)
		VALUES ('sch_2', 'x', '* * * * *', 'rewind', 'now', 'now')`)
	require.Error(t, err)
}
