package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/sqlgen"
)

const testTable = "unviewed_files"

// createTestWarehouse opens a SQLite warehouse in a temp directory.
func createTestWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(context.Background(), Settings{
		Dialect:       sqlgen.SQLite,
		DSN:           filepath.Join(t.TempDir(), "main.db"),
		StagingSchema: "staging",
		RawSchema:     "raw",
		HistorySchema: "history",
		Principal:     "tester",
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

// withSession runs fn on a session that is closed before returning, so the
// single SQLite connection is free again for Load.
func withSession(t *testing.T, w *Warehouse, fn func(ctx context.Context, s *Session)) {
	t.Helper()
	ctx := context.Background()
	s, err := w.Session(ctx)
	require.NoError(t, err)
	defer s.Close()
	fn(ctx, s)
}

func readTable(t *testing.T, w *Warehouse, schema string) dataset.Dataset {
	t.Helper()
	var ds dataset.Dataset
	withSession(t, w, func(ctx context.Context, s *Session) {
		require.NoError(t, s.SetExecutionContext(ctx, schema))
		var err error
		ds, err = s.ReadTable(ctx, schema, testTable)
		require.NoError(t, err)
	})
	return ds
}

func countRows(t *testing.T, w *Warehouse, schema string) int64 {
	t.Helper()
	var n int64
	withSession(t, w, func(ctx context.Context, s *Session) {
		require.NoError(t, s.SetExecutionContext(ctx, schema))
		var err error
		n, err = s.CountRows(ctx, schema, testTable)
		require.NoError(t, err)
	})
	return n
}

// rowsOf builds n rows for columns, valued "<col><i>".
func rowsOf(columns []string, n, offset int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = c + string(rune('a'+(i+offset)%26))
		}
		rows[i] = row
	}
	return rows
}
