package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/sqlgen"
)

func TestPostgresLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warehouse"),
		postgres.WithUsername("loader"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	w, err := Open(ctx, Settings{
		Dialect:       sqlgen.Postgres,
		DSN:           connStr,
		StagingSchema: "staging",
		RawSchema:     "raw",
		HistorySchema: "history",
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.EnsureSchemas(ctx))

	t.Run("first load creates every tier", func(t *testing.T) {
		report, err := w.Load(ctx, testTable, dataset.Dataset{
			Columns: []string{"DATE", "FILE_NAME"},
			Rows:    [][]string{{"20240115-090000", "claims-001.txt"}, {"20240115-090001", "claims-002.txt"}},
		})
		require.NoError(t, err)
		assert.True(t, report.CreatedRaw)
		assert.True(t, report.CreatedHistory)
	})

	t.Run("new column widens raw and history", func(t *testing.T) {
		report, err := w.Load(ctx, testTable, dataset.Dataset{
			Columns: []string{"DATE", "FILE_NAME", "PAYER_ID"},
			Rows:    [][]string{{"20240116-090000", "claims-003.txt", "P001"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"PAYER_ID"}, report.Delta)

		in, err := w.Inspect(ctx, testTable)
		require.NoError(t, err)
		assert.True(t, in.Consistent())
		assert.Equal(t, int64(1), in.Raw.Rows)
		assert.Equal(t, int64(3), in.History.Rows)
	})

	t.Run("history records the session user", func(t *testing.T) {
		s, err := w.Session(ctx)
		require.NoError(t, err)
		defer s.Close()

		history, err := s.ReadTable(ctx, "history", testTable)
		require.NoError(t, err)
		users, ok := history.Column(AuditUserColumn)
		require.True(t, ok)
		for _, u := range users {
			assert.Equal(t, "loader", u)
		}
	})
}
