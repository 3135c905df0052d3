package branch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/filesync/internal/branchdef"
	"github.com/roach88/filesync/internal/clock"
	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/objstore"
	"github.com/roach88/filesync/internal/source"
	"github.com/roach88/filesync/internal/sqlgen"
	"github.com/roach88/filesync/internal/warehouse"
)

// fakeSource serves files from a map; names listed without content fail
// to download.
type fakeSource struct {
	listed  []string
	files   map[string]string
	listErr error
}

func (f *fakeSource) ListFiles(ctx context.Context, endpoint string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *fakeSource) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	body, ok := f.files[name]
	if !ok {
		return nil, errors.New("connection reset by peer")
	}
	return []byte(body), nil
}

// recordingLoader counts loads without a database.
type recordingLoader struct {
	loads []dataset.Dataset
}

func (r *recordingLoader) Load(ctx context.Context, table string, ds dataset.Dataset) (*warehouse.LoadReport, error) {
	r.loads = append(r.loads, ds)
	return &warehouse.LoadReport{Table: table, Rows: ds.Len()}, nil
}

var runStart = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func testDef() branchdef.Definition {
	return branchdef.Defaults()[0]
}

func createTestWarehouse(t *testing.T) *warehouse.Warehouse {
	t.Helper()
	w, err := warehouse.Open(context.Background(), warehouse.Settings{
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

func newTestBranch(t *testing.T, src Source, store objstore.Store, loader Loader) *Branch {
	t.Helper()
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return newMeteredTestBranch(t, src, store, loader, metrics)
}

func newMeteredTestBranch(t *testing.T, src Source, store objstore.Store, loader Loader, metrics *Metrics) *Branch {
	t.Helper()
	root := t.TempDir()
	return New(testDef(), root, filepath.Join(root, ".scratch"), Deps{
		Source:    src,
		Store:     store,
		Warehouse: loader,
		Clock:     clock.NewFixed(runStart, time.Second),
		RunIDs:    clock.NewFixedGenerator("run-1", "run-2"),
		Metrics:   metrics,
	})
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemory()
	require.NoError(t, store.Put(ctx, "unviewed_files/claims-002.txt", []byte("Denied")))
	require.NoError(t, store.Put(ctx, "unviewed_files/claims-003.txt", []byte("Paid\n")))
	seeded := len(store.Puts())

	src := &fakeSource{
		listed: []string{"claims-003.txt", "claims-001.txt", "claims-004.txt", "claims-002.txt"},
		files: map[string]string{
			"claims-001.txt": "Pending",
			"claims-002.txt": "Approved",
			"claims-003.txt": "Paid",
		},
	}
	w := createTestWarehouse(t)
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter(MeterName))
	require.NoError(t, err)
	b := newMeteredTestBranch(t, src, store, w, metrics)

	report, err := b.Run(ctx)
	require.NoError(t, err)

	counts := collectCounts(t, reader)
	assert.Equal(t, int64(3), counts["filesync.artifacts.fetched"])
	assert.Equal(t, int64(1), counts["filesync.artifacts.fetch_failures"])
	assert.Equal(t, int64(1), counts["filesync.artifacts.classified/new"])
	assert.Equal(t, int64(1), counts["filesync.artifacts.classified/modified"])
	assert.Equal(t, int64(1), counts["filesync.artifacts.classified/unchanged"])
	assert.Equal(t, int64(3), counts["filesync.rows.loaded"])

	assert.Equal(t, 4, report.Fetch.Listed)
	assert.Equal(t, 3, report.Fetch.Downloaded)
	require.Len(t, report.Fetch.Failures, 1)
	assert.Equal(t, "claims-004.txt", report.Fetch.Failures[0].Name)

	assert.Equal(t, "run-1", report.Sync.RunID)
	assert.Equal(t, 3, report.Sync.Rows)
	assert.Equal(t, 2, report.Sync.Uploaded)
	assert.Equal(t, map[string]int{"new": 1, "modified": 1, "unchanged": 1}, report.Sync.Classified)
	assert.Equal(t, 3, report.Removed)

	assert.Equal(t, []string{
		"unviewed_files/claims-001.txt",
		"unviewed_files/20240115-002.txt",
	}, store.Puts()[seeded:])

	sess, err := w.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.SetExecutionContext(ctx, "raw"))
	raw, err := sess.ReadTable(ctx, "raw", "unviewed_files")
	require.NoError(t, err)

	assert.Equal(t, dataset.SummaryColumns, raw.Columns)
	assert.Equal(t, [][]string{
		{"20240115-090000", "claims-001.txt", "False", "", ""},
		{"20240115-090001", "claims-002.txt", "True", "True", "20240115-002.txt"},
		{"20240115-090002", "claims-003.txt", "True", "False", ""},
	}, raw.Rows)

	entries, err := os.ReadDir(b.DownloadDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// collectCounts sums every int64 counter, keyed by metric name plus
// "/classification" when the data point carries one.
func collectCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			for _, dp := range sum.DataPoints {
				key := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("classification")); ok {
					key += "/" + v.AsString()
				}
				counts[key] += dp.Value
			}
		}
	}
	return counts
}

func TestFetch_ListFailureAborts(t *testing.T) {
	refusal := &source.APIError{Code: source.ErrCodeAuthOrParameter, Message: "Account is locked"}
	b := newTestBranch(t, &fakeSource{listErr: refusal}, objstore.NewMemory(), &recordingLoader{})

	_, err := b.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageList, StageOf(err))
	assert.True(t, source.IsAuthOrParameter(err))
}

// cancellingSource cancels the run after the first download.
type cancellingSource struct {
	fakeSource
	cancel context.CancelFunc
}

func (c *cancellingSource) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	c.cancel()
	return c.fakeSource.DownloadFile(ctx, name)
}

func TestFetch_CancelledDuringDownloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{
		fakeSource: fakeSource{
			listed: []string{"a.txt", "b.txt"},
			files:  map[string]string{"a.txt": "a", "b.txt": "b"},
		},
		cancel: cancel,
	}
	b := newTestBranch(t, src, objstore.NewMemory(), &recordingLoader{})

	report, err := b.Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageDownload, StageOf(err))
	assert.Equal(t, 1, report.Downloaded)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b.txt", re.File)
}

func TestFetch_RejectsPathNames(t *testing.T) {
	src := &fakeSource{
		listed: []string{"../escape.txt", "ok.txt"},
		files:  map[string]string{"../escape.txt": "x", "ok.txt": "y"},
	}
	b := newTestBranch(t, src, objstore.NewMemory(), &recordingLoader{})

	report, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "../escape.txt", report.Failures[0].Name)
}

func TestSync_StoreUnavailable(t *testing.T) {
	store := objstore.NewMemory()
	store.FailOn = map[string]error{"list": errors.New("503 slow down")}
	loader := &recordingLoader{}
	b := newTestBranch(t, &fakeSource{}, store, loader)
	require.NoError(t, os.MkdirAll(b.DownloadDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.DownloadDir(), "a.txt"), []byte("a"), 0o644))

	_, err := b.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageIndex, StageOf(err))
	assert.True(t, objstore.IsUnavailable(err))
	assert.Empty(t, loader.loads)
}

func TestSync_EmptyDirectoryLoadsNothing(t *testing.T) {
	loader := &recordingLoader{}
	b := newTestBranch(t, &fakeSource{}, objstore.NewMemory(), loader)

	report, err := b.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)
	assert.Nil(t, report.Load)
	assert.Empty(t, loader.loads)
}

func TestSync_LoadFailure(t *testing.T) {
	b := newTestBranch(t, &fakeSource{}, objstore.NewMemory(), failingLoader{})
	require.NoError(t, os.MkdirAll(b.DownloadDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.DownloadDir(), "a.txt"), []byte("a"), 0o644))

	_, err := b.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageLoad, StageOf(err))
	assert.True(t, warehouse.IsSchemaEvolution(err))
}

type failingLoader struct{}

func (failingLoader) Load(ctx context.Context, table string, ds dataset.Dataset) (*warehouse.LoadReport, error) {
	return nil, &warehouse.LoadError{
		Stage: warehouse.StageEnsureRaw,
		Kind:  warehouse.KindSchemaEvolution,
		Table: table,
		Err:   errors.New("insufficient privileges"),
	}
}

func TestCleanup_KeepsCSV(t *testing.T) {
	b := newTestBranch(t, &fakeSource{}, objstore.NewMemory(), &recordingLoader{})
	dir := b.DownloadDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"a.txt", "b.pdf", "keep.csv", filepath.Join("nested", "c.txt")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	removed, err := b.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = os.Stat(filepath.Join(dir, "keep.csv"))
	assert.NoError(t, err)
}

func TestCleanup_MissingDirectory(t *testing.T) {
	b := newTestBranch(t, &fakeSource{}, objstore.NewMemory(), &recordingLoader{})
	removed, err := b.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
