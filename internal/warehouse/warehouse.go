package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/sqlgen"
)

// Audit columns appended to every history table.
const (
	AuditUserColumn      = "DW_CREATED_USER_ID"
	AuditTimestampColumn = "DW_CREATED_TIMESTAMP"
)

// AuditColumns are the history-only columns, in table order.
var AuditColumns = []sqlgen.Column{
	{Name: AuditUserColumn, Type: sqlgen.Text},
	{Name: AuditTimestampColumn, Type: sqlgen.Timestamp},
}

// Settings locates a warehouse and names its schemas.
type Settings struct {
	Dialect sqlgen.Dialect
	// DSN is passed to the dialect's driver. For SQLite it is the main
	// database file; schemas are attached from files in the same directory.
	DSN string
	// Role is selected before each schema's statements, if set.
	Role string
	// Database is addressed explicitly by Snowflake.
	Database string

	StagingSchema string
	RawSchema     string
	HistorySchema string

	// Principal fills the history user column on dialects without a
	// session user (SQLite).
	Principal string

	Logger *slog.Logger
}

// Warehouse runs loads against one database.
type Warehouse struct {
	db       *sql.DB
	settings Settings
	builder  *sqlgen.Builder
	logger   *slog.Logger
}

// Open connects to the warehouse described by s.
//
// SQLite connections are configured like the event store: WAL journal,
// NORMAL synchronous mode, a 5 second busy timeout and a single connection,
// which also keeps attached schemas alive between loads.
func Open(ctx context.Context, s Settings) (*Warehouse, error) {
	db, err := sql.Open(s.Dialect.DriverName(), s.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	if s.Dialect == sqlgen.SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return New(db, s), nil
}

// New wraps an open database.
func New(db *sql.DB, s Settings) *Warehouse {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Warehouse{
		db:       db,
		settings: s,
		builder:  sqlgen.NewBuilder(s.Dialect, s.Database),
		logger:   logger,
	}
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (w *Warehouse) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Settings returns the warehouse settings.
func (w *Warehouse) Settings() Settings {
	return w.settings
}

// Session reserves a connection. Callers must Close it.
func (w *Warehouse) Session(ctx context.Context) (*Session, error) {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection: %w", err)
	}
	return &Session{conn: conn, b: w.builder, settings: w.settings, logger: w.logger}, nil
}

// attachPath is the database file backing a SQLite schema.
func (s Settings) attachPath(schema string) string {
	dsn := strings.TrimPrefix(s.DSN, "file:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	if dsn == "" || dsn == ":memory:" {
		return ":memory:"
	}
	return filepath.Join(filepath.Dir(dsn), strings.ToLower(sqlgen.Canonical(schema))+".db")
}

// LoadReport describes a completed load.
type LoadReport struct {
	Table          string
	Rows           int
	Delta          []string
	CreatedRaw     bool
	CreatedHistory bool
	Completed      []Stage
}

// Load persists ds into table in every tier. See the package documentation
// for the stage order and failure behavior.
func (w *Warehouse) Load(ctx context.Context, table string, ds dataset.Dataset) (*LoadReport, error) {
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	ds = ds.Canonical()
	table = sqlgen.Canonical(table)
	st := w.settings

	sess, err := w.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	report := &LoadReport{Table: table, Rows: ds.Len()}
	contextSet := false
	fail := func(stage Stage, err error) (*LoadReport, error) {
		kind := KindOf(err)
		if kind == "" {
			kind = KindCatalog
		}
		return nil, &LoadError{
			Stage:     stage,
			Kind:      kind,
			Table:     table,
			Completed: append([]Stage(nil), report.Completed...),
			Err:       err,
		}
	}
	// use re-applies the execution context before each schema's statements.
	use := func(schema string) error {
		if err := sess.SetExecutionContext(ctx, schema); err != nil {
			return err
		}
		if !contextSet {
			contextSet = true
			report.Completed = append(report.Completed, StageSetExecutionContext)
		}
		return nil
	}
	done := func(stage Stage) {
		report.Completed = append(report.Completed, stage)
		w.logger.Debug("load stage complete", "table", table, "stage", stage)
	}

	if err := use(st.StagingSchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if err := sess.ReplaceStaging(ctx, table, ds); err != nil {
		return fail(StageReplaceStaging, err)
	}
	done(StageReplaceStaging)

	if err := use(st.RawSchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if report.CreatedRaw, err = sess.EnsureTable(ctx, st.RawSchema, table, ds.Columns, false); err != nil {
		return fail(StageEnsureRaw, err)
	}
	done(StageEnsureRaw)

	if err := use(st.HistorySchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if report.CreatedHistory, err = sess.EnsureTable(ctx, st.HistorySchema, table, ds.Columns, true); err != nil {
		return fail(StageEnsureHistory, err)
	}
	done(StageEnsureHistory)

	stagingCols, err := sess.Columns(ctx, st.StagingSchema, table)
	if err != nil {
		return fail(StageComputeSchemaDelta, err)
	}
	rawCols, err := sess.Columns(ctx, st.RawSchema, table)
	if err != nil {
		return fail(StageComputeSchemaDelta, err)
	}
	report.Delta = ComputeSchemaDelta(stagingCols, rawCols)
	done(StageComputeSchemaDelta)

	if err := use(st.RawSchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if err := sess.Widen(ctx, st.RawSchema, table, report.Delta); err != nil {
		return fail(StageWidenRaw, err)
	}
	done(StageWidenRaw)

	if err := use(st.HistorySchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if err := sess.Widen(ctx, st.HistorySchema, table, report.Delta); err != nil {
		return fail(StageWidenHistory, err)
	}
	done(StageWidenHistory)

	if err := use(st.RawSchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if err := sess.ReloadRaw(ctx, table, stagingCols); err != nil {
		return fail(StageReloadRaw, err)
	}
	done(StageReloadRaw)

	if err := use(st.HistorySchema); err != nil {
		return fail(StageSetExecutionContext, err)
	}
	if err := sess.AppendHistory(ctx, table, stagingCols); err != nil {
		return fail(StageAppendHistory, err)
	}
	done(StageAppendHistory)

	w.logger.Info("table loaded",
		"table", table,
		"rows", report.Rows,
		"delta", report.Delta,
	)
	return report, nil
}

// EnsureSchemas creates the staging, raw and history schemas if missing.
// On SQLite this attaches their database files.
func (w *Warehouse) EnsureSchemas(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.EnsureSchemas(ctx)
}
