package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/sqlgen"
)

// Session runs load operations on one reserved connection. Each operation
// is usable on its own; Warehouse.Load composes them.
type Session struct {
	conn     *sql.Conn
	b        *sqlgen.Builder
	settings Settings
	logger   *slog.Logger
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) exec(ctx context.Context, kind Kind, stmt sqlgen.Statement) error {
	s.logger.Debug("exec", "sql", stmt.SQL, "args", len(stmt.Args))
	if _, err := s.conn.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return &StatementError{Kind: kind, SQL: stmt.SQL, Err: err}
	}
	return nil
}

func (s *Session) execAll(ctx context.Context, kind Kind, stmts []sqlgen.Statement) error {
	for _, stmt := range stmts {
		if err := s.exec(ctx, kind, stmt); err != nil {
			return err
		}
	}
	return nil
}

// queryStrings runs a single-column query.
func (s *Session) queryStrings(ctx context.Context, stmt sqlgen.Statement) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, &StatementError{Kind: KindCatalog, SQL: stmt.SQL, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StatementError{Kind: KindCatalog, SQL: stmt.SQL, Err: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StatementError{Kind: KindCatalog, SQL: stmt.SQL, Err: err}
	}
	return out, nil
}

// SetExecutionContext selects the role, database and schema for the
// statements that follow. On SQLite it attaches the schema's database file
// unless it is already attached.
func (s *Session) SetExecutionContext(ctx context.Context, schema string) error {
	if s.b.Dialect() != sqlgen.SQLite {
		return s.execAll(ctx, KindContext, s.b.ExecutionContext(s.settings.Role, schema))
	}

	attached, err := s.queryStrings(ctx, s.b.AttachedSchemas())
	if err != nil {
		return &StatementError{Kind: KindContext, SQL: s.b.AttachedSchemas().SQL, Err: err}
	}
	want := sqlgen.Canonical(schema)
	for _, a := range attached {
		if sqlgen.Canonical(a) == want {
			return nil
		}
	}
	return s.exec(ctx, KindContext, s.b.Attach(schema, s.settings.attachPath(schema)))
}

// EnsureSchemas creates the three schemas if missing.
func (s *Session) EnsureSchemas(ctx context.Context) error {
	schemas := []string{s.settings.StagingSchema, s.settings.RawSchema, s.settings.HistorySchema}
	if s.b.Dialect() == sqlgen.SQLite {
		for _, schema := range schemas {
			if err := s.SetExecutionContext(ctx, schema); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.execAll(ctx, KindContext, s.b.ExecutionContext(s.settings.Role, "")); err != nil {
		return err
	}
	for _, schema := range schemas {
		if err := s.exec(ctx, KindSchemaEvolution, s.b.CreateSchema(schema)); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceStaging drops the staging table, recreates it with one text column
// per dataset column, and inserts every row.
func (s *Session) ReplaceStaging(ctx context.Context, table string, ds dataset.Dataset) error {
	schema := s.settings.StagingSchema
	if err := s.exec(ctx, KindDataMovement, s.b.DropTable(schema, table)); err != nil {
		return err
	}
	create, err := s.b.CreateTable(schema, table, sqlgen.TextColumns(ds.Columns))
	if err != nil {
		return &StatementError{Kind: KindSchemaEvolution, SQL: "CREATE TABLE", Err: err}
	}
	if err := s.exec(ctx, KindSchemaEvolution, create); err != nil {
		return err
	}
	return s.execAll(ctx, KindDataMovement, s.b.InsertValues(schema, table, ds.Columns, ds.Rows))
}

// TableExists reports whether schema.table exists.
func (s *Session) TableExists(ctx context.Context, schema, table string) (bool, error) {
	names, err := s.queryStrings(ctx, s.b.TableExists(schema, table))
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// EnsureTable creates schema.table with the given text columns when it is
// missing. With audit set, a newly created table is then widened with the
// audit columns. created reports whether the table was created.
func (s *Session) EnsureTable(ctx context.Context, schema, table string, columns []string, audit bool) (created bool, err error) {
	exists, err := s.TableExists(ctx, schema, table)
	if err != nil || exists {
		return false, err
	}

	create, err := s.b.CreateTable(schema, table, sqlgen.TextColumns(columns))
	if err != nil {
		return false, &StatementError{Kind: KindSchemaEvolution, SQL: "CREATE TABLE", Err: err}
	}
	if err := s.exec(ctx, KindSchemaEvolution, create); err != nil {
		return false, err
	}
	if audit {
		if err := s.execAll(ctx, KindSchemaEvolution, s.b.AddColumns(schema, table, AuditColumns)); err != nil {
			return true, err
		}
	}
	s.logger.Info("table created", "schema", sqlgen.Canonical(schema), "table", sqlgen.Canonical(table))
	return true, nil
}

// Columns returns the column names of schema.table in ordinal order.
func (s *Session) Columns(ctx context.Context, schema, table string) ([]string, error) {
	return s.queryStrings(ctx, s.b.TableColumns(schema, table))
}

// Widen adds delta to schema.table as text columns. An empty delta issues
// no statement.
func (s *Session) Widen(ctx context.Context, schema, table string, delta []string) error {
	if len(delta) > 0 {
		s.logger.Info("widening table",
			"schema", sqlgen.Canonical(schema),
			"table", sqlgen.Canonical(table),
			"columns", delta,
		)
	}
	return s.execAll(ctx, KindSchemaEvolution, s.b.AddColumns(schema, table, sqlgen.TextColumns(delta)))
}

// ReloadRaw replaces the raw table's rows with the staging rows. Raw
// columns not in columns are left NULL.
func (s *Session) ReloadRaw(ctx context.Context, table string, columns []string) error {
	st := s.settings
	if err := s.exec(ctx, KindDataMovement, s.b.Truncate(st.RawSchema, table)); err != nil {
		return err
	}
	stmt, err := s.b.InsertSelect(
		sqlgen.TableRef{Schema: st.RawSchema, Table: table},
		sqlgen.TableRef{Schema: st.StagingSchema, Table: table},
		columns, nil, nil,
	)
	if err != nil {
		return &StatementError{Kind: KindDataMovement, SQL: "INSERT INTO", Err: err}
	}
	return s.exec(ctx, KindDataMovement, stmt)
}

// AppendHistory appends the staging rows to history, stamping each with the
// acting principal and the current time.
func (s *Session) AppendHistory(ctx context.Context, table string, columns []string) error {
	st := s.settings
	stmt, err := s.b.InsertSelect(
		sqlgen.TableRef{Schema: st.HistorySchema, Table: table},
		sqlgen.TableRef{Schema: st.StagingSchema, Table: table},
		columns,
		[]string{AuditUserColumn, AuditTimestampColumn},
		[]sqlgen.Expr{s.b.CurrentPrincipal(st.Principal), s.b.CurrentTimestamp()},
	)
	if err != nil {
		return &StatementError{Kind: KindDataMovement, SQL: "INSERT INTO", Err: err}
	}
	return s.exec(ctx, KindDataMovement, stmt)
}

// ReadTable reads every row of schema.table as text. NULL reads as "".
func (s *Session) ReadTable(ctx context.Context, schema, table string) (dataset.Dataset, error) {
	cols, err := s.Columns(ctx, schema, table)
	if err != nil {
		return dataset.Dataset{}, err
	}
	if len(cols) == 0 {
		return dataset.Dataset{}, fmt.Errorf("read %s.%s: table has no columns or does not exist", schema, table)
	}

	stmt := s.b.SelectColumns(schema, table, cols)
	rows, err := s.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return dataset.Dataset{}, &StatementError{Kind: KindCatalog, SQL: stmt.SQL, Err: err}
	}
	defer rows.Close()

	ds := dataset.Dataset{Columns: cols}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return dataset.Dataset{}, fmt.Errorf("scan %s.%s: %w", schema, table, err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, rows.Err()
}

// CountRows counts the rows of schema.table.
func (s *Session) CountRows(ctx context.Context, schema, table string) (int64, error) {
	stmt := s.b.CountRows(schema, table)
	var n int64
	if err := s.conn.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, &StatementError{Kind: KindCatalog, SQL: stmt.SQL, Err: err}
	}
	return n, nil
}
