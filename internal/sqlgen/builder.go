package sqlgen

import (
	"fmt"
	"strings"
)

// Statement is one SQL statement with its bound parameters.
type Statement struct {
	SQL  string
	Args []any
}

// Column is a column definition for CREATE and ALTER statements.
type Column struct {
	Name string
	Type ColumnType
}

// TextColumns turns names into generic text column definitions.
func TextColumns(names []string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Text}
	}
	return cols
}

// Expr is a SELECT-list expression with its own parameters.
type Expr struct {
	SQL  string
	Args []any
}

// Builder emits statements for one dialect and one database.
//
// CRITICAL: identifiers are canonicalized and quoted here, never by callers.
// CRITICAL: values are always parameters, never interpolated.
type Builder struct {
	dialect  Dialect
	database string
}

// NewBuilder creates a Builder. database is only used in qualified names
// by dialects that address the database explicitly (snowflake).
func NewBuilder(dialect Dialect, database string) *Builder {
	return &Builder{dialect: dialect, database: Canonical(database)}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Ident returns the canonical, quoted form of an identifier.
func (b *Builder) Ident(name string) string {
	return quote(Canonical(name))
}

// Table returns the qualified, quoted name of schema.table.
func (b *Builder) Table(schema, table string) string {
	if b.dialect == Snowflake {
		return b.Ident(b.database) + "." + b.Ident(schema) + "." + b.Ident(table)
	}
	return b.Ident(schema) + "." + b.Ident(table)
}

// ExecutionContext returns the statements that select the active role,
// database and schema. An empty schema selects role and database only.
// SQLite has no session context; callers attach schemas instead (see Attach).
func (b *Builder) ExecutionContext(role, schema string) []Statement {
	var stmts []Statement
	switch b.dialect {
	case Snowflake:
		if role != "" {
			stmts = append(stmts, Statement{SQL: "USE ROLE " + b.Ident(role)})
		}
		stmts = append(stmts, Statement{SQL: "USE DATABASE " + b.Ident(b.database)})
		if schema != "" {
			stmts = append(stmts, Statement{SQL: "USE SCHEMA " + b.Ident(b.database) + "." + b.Ident(schema)})
		}
	case Postgres:
		// Postgres roles are case-sensitive and conventionally lower-case,
		// so the role keeps its configured spelling.
		if role != "" {
			stmts = append(stmts, Statement{SQL: "SET ROLE " + quote(role)})
		}
		if schema != "" {
			stmts = append(stmts, Statement{SQL: "SET search_path TO " + b.Ident(schema)})
		}
	}
	return stmts
}

// Attach attaches a SQLite database file as a schema.
func (b *Builder) Attach(schema, path string) Statement {
	return Statement{SQL: "ATTACH DATABASE ? AS " + b.Ident(schema), Args: []any{path}}
}

// AttachedSchemas lists the schemas attached to a SQLite connection.
func (b *Builder) AttachedSchemas() Statement {
	return Statement{SQL: "SELECT name FROM pragma_database_list ORDER BY seq"}
}

// CreateSchema creates a schema if it is missing.
func (b *Builder) CreateSchema(schema string) Statement {
	if b.dialect == Snowflake {
		return Statement{SQL: "CREATE SCHEMA IF NOT EXISTS " + b.Ident(b.database) + "." + b.Ident(schema)}
	}
	return Statement{SQL: "CREATE SCHEMA IF NOT EXISTS " + b.Ident(schema)}
}

// TableExists is a query that yields one row when schema.table exists and
// none otherwise.
func (b *Builder) TableExists(schema, table string) Statement {
	s, t := Canonical(schema), Canonical(table)
	switch b.dialect {
	case Snowflake:
		return Statement{
			SQL:  "SELECT table_name FROM " + b.Ident(b.database) + ".INFORMATION_SCHEMA.TABLES WHERE table_schema = ? AND table_name = ?",
			Args: []any{s, t},
		}
	case Postgres:
		return Statement{
			SQL:  "SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
			Args: []any{s, t},
		}
	default:
		return Statement{
			SQL:  "SELECT name FROM " + b.Ident(schema) + ".sqlite_master WHERE type = 'table' AND name = ?",
			Args: []any{t},
		}
	}
}

// TableColumns is a query yielding the column names of schema.table in
// ordinal order.
func (b *Builder) TableColumns(schema, table string) Statement {
	s, t := Canonical(schema), Canonical(table)
	switch b.dialect {
	case Snowflake:
		return Statement{
			SQL:  "SELECT column_name FROM " + b.Ident(b.database) + ".INFORMATION_SCHEMA.COLUMNS WHERE table_catalog = ? AND table_schema = ? AND table_name = ? ORDER BY ordinal_position",
			Args: []any{b.database, s, t},
		}
	case Postgres:
		return Statement{
			SQL:  "SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position",
			Args: []any{s, t},
		}
	default:
		return Statement{
			SQL:  "SELECT name FROM pragma_table_info(?, ?) ORDER BY cid",
			Args: []any{t, s},
		}
	}
}

// DropTable drops schema.table if present.
func (b *Builder) DropTable(schema, table string) Statement {
	return Statement{SQL: "DROP TABLE IF EXISTS " + b.Table(schema, table)}
}

// CreateTable creates schema.table with the given columns. There is no
// IF NOT EXISTS: callers decide by an existence query.
func (b *Builder) CreateTable(schema, table string, columns []Column) (Statement, error) {
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("create %s: no columns", b.Table(schema, table))
	}
	return Statement{SQL: "CREATE TABLE " + b.Table(schema, table) + " (" + b.columnDefs(columns) + ")"}, nil
}

// AddColumns widens schema.table. SQLite accepts one column per ALTER, so
// it gets one statement per column; the other dialects get one statement.
// An empty column list yields no statements.
func (b *Builder) AddColumns(schema, table string, columns []Column) []Statement {
	if len(columns) == 0 {
		return nil
	}
	target := b.Table(schema, table)
	switch b.dialect {
	case Snowflake:
		return []Statement{{SQL: "ALTER TABLE " + target + " ADD (" + b.columnDefs(columns) + ")"}}
	case Postgres:
		parts := make([]string, len(columns))
		for i, c := range columns {
			parts[i] = "ADD COLUMN " + b.Ident(c.Name) + " " + b.dialect.typeName(c.Type)
		}
		return []Statement{{SQL: "ALTER TABLE " + target + " " + strings.Join(parts, ", ")}}
	default:
		stmts := make([]Statement, len(columns))
		for i, c := range columns {
			stmts[i] = Statement{SQL: "ALTER TABLE " + target + " ADD COLUMN " + b.Ident(c.Name) + " " + b.dialect.typeName(c.Type)}
		}
		return stmts
	}
}

// InsertValues inserts rows into schema.table, splitting into as many
// statements as needed to stay under the bind parameter limit.
func (b *Builder) InsertValues(schema, table string, columns []string, rows [][]string) []Statement {
	if len(rows) == 0 || len(columns) == 0 {
		return nil
	}
	perStmt := maxParams / len(columns)
	if perStmt < 1 {
		perStmt = 1
	}

	prefix := "INSERT INTO " + b.Table(schema, table) + " (" + b.identList(columns) + ") VALUES "
	var stmts []Statement
	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for j := range columns {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, row[j])
				sb.WriteString(b.dialect.placeholder(len(args)))
			}
			sb.WriteString(")")
		}
		stmts = append(stmts, Statement{SQL: sb.String(), Args: args})
	}
	return stmts
}

// Truncate removes every row of schema.table. SQLite has no TRUNCATE.
func (b *Builder) Truncate(schema, table string) Statement {
	if b.dialect == SQLite {
		return Statement{SQL: "DELETE FROM " + b.Table(schema, table)}
	}
	return Statement{SQL: "TRUNCATE TABLE " + b.Table(schema, table)}
}

// TableRef names a schema-qualified table.
type TableRef struct {
	Schema string
	Table  string
}

// InsertSelect copies columns from src into dst, appending extra
// expressions (and extra destination columns) after them. Columns missing
// from the list keep their default (NULL) in dst.
func (b *Builder) InsertSelect(dst, src TableRef, columns []string, extraColumns []string, extra []Expr) (Statement, error) {
	if len(extraColumns) != len(extra) {
		return Statement{}, fmt.Errorf("insert select: %d extra columns for %d expressions", len(extraColumns), len(extra))
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("insert select into %s: no columns", b.Table(dst.Schema, dst.Table))
	}

	targets := b.identList(append(append([]string{}, columns...), extraColumns...))

	selects := make([]string, 0, len(columns)+len(extra))
	for _, c := range columns {
		selects = append(selects, "s."+b.Ident(c))
	}
	var args []any
	for _, e := range extra {
		sql := e.SQL
		// Expr markers are "?"; renumber them for positional dialects.
		for _, a := range e.Args {
			args = append(args, a)
			sql = strings.Replace(sql, "?", b.dialect.placeholder(len(args)), 1)
		}
		selects = append(selects, sql)
	}

	return Statement{
		SQL: "INSERT INTO " + b.Table(dst.Schema, dst.Table) + " (" + targets + ") SELECT " +
			strings.Join(selects, ", ") + " FROM " + b.Table(src.Schema, src.Table) + " AS s",
		Args: args,
	}, nil
}

// CurrentPrincipal is the acting-principal expression for audit columns.
// SQLite has no session user, so the configured principal is bound instead.
func (b *Builder) CurrentPrincipal(principal string) Expr {
	switch b.dialect {
	case Snowflake:
		return Expr{SQL: "CURRENT_USER()"}
	case Postgres:
		return Expr{SQL: "CURRENT_USER"}
	default:
		return Expr{SQL: "?", Args: []any{principal}}
	}
}

// CurrentTimestamp is the load wall-clock expression for audit columns.
func (b *Builder) CurrentTimestamp() Expr {
	if b.dialect == Snowflake {
		return Expr{SQL: "CURRENT_TIMESTAMP()"}
	}
	return Expr{SQL: "CURRENT_TIMESTAMP"}
}

// SelectColumns reads the named columns of schema.table in storage order.
func (b *Builder) SelectColumns(schema, table string, columns []string) Statement {
	return Statement{SQL: "SELECT " + b.identList(columns) + " FROM " + b.Table(schema, table)}
}

// CountRows counts the rows of schema.table.
func (b *Builder) CountRows(schema, table string) Statement {
	return Statement{SQL: "SELECT COUNT(*) FROM " + b.Table(schema, table)}
}

func (b *Builder) identList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = b.Ident(n)
	}
	return strings.Join(parts, ", ")
}

func (b *Builder) columnDefs(columns []Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = b.Ident(c.Name) + " " + b.dialect.typeName(c.Type)
	}
	return strings.Join(parts, ", ")
}
