package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor a Builder emits.
type Dialect string

const (
	SQLite    Dialect = "sqlite"
	Postgres  Dialect = "postgres"
	Snowflake Dialect = "snowflake"
)

// ValidDialects lists the supported dialects.
var ValidDialects = []Dialect{SQLite, Postgres, Snowflake}

// ParseDialect resolves a dialect name, case-insensitively.
func ParseDialect(name string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(name)))
	for _, v := range ValidDialects {
		if d == v {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dialect %q: must be one of %v", name, ValidDialects)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case Snowflake:
		return "snowflake"
	default:
		return "sqlite3"
	}
}

// placeholder renders the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ColumnType is the generic type of a generated column.
type ColumnType int

const (
	// Text is the only type dataset columns ever get.
	Text ColumnType = iota
	// Timestamp is used by the history load-time audit column.
	Timestamp
)

func (d Dialect) typeName(t ColumnType) string {
	switch d {
	case Snowflake:
		if t == Timestamp {
			return "TIMESTAMP_LTZ(9)"
		}
		return "VARCHAR"
	case Postgres:
		if t == Timestamp {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	default:
		if t == Timestamp {
			return "TIMESTAMP"
		}
		return "TEXT"
	}
}

// maxParams bounds bind parameters per INSERT ... VALUES statement.
// 999 is SQLite's historical SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 999
