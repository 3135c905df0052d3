// Package dataset holds the tabular per-run summary that is loaded into the
// warehouse, and the materializer that builds it from detection results.
package dataset

import (
	"fmt"

	"github.com/roach88/filesync/internal/sqlgen"
)

// Dataset is an ordered list of columns and text rows aligned with them.
// Column names may repeat.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Canonical returns a copy whose column names are canonical identifiers.
// Rows are shared with d.
func (d Dataset) Canonical() Dataset {
	return Dataset{Columns: sqlgen.CanonicalAll(d.Columns), Rows: d.Rows}
}

// Validate rejects datasets without columns and rows whose width differs
// from the column count.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("dataset row %d has %d values, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

// Column returns the values of the first column named name, compared
// canonically. ok is false when no such column exists.
func (d Dataset) Column(name string) (values []string, ok bool) {
	want := sqlgen.Canonical(name)
	for j, c := range d.Columns {
		if sqlgen.Canonical(c) != want {
			continue
		}
		values = make([]string, len(d.Rows))
		for i, row := range d.Rows {
			values[i] = row[j]
		}
		return values, true
	}
	return nil, false
}
