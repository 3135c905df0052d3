package warehouse

import (
	"context"

	"github.com/roach88/filesync/internal/sqlgen"
)

// TableState describes one tier of a table.
type TableState struct {
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Exists  bool     `json:"exists"`
	Columns []string `json:"columns,omitempty"`
	Rows    int64    `json:"rows"`
}

// Inspection describes a table across the three tiers.
type Inspection struct {
	Staging TableState `json:"staging"`
	Raw     TableState `json:"raw"`
	History TableState `json:"history"`

	// RawMissing lists staging columns raw cannot hold yet.
	RawMissing []string `json:"raw_missing,omitempty"`
	// HistoryDrift lists columns of raw plus the audit columns that
	// history lacks. A non-empty drift means the next append will fail;
	// it follows a load that stopped between widen_raw and widen_history.
	HistoryDrift []string `json:"history_drift,omitempty"`
}

// Consistent reports whether every tier exists and neither raw nor history
// is missing columns.
func (in *Inspection) Consistent() bool {
	return in.Staging.Exists && in.Raw.Exists && in.History.Exists &&
		len(in.RawMissing) == 0 && len(in.HistoryDrift) == 0
}

// Inspect reports the state of table in every tier. It is read-only apart
// from attaching schemas on SQLite.
func (w *Warehouse) Inspect(ctx context.Context, table string) (*Inspection, error) {
	sess, err := w.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	st := w.settings
	in := &Inspection{}
	for _, tier := range []struct {
		schema string
		state  *TableState
	}{
		{st.StagingSchema, &in.Staging},
		{st.RawSchema, &in.Raw},
		{st.HistorySchema, &in.History},
	} {
		if err := sess.SetExecutionContext(ctx, tier.schema); err != nil {
			return nil, err
		}
		ts, err := sess.tableState(ctx, tier.schema, table)
		if err != nil {
			return nil, err
		}
		*tier.state = ts
	}

	if in.Staging.Exists && in.Raw.Exists {
		in.RawMissing = ComputeSchemaDelta(in.Staging.Columns, in.Raw.Columns)
	}
	if in.Raw.Exists && in.History.Exists {
		want := append([]string(nil), in.Raw.Columns...)
		for _, c := range AuditColumns {
			want = append(want, c.Name)
		}
		in.HistoryDrift = ComputeSchemaDelta(want, in.History.Columns)
	}
	return in, nil
}

func (s *Session) tableState(ctx context.Context, schema, table string) (TableState, error) {
	ts := TableState{Schema: sqlgen.Canonical(schema), Table: sqlgen.Canonical(table)}
	exists, err := s.TableExists(ctx, schema, table)
	if err != nil || !exists {
		return ts, err
	}
	ts.Exists = true
	if ts.Columns, err = s.Columns(ctx, schema, table); err != nil {
		return ts, err
	}
	if ts.Rows, err = s.CountRows(ctx, schema, table); err != nil {
		return ts, err
	}
	return ts, nil
}
