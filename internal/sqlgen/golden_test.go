package sqlgen

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// renderLoadPlan renders the statements of one full load, in load order.
func renderLoadPlan(t *testing.T, b *Builder) []byte {
	t.Helper()

	var buf bytes.Buffer
	emit := func(label string, stmts ...Statement) {
		for _, s := range stmts {
			fmt.Fprintf(&buf, "-- %s\n%s;\n", label, s.SQL)
			if len(s.Args) > 0 {
				fmt.Fprintf(&buf, "-- args: %v\n", s.Args)
			}
		}
	}

	columns := []string{"DATE", "FILE_NAME"}
	staging := TableRef{Schema: "staging", Table: "unviewed_files"}
	raw := TableRef{Schema: "raw", Table: "unviewed_files"}
	history := TableRef{Schema: "history", Table: "unviewed_files"}

	emit("context", b.ExecutionContext("loader", "staging")...)
	emit("drop staging", b.DropTable(staging.Schema, staging.Table))
	create, err := b.CreateTable(staging.Schema, staging.Table, TextColumns([]string{"date", "file_name"}))
	require.NoError(t, err)
	emit("create staging", create)
	emit("insert staging", b.InsertValues(staging.Schema, staging.Table, columns, [][]string{
		{"20240115-000000", "claims-001.txt"},
		{"20240115-000001", "claims-002.txt"},
	})...)
	emit("exists raw", b.TableExists(raw.Schema, raw.Table))
	emit("columns raw", b.TableColumns(raw.Schema, raw.Table))
	emit("audit history", b.AddColumns(history.Schema, history.Table, []Column{
		{Name: "dw_created_user_id", Type: Text},
		{Name: "dw_created_timestamp", Type: Timestamp},
	})...)
	emit("widen raw", b.AddColumns(raw.Schema, raw.Table, TextColumns([]string{"payer_id"}))...)
	emit("truncate raw", b.Truncate(raw.Schema, raw.Table))
	reload, err := b.InsertSelect(raw, staging, columns, nil, nil)
	require.NoError(t, err)
	emit("reload raw", reload)
	appendStmt, err := b.InsertSelect(history, staging, columns,
		[]string{"DW_CREATED_USER_ID", "DW_CREATED_TIMESTAMP"},
		[]Expr{b.CurrentPrincipal("filesync"), b.CurrentTimestamp()},
	)
	require.NoError(t, err)
	emit("append history", appendStmt)

	return buf.Bytes()
}

func TestLoadPlan_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, d := range ValidDialects {
		t.Run(string(d), func(t *testing.T) {
			g.Assert(t, "load_plan_"+string(d), renderLoadPlan(t, NewBuilder(d, "analytics")))
		})
	}
}
