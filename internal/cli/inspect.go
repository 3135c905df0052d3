package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/branchdef"
	"github.com/roach88/filesync/internal/config"
	"github.com/roach88/filesync/internal/warehouse"
)

// InspectResult is the output of the inspect command.
type InspectResult struct {
	Branch     string                `json:"branch"`
	Table      string                `json:"table"`
	Consistent bool                  `json:"consistent"`
	Inspection *warehouse.Inspection `json:"inspection"`
}

func (r InspectResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", r.Branch, r.Table)
	in := r.Inspection
	for _, ts := range []warehouse.TableState{in.Staging, in.Raw, in.History} {
		if !ts.Exists {
			fmt.Fprintf(&sb, "\n  %s: missing", ts.Schema)
			continue
		}
		fmt.Fprintf(&sb, "\n  %s: %d rows, columns %s", ts.Schema, ts.Rows, strings.Join(ts.Columns, ", "))
	}
	if len(in.RawMissing) > 0 {
		fmt.Fprintf(&sb, "\n  raw missing: %s", strings.Join(in.RawMissing, ", "))
	}
	if len(in.HistoryDrift) > 0 {
		fmt.Fprintf(&sb, "\n  history drift: %s", strings.Join(in.HistoryDrift, ", "))
	}
	if r.Consistent {
		sb.WriteString("\n  consistent")
	} else {
		sb.WriteString("\n  inconsistent")
	}
	return sb.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <branch>",
		Short: "Show a branch's tables in every tier",
		Long: `Show existence, columns and row counts of a branch's table in the
staging, raw and history schemas, and the columns raw or history lack.
Use it after a failed load to see where the load stopped.

Example:
  filesync inspect unviewed_files --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := newApp(ctx, rootOpts, cmd, config.NeedWarehouse)
			if err != nil {
				return err
			}
			defer a.Close()

			defs, err := branchdef.Select(a.defs, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			def := defs[0]

			in, err := a.wh.Inspect(ctx, def.Table)
			if err != nil {
				return runFailure(err)
			}
			return rootOpts.formatter(cmd).Success(InspectResult{
				Branch:     def.Name,
				Table:      def.Table,
				Consistent: in.Consistent(),
				Inspection: in,
			})
		},
	}
}
