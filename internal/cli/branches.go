package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/branchdef"
)

// BranchList is the output of the branches command.
type BranchList []branchdef.Definition

func (l BranchList) String() string {
	var sb strings.Builder
	for i, d := range l {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: endpoint=%s prefix=%s dir=%s table=%s", d.Name, d.Endpoint, d.Prefix, d.Dir, d.Table)
	}
	return sb.String()
}

// NewBranchesCommand creates the branches command.
func NewBranchesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "branches",
		Short:         "List the configured branches",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts, cmd, 0)
			if err != nil {
				return err
			}
			defer a.Close()
			return rootOpts.formatter(cmd).Success(BranchList(a.defs))
		},
	}
}
