package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/config"
	"github.com/roach88/filesync/internal/source"
)

// PayerList is the output of the payers command.
type PayerList []source.Payer

func (l PayerList) String() string {
	if len(l) == 0 {
		return "no payers"
	}
	var sb strings.Builder
	for i, p := range l {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s\t%s", p.PayerID, p.Name)
	}
	return sb.String()
}

// NewPayersCommand creates the payers command.
func NewPayersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payers <profession-id>",
		Short: "List the payers the source knows for a profession",
		Example: `  filesync payers 1
  filesync payers 1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			a, err := newApp(ctx, rootOpts, cmd, config.NeedSource)
			if err != nil {
				return err
			}
			defer a.Close()

			payers, err := a.source.PayerIDs(ctx, args[0])
			if err != nil {
				return runFailure(err)
			}
			return rootOpts.formatter(cmd).Success(PayerList(payers))
		},
	}
}
