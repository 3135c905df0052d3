package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/config"
)

// BootstrapResult is the output of the bootstrap command.
type BootstrapResult struct {
	Dialect string   `json:"dialect"`
	Schemas []string `json:"schemas"`
}

func (r BootstrapResult) String() string {
	return fmt.Sprintf("schemas ready (%s): %v", r.Dialect, r.Schemas)
}

// NewBootstrapCommand creates the bootstrap command.
func NewBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the staging, raw and history schemas",
		Long: `Create the staging, raw and history schemas if they are missing.
On SQLite each schema is a database file next to the main database.

Example:
  FILESYNC_WAREHOUSE_DSN=warehouse.db filesync bootstrap`,
		Args:          cobra.NoArgs,
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

			if err := a.wh.EnsureSchemas(ctx); err != nil {
				return runFailure(err)
			}
			w := a.cfg.Warehouse
			return rootOpts.formatter(cmd).Success(BootstrapResult{
				Dialect: string(w.Dialect),
				Schemas: []string{w.StagingSchema, w.RawSchema, w.HistorySchema},
			})
		},
	}
}
