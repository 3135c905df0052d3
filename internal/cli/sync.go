package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/branch"
	"github.com/roach88/filesync/internal/config"
)

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return newBranchCommand(rootOpts, branchCommand{
		use:   "fetch [branch...]",
		short: "Download unviewed files from the source",
		long: `Download every file the source lists as unviewed into the branch's
download directory. A file that fails to download is reported and skipped.

Example:
  filesync fetch
  filesync fetch unviewed_eram_files`,
		need: config.NeedSource,
		run:  func(ctx context.Context, b *branch.Branch) (any, error) {
			return b.Fetch(ctx)
		},
	})
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return newBranchCommand(rootOpts, branchCommand{
		use:   "sync [branch...]",
		short: "Classify downloaded files, archive changes and load the summary",
		long: `Compare each downloaded file with its archived copy, upload new and
modified files to the object store, and load the run summary into the
staging, raw and history tables.

Example:
  filesync sync --format json`,
		need: config.NeedStore | config.NeedWarehouse,
		run:  func(ctx context.Context, b *branch.Branch) (any, error) {
			return b.Sync(ctx)
		},
	})
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	return newBranchCommand(rootOpts, branchCommand{
		use:   "cleanup [branch...]",
		short: "Remove downloaded files except .csv files",
		need:  0,
		run:   func(ctx context.Context, b *branch.Branch) (any, error) {
			return b.Cleanup(ctx)
		},
	})
}

type branchCommand struct {
	use   string
	short string
	long  string
	need  config.Need
	run   func(context.Context, *branch.Branch) (any, error)
}

func newBranchCommand(rootOpts *RootOptions, bc branchCommand) *cobra.Command {
	return &cobra.Command{
		Use:           bc.use,
		Short:         bc.short,
		Long:          bc.long,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranches(rootOpts, cmd, args, bc.need, bc.run)
		},
	}
}

func runBranches(opts *RootOptions, cmd *cobra.Command, names []string, need config.Need, fn func(context.Context, *branch.Branch) (any, error)) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx, opts, cmd, need)
	if err != nil {
		return err
	}
	defer a.Close()

	branches, err := a.branches(names)
	if err != nil {
		return err
	}

	results, runErr := forEachBranch(ctx, branches, fn)
	if err := opts.formatter(cmd).Success(results); err != nil {
		return err
	}
	if runErr != nil {
		return runFailure(runErr)
	}
	return nil
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
