package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/branch"
	"github.com/roach88/filesync/internal/config"
	"github.com/roach88/filesync/internal/source"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Retries    int
	RetryDelay time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [branch...]",
		Short: "Fetch, sync and clean up every branch",
		Long: `Run the full pipeline for each branch: fetch unviewed files, classify
and archive them, load the run summary, then remove the downloaded files
except .csv files. Branches run concurrently and independently.

With --retries, a failed stage is retried after --retry-delay. A sync that
failed after appending history rows appends them again on retry.

Example:
  filesync run
  filesync run unviewed_files --retries 1 --retry-delay 5m`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd, args)
		},
	}

	cmd.Flags().IntVar(&opts.Retries, "retries", 0, "retries per failed stage")
	cmd.Flags().DurationVar(&opts.RetryDelay, "retry-delay", 5*time.Minute, "delay between retries")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command, names []string) error {
	if opts.Retries < 0 {
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("--retries must not be negative, got %d", opts.Retries))
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	if opts.Retries > 0 {
		logger.Warn("retries enabled: a retried sync can append duplicate history rows", "retries", opts.Retries)
	}

	return runBranches(opts.RootOptions, cmd, names, config.NeedAll, func(ctx context.Context, b *branch.Branch) (any, error) {
		if opts.Retries == 0 {
			return b.Run(ctx)
		}
		return runWithRetries(ctx, b, opts.Retries, opts.RetryDelay, logger)
	})
}

// runWithRetries runs the branch stage by stage, retrying each stage.
func runWithRetries(ctx context.Context, b *branch.Branch, retries int, delay time.Duration, logger *slog.Logger) (*branch.RunReport, error) {
	report := &branch.RunReport{}
	logger = logger.With("branch", b.Name())

	var err error
	if report.Fetch, err = retry(ctx, retries, delay, logger, b.Fetch); err != nil {
		return report, err
	}
	if report.Sync, err = retry(ctx, retries, delay, logger, b.Sync); err != nil {
		return report, err
	}
	if report.Removed, err = retry(ctx, retries, delay, logger, b.Cleanup); err != nil {
		return report, err
	}
	return report, nil
}

// retry calls fn up to retries+1 times. Source refusals are not retried:
// they repeat until credentials or parameters change.
func retry[T any](ctx context.Context, retries int, delay time.Duration, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || attempt >= retries || source.IsAuthOrParameter(err) || ctx.Err() != nil {
			return v, err
		}

		logger.Warn("stage failed, retrying",
			"stage", branch.StageOf(err),
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return v, ctx.Err()
		case <-timer.C:
		}
	}
}
