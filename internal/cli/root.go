package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/filesync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	ConfigFile   string
	BranchesFile string

	Metrics         bool
	MetricsInterval time.Duration

	// Provider overrides environment and config file resolution (for testing).
	Provider config.Provider
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the filesync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filesync",
		Short: "Archive unviewed remittance files and load run summaries",
		Long: `filesync polls the file service for unviewed files, archives new and
modified files in the object store, and loads a per-run summary into the
staging, raw and history tables of the warehouse.

Configuration comes from FILESYNC_* environment variables and an optional
config file, e.g. FILESYNC_SOURCE_USERNAME or source.username.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "export run metrics as JSON to stderr")
	cmd.PersistentFlags().DurationVar(&opts.MetricsInterval, "metrics-interval", time.Minute, "metrics export interval (a final export always runs on exit)")
	cmd.PersistentFlags().StringVar(&opts.BranchesFile, "branches", "", "branch definitions file (defaults to the built-in branches)")

	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewBootstrapCommand(opts))
	cmd.AddCommand(NewBranchesCommand(opts))
	cmd.AddCommand(NewPayersCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stderr in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	errCode := ErrCodeRunFailed
	if code == ExitCommandError {
		errCode = ErrCodeConfig
	}
	format := opts.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: stderr}
	if ferr := f.Error(errCode, err.Error(), nil); ferr != nil {
		fmt.Fprintln(stderr, err)
	}
	return code
}

// newLogger builds the command logger: text on w, debug level with --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	format := o.Format
	if format == "" {
		format = "text"
	}
	return &OutputFormatter{Format: format, Writer: cmd.OutOrStdout()}
}

// provider returns the configured provider, resolving viper lazily.
func (o *RootOptions) provider() (config.Provider, error) {
	if o.Provider != nil {
		return o.Provider, nil
	}
	return config.NewViperProvider(o.ConfigFile)
}
