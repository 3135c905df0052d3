package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/roach88/filesync/internal/branch"
	"github.com/roach88/filesync/internal/branchdef"
	"github.com/roach88/filesync/internal/config"
	"github.com/roach88/filesync/internal/objstore"
	"github.com/roach88/filesync/internal/source"
	"github.com/roach88/filesync/internal/warehouse"
)

// app holds the collaborators a command needs. Only the sections requested
// at construction are connected.
type app struct {
	cfg     *config.Config
	defs    []branchdef.Definition
	logger  *slog.Logger
	source  *source.Client
	store   objstore.Store
	wh      *warehouse.Warehouse
	metrics *branch.Metrics

	meterProvider *sdkmetric.MeterProvider
}

// newApp loads configuration and connects what need selects. Failures are
// command errors: nothing has run yet.
func newApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, need config.Need) (*app, error) {
	logger := opts.newLogger(cmd.ErrOrStderr())

	p, err := opts.provider()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read configuration", err)
	}
	cfg, err := config.Load(p, need)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	branchesFile := cfg.BranchesFile
	if opts.BranchesFile != "" {
		branchesFile = opts.BranchesFile
	}
	defs, err := branchdef.Load(branchesFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid branch definitions", err)
	}

	a := &app{cfg: cfg, defs: defs, logger: logger}

	if need&config.NeedSource != 0 {
		a.source, err = source.NewClient(source.Options{
			BaseURL:  cfg.Source.BaseURL,
			Username: cfg.Source.Username,
			Password: cfg.Source.Password,
			Timeout:  cfg.Source.Timeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create source client", err)
		}
	}

	if need&config.NeedStore != 0 {
		a.store, err = openStore(ctx, cfg.Store)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open object store", err)
		}
	}

	if need&config.NeedWarehouse != 0 {
		w := cfg.Warehouse
		logger.Debug("opening warehouse", "dialect", w.Dialect)
		a.wh, err = warehouse.Open(ctx, warehouse.Settings{
			Dialect:       w.Dialect,
			DSN:           w.DSN,
			Role:          w.Role,
			Database:      w.Database,
			StagingSchema: w.StagingSchema,
			RawSchema:     w.RawSchema,
			HistorySchema: w.HistorySchema,
			Principal:     w.Principal,
			Logger:        logger,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open warehouse", err)
		}
	}

	if opts.Metrics {
		a.meterProvider, err = newMeterProvider(cmd.ErrOrStderr(), opts.MetricsInterval)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to start metrics export", err)
		}
		a.metrics, err = branch.NewMetrics(a.meterProvider.Meter(branch.MeterName))
	} else {
		a.metrics, err = branch.DefaultMetrics()
	}
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	return a, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (objstore.Store, error) {
	switch sc.Kind {
	case config.StoreS3:
		return objstore.NewS3(ctx, objstore.S3Config{
			Bucket:          sc.Bucket,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
		})
	case config.StoreDir:
		return objstore.NewDir(sc.Dir)
	default:
		return nil, fmt.Errorf("unknown store kind %q", sc.Kind)
	}
}

// Close releases the warehouse connection and flushes metrics.
func (a *app) Close() {
	if a.wh != nil {
		if err := a.wh.Close(); err != nil {
			a.logger.Error("error closing warehouse", "error", err)
		}
	}
	if a.meterProvider != nil {
		if err := shutdownMeterProvider(a.meterProvider); err != nil {
			a.logger.Error("error exporting metrics", "error", err)
		}
	}
}

// branches builds the named branches, or all of them when names is empty.
func (a *app) branches(names []string) ([]*branch.Branch, error) {
	defs, err := branchdef.Select(a.defs, names)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	deps := branch.Deps{
		Store:   a.store,
		Metrics: a.metrics,
		Logger:  a.logger,
	}
	// Leave unconnected collaborators as nil interfaces.
	if a.source != nil {
		deps.Source = a.source
	}
	if a.wh != nil {
		deps.Warehouse = a.wh
	}

	out := make([]*branch.Branch, len(defs))
	for i, d := range defs {
		out[i] = branch.New(d, a.cfg.DownloadRoot, a.cfg.ScratchDir, deps)
	}
	return out, nil
}

// runFailure wraps a branch failure for exit code mapping, keeping command
// errors as they are.
func runFailure(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitFailure, "run failed", err)
}
