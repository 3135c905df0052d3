// Package branch runs one artifact class end to end: fetch unviewed files
// from the source, classify them against the archive, load the run summary
// into the warehouse, and clean up the download directory.
//
// Within a branch every step is sequential. Distinct branches share nothing
// but the store and warehouse connections and may run concurrently.
package branch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/filesync/internal/branchdef"
	"github.com/roach88/filesync/internal/clock"
	"github.com/roach88/filesync/internal/dataset"
	"github.com/roach88/filesync/internal/detect"
	"github.com/roach88/filesync/internal/objstore"
	"github.com/roach88/filesync/internal/warehouse"
)

// Source lists and downloads unviewed files.
type Source interface {
	ListFiles(ctx context.Context, endpoint string) ([]string, error)
	DownloadFile(ctx context.Context, name string) ([]byte, error)
}

// Loader persists a run summary.
type Loader interface {
	Load(ctx context.Context, table string, ds dataset.Dataset) (*warehouse.LoadReport, error)
}

// Deps are the collaborators shared by branches.
type Deps struct {
	Source    Source
	Store     objstore.Store
	Warehouse Loader

	// Clock defaults to the wall clock.
	Clock clock.Clock
	// RunIDs defaults to UUIDv7 ids.
	RunIDs clock.RunIDGenerator
	// Metrics may be nil.
	Metrics *Metrics
	Logger  *slog.Logger
}

// Branch is one configured sync branch.
type Branch struct {
	def         branchdef.Definition
	downloadDir string
	scratchDir  string
	deps        Deps
	logger      *slog.Logger
}

// New creates a branch that downloads into downloadRoot/def.Dir.
func New(def branchdef.Definition, downloadRoot, scratchDir string, deps Deps) *Branch {
	if deps.Clock == nil {
		deps.Clock = clock.Wall{}
	}
	if deps.RunIDs == nil {
		deps.RunIDs = clock.UUIDv7Generator{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Branch{
		def:         def,
		downloadDir: filepath.Join(downloadRoot, def.Dir),
		scratchDir:  scratchDir,
		deps:        deps,
		logger:      logger.With("branch", def.Name),
	}
}

// Name returns the branch name.
func (b *Branch) Name() string {
	return b.def.Name
}

// Definition returns the branch definition.
func (b *Branch) Definition() branchdef.Definition {
	return b.def
}

// DownloadDir returns the local directory artifacts are fetched into.
func (b *Branch) DownloadDir() string {
	return b.downloadDir
}

func (b *Branch) fail(stage Stage, file string, err error) error {
	return &RunError{Branch: b.def.Name, Stage: stage, File: file, Err: err}
}

// FetchReport summarizes a fetch.
type FetchReport struct {
	Branch     string         `json:"branch"`
	Listed     int            `json:"listed"`
	Downloaded int            `json:"downloaded"`
	Failures   []FetchFailure `json:"failures,omitempty"`
}

// Fetch downloads every file the source lists as unviewed. A failure to
// list aborts; a failure on one file is recorded and the loop continues.
func (b *Branch) Fetch(ctx context.Context) (*FetchReport, error) {
	names, err := b.deps.Source.ListFiles(ctx, b.def.Endpoint)
	if err != nil {
		return nil, b.fail(StageList, "", err)
	}
	if err := os.MkdirAll(b.downloadDir, 0o755); err != nil {
		return nil, b.fail(StageDownload, "", err)
	}

	report := &FetchReport{Branch: b.def.Name, Listed: len(names)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, b.fail(StageDownload, name, err)
		}
		if err := b.download(ctx, name); err != nil {
			b.logger.Warn("download failed", "file", name, "error", err)
			report.Failures = append(report.Failures, FetchFailure{Name: name, Err: err})
			continue
		}
		report.Downloaded++
		b.logger.Debug("downloaded", "file", name)
	}

	b.deps.Metrics.addFetched(ctx, b.def.Name, report.Downloaded)
	b.deps.Metrics.addFetchFailures(ctx, b.def.Name, len(report.Failures))
	b.logger.Info("fetch complete",
		"listed", report.Listed,
		"downloaded", report.Downloaded,
		"failed", len(report.Failures),
	)
	return report, nil
}

func (b *Branch) download(ctx context.Context, name string) error {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return fmt.Errorf("refusing file name %q: not a plain file name", name)
	}
	body, err := b.deps.Source.DownloadFile(ctx, name)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.downloadDir, base), body, 0o644)
}

// SyncReport summarizes a sync.
type SyncReport struct {
	Branch     string                `json:"branch"`
	RunID      string                `json:"run_id"`
	Rows       int                   `json:"rows"`
	Uploaded   int                   `json:"uploaded"`
	Classified map[string]int        `json:"classified"`
	Results    []detect.Result       `json:"-"`
	Load       *warehouse.LoadReport `json:"load,omitempty"`
}

// Sync classifies every file in the download directory, in lexical path
// order, and loads the resulting summary. Any error aborts the run; uploads
// and renames already made stay made. A directory with no files loads
// nothing.
func (b *Branch) Sync(ctx context.Context) (*SyncReport, error) {
	runID := b.deps.RunIDs.Generate()
	logger := b.logger.With("run_id", runID)
	report := &SyncReport{Branch: b.def.Name, RunID: runID, Classified: map[string]int{}}

	artifacts, err := b.scan()
	if err != nil {
		return report, b.fail(StageScan, "", err)
	}

	index, err := detect.BuildIndex(ctx, b.deps.Store, b.def.Prefix)
	if err != nil {
		return report, b.fail(StageIndex, "", err)
	}
	logger.Debug("archive indexed", "archived", len(index), "local", len(artifacts))

	det := detect.New(b.deps.Store, detect.Options{
		Prefix:         b.def.Prefix,
		ScratchDir:     b.scratchDir,
		BinarySuffixes: b.def.BinarySuffixes,
		Logger:         logger,
	})
	for _, art := range artifacts {
		res, err := det.Classify(ctx, art, index, b.deps.Clock.Now())
		if err != nil {
			return report, b.fail(StageClassify, art.Name, err)
		}
		report.Results = append(report.Results, res)
		report.Classified[res.Classification.String()]++
		if res.UploadedKey != "" {
			report.Uploaded++
		}
		b.deps.Metrics.addClassified(ctx, b.def.Name, res.Classification.String())
	}

	if len(report.Results) == 0 {
		logger.Info("nothing to sync")
		return report, nil
	}

	ds := dataset.Materialize(report.Results)
	if err := ds.Validate(); err != nil {
		return report, b.fail(StageMaterialize, "", err)
	}
	report.Rows = ds.Len()

	report.Load, err = b.deps.Warehouse.Load(ctx, b.def.Table, ds)
	if err != nil {
		return report, b.fail(StageLoad, "", err)
	}
	b.deps.Metrics.addRowsLoaded(ctx, b.def.Name, report.Rows)

	logger.Info("sync complete",
		"rows", report.Rows,
		"uploaded", report.Uploaded,
		"new", report.Classified[detect.New.String()],
		"unchanged", report.Classified[detect.Unchanged.String()],
		"modified", report.Classified[detect.Modified.String()],
	)
	return report, nil
}

// scan lists the files under the download directory in lexical order.
func (b *Branch) scan() ([]detect.Artifact, error) {
	var arts []detect.Artifact
	err := filepath.WalkDir(b.downloadDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		arts = append(arts, detect.Artifact{Name: entry.Name(), Path: p})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return arts, err
}

// Cleanup removes every file except .csv files under the download
// directory and returns how many were removed.
func (b *Branch) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	err := filepath.WalkDir(b.downloadDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".csv") {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		removed++
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return removed, b.fail(StageCleanup, "", err)
	}
	b.logger.Info("cleanup complete", "removed", removed)
	return removed, nil
}

// RunReport summarizes a full run.
type RunReport struct {
	Fetch   *FetchReport `json:"fetch"`
	Sync    *SyncReport  `json:"sync"`
	Removed int          `json:"removed"`
}

// Run fetches, syncs and cleans up, stopping at the first error.
func (b *Branch) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}
	var err error
	if report.Fetch, err = b.Fetch(ctx); err != nil {
		return report, err
	}
	if report.Sync, err = b.Sync(ctx); err != nil {
		return report, err
	}
	if report.Removed, err = b.Cleanup(ctx); err != nil {
		return report, err
	}
	return report, nil
}
