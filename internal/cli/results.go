package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/filesync/internal/branch"
)

// branchResult is one branch's outcome in command output.
type branchResult struct {
	Branch string `json:"branch"`
	Report any    `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

type branchResults []branchResult

func (r branchResults) String() string {
	var sb strings.Builder
	for i, res := range r {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", res.Branch, describe(res.Report))
		if res.Error != "" {
			fmt.Fprintf(&sb, "\n  error: %s", res.Error)
		}
	}
	return sb.String()
}

func describe(report any) string {
	switch r := report.(type) {
	case *branch.FetchReport:
		if r == nil {
			return "not fetched"
		}
		return fmt.Sprintf("listed %d, downloaded %d, failed %d", r.Listed, r.Downloaded, len(r.Failures))
	case *branch.SyncReport:
		if r == nil {
			return "not synced"
		}
		return fmt.Sprintf("run %s: %d rows, %d uploaded (new %d, modified %d, unchanged %d)",
			r.RunID, r.Rows, r.Uploaded, r.Classified["new"], r.Classified["modified"], r.Classified["unchanged"])
	case int:
		return fmt.Sprintf("removed %d files", r)
	case *branch.RunReport:
		if r == nil {
			return "not run"
		}
		return "fetch: " + describe(r.Fetch) + "; sync: " + describe(r.Sync) + "; " + describe(r.Removed)
	case nil:
		return "no result"
	default:
		return fmt.Sprint(r)
	}
}

// forEachBranch runs fn for every branch concurrently. A failing branch
// does not stop the others (the group has no shared context); all errors
// are joined in branch order.
func forEachBranch(ctx context.Context, branches []*branch.Branch, fn func(context.Context, *branch.Branch) (any, error)) (branchResults, error) {
	results := make(branchResults, len(branches))
	errs := make([]error, len(branches))

	var g errgroup.Group
	for i, b := range branches {
		g.Go(func() error {
			report, err := fn(ctx, b)
			results[i] = branchResult{Branch: b.Name(), Report: report}
			if err != nil {
				results[i].Error = err.Error()
				errs[i] = err
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, errors.Join(errs...)
	}
	return results, nil
}
