package branch

import (
	"errors"
	"fmt"
)

// Stage names a step of a branch run, for RunError.
type Stage string

const (
	StageList        Stage = "list"
	StageDownload    Stage = "download"
	StageIndex       Stage = "index"
	StageScan        Stage = "scan"
	StageClassify    Stage = "classify"
	StageMaterialize Stage = "materialize"
	StageLoad        Stage = "load"
	StageCleanup     Stage = "cleanup"
)

// RunError reports a branch run that stopped.
type RunError struct {
	Branch string
	Stage  Stage
	File   string // set when the failure concerns one artifact
	Err    error
}

func (e *RunError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("branch %s: %s %s: %v", e.Branch, e.Stage, e.File, e.Err)
	}
	return fmt.Sprintf("branch %s: %s: %v", e.Branch, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the RunError in err's chain, or "".
func StageOf(err error) Stage {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stage
	}
	return ""
}

// FetchFailure records one artifact that could not be downloaded. The
// fetch continues past it; the artifact is picked up by a later run while
// the source still lists it as unviewed.
type FetchFailure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (f FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: %v", f.Name, f.Err)
}

func (f FetchFailure) Unwrap() error {
	return f.Err
}
