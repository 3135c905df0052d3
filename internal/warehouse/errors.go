package warehouse

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failed statement.
type Kind string

const (
	// KindContext is a failure to select role, database or schema.
	KindContext Kind = "CONTEXT"
	// KindCatalog is a failure reading table or column metadata.
	KindCatalog Kind = "CATALOG"
	// KindSchemaEvolution is a failure creating or altering a table.
	KindSchemaEvolution Kind = "SCHEMA_EVOLUTION"
	// KindDataMovement is a failure dropping, truncating or inserting.
	KindDataMovement Kind = "DATA_MOVEMENT"
)

// Stage names one step of a load.
type Stage string

const (
	StageSetExecutionContext Stage = "set_execution_context"
	StageReplaceStaging      Stage = "replace_staging"
	StageEnsureRaw           Stage = "ensure_raw"
	StageEnsureHistory       Stage = "ensure_history"
	StageComputeSchemaDelta  Stage = "compute_schema_delta"
	StageWidenRaw            Stage = "widen_raw"
	StageWidenHistory        Stage = "widen_history"
	StageReloadRaw           Stage = "reload_raw"
	StageAppendHistory       Stage = "append_history"
)

// StatementError reports one failed statement.
type StatementError struct {
	Kind Kind
	SQL  string
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.SQL, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// LoadError reports a load that stopped part-way. Stages in Completed were
// applied and are not rolled back.
type LoadError struct {
	Stage     Stage
	Kind      Kind
	Table     string
	Completed []Stage
	Err       error
}

func (e *LoadError) Error() string {
	done := make([]string, len(e.Completed))
	for i, s := range e.Completed {
		done[i] = string(s)
	}
	return fmt.Sprintf("load %s failed at %s (%s; completed: [%s]): %v",
		e.Table, e.Stage, e.Kind, strings.Join(done, ", "), e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first LoadError or StatementError in err's
// chain, or "" when there is none.
func KindOf(err error) Kind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	var se *StatementError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsSchemaEvolution reports whether err is a failed create or alter.
func IsSchemaEvolution(err error) bool {
	return KindOf(err) == KindSchemaEvolution
}

// IsDataMovement reports whether err is a failed drop, truncate or insert.
func IsDataMovement(err error) bool {
	return KindOf(err) == KindDataMovement
}
