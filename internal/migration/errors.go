package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dfryer1193/schemad/api"
)

// ErrStatusConflict means the ledger status of a migration forbids the
// requested operation.
var ErrStatusConflict = errors.New("migration status conflict")

// PlanningError means the inputs handed to Infer were malformed. It is a
// caller bug and is never retried.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return "failed to plan migration: " + e.Reason
}

func planningErrorf(format string, args ...any) *PlanningError {
	return &PlanningError{Reason: fmt.Sprintf(format, args...)}
}

// DestructiveChangeError is returned when a Policy rejects the warnings of a
// migration. Re-running with the matching acknowledgement clears it.
type DestructiveChangeError struct {
	Migration string
	Warnings  []api.DestructiveChangeWarning
}

func (e *DestructiveChangeError) Error() string {
	codes := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		codes[i] = fmt.Sprintf("%s at step %v", w.Code, w.Steps)
	}
	return fmt.Sprintf("migration %s has %d unacknowledged destructive change(s): %s",
		e.Migration, len(e.Warnings), strings.Join(codes, "; "))
}

// ExecutionError wraps a connector failure with the position of the failing
// step. StepIndex is 1-based.
type ExecutionError struct {
	Migration string
	StepIndex int
	Step      string
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("migration %s: %q failed after step %d: %v", e.Migration, e.Statement, e.StepIndex, e.Err)
	}
	return fmt.Sprintf("migration %s: step %d (%s) failed: %v", e.Migration, e.StepIndex, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// LedgerError covers every failure to read or write the migration ledger,
// including a checksum that no longer matches an applied record.
type LedgerError struct {
	Migration string
	Op        string
	Drift     bool
	Expected  string
	Actual    string
	Err       error
}

func (e *LedgerError) Error() string {
	if e.Drift {
		return fmt.Sprintf("migration %s: checksum drift: ledger has %s, migration has %s", e.Migration, e.Expected, e.Actual)
	}
	return fmt.Sprintf("migration %s: failed to %s: %v", e.Migration, e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
