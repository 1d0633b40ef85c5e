package migration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStepApplierApply(t *testing.T) {
	testCases := []struct {
		name          string
		transactional bool
		failOn        string
		wantApplied   int
		wantExecuted  []string
		wantStepIndex int
		wantRollback  bool
	}{
		{
			name:          "transactional success",
			transactional: true,
			wantApplied:   4,
			wantExecuted: []string{
				"CreateTable users",
				"CreateTable posts",
				"CreateIndex posts index posts_author_idx",
				"AddForeignKey posts foreign key posts_author_fkey",
			},
		},
		{
			name:          "transactional failure rolls everything back",
			transactional: true,
			failOn:        "CreateIndex posts index posts_author_idx",
			wantApplied:   0,
			wantExecuted:  []string{"CreateTable users", "CreateTable posts"},
			wantStepIndex: 3,
			wantRollback:  true,
		},
		{
			name:          "non-transactional failure stops at the failing step",
			transactional: false,
			failOn:        "CreateTable posts",
			wantApplied:   1,
			wantExecuted:  []string{"CreateTable users"},
			wantStepIndex: 2,
		},
		{
			name:          "non-transactional success",
			transactional: false,
			wantApplied:   4,
			wantExecuted: []string{
				"CreateTable users",
				"CreateTable posts",
				"CreateIndex posts index posts_author_idx",
				"AddForeignKey posts foreign key posts_author_fkey",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := mustInfer(t, emptySchema, blogSchema)
			conn := &mockConnection{transactional: tc.transactional, failOn: tc.failOn}
			applier := NewStepApplier(fakeRenderer{}, time.Second)

			result, err := applier.Apply(context.Background(), "001_init", m, conn)

			if result.AppliedSteps != tc.wantApplied {
				t.Errorf("AppliedSteps = %d, want %d", result.AppliedSteps, tc.wantApplied)
			}
			if diff := cmp.Diff(tc.wantExecuted, conn.executed); diff != "" {
				t.Errorf("executed statements mismatch (-want +got):\n%s", diff)
			}

			if tc.wantStepIndex == 0 {
				if err != nil {
					t.Fatalf("Apply() error = %v", err)
				}
				if tc.transactional && !conn.tx.committed {
					t.Errorf("transaction was not committed")
				}
				return
			}

			var execErr *ExecutionError
			if !errors.As(err, &execErr) {
				t.Fatalf("Apply() error = %v, want *ExecutionError", err)
			}
			if execErr.StepIndex != tc.wantStepIndex {
				t.Errorf("StepIndex = %d, want %d", execErr.StepIndex, tc.wantStepIndex)
			}
			if execErr.Statement != tc.failOn {
				t.Errorf("Statement = %q, want %q", execErr.Statement, tc.failOn)
			}
			if !strings.Contains(err.Error(), "001_init") {
				t.Errorf("error %q does not name the migration", err)
			}
			if tc.wantRollback && (conn.tx == nil || !conn.tx.rolledBack || conn.tx.committed) {
				t.Errorf("transaction was not rolled back")
			}
			if !strings.Contains(result.Logs, "-- failed:") {
				t.Errorf("logs do not record the failure: %q", result.Logs)
			}
		})
	}
}

func TestStepApplierRendersBeforeExecuting(t *testing.T) {
	m := mustInfer(t, emptySchema, blogSchema)
	conn := &mockConnection{transactional: false}
	applier := NewStepApplier(fakeRenderer{fail: true, failOn: StepAddForeignKey}, 0)

	result, err := applier.Apply(context.Background(), "001_init", m, conn)

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Apply() error = %v, want *ExecutionError", err)
	}
	if execErr.StepIndex != 4 {
		t.Errorf("StepIndex = %d, want 4", execErr.StepIndex)
	}
	if len(conn.executed) != 0 || result.AppliedSteps != 0 {
		t.Errorf("statements executed before rendering finished: %v", conn.executed)
	}
}

func TestStepApplierStatementTimeout(t *testing.T) {
	m := mustInfer(t, emptySchema, usersSchema)
	conn := &mockConnection{transactional: false, block: true}
	applier := NewStepApplier(fakeRenderer{}, 10*time.Millisecond)

	_, err := applier.Apply(context.Background(), "001_init", m, conn)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Apply() error = %v, want deadline exceeded", err)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.StepIndex != 1 {
		t.Errorf("Apply() error = %v, want failure at step 1", err)
	}
}

func TestStepApplierCommitFailure(t *testing.T) {
	m := mustInfer(t, emptySchema, usersSchema)
	conn := &mockConnection{transactional: true, commitErr: errors.New("serialization failure")}
	applier := NewStepApplier(fakeRenderer{}, 0)

	result, err := applier.Apply(context.Background(), "001_init", m, conn)

	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Statement != "COMMIT" {
		t.Fatalf("Apply() error = %v, want commit failure", err)
	}
	if result.AppliedSteps != 0 {
		t.Errorf("AppliedSteps = %d, want 0", result.AppliedSteps)
	}
}

func TestStepApplierEmptyMigration(t *testing.T) {
	m := mustInfer(t, usersSchema, usersSchema)
	conn := &mockConnection{transactional: true}

	result, err := NewStepApplier(fakeRenderer{}, 0).Apply(context.Background(), "noop", m, conn)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.AppliedSteps != 0 || conn.tx != nil {
		t.Errorf("empty migration should not open a transaction")
	}
}
