package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Renderer turns one step into the statements of a SQL dialect. It may
// return no statements for steps the dialect folds into another one.
type Renderer interface {
	Render(m *DatabaseMigration, step MigrationStep) ([]string, error)
}

type Execer interface {
	Exec(ctx context.Context, statement string) error
}

type Tx interface {
	Execer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a live database connection owned by one Apply call.
type Connection interface {
	Execer
	Begin(ctx context.Context) (Tx, error)
	SupportsTransactionalDDL() bool
}

type ExecutionResult struct {
	// AppliedSteps counts the steps whose statements are durably applied.
	AppliedSteps int
	Statements   []string
	Logs         string
}

type StepApplier struct {
	renderer Renderer
	timeout  time.Duration
}

// NewStepApplier returns a StepApplier that bounds every statement by
// timeout. A zero timeout leaves statements bounded only by the caller's
// context.
func NewStepApplier(renderer Renderer, timeout time.Duration) *StepApplier {
	return &StepApplier{renderer: renderer, timeout: timeout}
}

type renderedStep struct {
	description string
	statements  []string
}

// Render renders every step of m without executing anything.
func (a *StepApplier) Render(name string, m *DatabaseMigration) ([][]string, error) {
	rendered, err := a.render(name, m)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(rendered))
	for i, r := range rendered {
		out[i] = r.statements
	}
	return out, nil
}

func (a *StepApplier) render(name string, m *DatabaseMigration) ([]renderedStep, error) {
	out := make([]renderedStep, len(m.Steps))
	for i, step := range m.Steps {
		statements, err := a.renderer.Render(m, step)
		if err != nil {
			return nil, &ExecutionError{
				Migration: name,
				StepIndex: i + 1,
				Step:      m.Describe(i),
				Err:       fmt.Errorf("failed to render step: %w", err),
			}
		}
		out[i] = renderedStep{description: m.Describe(i), statements: statements}
	}
	return out, nil
}

// Apply executes the steps of m in order on conn. Every step is rendered
// before the first statement runs. When conn supports transactional DDL the
// whole migration is one transaction; otherwise execution stops at the first
// failing step and the steps before it stay applied. Nothing is retried.
func (a *StepApplier) Apply(ctx context.Context, name string, m *DatabaseMigration, conn Connection) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	rendered, err := a.render(name, m)
	if err != nil {
		return result, err
	}
	if len(rendered) == 0 {
		return result, nil
	}

	var logs strings.Builder
	defer func() { result.Logs = logs.String() }()

	if !conn.SupportsTransactionalDDL() {
		for i, step := range rendered {
			if err := a.execStep(ctx, name, conn, i, step, result, &logs); err != nil {
				return result, err
			}
			result.AppliedSteps = i + 1
		}
		return result, nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return result, &ExecutionError{Migration: name, StepIndex: 1, Step: rendered[0].description, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	for i, step := range rendered {
		if err := a.execStep(ctx, name, tx, i, step, result, &logs); err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				log.Error().Err(rbErr).Str("migration", name).Msg("Failed to roll back migration")
			}
			fmt.Fprintf(&logs, "-- rolled back\n")
			return result, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		fmt.Fprintf(&logs, "-- commit failed: %v\n", err)
		return result, &ExecutionError{Migration: name, StepIndex: len(rendered), Statement: "COMMIT", Err: err}
	}
	result.AppliedSteps = len(rendered)
	return result, nil
}

func (a *StepApplier) execStep(ctx context.Context, name string, exec Execer, i int, step renderedStep, result *ExecutionResult, logs *strings.Builder) error {
	fmt.Fprintf(logs, "-- step %d: %s\n", i+1, step.description)
	for _, stmt := range step.statements {
		log.Debug().Str("migration", name).Int("step", i+1).Str("statement", stmt).Msg("Executing statement")
		if err := a.exec(ctx, exec, stmt); err != nil {
			fmt.Fprintf(logs, "%s;\n-- failed: %v\n", stmt, err)
			return &ExecutionError{Migration: name, StepIndex: i + 1, Step: step.description, Statement: stmt, Err: err}
		}
		fmt.Fprintf(logs, "%s;\n", stmt)
		result.Statements = append(result.Statements, stmt)
	}
	return nil
}

func (a *StepApplier) exec(ctx context.Context, exec Execer, stmt string) error {
	if a.timeout <= 0 {
		return exec.Exec(ctx, stmt)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return exec.Exec(ctx, stmt)
}
