package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/rs/zerolog/log"
)

// Locker serializes appliers working on the same migration name across
// processes. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

type ApplyOptions struct {
	Namespace string
	Policy    Policy
	// Retry supersedes a Pending, Failed or RolledBack record instead of
	// refusing to run.
	Retry bool
}

type ApplyResult struct {
	Migration *api.Migration
	Skipped   bool
	Warnings  []api.DestructiveChangeWarning
	Execution *ExecutionResult
}

// Applier applies a named migration at most once, recording every attempt
// in the ledger.
type Applier struct {
	ledger repository.MigrationRepository
	steps  *StepApplier
	locker Locker
	now    func() time.Time
}

func NewApplier(ledger repository.MigrationRepository, steps *StepApplier, locker Locker) *Applier {
	return &Applier{
		ledger: ledger,
		steps:  steps,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs m under name on conn. An Applied record with the same checksum
// makes Apply a no-op; with a different checksum it is a drift LedgerError.
// The ledger is left Applied or Failed with the number of applied steps and
// the executed statements.
func (a *Applier) Apply(ctx context.Context, conn Connection, name string, m *DatabaseMigration, opts ApplyOptions) (*ApplyResult, error) {
	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, name)
		if err != nil {
			return nil, &LedgerError{Migration: name, Op: "lock migration", Err: err}
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Error().Err(err).Str("migration", name).Msg("Failed to release migration lock")
			}
		}()
	}

	checksum, err := m.Checksum()
	if err != nil {
		return nil, err
	}

	existing, err := a.ledger.ByName(ctx, name)
	if err != nil {
		return nil, &LedgerError{Migration: name, Op: "read ledger", Err: err}
	}
	if existing != nil {
		if existing.Status == api.StatusApplied {
			if existing.Checksum != checksum {
				return nil, &LedgerError{Migration: name, Drift: true, Expected: existing.Checksum, Actual: checksum}
			}
			log.Info().Str("migration", name).Msg("Migration already applied, skipping")
			return &ApplyResult{Migration: existing, Skipped: true}, nil
		}
		if !opts.Retry {
			return nil, &LedgerError{
				Migration: name,
				Op:        "start migration",
				Err:       fmt.Errorf("%w: ledger record is %s, retry must be requested explicitly", ErrStatusConflict, existing.Status),
			}
		}
	}

	warnings := Check(m)
	if err := opts.Policy.Enforce(name, warnings); err != nil {
		return &ApplyResult{Warnings: warnings}, err
	}

	record, err := a.start(ctx, name, checksum, opts.Namespace, existing != nil)
	if err != nil {
		return &ApplyResult{Warnings: warnings}, err
	}

	log.Info().Str("migration", name).Int("steps", m.Len()).Msg("Applying migration")
	execution, execErr := a.steps.Apply(ctx, name, m, conn)

	status := api.StatusApplied
	if execErr != nil {
		status = api.StatusFailed
		log.Error().Err(execErr).Str("migration", name).Msg("Migration failed")
	}
	finished := a.now()

	var final api.Migration
	updateErr := a.ledger.Update(context.WithoutCancel(ctx), name, func(r *api.Migration) error {
		r.Status = status
		r.FinishedAt = &finished
		r.AppliedStepsCount = execution.AppliedSteps
		r.Logs += execution.Logs
		if execErr != nil {
			r.Logs += "-- error: " + execErr.Error() + "\n"
		}
		final = *r
		return nil
	})

	result := &ApplyResult{Migration: record, Warnings: warnings, Execution: execution}
	if updateErr != nil {
		ledgerErr := &LedgerError{Migration: name, Op: "record migration outcome", Err: updateErr}
		if execErr != nil {
			return result, errors.Join(execErr, ledgerErr)
		}
		return result, ledgerErr
	}
	result.Migration = &final
	if execErr != nil {
		return result, execErr
	}

	log.Info().Str("migration", name).Int("steps", execution.AppliedSteps).Msg("Migration applied")
	return result, nil
}

// start records the Pending state, superseding an earlier attempt when retry
// is set.
func (a *Applier) start(ctx context.Context, name, checksum, namespace string, retry bool) (*api.Migration, error) {
	record := &api.Migration{
		Name:      name,
		Namespace: namespace,
		Checksum:  checksum,
		StartedAt: a.now(),
		Status:    api.StatusPending,
	}
	if !retry {
		if err := a.ledger.Save(ctx, record); err != nil {
			return nil, &LedgerError{Migration: name, Op: "record pending migration", Err: err}
		}
		return record, nil
	}

	err := a.ledger.Update(ctx, name, func(r *api.Migration) error {
		if r.Status == api.StatusApplied {
			return fmt.Errorf("%w: migration was applied concurrently", ErrStatusConflict)
		}
		logs := r.Logs
		if logs != "" {
			logs += fmt.Sprintf("-- retrying after %s attempt\n", r.Status)
		}
		*r = *record
		r.Logs = logs
		*record = *r
		return nil
	})
	if err != nil {
		return nil, &LedgerError{Migration: name, Op: "record retried migration", Err: err}
	}
	return record, nil
}

// MarkRolledBack records that an operator reverted a Pending or Failed
// migration by hand.
func (a *Applier) MarkRolledBack(ctx context.Context, name string) (*api.Migration, error) {
	var final api.Migration
	err := a.ledger.Update(ctx, name, func(r *api.Migration) error {
		if r.Status != api.StatusFailed && r.Status != api.StatusPending {
			return fmt.Errorf("%w: cannot mark a %s migration as rolled back", ErrStatusConflict, r.Status)
		}
		r.Status = api.StatusRolledBack
		r.Logs += "-- marked rolled back\n"
		final = *r
		return nil
	})
	if err != nil {
		return nil, &LedgerError{Migration: name, Op: "mark migration rolled back", Err: err}
	}
	return &final, nil
}
