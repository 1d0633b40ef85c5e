package managers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/connector"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/dfryer1193/schemad/internal/utils"
	"github.com/rs/zerolog/log"
)

// ErrBadRequest marks errors caused by the request itself.
var ErrBadRequest = errors.New("bad request")

type MigrationManager struct {
	connector connector.Connector
	steps     *migration.StepApplier
	applier   *migration.Applier
}

func NewMigrationManager(c connector.Connector, timeout time.Duration) *MigrationManager {
	steps := migration.NewStepApplier(c.Renderer(), timeout)
	return &MigrationManager{
		connector: c,
		steps:     steps,
		applier:   migration.NewApplier(c.Ledger(), steps, c.Locker()),
	}
}

func (mgr *MigrationManager) Close() {
	mgr.connector.Close()
}

// Plan infers the migration from the live schema to the requested one and
// renders it without touching the database.
func (mgr *MigrationManager) Plan(ctx context.Context, req *api.PlanRequest) (*api.PlanResponse, error) {
	m, err := mgr.infer(ctx, req)
	if err != nil {
		return nil, err
	}

	checksum, err := m.Checksum()
	if err != nil {
		return nil, fmt.Errorf("failed to checksum migration: %w", err)
	}
	rendered, err := mgr.steps.Render("plan", m)
	if err != nil {
		// The dialect cannot express one of the steps.
		return nil, &migration.PlanningError{Reason: err.Error()}
	}

	steps := make([]api.PlannedStep, m.Len())
	for i, step := range m.Steps {
		steps[i] = api.PlannedStep{
			Index:       i,
			Kind:        step.Kind().String(),
			Description: m.Describe(i),
			Statements:  rendered[i],
		}
	}

	return &api.PlanResponse{
		Checksum: checksum,
		Steps:    steps,
		Warnings: migration.Check(m),
	}, nil
}

// Apply plans the migration and applies it under req.Name. A name already
// applied is skipped when the live schema already matches the request.
func (mgr *MigrationManager) Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}

	m, err := mgr.infer(ctx, &req.PlanRequest)
	if err != nil {
		return nil, err
	}

	existing, err := mgr.connector.Ledger().ByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch migration %s: %w", req.Name, err)
	}
	if existing != nil && existing.Status == api.StatusApplied && m.IsEmpty() {
		log.Info().Str("migration", req.Name).Msg("Schema already matches, skipping")
		return &api.ApplyResponse{Migration: existing, Skipped: true, Warnings: []api.DestructiveChangeWarning{}}, nil
	}

	result, err := mgr.applier.Apply(ctx, mgr.connector.Connection(), req.Name, m, migration.ApplyOptions{
		Namespace: req.Namespace,
		Policy:    migration.Policy{AcceptDataLoss: req.AcceptDataLoss, Force: req.Force},
		Retry:     req.Retry,
	})

	resp := &api.ApplyResponse{Warnings: []api.DestructiveChangeWarning{}}
	if result != nil {
		resp.Migration = result.Migration
		resp.Skipped = result.Skipped
		if result.Warnings != nil {
			resp.Warnings = result.Warnings
		}
	}
	return resp, err
}

func (mgr *MigrationManager) GetMigrations(ctx context.Context) ([]*api.Migration, error) {
	migrations, err := mgr.connector.Ledger().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch migrations: %w", err)
	}
	if migrations == nil {
		migrations = []*api.Migration{}
	}
	return migrations, nil
}

// GetMigration returns nil without error when no migration has the name.
func (mgr *MigrationManager) GetMigration(ctx context.Context, name string) (*api.Migration, error) {
	m, err := mgr.connector.Ledger().ByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch migration %s: %w", name, err)
	}
	return m, nil
}

// GetMigrationLogs returns the recorded attempts of a migration, or nil
// when no migration has the name.
func (mgr *MigrationManager) GetMigrationLogs(ctx context.Context, name string) ([]utils.Attempt, error) {
	m, err := mgr.GetMigration(ctx, name)
	if err != nil || m == nil {
		return nil, err
	}
	attempts, err := utils.ParseLogs(m.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse logs of migration %s: %w", name, err)
	}
	return attempts, nil
}

func (mgr *MigrationManager) MarkRolledBack(ctx context.Context, name string) (*api.Migration, error) {
	return mgr.applier.MarkRolledBack(ctx, name)
}

func (mgr *MigrationManager) Reset(ctx context.Context, req *api.ResetRequest) error {
	if !req.Confirm {
		return fmt.Errorf("%w: reset must be confirmed", ErrBadRequest)
	}
	return connector.Reset(ctx, mgr.connector, req.Namespace)
}

func (mgr *MigrationManager) infer(ctx context.Context, req *api.PlanRequest) (*migration.DatabaseMigration, error) {
	if len(req.Schema) == 0 {
		return nil, fmt.Errorf("%w: schema is required", ErrBadRequest)
	}
	desc, err := schema.ReadDescription(bytes.NewReader(req.Schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	desired, err := desc.InNamespace(req.Namespace).Build()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid schema: %v", ErrBadRequest, err)
	}

	current, err := mgr.connector.Describe(ctx, req.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to describe database: %w", err)
	}

	return migration.Infer(current, desired, renameHints(req.Namespace, req.Renames))
}

// renameHints qualifies unqualified table names with namespace.
func renameHints(namespace string, req *api.RenameRequest) migration.RenameHints {
	hints := migration.RenameHints{}
	if req == nil {
		return hints
	}

	qualify := func(name string) string {
		if namespace == "" || strings.Contains(name, ".") {
			return name
		}
		return namespace + "." + name
	}

	if len(req.Tables) > 0 {
		hints.Tables = make(map[string]string, len(req.Tables))
		for from, to := range req.Tables {
			hints.Tables[qualify(from)] = qualify(to)
		}
	}
	if len(req.Columns) > 0 {
		hints.Columns = make(map[migration.ColumnRef]string, len(req.Columns))
		for _, c := range req.Columns {
			hints.Columns[migration.ColumnRef{Table: qualify(c.Table), Column: c.From}] = c.To
		}
	}
	return hints
}
