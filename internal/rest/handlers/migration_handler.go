package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/rest/managers"
	"github.com/dfryer1193/schemad/internal/utils"
	mjolnirUtils "github.com/dfryer1193/mjolnir/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type MigrationManager interface {
	Plan(ctx context.Context, req *api.PlanRequest) (*api.PlanResponse, error)
	Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error)
	GetMigrations(ctx context.Context) ([]*api.Migration, error)
	GetMigration(ctx context.Context, name string) (*api.Migration, error)
	GetMigrationLogs(ctx context.Context, name string) ([]utils.Attempt, error)
	MarkRolledBack(ctx context.Context, name string) (*api.Migration, error)
	Reset(ctx context.Context, req *api.ResetRequest) error
}

type NamespaceManager interface {
	GetNamespaces(ctx context.Context) ([]string, error)
}

type MigrationHandler struct {
	migrationsMgr MigrationManager
	namespacesMgr NamespaceManager
}

func NewMigrationHandler(migrations MigrationManager, namespaces NamespaceManager) *MigrationHandler {
	return &MigrationHandler{
		migrationsMgr: migrations,
		namespacesMgr: namespaces,
	}
}

func (h *MigrationHandler) GetNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.namespacesMgr.GetNamespaces(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("error fetching namespaces: %w", err))
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, &api.NamespaceList{Namespaces: namespaces})
}

func (h *MigrationHandler) GetMigrations(w http.ResponseWriter, r *http.Request) {
	migrations, err := h.migrationsMgr.GetMigrations(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, &api.MigrationList{Migrations: migrations})
}

func (h *MigrationHandler) GetMigration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, err := h.migrationsMgr.GetMigration(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if m == nil {
		respondError(w, r, fmt.Errorf("%w: %s", repository.ErrMigrationNotFound, name))
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, m)
}

func (h *MigrationHandler) GetMigrationLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	attempts, err := h.migrationsMgr.GetMigrationLogs(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if attempts == nil {
		respondError(w, r, fmt.Errorf("%w: %s", repository.ErrMigrationNotFound, name))
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, attempts)
}

func (h *MigrationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req api.PlanRequest
	if _, err := mjolnirUtils.DecodeJSON(r, &req); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid request body: %v", managers.ErrBadRequest, err))
		return
	}

	plan, err := h.migrationsMgr.Plan(r.Context(), &req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, plan)
}

func (h *MigrationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req api.ApplyRequest
	if _, err := mjolnirUtils.DecodeJSON(r, &req); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid request body: %v", managers.ErrBadRequest, err))
		return
	}

	resp, err := h.migrationsMgr.Apply(r.Context(), &req)
	if err != nil {
		var body *api.ErrorResponse
		if resp != nil {
			body = &api.ErrorResponse{Warnings: resp.Warnings, Migration: resp.Migration}
		}
		respondErrorWith(w, r, err, body)
		return
	}

	log.Info().Str("migration", req.Name).Bool("skipped", resp.Skipped).Msg("Migration applied")
	mjolnirUtils.RespondJSON(w, r, http.StatusOK, resp)
}

func (h *MigrationHandler) MarkRolledBack(w http.ResponseWriter, r *http.Request) {
	m, err := h.migrationsMgr.MarkRolledBack(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	mjolnirUtils.RespondJSON(w, r, http.StatusOK, m)
}

func (h *MigrationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req api.ResetRequest
	if _, err := mjolnirUtils.DecodeJSON(r, &req); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid request body: %v", managers.ErrBadRequest, err))
		return
	}

	if err := h.migrationsMgr.Reset(r.Context(), &req); err != nil {
		respondError(w, r, err)
		return
	}

	log.Warn().Str("namespace", req.Namespace).Msg("Database reset")
	w.WriteHeader(http.StatusNoContent)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorWith(w, r, err, nil)
}

// respondErrorWith maps err to a status code. body, when set, carries the
// warnings and ledger record that go with the error.
func respondErrorWith(w http.ResponseWriter, r *http.Request, err error, body *api.ErrorResponse) {
	if body == nil {
		body = &api.ErrorResponse{}
	}
	body.Error = err.Error()

	var (
		planningErr    *migration.PlanningError
		destructiveErr *migration.DestructiveChangeError
		ledgerErr      *migration.LedgerError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, managers.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.As(err, &planningErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &destructiveErr):
		status = http.StatusConflict
		body.Warnings = destructiveErr.Warnings
	case errors.Is(err, repository.ErrMigrationNotFound):
		status = http.StatusNotFound
	case errors.As(err, &ledgerErr) && ledgerErr.Drift,
		errors.Is(err, migration.ErrStatusConflict),
		errors.Is(err, repository.ErrMigrationExists):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	mjolnirUtils.RespondJSON(w, r, status, body)
}
