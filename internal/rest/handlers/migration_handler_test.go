package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/rest/managers"
	"github.com/dfryer1193/schemad/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

type MockMigrationManager struct {
	migration *api.Migration
	attempts  []utils.Attempt
	plan      *api.PlanResponse
	apply     *api.ApplyResponse
	err       error
}

func (m *MockMigrationManager) Plan(_ context.Context, _ *api.PlanRequest) (*api.PlanResponse, error) {
	return m.plan, m.err
}

func (m *MockMigrationManager) Apply(_ context.Context, _ *api.ApplyRequest) (*api.ApplyResponse, error) {
	return m.apply, m.err
}

func (m *MockMigrationManager) GetMigrations(_ context.Context) ([]*api.Migration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*api.Migration{m.migration}, nil
}

func (m *MockMigrationManager) GetMigration(_ context.Context, _ string) (*api.Migration, error) {
	return m.migration, m.err
}

func (m *MockMigrationManager) GetMigrationLogs(_ context.Context, _ string) ([]utils.Attempt, error) {
	return m.attempts, m.err
}

func (m *MockMigrationManager) MarkRolledBack(_ context.Context, _ string) (*api.Migration, error) {
	return m.migration, m.err
}

func (m *MockMigrationManager) Reset(_ context.Context, _ *api.ResetRequest) error {
	return m.err
}

type MockNamespaceManager struct {
	namespaces []string
	err        error
}

func (m *MockNamespaceManager) GetNamespaces(_ context.Context) ([]string, error) {
	return m.namespaces, m.err
}

func newTestRouter(h *MigrationHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/namespaces", h.GetNamespaces)
	r.Get("/migrations", h.GetMigrations)
	r.Get("/migrations/{name}", h.GetMigration)
	r.Get("/migrations/{name}/logs", h.GetMigrationLogs)
	r.Post("/plan", h.Plan)
	r.Post("/apply", h.Apply)
	r.Post("/migrations/{name}/rolled-back", h.MarkRolledBack)
	r.Post("/reset", h.Reset)
	return r
}

func TestMigrationHandlerStatus(t *testing.T) {
	applied := &api.Migration{Name: "001_init", Status: api.StatusApplied}
	validPlan := `{"namespace": "app", "schema": {"tables": []}}`

	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		manager    *MockMigrationManager
		wantStatus int
	}{
		{
			name:       "list migrations",
			method:     http.MethodGet,
			path:       "/migrations",
			manager:    &MockMigrationManager{migration: applied},
			wantStatus: http.StatusOK,
		},
		{
			name:       "list migrations error",
			method:     http.MethodGet,
			path:       "/migrations",
			manager:    &MockMigrationManager{err: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "get migration",
			method:     http.MethodGet,
			path:       "/migrations/001_init",
			manager:    &MockMigrationManager{migration: applied},
			wantStatus: http.StatusOK,
		},
		{
			name:       "get missing migration",
			method:     http.MethodGet,
			path:       "/migrations/nope",
			manager:    &MockMigrationManager{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "logs of missing migration",
			method:     http.MethodGet,
			path:       "/migrations/nope/logs",
			manager:    &MockMigrationManager{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "logs",
			method:     http.MethodGet,
			path:       "/migrations/001_init/logs",
			manager:    &MockMigrationManager{attempts: []utils.Attempt{{}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "plan with bad json",
			method:     http.MethodPost,
			path:       "/plan",
			body:       "invalid json",
			manager:    &MockMigrationManager{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "plan with invalid schema",
			method:     http.MethodPost,
			path:       "/plan",
			body:       validPlan,
			manager:    &MockMigrationManager{err: fmt.Errorf("%w: invalid schema", managers.ErrBadRequest)},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "plan with malformed inputs",
			method:     http.MethodPost,
			path:       "/plan",
			body:       validPlan,
			manager:    &MockMigrationManager{err: &migration.PlanningError{Reason: "unknown table id"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "plan",
			method:     http.MethodPost,
			path:       "/plan",
			body:       validPlan,
			manager:    &MockMigrationManager{plan: &api.PlanResponse{Steps: []api.PlannedStep{}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "apply destructive",
			method:     http.MethodPost,
			path:       "/apply",
			body:       validPlan,
			manager:    &MockMigrationManager{err: &migration.DestructiveChangeError{Migration: "002_drop"}},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "apply with drift",
			method:     http.MethodPost,
			path:       "/apply",
			body:       validPlan,
			manager:    &MockMigrationManager{err: &migration.LedgerError{Migration: "001_init", Drift: true}},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "apply over failed record",
			method: http.MethodPost,
			path:   "/apply",
			body:   validPlan,
			manager: &MockMigrationManager{err: &migration.LedgerError{
				Migration: "001_init",
				Op:        "start migration",
				Err:       fmt.Errorf("%w: ledger record is Failed", migration.ErrStatusConflict),
			}},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "apply execution failure",
			method: http.MethodPost,
			path:   "/apply",
			body:   validPlan,
			manager: &MockMigrationManager{
				apply: &api.ApplyResponse{Migration: &api.Migration{Name: "001_init", Status: api.StatusFailed}},
				err:   &migration.ExecutionError{Migration: "001_init", StepIndex: 1, Err: errors.New("syntax error")},
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "apply",
			method:     http.MethodPost,
			path:       "/apply",
			body:       validPlan,
			manager:    &MockMigrationManager{apply: &api.ApplyResponse{Migration: applied}},
			wantStatus: http.StatusOK,
		},
		{
			name:   "mark missing migration rolled back",
			method: http.MethodPost,
			path:   "/migrations/nope/rolled-back",
			manager: &MockMigrationManager{err: &migration.LedgerError{
				Migration: "nope",
				Op:        "mark migration rolled back",
				Err:       fmt.Errorf("%w: nope", repository.ErrMigrationNotFound),
			}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "reset",
			method:     http.MethodPost,
			path:       "/reset",
			body:       `{"namespace": "app", "confirm": true}`,
			manager:    &MockMigrationManager{},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMigrationHandler(tc.manager, &MockNamespaceManager{})
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			newTestRouter(h).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestApplyErrorBodyCarriesRecord(t *testing.T) {
	failed := &api.Migration{Name: "001_init", Status: api.StatusFailed, AppliedStepsCount: 2}
	h := NewMigrationHandler(&MockMigrationManager{
		apply: &api.ApplyResponse{Migration: failed},
		err:   &migration.ExecutionError{Migration: "001_init", StepIndex: 3, Err: errors.New("duplicate column")},
	}, &MockNamespaceManager{})

	req := httptest.NewRequest(http.MethodPost, "/apply", strings.NewReader(`{"name": "001_init", "schema": {"tables": []}}`))
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, req)

	var body api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error == "" {
		t.Errorf("error body has no message")
	}
	if diff := cmp.Diff(failed, body.Migration); diff != "" {
		t.Errorf("error body migration mismatch (-want +got):\n%s", diff)
	}
}

func TestGetNamespaces(t *testing.T) {
	h := NewMigrationHandler(&MockMigrationManager{}, &MockNamespaceManager{namespaces: []string{"app", "public"}})
	w := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/namespaces", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got api.NamespaceList
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if diff := cmp.Diff([]string{"app", "public"}, got.Namespaces); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}
