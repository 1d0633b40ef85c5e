package api

import (
	"encoding/json"
	"time"
)

// MigrationStatus is the ledger state of a named migration.
type MigrationStatus string

const (
	StatusPending    MigrationStatus = "Pending"
	StatusApplied    MigrationStatus = "Applied"
	StatusFailed     MigrationStatus = "Failed"
	StatusRolledBack MigrationStatus = "RolledBack"
)

func (s MigrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApplied, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// Migration represents a ledger record for one named migration
type Migration struct {
	Name              string          `json:"name" db:"name"`
	Namespace         string          `json:"namespace" db:"namespace"`
	Checksum          string          `json:"checksum" db:"checksum"`
	StartedAt         time.Time       `json:"startedAt" db:"started_at"`
	FinishedAt        *time.Time      `json:"finishedAt,omitempty" db:"finished_at"`
	AppliedStepsCount int             `json:"appliedStepsCount" db:"applied_steps_count"`
	Logs              string          `json:"logs" db:"logs"`
	Status            MigrationStatus `json:"status" db:"status"`
}

// Severity classifies how dangerous a migration step is for stored data.
type Severity string

const (
	SeveritySafe         Severity = "safe"
	SeverityWarning      Severity = "warning"
	SeverityUnexecutable Severity = "unexecutable"
	SeverityDestructive  Severity = "destructive"
)

// DestructiveChangeWarning is advisory output of the destructive changes check.
// Steps holds zero-based indexes into the migration's step list.
type DestructiveChangeWarning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Steps    []int    `json:"steps"`
}

type PlanRequest struct {
	Namespace string          `json:"namespace"`
	Schema    json.RawMessage `json:"schema"`
	Renames   *RenameRequest  `json:"renames,omitempty"`
}

type RenameRequest struct {
	Tables  map[string]string `json:"tables,omitempty"`
	Columns []ColumnRename    `json:"columns,omitempty"`
}

type ColumnRename struct {
	Table string `json:"table"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type PlannedStep struct {
	Index       int      `json:"index"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Statements  []string `json:"statements,omitempty"`
}

type PlanResponse struct {
	Checksum string                     `json:"checksum"`
	Steps    []PlannedStep              `json:"steps"`
	Warnings []DestructiveChangeWarning `json:"warnings"`
}

type ApplyRequest struct {
	PlanRequest
	Name           string `json:"name"`
	AcceptDataLoss bool   `json:"acceptDataLoss"`
	Force          bool   `json:"force"`
	Retry          bool   `json:"retry"`
}

type ApplyResponse struct {
	Migration *Migration                 `json:"migration"`
	Skipped   bool                       `json:"skipped"`
	Warnings  []DestructiveChangeWarning `json:"warnings"`
}

type MigrationList struct {
	Migrations []*Migration `json:"migrations"`
}

type NamespaceList struct {
	Namespaces []string `json:"namespaces"`
}

// ResetRequest drops every table of Namespace and the ledger. Confirm must
// be set.
type ResetRequest struct {
	Namespace string `json:"namespace"`
	Confirm   bool   `json:"confirm"`
}

type ErrorResponse struct {
	Error     string                     `json:"error"`
	Warnings  []DestructiveChangeWarning `json:"warnings,omitempty"`
	Migration *Migration                 `json:"migration,omitempty"`
}
