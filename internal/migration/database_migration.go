package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dfryer1193/schemad/internal/schema"
)

// DatabaseMigration is the ordered list of steps that moves a database from
// Previous to Next.
type DatabaseMigration struct {
	Previous *schema.SqlSchema
	Next     *schema.SqlSchema
	Steps    []MigrationStep
}

func (m *DatabaseMigration) Len() int { return len(m.Steps) }

func (m *DatabaseMigration) IsEmpty() bool { return len(m.Steps) == 0 }

// Describe summarises step i for logs and error messages.
func (m *DatabaseMigration) Describe(i int) string {
	return m.Steps[i].record(m).describe()
}

func (m *DatabaseMigration) records() []stepRecord {
	out := make([]stepRecord, len(m.Steps))
	for i, step := range m.Steps {
		out[i] = step.record(m)
	}
	return out
}

// Serialize encodes the steps by name rather than by id, so the result is
// stable across introspections of the same database.
func (m *DatabaseMigration) Serialize() ([]byte, error) {
	data, err := json.Marshal(struct {
		Steps []stepRecord `json:"steps"`
	}{Steps: m.records()})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize migration: %w", err)
	}
	return data, nil
}

// Checksum is the hex sha256 of Serialize.
func (m *DatabaseMigration) Checksum() (string, error) {
	data, err := m.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
