// Package metric defines the metric table entity: one flexible table document
// plus its identity, lifecycle flag and optimistic-locking version.
package metric

import (
	"fmt"
	"time"
	"unicode"

	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/table"
)

// Metric is one flexible metrics table owned by a sector.
type Metric struct {
	ID        string          `json:"id"`
	SectorID  string          `json:"sector_id"`
	TableName string          `json:"table_name"`
	Document  *table.Document `json:"document"`

	// IsDraft is the lifecycle bit: true while the owning agency may edit,
	// false once submitted (admin-only edits until unsubmitted).
	IsDraft bool `json:"is_draft"`

	// Version increments on every persisted write and backs the
	// compare-and-swap update that prevents lost updates.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the input for creating a new (empty, draft) metric table.
type CreateRequest struct {
	TableName string `json:"table_name"`
}

// Validate checks the fields of a metric creation request.
func (r *CreateRequest) Validate() error {
	if r.TableName == "" {
		return fmt.Errorf("table_name is required: %w", domain.ErrValidation)
	}
	if len(r.TableName) > 255 {
		return fmt.Errorf("table_name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, c := range r.TableName {
		if unicode.IsControl(c) {
			return fmt.Errorf("table_name contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}

// New returns an empty draft metric for the given sector.
func New(id, sectorID, tableName string) *Metric {
	return &Metric{
		ID:        id,
		SectorID:  sectorID,
		TableName: tableName,
		Document:  table.NewDocument(),
		IsDraft:   true,
	}
}

// Submit flips the metric to the submitted (agency-immutable) state.
// Submitting an already-submitted metric is a conflict.
func (m *Metric) Submit() error {
	if !m.IsDraft {
		return fmt.Errorf("metric %s already submitted: %w", m.ID, domain.ErrConflict)
	}
	m.IsDraft = false
	return nil
}

// Unsubmit resets a submitted metric back to draft. Admin-only at the
// service boundary. Unsubmitting a draft is a conflict.
func (m *Metric) Unsubmit() error {
	if m.IsDraft {
		return fmt.Errorf("metric %s is not submitted: %w", m.ID, domain.ErrConflict)
	}
	m.IsDraft = true
	return nil
}
