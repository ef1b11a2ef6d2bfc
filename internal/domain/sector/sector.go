// Package sector defines the sector registry entity. A sector groups the
// metric tables reported by one agency.
package sector

import (
	"fmt"
	"time"
	"unicode"

	"github.com/CivStat/MetricBoard/internal/domain"
)

// Sector is one reporting sector owned by an agency.
type Sector struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the input for registering a new sector.
type CreateRequest struct {
	AgencyID string `json:"agency_id"`
	Name     string `json:"name"`
}

// Validate checks the fields of a sector creation request.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(r.Name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, c := range r.Name {
		if unicode.IsControl(c) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	if r.AgencyID == "" {
		return fmt.Errorf("agency_id is required: %w", domain.ErrValidation)
	}
	return nil
}
