package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/CivStat/MetricBoard/internal/domain/sector"
	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/port/database"
)

// SectorService handles sector management. Sectors group the metric tables
// of one agency; creating them is an admin task.
type SectorService struct {
	store database.Store
}

// NewSectorService creates a new SectorService.
func NewSectorService(store database.Store) *SectorService {
	return &SectorService{store: store}
}

// Create registers a new sector for an agency. Admin only.
func (s *SectorService) Create(ctx context.Context, u *user.User, req *sector.CreateRequest) (*sector.Sector, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sec := &sector.Sector{
		ID:       uuid.NewString(),
		AgencyID: req.AgencyID,
		Name:     req.Name,
	}
	if err := s.store.CreateSector(ctx, sec); err != nil {
		return nil, fmt.Errorf("create sector: %w", err)
	}
	return sec, nil
}

// Get returns a sector by ID.
func (s *SectorService) Get(ctx context.Context, id string) (*sector.Sector, error) {
	return s.store.GetSector(ctx, id)
}

// List returns all sectors.
func (s *SectorService) List(ctx context.Context) ([]sector.Sector, error) {
	return s.store.ListSectors(ctx)
}
