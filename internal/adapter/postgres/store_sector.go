package postgres

import (
	"context"
	"fmt"

	"github.com/CivStat/MetricBoard/internal/domain/sector"
)

// --- Sectors ---

func (s *Store) CreateSector(ctx context.Context, sec *sector.Sector) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sectors (id, agency_id, name)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		sec.ID, sec.AgencyID, sec.Name)
	if err := row.Scan(&sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return fmt.Errorf("create sector: %w", err)
	}
	return nil
}

func (s *Store) GetSector(ctx context.Context, id string) (*sector.Sector, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agency_id, name, created_at, updated_at
		 FROM sectors WHERE id = $1`, id)

	var sec sector.Sector
	if err := row.Scan(&sec.ID, &sec.AgencyID, &sec.Name, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
		return nil, notFoundWrap(err, "get sector %s", id)
	}
	return &sec, nil
}

func (s *Store) ListSectors(ctx context.Context) ([]sector.Sector, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agency_id, name, created_at, updated_at
		 FROM sectors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	defer rows.Close()

	var sectors []sector.Sector
	for rows.Next() {
		var sec sector.Sector
		if err := rows.Scan(&sec.ID, &sec.AgencyID, &sec.Name, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list sectors: %w", err)
		}
		sectors = append(sectors, sec)
	}
	return sectors, rows.Err()
}
