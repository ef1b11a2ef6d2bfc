// Package database defines the persistence port (interface).
package database

import (
	"context"

	"github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/sector"
	"github.com/CivStat/MetricBoard/internal/domain/user"
)

// Store is the port interface for persistent storage.
type Store interface {
	// Metric tables.
	//
	// UpdateMetric is a full-document compare-and-swap: the row is written
	// only when its stored version equals m.Version, and m.Version is
	// incremented on success. A version mismatch returns domain.ErrConflict.
	CreateMetric(ctx context.Context, m *metric.Metric) error
	GetMetric(ctx context.Context, id string) (*metric.Metric, error)
	ListMetricsBySector(ctx context.Context, sectorID string) ([]metric.Metric, error)
	UpdateMetric(ctx context.Context, m *metric.Metric) error
	DeleteMetric(ctx context.Context, id string) error

	// Sectors.
	CreateSector(ctx context.Context, s *sector.Sector) error
	GetSector(ctx context.Context, id string) (*sector.Sector, error)
	ListSectors(ctx context.Context) ([]sector.Sector, error)

	// Users and refresh tokens.
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}
