package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/table"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Metric tables ---
//
// The table document is persisted as a single JSONB column. Reads load the
// full document; writes replace it under the optimistic-locking version.

func (s *Store) CreateMetric(ctx context.Context, m *metric.Metric) error {
	doc, err := json.Marshal(m.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO metric_tables (id, sector_id, table_name, document, is_draft)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING version, created_at, updated_at`,
		m.ID, m.SectorID, m.TableName, doc, m.IsDraft)
	if err := row.Scan(&m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("create metric: %w", err)
	}
	return nil
}

func (s *Store) GetMetric(ctx context.Context, id string) (*metric.Metric, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, sector_id, table_name, document, is_draft, version, created_at, updated_at
		 FROM metric_tables WHERE id = $1`, id)

	m, err := scanMetric(row)
	if err != nil {
		return nil, notFoundWrap(err, "get metric %s", id)
	}
	return m, nil
}

func (s *Store) ListMetricsBySector(ctx context.Context, sectorID string) ([]metric.Metric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sector_id, table_name, document, is_draft, version, created_at, updated_at
		 FROM metric_tables WHERE sector_id = $1 ORDER BY created_at`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []metric.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("list metrics: %w", err)
		}
		metrics = append(metrics, *m)
	}
	return metrics, rows.Err()
}

// UpdateMetric replaces the stored document if and only if the row still
// carries m.Version. A mismatch means another writer got there first.
func (s *Store) UpdateMetric(ctx context.Context, m *metric.Metric) error {
	doc, err := json.Marshal(m.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE metric_tables
		 SET table_name = $2, document = $3, is_draft = $4, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $5`,
		m.ID, m.TableName, doc, m.IsDraft, m.Version)
	if err != nil {
		return fmt.Errorf("update metric %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update metric %s: %w", m.ID, domain.ErrConflict)
	}
	m.Version++
	return nil
}

func (s *Store) DeleteMetric(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metric_tables WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete metric %s", id)
}

func scanMetric(row scannable) (*metric.Metric, error) {
	var (
		m   metric.Metric
		doc []byte
	)
	if err := row.Scan(&m.ID, &m.SectorID, &m.TableName, &doc, &m.IsDraft, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.Document = &table.Document{}
	if err := json.Unmarshal(doc, m.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	m.Document.Normalize()
	return &m, nil
}
