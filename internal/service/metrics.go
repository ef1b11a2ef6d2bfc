package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/CivStat/MetricBoard/internal/adapter/otel"
	"github.com/CivStat/MetricBoard/internal/adapter/ws"
	"github.com/CivStat/MetricBoard/internal/config"
	"github.com/CivStat/MetricBoard/internal/domain"
	metricdomain "github.com/CivStat/MetricBoard/internal/domain/metric"
	"github.com/CivStat/MetricBoard/internal/domain/table"
	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/port/broadcast"
	"github.com/CivStat/MetricBoard/internal/port/cache"
	"github.com/CivStat/MetricBoard/internal/port/database"
	"github.com/CivStat/MetricBoard/internal/port/messagequeue"
)

// MetricsService handles metric table business logic: creation, mutation
// apply with optimistic locking, lifecycle transitions and fan-out of
// change events.
type MetricsService struct {
	store    database.Store
	cache    cache.Cache           // may be nil
	queue    messagequeue.Queue    // may be nil
	hub      broadcast.Broadcaster // may be nil
	obs      *otel.Metrics         // may be nil
	applyCfg config.Apply
	cacheCfg config.Cache
}

// NewMetricsService creates a new MetricsService. cache, queue, hub and obs
// are all optional; a nil value disables that concern.
func NewMetricsService(
	store database.Store,
	c cache.Cache,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	obs *otel.Metrics,
	applyCfg config.Apply,
	cacheCfg config.Cache,
) *MetricsService {
	return &MetricsService{
		store:    store,
		cache:    c,
		queue:    queue,
		hub:      hub,
		obs:      obs,
		applyCfg: applyCfg,
		cacheCfg: cacheCfg,
	}
}

// Create creates a new empty draft table in the given sector.
func (s *MetricsService) Create(ctx context.Context, u *user.User, sectorID string, req *metricdomain.CreateRequest) (*metricdomain.Metric, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sec, err := s.store.GetSector(ctx, sectorID)
	if err != nil {
		return nil, fmt.Errorf("get sector: %w", err)
	}
	if err := s.authorizeSectorWrite(u, sec.AgencyID); err != nil {
		return nil, err
	}

	m := metricdomain.New(uuid.NewString(), sectorID, req.TableName)
	if err := s.store.CreateMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("create metric: %w", err)
	}

	s.publish(ctx, messagequeue.SubjectMetricCreated, m, "", u)
	s.broadcastEvent(ctx, ws.EventTableCreated, m, "")
	return m, nil
}

// Get returns a metric table by ID, serving repeated reads from the cache.
func (s *MetricsService) Get(ctx context.Context, id string) (*metricdomain.Metric, error) {
	if s.cache != nil {
		if data, ok, cerr := s.cache.Get(ctx, metricCacheKey(id)); cerr == nil && ok {
			var m metricdomain.Metric
			if uerr := json.Unmarshal(data, &m); uerr == nil {
				m.Document.Normalize()
				return &m, nil
			}
		}
	}

	m, err := s.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, merr := json.Marshal(m); merr == nil {
			_ = s.cache.Set(ctx, metricCacheKey(id), data, s.cacheCfg.TTL)
		}
	}
	return m, nil
}

// ListBySector returns all metric tables belonging to a sector.
func (s *MetricsService) ListBySector(ctx context.Context, sectorID string) ([]metricdomain.Metric, error) {
	if _, err := s.store.GetSector(ctx, sectorID); err != nil {
		return nil, fmt.Errorf("get sector: %w", err)
	}
	return s.store.ListMetricsBySector(ctx, sectorID)
}

// Totals returns the per-column yearly sums of a table, rounded to two
// decimal places.
func (s *MetricsService) Totals(ctx context.Context, id string) (map[string]float64, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Document.Totals(), nil
}

// ApplyOperation applies one table mutation under optimistic locking.
// On a version conflict the load/apply/update cycle is retried up to the
// configured limit so two users editing different cells both succeed; only
// a persistent race surfaces as domain.ErrConflict.
func (s *MetricsService) ApplyOperation(ctx context.Context, u *user.User, id string, op table.Operation) (*metricdomain.Metric, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	ctx, span := otel.StartApplySpan(ctx, id, op.Kind())
	defer span.End()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < s.applyCfg.MaxRetries; attempt++ {
		m, err := s.store.GetMetric(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.authorizeEdit(ctx, u, m); err != nil {
			return nil, err
		}

		next, err := table.Apply(m.Document, op)
		if err != nil {
			return nil, err
		}
		m.Document = next

		if rename, ok := op.(table.SetTableName); ok {
			nameReq := metricdomain.CreateRequest{TableName: rename.TableName}
			if err := nameReq.Validate(); err != nil {
				return nil, err
			}
			m.TableName = rename.TableName
		}

		if err := s.store.UpdateMetric(ctx, m); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				s.recordConflict(ctx, op)
				slog.Debug("apply lost version race, retrying",
					"metric_id", id,
					"op", op.Kind(),
					"attempt", attempt+1,
				)
				continue
			}
			return nil, fmt.Errorf("update metric: %w", err)
		}

		s.invalidate(ctx, id)
		s.publish(ctx, messagequeue.SubjectMetricChanged, m, op.Kind(), u)
		s.broadcastEvent(ctx, ws.EventTableChanged, m, op.Kind())
		s.recordApply(ctx, op, time.Since(start))
		return m, nil
	}

	span.SetStatus(codes.Error, "retries exhausted")
	return nil, fmt.Errorf("apply %s to metric %s: retries exhausted: %w", op.Kind(), id, lastErr)
}

// Submit flips a draft table to the submitted state.
func (s *MetricsService) Submit(ctx context.Context, u *user.User, id string) (*metricdomain.Metric, error) {
	m, err := s.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(ctx, u, m); err != nil {
		return nil, err
	}
	if err := m.Submit(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("update metric: %w", err)
	}

	s.invalidate(ctx, id)
	s.publish(ctx, messagequeue.SubjectMetricSubmitted, m, "", u)
	s.broadcastEvent(ctx, ws.EventTableSubmitted, m, "")
	return m, nil
}

// Unsubmit resets a submitted table back to draft so the owning agency can
// edit again. Admin only.
func (s *MetricsService) Unsubmit(ctx context.Context, u *user.User, id string) (*metricdomain.Metric, error) {
	if err := requireAdmin(u); err != nil {
		return nil, err
	}
	m, err := s.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Unsubmit(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("update metric: %w", err)
	}

	s.invalidate(ctx, id)
	s.publish(ctx, messagequeue.SubjectMetricUnsubmitted, m, "", u)
	s.broadcastEvent(ctx, ws.EventTableUnsubmitted, m, "")
	return m, nil
}

// Delete removes a metric table. Admin only.
func (s *MetricsService) Delete(ctx context.Context, u *user.User, id string) error {
	if err := requireAdmin(u); err != nil {
		return err
	}
	m, err := s.store.GetMetric(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMetric(ctx, id); err != nil {
		return fmt.Errorf("delete metric: %w", err)
	}

	s.invalidate(ctx, id)
	s.publish(ctx, messagequeue.SubjectMetricDeleted, m, "", u)
	s.broadcastEvent(ctx, ws.EventTableDeleted, m, "")
	return nil
}

// authorizeEdit checks whether the user may mutate the given table.
// Admins may edit anything. Agency users may edit tables in sectors owned
// by their agency, and only while the table is a draft.
func (s *MetricsService) authorizeEdit(ctx context.Context, u *user.User, m *metricdomain.Metric) error {
	if u == nil {
		return fmt.Errorf("no authenticated user: %w", domain.ErrPermission)
	}
	if u.Role == user.RoleAdmin {
		return nil
	}

	sec, err := s.store.GetSector(ctx, m.SectorID)
	if err != nil {
		return fmt.Errorf("get sector: %w", err)
	}
	if sec.AgencyID != u.AgencyID {
		return fmt.Errorf("table belongs to another agency: %w", domain.ErrPermission)
	}
	if !m.IsDraft {
		return fmt.Errorf("table is submitted and locked for agency edits: %w", domain.ErrPermission)
	}
	return nil
}

func (s *MetricsService) authorizeSectorWrite(u *user.User, sectorAgencyID string) error {
	if u == nil {
		return fmt.Errorf("no authenticated user: %w", domain.ErrPermission)
	}
	if u.Role == user.RoleAdmin {
		return nil
	}
	if sectorAgencyID != u.AgencyID {
		return fmt.Errorf("sector belongs to another agency: %w", domain.ErrPermission)
	}
	return nil
}

func requireAdmin(u *user.User) error {
	if u == nil || u.Role != user.RoleAdmin {
		return fmt.Errorf("admin role required: %w", domain.ErrPermission)
	}
	return nil
}

func metricCacheKey(id string) string {
	return "metric:" + id
}

func (s *MetricsService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, metricCacheKey(id)); err != nil {
		slog.Warn("cache invalidation failed", "metric_id", id, "error", err)
	}
}

// publish sends a lifecycle event to the message queue. Failures are
// logged, never surfaced: persistence already succeeded.
func (s *MetricsService) publish(ctx context.Context, subject string, m *metricdomain.Metric, op string, u *user.User) {
	if s.queue == nil {
		return
	}

	payload := messagequeue.MetricEventPayload{
		MetricID:  m.ID,
		SectorID:  m.SectorID,
		TableName: m.TableName,
		Version:   m.Version,
		IsDraft:   m.IsDraft,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
	if u != nil {
		payload.ActorID = u.ID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("failed to publish event", "subject", subject, "metric_id", m.ID, "error", err)
	}
}

func (s *MetricsService) broadcastEvent(ctx context.Context, eventType string, m *metricdomain.Metric, op string) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, eventType, ws.TableEvent{
		MetricID:  m.ID,
		SectorID:  m.SectorID,
		TableName: m.TableName,
		Version:   m.Version,
		IsDraft:   m.IsDraft,
		Op:        op,
	})
}

func (s *MetricsService) recordApply(ctx context.Context, op table.Operation, d time.Duration) {
	if s.obs == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("op", op.Kind()))
	s.obs.OpsApplied.Add(ctx, 1, attrs)
	s.obs.ApplyDuration.Record(ctx, d.Seconds(), attrs)
}

func (s *MetricsService) recordConflict(ctx context.Context, op table.Operation) {
	if s.obs == nil {
		return
	}
	s.obs.ApplyConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op.Kind())))
}
