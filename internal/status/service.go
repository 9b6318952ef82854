package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/teamops/warden/internal/domain"
)

// Service answers status queries, recomputing from the live
// effective-event set. Results are cached per employee; the events
// write path invalidates the cache key on every write, so a read after
// a toggle always reflects it.
type Service struct {
	store domain.EventStore
	cache domain.Cache
	k     int
	ttl   time.Duration
}

// NewService creates a status query service. warningsPerSuspension is
// the injected escalation ratio K.
func NewService(store domain.EventStore, cache domain.Cache, warningsPerSuspension int) *Service {
	return &Service{
		store: store,
		cache: cache,
		k:     warningsPerSuspension,
		ttl:   5 * time.Minute,
	}
}

// GetStatus derives the current status for one employee.
func (s *Service) GetStatus(ctx context.Context, employeeID string) (*domain.ViolationStatus, error) {
	if employeeID == "" {
		return nil, domain.ErrInvalidInput
	}

	if cached := s.fromCache(ctx, employeeID); cached != nil {
		return cached, nil
	}

	events, err := s.store.ListEffectiveAsc(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	st := Aggregate(employeeID, events, s.k)
	s.toCache(ctx, employeeID, st)
	return st, nil
}

// GetStatuses derives statuses for many employees, for bulk display.
// Failures for one employee do not block the rest; failed ids are
// simply absent from the map.
func (s *Service) GetStatuses(ctx context.Context, employeeIDs []string) map[string]*domain.ViolationStatus {
	out := make(map[string]*domain.ViolationStatus, len(employeeIDs))
	for _, id := range employeeIDs {
		st, err := s.GetStatus(ctx, id)
		if err != nil {
			slog.Warn("status aggregation failed",
				"employee_id", id,
				"error", err,
			)
			continue
		}
		out[id] = st
	}
	return out
}

// Invalidate drops the cached status for an employee. Called by the
// events write path after every create, toggle or delete.
func (s *Service) Invalidate(ctx context.Context, employeeID string) {
	if s.cache == nil || employeeID == "" {
		return
	}
	if err := s.cache.Delete(ctx, domain.CacheKeyStatus+employeeID); err != nil {
		slog.Warn("status cache invalidation failed",
			"employee_id", employeeID,
			"error", err,
		)
	}
}

func (s *Service) fromCache(ctx context.Context, employeeID string) *domain.ViolationStatus {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, domain.CacheKeyStatus+employeeID)
	if err != nil || data == nil {
		return nil
	}
	var st domain.ViolationStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	return &st
}

func (s *Service) toCache(ctx context.Context, employeeID string, st *domain.ViolationStatus) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, domain.CacheKeyStatus+employeeID, data, s.ttl)
}
