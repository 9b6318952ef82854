// Package events is the write path for violation events: store writes
// plus the cache invalidation and bus notifications every write owes.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/status"
)

// Service wraps the event store so every write invalidates the derived
// status for the affected employee and lands on the bus. An aggregation
// immediately after any write through here observes that write.
type Service struct {
	store    domain.EventStore
	statuses *status.Service
	bus      domain.EventBus
}

// NewService creates the event write service. bus may be nil in tests.
func NewService(store domain.EventStore, statuses *status.Service, bus domain.EventBus) *Service {
	return &Service{
		store:    store,
		statuses: statuses,
		bus:      bus,
	}
}

// Create stores one event and notifies.
func (s *Service) Create(ctx context.Context, ev *domain.ViolationEvent) (*domain.ViolationEvent, error) {
	stored, err := s.store.Create(ctx, ev)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, stored.EmployeeID)
	s.publish(ctx, domain.TopicViolationCreated, stored)
	return stored, nil
}

// BatchCreate stores events best-effort and notifies per created event.
func (s *Service) BatchCreate(ctx context.Context, evs []*domain.ViolationEvent) (*domain.BatchWriteResult, error) {
	res, err := s.store.BatchCreate(ctx, evs)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, ev := range res.Created {
		if !seen[ev.EmployeeID] {
			seen[ev.EmployeeID] = true
			s.afterWrite(ctx, ev.EmployeeID)
		}
		s.publish(ctx, domain.TopicViolationCreated, ev)
	}
	return res, nil
}

// toggleNotice is the payload published when an effective bit flips.
type toggleNotice struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Effective  bool      `json:"effective"`
	ToggledAt  time.Time `json:"toggledAt"`
}

// SetEffective toggles one event's effective bit.
func (s *Service) SetEffective(ctx context.Context, id string, effective bool) error {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetEffective(ctx, id, effective); err != nil {
		return err
	}
	s.afterWrite(ctx, ev.EmployeeID)
	s.publish(ctx, domain.TopicViolationToggled, toggleNotice{
		ID:         id,
		EmployeeID: ev.EmployeeID,
		Effective:  effective,
		ToggledAt:  time.Now().UTC(),
	})
	return nil
}

// BatchSetEffective toggles many ids, continuing past individual
// failures and reporting them per id.
func (s *Service) BatchSetEffective(ctx context.Context, ids []string, effective bool) []domain.ItemError {
	var failed []domain.ItemError
	for _, id := range ids {
		if err := s.SetEffective(ctx, id, effective); err != nil {
			failed = append(failed, domain.ItemError{ID: id, Err: err.Error()})
		}
	}
	return failed
}

// Correct applies a manual reason/kind correction to one event.
func (s *Service) Correct(ctx context.Context, id string, kind domain.ViolationKind, reason string) error {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.UpdateCorrection(ctx, id, kind, reason); err != nil {
		return err
	}
	s.afterWrite(ctx, ev.EmployeeID)
	return nil
}

// Delete hard-deletes one event (manual entry mistakes only).
func (s *Service) Delete(ctx context.Context, id string) error {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, ev.EmployeeID)
	s.publish(ctx, domain.TopicViolationDeleted, map[string]string{
		"id":         id,
		"employeeId": ev.EmployeeID,
	})
	return nil
}

func (s *Service) afterWrite(ctx context.Context, employeeID string) {
	if s.statuses != nil {
		s.statuses.Invalidate(ctx, employeeID)
	}
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("failed to publish event",
			"topic", topic,
			"error", err,
		)
	}
}
