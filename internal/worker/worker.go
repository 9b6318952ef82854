// Package worker consumes violation events off the bus.
//
// In a multi-node Pro deployment the node that served a write is not
// necessarily the node holding a stale cached status, so every node
// runs this consumer and drops its local cache entry when a violation
// event for an employee arrives.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/status"
)

// Worker subscribes to violation topics and keeps the local status
// cache coherent, logging an audit line per event.
type Worker struct {
	bus      domain.EventBus
	statuses *status.Service

	subscriptions []domain.Subscription
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new bus consumer.
func NewWorker(bus domain.EventBus, statuses *status.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		statuses: statuses,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the violation topics.
func (w *Worker) Start() error {
	topics := []string{
		domain.TopicViolationCreated,
		domain.TopicViolationToggled,
		domain.TopicViolationDeleted,
	}

	for _, topic := range topics {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("worker started", "topics", len(topics))
	return nil
}

// violationNotice is the subset of every violation payload the worker
// needs.
type violationNotice struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employeeId"`
	Effective  *bool  `json:"effective,omitempty"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var notice violationNotice
	if err := json.Unmarshal(msg.Payload, &notice); err != nil {
		slog.Error("failed to parse violation notice",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	if notice.EmployeeID != "" {
		w.statuses.Invalidate(ctx, notice.EmployeeID)
	}

	slog.Info("violation event observed",
		"topic", msg.Topic,
		"event_id", notice.ID,
		"employee_id", notice.EmployeeID,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}
