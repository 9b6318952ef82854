// Package batch drives rule evaluation across a selected employee set.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/events"
	"github.com/teamops/warden/internal/rules"
)

var tracer = otel.Tracer("warden-batch")

// EmployeeCreated groups the events one employee contributed to a run.
// A "both" outcome contributes two events here, one per kind, so each
// stays independently toggle-able.
type EmployeeCreated struct {
	EmployeeID string                  `json:"employeeId"`
	Events     []*domain.ViolationEvent `json:"events"`
}

// Result is the error-as-value outcome of one run. Employees whose
// evaluation came back clean are reported in Skipped, not silently
// dropped, so operators can confirm coverage.
type Result struct {
	BatchID string             `json:"batchId"`
	Created []EmployeeCreated  `json:"created"`
	Skipped []string           `json:"skipped"`
	Errors  []domain.ItemError `json:"errors,omitempty"`
}

// Orchestrator evaluates a rule configuration against many employees
// and writes the resulting violation events under one shared batch id.
type Orchestrator struct {
	snapshots domain.SnapshotProvider
	roster    domain.Roster
	events    *events.Service
	custom    *rules.CustomEngine
	bus       domain.EventBus

	// maxWorkers bounds concurrent per-employee evaluation.
	maxWorkers int
}

// NewOrchestrator creates a batch orchestrator. roster, custom and bus
// may be nil; evaluation then proceeds without name backfill, custom
// rules or notifications.
func NewOrchestrator(snapshots domain.SnapshotProvider, roster domain.Roster, evts *events.Service, custom *rules.CustomEngine, bus domain.EventBus, maxWorkers int) *Orchestrator {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Orchestrator{
		snapshots:  snapshots,
		roster:     roster,
		events:     evts,
		custom:     custom,
		bus:        bus,
		maxWorkers: maxWorkers,
	}
}

// Run evaluates every employee in the set and persists non-clean
// outcomes. Partial failures are collected per employee; a single bad
// record never blocks the rest of the operator's action.
func (o *Orchestrator) Run(ctx context.Context, employeeIDs []string, cfg *domain.RuleConfiguration) *Result {
	ctx, span := tracer.Start(ctx, "batch.Run")
	defer span.End()

	res := &Result{
		BatchID: uuid.New().String(),
		Skipped: []string{},
	}
	span.SetAttributes(
		attribute.String("batch.id", res.BatchID),
		attribute.Int("batch.employees", len(employeeIDs)),
	)

	start := time.Now()
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.maxWorkers)

	for _, id := range employeeIDs {
		wg.Add(1)
		go func(employeeID string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			created, skipped, err := o.evaluateOne(ctx, employeeID, cfg, res.BatchID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors = append(res.Errors, domain.ItemError{ID: employeeID, Err: err.Error()})
			case skipped:
				res.Skipped = append(res.Skipped, employeeID)
			default:
				res.Created = append(res.Created, EmployeeCreated{
					EmployeeID: employeeID,
					Events:     created,
				})
			}
		}(id)
	}
	wg.Wait()

	slog.Info("batch run completed",
		"batch_id", res.BatchID,
		"employees", len(employeeIDs),
		"created", len(res.Created),
		"skipped", len(res.Skipped),
		"errors", len(res.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	o.notifyCompleted(ctx, res)
	return res
}

// evaluateOne handles one employee: snapshot, evaluation, event build,
// write. Returns skipped=true for clean outcomes.
func (o *Orchestrator) evaluateOne(ctx context.Context, employeeID string, cfg *domain.RuleConfiguration, batchID string) ([]*domain.ViolationEvent, bool, error) {
	snap, err := o.fetchSnapshot(ctx, employeeID, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot unavailable: %w", err)
	}

	kinds := rules.Evaluate(snap, cfg).Kinds()

	if o.custom != nil && cfg.CustomExpression != "" {
		triggered, err := o.custom.Evaluate(snap, cfg)
		if err != nil {
			slog.Warn("custom rule failed",
				"employee_id", employeeID,
				"error", err,
			)
		} else if triggered {
			kinds = append(kinds, domain.KindOther)
		}
	}

	if len(kinds) == 0 {
		return nil, true, nil
	}

	name := o.lookupName(ctx, employeeID)

	evs := make([]*domain.ViolationEvent, 0, len(kinds))
	for _, kind := range kinds {
		evs = append(evs, &domain.ViolationEvent{
			EmployeeID:    employeeID,
			EmployeeName:  name,
			Kind:          kind,
			Reason:        rules.Reason(kind, snap, cfg),
			SourceType:    domain.SourceAutoGenerated,
			SourceBatchID: batchID,
			SourceMeta: &domain.SourceMetadata{
				RuleConfig: cfg,
				Snapshot:   snap,
			},
			IsEffective: true,
		})
	}

	written, err := o.events.BatchCreate(ctx, evs)
	if err != nil {
		return nil, false, fmt.Errorf("store write failed: %w", err)
	}
	if len(written.Failed) > 0 {
		return written.Created, false, fmt.Errorf("store write failed: %s", written.Failed[0].Err)
	}
	return written.Created, false, nil
}

func (o *Orchestrator) fetchSnapshot(ctx context.Context, employeeID string, cfg *domain.RuleConfiguration) (*domain.MetricSnapshot, error) {
	var from, to time.Time
	if cfg.WindowStart != nil {
		from = *cfg.WindowStart
	}
	if cfg.WindowEnd != nil {
		to = *cfg.WindowEnd
	}
	snap, err := o.snapshots.GetSnapshot(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("provider returned no snapshot")
	}
	return snap, nil
}

// lookupName resolves the display name best-effort. A roster failure
// never blocks the event write; the id is stored and the name can be
// backfilled later.
func (o *Orchestrator) lookupName(ctx context.Context, employeeID string) string {
	if o.roster == nil {
		return ""
	}
	name, err := o.roster.Lookup(ctx, employeeID)
	if err != nil {
		slog.Debug("roster lookup failed",
			"employee_id", employeeID,
			"error", err,
		)
		return ""
	}
	return name
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, res *Result) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicBatchCompleted, payload); err != nil {
		slog.Warn("failed to publish batch completion",
			"batch_id", res.BatchID,
			"error", err,
		)
	}
}
