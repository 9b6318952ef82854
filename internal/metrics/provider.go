// Package metrics provides the metric snapshot provider backed by the
// shared SQL database.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teamops/warden/internal/domain"
)

// Rebinder adapts ? placeholders to the active SQL driver.
type Rebinder interface {
	Rebind(query string) string
}

// SQLProvider reads metric snapshots from the metric_snapshots table.
// It satisfies domain.SnapshotProvider; how snapshots get into the
// table (imports, upstream aggregation jobs) is outside the engine.
type SQLProvider struct {
	db     *sql.DB
	rebind Rebinder
}

// NewSQLProvider creates a provider over the shared database handle.
func NewSQLProvider(db *sql.DB, rebind Rebinder) *SQLProvider {
	return &SQLProvider{db: db, rebind: rebind}
}

// GetSnapshot returns the most recently collected snapshot for the
// employee whose window overlaps [windowStart, windowEnd]. Zero bounds
// are unbounded on that side.
func (p *SQLProvider) GetSnapshot(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) (*domain.MetricSnapshot, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employeeID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT employee_id, window_start, window_end, timeout_rate,
		       message_leads, published_notes,
		       response_window_start, response_window_end, collected_at
		FROM metric_snapshots
		WHERE employee_id = ?
	`
	args := []any{employeeID}

	if !windowEnd.IsZero() {
		query += " AND window_start <= ?"
		args = append(args, windowEnd)
	}
	if !windowStart.IsZero() {
		query += " AND window_end >= ?"
		args = append(args, windowStart)
	}
	query += " ORDER BY collected_at DESC LIMIT 1"

	var snap domain.MetricSnapshot
	var respStart, respEnd sql.NullTime

	err := p.db.QueryRowContext(ctx, p.rebind.Rebind(query), args...).Scan(
		&snap.EmployeeID, &snap.WindowStart, &snap.WindowEnd,
		&snap.TimeoutRatePercent, &snap.MessageLeadsCount, &snap.PublishedNotesCount,
		&respStart, &respEnd, &snap.CollectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	snap.ResponseWindowStart = respStart.Time
	snap.ResponseWindowEnd = respEnd.Time
	return &snap, nil
}

// SaveSnapshot upserts a snapshot row. Used by the import endpoint and
// by tests.
func (p *SQLProvider) SaveSnapshot(ctx context.Context, snap *domain.MetricSnapshot) error {
	if snap.EmployeeID == "" {
		return fmt.Errorf("%w: employeeID is required", domain.ErrInvalidInput)
	}
	if snap.WindowStart.IsZero() || snap.WindowEnd.IsZero() {
		return fmt.Errorf("%w: window bounds are required", domain.ErrInvalidInput)
	}

	collected := snap.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}

	query := `
		INSERT INTO metric_snapshots (
			employee_id, window_start, window_end, timeout_rate,
			message_leads, published_notes,
			response_window_start, response_window_end, collected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, window_start, window_end) DO UPDATE SET
			timeout_rate = excluded.timeout_rate,
			message_leads = excluded.message_leads,
			published_notes = excluded.published_notes,
			response_window_start = excluded.response_window_start,
			response_window_end = excluded.response_window_end,
			collected_at = excluded.collected_at
	`

	_, err := p.db.ExecContext(ctx, p.rebind.Rebind(query),
		snap.EmployeeID, snap.WindowStart, snap.WindowEnd,
		snap.TimeoutRatePercent, snap.MessageLeadsCount, snap.PublishedNotesCount,
		nullTime(snap.ResponseWindowStart), nullTime(snap.ResponseWindowEnd), collected,
	)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
