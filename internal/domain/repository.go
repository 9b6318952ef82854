package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared across stores and services.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// EventFilter selects violation events for list queries. Zero values
// mean "no constraint". All list results order by created_at descending
// so pagination and the aggregator see a stable chronology.
type EventFilter struct {
	EmployeeID    string
	From          time.Time
	To            time.Time
	SourceType    SourceType
	SourceBatchID string

	// OnlyEffective restricts to is_effective = 1 rows.
	OnlyEffective bool

	Limit  int
	Offset int
}

// ItemError attributes one failure inside a batch operation to the
// record or employee it belongs to.
type ItemError struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// BatchWriteResult is the best-effort outcome of a batch create: created
// rows plus per-item failures. One bad row never fails the whole batch.
type BatchWriteResult struct {
	Created []*ViolationEvent `json:"created"`
	Failed  []ItemError       `json:"failed,omitempty"`
}

// EventStore is the persistence contract for violation events.
type EventStore interface {
	// Create assigns an id, defaults CreatedAt to now and IsEffective to
	// true, and stores the event.
	Create(ctx context.Context, event *ViolationEvent) (*ViolationEvent, error)

	// BatchCreate stores events best-effort per item.
	BatchCreate(ctx context.Context, events []*ViolationEvent) (*BatchWriteResult, error)

	Get(ctx context.Context, id string) (*ViolationEvent, error)

	// List returns matching events (descending created_at) and the total
	// match count regardless of limit/offset.
	List(ctx context.Context, f EventFilter) ([]*ViolationEvent, int, error)

	// ListEffectiveAsc returns one employee's effective events ordered
	// ascending by created_at, the shape the status aggregator consumes.
	ListEffectiveAsc(ctx context.Context, employeeID string) ([]*ViolationEvent, error)

	// SetEffective toggles the soft include/exclude bit. Idempotent:
	// setting the same value twice is a no-op. Never touches CreatedAt
	// or the provenance blob.
	SetEffective(ctx context.Context, id string, effective bool) error

	// BatchSetEffective toggles many ids, reporting per-id failures
	// without aborting the rest.
	BatchSetEffective(ctx context.Context, ids []string, effective bool) []ItemError

	// UpdateCorrection applies a manual correction to reason and kind.
	// All other fields, provenance included, stay frozen.
	UpdateCorrection(ctx context.Context, id string, kind ViolationKind, reason string) error

	// Delete hard-deletes a record. Used only for manual entry mistakes;
	// retracting a computed violation is always SetEffective(false).
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// SnapshotProvider supplies the per-employee counters the rules need
// for an observation window. How the numbers are sourced is out of
// scope for the engine.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, employeeID string, windowStart, windowEnd time.Time) (*MetricSnapshot, error)
}

// Roster resolves employee ids to display names for audit readability.
// A failed lookup must never block writing a violation event.
type Roster interface {
	Lookup(ctx context.Context, employeeID string) (string, error)
}

// RepositoryConfig holds configuration for store initialization.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	SQLitePath string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
