// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamops/warden/internal/domain"
)

// SQLStore implements domain.EventStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{db: db, driver: cfg.Driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (r *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const eventColumns = `id, employee_id, employee_name, kind, reason,
		source_type, source_batch_id, source_metadata, created_at, is_effective`

// Create stores one violation event, assigning id and defaults.
func (r *SQLStore) Create(ctx context.Context, ev *domain.ViolationEvent) (*domain.ViolationEvent, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	stored := *ev
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	meta, err := stored.MarshalMeta()
	if err != nil {
		return nil, fmt.Errorf("%w: bad source metadata: %v", domain.ErrInvalidInput, err)
	}

	effective := 0
	if stored.IsEffective {
		effective = 1
	}

	query := `
		INSERT INTO violation_events (
			id, employee_id, employee_name, kind, reason,
			source_type, source_batch_id, source_metadata, created_at, is_effective
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		stored.ID, stored.EmployeeID, stored.EmployeeName,
		string(stored.Kind), stored.Reason,
		string(stored.SourceType), stored.SourceBatchID,
		nullableString(meta), stored.CreatedAt, effective,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// BatchCreate stores events best-effort: one bad row is reported in
// Failed without aborting the rest.
func (r *SQLStore) BatchCreate(ctx context.Context, events []*domain.ViolationEvent) (*domain.BatchWriteResult, error) {
	res := &domain.BatchWriteResult{}
	for _, ev := range events {
		stored, err := r.Create(ctx, ev)
		if err != nil {
			id := ev.ID
			if id == "" {
				id = ev.EmployeeID
			}
			res.Failed = append(res.Failed, domain.ItemError{ID: id, Err: err.Error()})
			continue
		}
		res.Created = append(res.Created, stored)
	}
	return res, nil
}

// Get retrieves one event by id.
func (r *SQLStore) Get(ctx context.Context, id string) (*domain.ViolationEvent, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + eventColumns + ` FROM violation_events WHERE id = ?`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ev, err
}

// List returns matching events ordered by created_at descending, plus
// the total match count for pagination.
func (r *SQLStore) List(ctx context.Context, f domain.EventFilter) ([]*domain.ViolationEvent, int, error) {
	where, args := buildFilter(f)

	countQuery := "SELECT COUNT(*) FROM violation_events" + where
	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + eventColumns + " FROM violation_events" + where + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*domain.ViolationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// ListEffectiveAsc returns one employee's effective events ascending by
// created_at, the shape the status aggregator consumes.
func (r *SQLStore) ListEffectiveAsc(ctx context.Context, employeeID string) ([]*domain.ViolationEvent, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employeeID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + eventColumns + `
		FROM violation_events
		WHERE employee_id = ? AND is_effective = 1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.ViolationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetEffective toggles the soft include/exclude bit. Idempotent, and
// atomic per record: the UPDATE touches only is_effective, so createdAt
// and the provenance blob are never rewritten.
func (r *SQLStore) SetEffective(ctx context.Context, id string, effective bool) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	val := 0
	if effective {
		val = 1
	}

	query := `UPDATE violation_events SET is_effective = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), val, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BatchSetEffective toggles many ids, reporting per-id failures without
// aborting the rest.
func (r *SQLStore) BatchSetEffective(ctx context.Context, ids []string, effective bool) []domain.ItemError {
	var failed []domain.ItemError
	for _, id := range ids {
		if err := r.SetEffective(ctx, id, effective); err != nil {
			failed = append(failed, domain.ItemError{ID: id, Err: err.Error()})
		}
	}
	return failed
}

// UpdateCorrection applies a manual reason/kind correction. Provenance,
// created_at and the effective bit stay untouched.
func (r *SQLStore) UpdateCorrection(ctx context.Context, id string, kind domain.ViolationKind, reason string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown violation kind %q", domain.ErrInvalidInput, kind)
	}
	if reason == "" {
		return fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}

	query := `UPDATE violation_events SET kind = ?, reason = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), string(kind), reason, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete hard-deletes a record. Used only for manual entry mistakes.
func (r *SQLStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	query := `DELETE FROM violation_events WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLStore) Close() error {
	return r.db.Close()
}

// DB exposes the underlying handle for sibling packages that share the
// database (metric snapshots, roster).
func (r *SQLStore) DB() *sql.DB {
	return r.db
}

// Driver returns the configured driver name.
func (r *SQLStore) Driver() string {
	return r.driver
}

// Rebind converts ? placeholders for the active driver.
func (r *SQLStore) Rebind(query string) string {
	return r.rebind(query)
}

func buildFilter(f domain.EventFilter) (string, []any) {
	var conds []string
	var args []any

	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To)
	}
	if f.SourceType != "" {
		conds = append(conds, "source_type = ?")
		args = append(args, string(f.SourceType))
	}
	if f.SourceBatchID != "" {
		conds = append(conds, "source_batch_id = ?")
		args = append(args, f.SourceBatchID)
	}
	if f.OnlyEffective {
		conds = append(conds, "is_effective = 1")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.ViolationEvent, error) {
	var ev domain.ViolationEvent
	var name, batchID, meta sql.NullString
	var kind, source string
	var effective int

	err := row.Scan(
		&ev.ID, &ev.EmployeeID, &name, &kind, &ev.Reason,
		&source, &batchID, &meta, &ev.CreatedAt, &effective,
	)
	if err != nil {
		return nil, err
	}

	ev.EmployeeName = name.String
	ev.Kind = domain.ViolationKind(kind)
	ev.SourceType = domain.SourceType(source)
	ev.SourceBatchID = batchID.String
	ev.IsEffective = effective == 1

	if meta.Valid && meta.String != "" {
		var sm domain.SourceMetadata
		if err := json.Unmarshal([]byte(meta.String), &sm); err == nil {
			ev.SourceMeta = &sm
		}
	}
	return &ev, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLStore) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
