// Package roster resolves employee ids to display names.
package roster

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

// SQLRoster resolves names from the employees table, with an optional
// cache in front. Lookups are best-effort for callers: event creation
// proceeds with an empty name when a lookup fails.
type SQLRoster struct {
	db     *sql.DB
	rebind Rebinder
	cache  domain.Cache
	ttl    time.Duration
}

// NewSQLRoster creates a roster over the shared database handle.
func NewSQLRoster(db *sql.DB, rebind Rebinder, cache domain.Cache) *SQLRoster {
	return &SQLRoster{
		db:     db,
		rebind: rebind,
		cache:  cache,
		ttl:    time.Hour,
	}
}

// Lookup returns the display name for an employee id.
func (r *SQLRoster) Lookup(ctx context.Context, employeeID string) (string, error) {
	if employeeID == "" {
		return "", fmt.Errorf("%w: employeeID is required", domain.ErrInvalidInput)
	}

	if r.cache != nil {
		if data, err := r.cache.Get(ctx, domain.CacheKeyRoster+employeeID); err == nil && data != nil {
			return string(data), nil
		}
	}

	query := `SELECT name FROM employees WHERE id = ?`
	var name string
	err := r.db.QueryRowContext(ctx, r.rebind.Rebind(query), employeeID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, domain.CacheKeyRoster+employeeID, []byte(name), r.ttl)
	}
	return name, nil
}

// Upsert records or refreshes an employee entry.
func (r *SQLRoster) Upsert(ctx context.Context, employeeID, name string) error {
	if employeeID == "" || name == "" {
		return fmt.Errorf("%w: employeeID and name are required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO employees (id, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind.Rebind(query), employeeID, name, time.Now().UTC())
	if err != nil {
		return err
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, domain.CacheKeyRoster+employeeID, []byte(name), r.ttl)
	}
	return nil
}
