package roster

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/teamops/warden/internal/cache"
	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/repository"
)

func newTestRoster(t *testing.T, c domain.Cache) *SQLRoster {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "warden-roster-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewSQLRoster(store.DB(), store, c)
}

func TestRosterLookup(t *testing.T) {
	r := newTestRoster(t, cache.NewLRUCache(100))
	ctx := context.Background()

	if err := r.Upsert(ctx, "emp-1", "Dana Reeves"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	name, err := r.Lookup(ctx, "emp-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if name != "Dana Reeves" {
		t.Errorf("expected 'Dana Reeves', got %q", name)
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := r.Lookup(ctx, "emp-none")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyID", func(t *testing.T) {
		_, err := r.Lookup(ctx, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRosterUpsertRefreshes(t *testing.T) {
	r := newTestRoster(t, cache.NewLRUCache(100))
	ctx := context.Background()

	if err := r.Upsert(ctx, "emp-2", "Old Name"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := r.Lookup(ctx, "emp-2"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	// The rename must be visible even though the old name was cached.
	if err := r.Upsert(ctx, "emp-2", "New Name"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	name, err := r.Lookup(ctx, "emp-2")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if name != "New Name" {
		t.Errorf("expected refreshed name, got %q", name)
	}

	t.Run("Validation", func(t *testing.T) {
		if err := r.Upsert(ctx, "", "x"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := r.Upsert(ctx, "emp-3", ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRosterWithoutCache(t *testing.T) {
	r := newTestRoster(t, nil)
	ctx := context.Background()

	if err := r.Upsert(ctx, "emp-4", "No Cache"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	name, err := r.Lookup(ctx, "emp-4")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if name != "No Cache" {
		t.Errorf("expected 'No Cache', got %q", name)
	}
}
