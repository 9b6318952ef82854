package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/teamops/warden/internal/domain"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "warden-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleEvent(employeeID string) *domain.ViolationEvent {
	rate := 42.5
	leads := 10
	return &domain.ViolationEvent{
		EmployeeID:   employeeID,
		EmployeeName: "Test Person",
		Kind:         domain.KindResponseTimeout,
		Reason:       "timeout rate 42.50% exceeded threshold 30.00% with 15 message leads (minimum 10)",
		SourceType:   domain.SourceAutoGenerated,
		SourceMeta: &domain.SourceMetadata{
			RuleConfig: &domain.RuleConfiguration{
				TimeoutRateThresholdPercent: &rate,
				MinLeadsForTimeoutRule:      &leads,
			},
			Snapshot: &domain.MetricSnapshot{
				EmployeeID:         employeeID,
				TimeoutRatePercent: 42.5,
				MessageLeadsCount:  15,
			},
		},
		IsEffective: true,
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAssignsDefaults", func(t *testing.T) {
		ev := sampleEvent("emp-defaults")
		stored, err := store.Create(ctx, ev)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if stored.ID == "" {
			t.Error("expected id to be assigned")
		}
		if stored.CreatedAt.IsZero() {
			t.Error("expected createdAt to be defaulted")
		}
		if !stored.IsEffective {
			t.Error("expected isEffective to default true")
		}
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		_, err := store.Create(ctx, &domain.ViolationEvent{Kind: "bogus"})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		ev := sampleEvent("emp-roundtrip")
		ev.SourceBatchID = "batch-001"
		ev.CreatedAt = time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)

		stored, err := store.Create(ctx, ev)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		byID, err := store.Get(ctx, stored.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		listed, total, err := store.List(ctx, domain.EventFilter{EmployeeID: "emp-roundtrip"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 1 || len(listed) != 1 {
			t.Fatalf("expected exactly one listed event, got %d (total %d)", len(listed), total)
		}

		// Get-by-id and list-by-employee must agree on all immutable fields.
		for _, got := range []*domain.ViolationEvent{byID, listed[0]} {
			if got.ID != stored.ID ||
				got.EmployeeID != ev.EmployeeID ||
				got.EmployeeName != ev.EmployeeName ||
				got.Kind != ev.Kind ||
				got.Reason != ev.Reason ||
				got.SourceType != ev.SourceType ||
				got.SourceBatchID != ev.SourceBatchID {
				t.Errorf("field mismatch: %+v", got)
			}
			if !got.CreatedAt.Equal(ev.CreatedAt) {
				t.Errorf("createdAt mismatch: %v != %v", got.CreatedAt, ev.CreatedAt)
			}
			if got.SourceMeta == nil || got.SourceMeta.Snapshot == nil {
				t.Fatal("source metadata lost in round trip")
			}
			if got.SourceMeta.Snapshot.TimeoutRatePercent != 42.5 {
				t.Errorf("metadata snapshot mismatch: %+v", got.SourceMeta.Snapshot)
			}
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-id")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSetEffective(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Create(ctx, sampleEvent("emp-toggle"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("ToggleOff", func(t *testing.T) {
		if err := store.SetEffective(ctx, stored.ID, false); err != nil {
			t.Fatalf("SetEffective failed: %v", err)
		}

		got, err := store.Get(ctx, stored.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.IsEffective {
			t.Error("expected isEffective false")
		}
		// The toggle must not touch createdAt or provenance.
		if !got.CreatedAt.Equal(stored.CreatedAt) {
			t.Errorf("createdAt changed: %v != %v", got.CreatedAt, stored.CreatedAt)
		}
		if got.SourceMeta == nil {
			t.Error("source metadata lost on toggle")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		if err := store.SetEffective(ctx, stored.ID, false); err != nil {
			t.Fatalf("second toggle to same value failed: %v", err)
		}
		got, _ := store.Get(ctx, stored.ID)
		if got.IsEffective {
			t.Error("expected isEffective still false")
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		err := store.SetEffective(ctx, "no-such-id", true)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("BatchReportsPerID", func(t *testing.T) {
		failed := store.BatchSetEffective(ctx, []string{stored.ID, "missing-1", "missing-2"}, true)
		if len(failed) != 2 {
			t.Fatalf("expected 2 failures, got %d", len(failed))
		}

		// The good id was still toggled.
		got, _ := store.Get(ctx, stored.ID)
		if !got.IsEffective {
			t.Error("expected isEffective true after batch toggle")
		}
	})
}

func TestListOrderingAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := sampleEvent("emp-list")
		ev.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := store.Create(ctx, ev); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	t.Run("DescendingOrder", func(t *testing.T) {
		events, total, err := store.List(ctx, domain.EventFilter{EmployeeID: "emp-list"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
		for i := 1; i < len(events); i++ {
			if events[i].CreatedAt.After(events[i-1].CreatedAt) {
				t.Errorf("events not descending at index %d", i)
			}
		}
	})

	t.Run("PaginationKeepsTotal", func(t *testing.T) {
		events, total, err := store.List(ctx, domain.EventFilter{EmployeeID: "emp-list", Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 5 {
			t.Errorf("expected stable total 5, got %d", total)
		}
		if len(events) != 2 {
			t.Errorf("expected page of 2, got %d", len(events))
		}
	})

	t.Run("DateRangeFilter", func(t *testing.T) {
		events, total, err := store.List(ctx, domain.EventFilter{
			EmployeeID: "emp-list",
			From:       base.Add(time.Hour),
			To:         base.Add(3 * time.Hour),
		})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 3 || len(events) != 3 {
			t.Errorf("expected 3 events in range, got %d (total %d)", len(events), total)
		}
	})

	t.Run("EffectiveAscForAggregation", func(t *testing.T) {
		events, err := store.ListEffectiveAsc(ctx, "emp-list")
		if err != nil {
			t.Fatalf("ListEffectiveAsc failed: %v", err)
		}
		if len(events) != 5 {
			t.Fatalf("expected 5 effective events, got %d", len(events))
		}
		for i := 1; i < len(events); i++ {
			if events[i].CreatedAt.Before(events[i-1].CreatedAt) {
				t.Errorf("events not ascending at index %d", i)
			}
		}

		// Toggled-off events drop out of the aggregation read.
		if err := store.SetEffective(ctx, events[0].ID, false); err != nil {
			t.Fatalf("SetEffective failed: %v", err)
		}
		remaining, err := store.ListEffectiveAsc(ctx, "emp-list")
		if err != nil {
			t.Fatalf("ListEffectiveAsc failed: %v", err)
		}
		if len(remaining) != 4 {
			t.Errorf("expected 4 effective events after toggle, got %d", len(remaining))
		}
	})
}

func TestCorrectionAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Create(ctx, sampleEvent("emp-correct"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("CorrectionKeepsProvenance", func(t *testing.T) {
		err := store.UpdateCorrection(ctx, stored.ID, domain.KindOther, "reclassified after review")
		if err != nil {
			t.Fatalf("UpdateCorrection failed: %v", err)
		}

		got, _ := store.Get(ctx, stored.ID)
		if got.Kind != domain.KindOther || got.Reason != "reclassified after review" {
			t.Errorf("correction not applied: %+v", got)
		}
		if !got.CreatedAt.Equal(stored.CreatedAt) {
			t.Error("correction must not change createdAt")
		}
		if got.SourceMeta == nil {
			t.Error("correction must not drop provenance")
		}
	})

	t.Run("CorrectionValidates", func(t *testing.T) {
		if err := store.UpdateCorrection(ctx, stored.ID, "bogus", "x"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, stored.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, stored.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, stored.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on double delete, got %v", err)
		}
	})
}

func TestBatchCreateBestEffort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	good := sampleEvent("emp-batch")
	bad := &domain.ViolationEvent{EmployeeID: "emp-batch"} // no kind, no reason

	res, err := store.BatchCreate(ctx, []*domain.ViolationEvent{good, bad})
	if err != nil {
		t.Fatalf("BatchCreate failed: %v", err)
	}
	if len(res.Created) != 1 {
		t.Errorf("expected 1 created, got %d", len(res.Created))
	}
	if len(res.Failed) != 1 {
		t.Errorf("expected 1 failure, got %d", len(res.Failed))
	}
}
