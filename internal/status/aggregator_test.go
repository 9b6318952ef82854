package status

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/teamops/warden/internal/domain"
)

func eventAt(created time.Time, reason string) *domain.ViolationEvent {
	return &domain.ViolationEvent{
		ID:          "ev-" + reason,
		EmployeeID:  "emp-001",
		Kind:        domain.KindResponseTimeout,
		Reason:      reason,
		SourceType:  domain.SourceAutoGenerated,
		CreatedAt:   created,
		IsEffective: true,
	}
}

func TestAggregateEmpty(t *testing.T) {
	st := Aggregate("emp-001", nil, 3)

	if st.Status != domain.StatusNormal {
		t.Errorf("expected Normal, got %s", st.Status)
	}
	if st.CurrentWarningCount != 0 || st.CurrentSuspensionCount != 0 || st.TotalViolations != 0 {
		t.Errorf("expected zero counts, got %+v", st)
	}
	if len(st.History) != 0 {
		t.Errorf("expected empty history, got %d entries", len(st.History))
	}
}

func TestAggregateWarnings(t *testing.T) {
	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	events := []*domain.ViolationEvent{
		eventAt(base, "first"),
		eventAt(base.Add(24*time.Hour), "second"),
	}

	st := Aggregate("emp-001", events, 3)

	if st.Status != domain.StatusWarned {
		t.Errorf("expected Warned, got %s", st.Status)
	}
	if st.CurrentWarningCount != 2 {
		t.Errorf("expected 2 warnings, got %d", st.CurrentWarningCount)
	}
	if st.CurrentSuspensionCount != 0 {
		t.Errorf("expected 0 suspensions, got %d", st.CurrentSuspensionCount)
	}
	if st.TotalViolations != 2 {
		t.Errorf("expected 2 total, got %d", st.TotalViolations)
	}
}

func TestAggregateEscalation(t *testing.T) {
	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	events := []*domain.ViolationEvent{
		eventAt(base, "first"),
		eventAt(base.Add(24*time.Hour), "second"),
		eventAt(base.Add(48*time.Hour), "third"),
	}

	st := Aggregate("emp-001", events, 3)

	if st.Status != domain.StatusSuspended {
		t.Errorf("expected Suspended, got %s", st.Status)
	}
	if st.CurrentSuspensionCount != 1 {
		t.Errorf("expected 1 suspension, got %d", st.CurrentSuspensionCount)
	}
	if st.CurrentWarningCount != 0 {
		t.Errorf("expected warnings reset to 0, got %d", st.CurrentWarningCount)
	}
	// Escalation does not reduce the lifetime total.
	if st.TotalViolations != 3 {
		t.Errorf("expected 3 total, got %d", st.TotalViolations)
	}

	// 3 violation entries plus 1 escalation entry.
	if len(st.History) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(st.History))
	}
	last := st.History[3]
	if last.ChangeType != domain.ChangeEscalation {
		t.Errorf("expected escalation entry last, got %s", last.ChangeType)
	}
}

func TestAggregateEscalationRollover(t *testing.T) {
	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	var events []*domain.ViolationEvent
	for i := 0; i < 7; i++ {
		events = append(events, eventAt(base.Add(time.Duration(i)*24*time.Hour), fmt.Sprintf("v%d", i)))
	}

	// 7 events with K=3: two escalations, one warning left over.
	st := Aggregate("emp-001", events, 3)

	if st.CurrentSuspensionCount != 2 {
		t.Errorf("expected 2 suspensions, got %d", st.CurrentSuspensionCount)
	}
	if st.CurrentWarningCount != 1 {
		t.Errorf("expected 1 warning left, got %d", st.CurrentWarningCount)
	}
	if st.TotalViolations != 7 {
		t.Errorf("expected 7 total, got %d", st.TotalViolations)
	}
	if st.Status != domain.StatusSuspended {
		t.Errorf("expected Suspended, got %s", st.Status)
	}
}

func TestAggregateWeekLabels(t *testing.T) {
	// 2026-02-02 is a Monday of ISO week 6.
	ev := eventAt(time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC), "labelled")

	st := Aggregate("emp-001", []*domain.ViolationEvent{ev}, 3)

	if len(st.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(st.History))
	}
	if st.History[0].Week != "2026-W06" {
		t.Errorf("expected week 2026-W06, got %s", st.History[0].Week)
	}
	if st.History[0].Reason != "labelled" {
		t.Errorf("history entry must carry the event reason, got %q", st.History[0].Reason)
	}
}

func TestAggregateOrderIndependence(t *testing.T) {
	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	ordered := []*domain.ViolationEvent{
		eventAt(base, "a"),
		eventAt(base.Add(time.Hour), "b"),
		eventAt(base.Add(2*time.Hour), "c"),
	}
	shuffled := []*domain.ViolationEvent{ordered[2], ordered[0], ordered[1]}

	a := Aggregate("emp-001", ordered, 3)
	b := Aggregate("emp-001", shuffled, 3)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("aggregation must be deterministic regardless of input order:\n%+v\n%+v", a, b)
	}
}

func TestAggregateDeterminism(t *testing.T) {
	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	events := []*domain.ViolationEvent{
		eventAt(base, "a"),
		eventAt(base.Add(time.Hour), "b"),
	}

	first := Aggregate("emp-001", events, 3)
	for i := 0; i < 5; i++ {
		if got := Aggregate("emp-001", events, 3); !reflect.DeepEqual(first, got) {
			t.Fatalf("run %d differed from first run", i)
		}
	}
}
