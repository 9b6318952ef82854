// Package status derives compliance status from violation events.
package status

import (
	"fmt"
	"sort"

	"github.com/teamops/warden/internal/domain"
)

// Aggregate maps one employee's effective events to a derived status.
// Events must be pre-filtered to is_effective = true; ordering is
// normalized here so callers may pass any order. warningsPerSuspension
// is K, the operator-set escalation ratio.
//
// Deterministic: identical (events, K) input gives identical output.
// Zero events yields Normal with empty history, not an error.
func Aggregate(employeeID string, events []*domain.ViolationEvent, warningsPerSuspension int) *domain.ViolationStatus {
	st := &domain.ViolationStatus{
		EmployeeID: employeeID,
		Status:     domain.StatusNormal,
		History:    []domain.StatusTransition{},
	}
	if len(events) == 0 {
		return st
	}
	if warningsPerSuspension <= 0 {
		warningsPerSuspension = 1
	}

	ordered := make([]*domain.ViolationEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	w, s := 0, 0
	for _, ev := range ordered {
		week := isoWeekLabel(ev)
		w++
		st.TotalViolations++
		st.History = append(st.History, domain.StatusTransition{
			Week:       week,
			Reason:     ev.Reason,
			Timestamp:  ev.CreatedAt,
			ChangeType: domain.ChangeViolation,
		})

		if w >= warningsPerSuspension {
			w -= warningsPerSuspension
			s++
			st.History = append(st.History, domain.StatusTransition{
				Week:       week,
				Reason:     fmt.Sprintf("%d warnings escalated to suspension", warningsPerSuspension),
				Timestamp:  ev.CreatedAt,
				ChangeType: domain.ChangeEscalation,
			})
		}
	}

	st.CurrentWarningCount = w
	st.CurrentSuspensionCount = s
	switch {
	case s > 0:
		st.Status = domain.StatusSuspended
	case w > 0:
		st.Status = domain.StatusWarned
	}
	return st
}

// isoWeekLabel formats the event's weekly bucket, e.g. "2026-W07".
func isoWeekLabel(ev *domain.ViolationEvent) string {
	year, week := ev.CreatedAt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
