package domain

import "time"

// StatusLevel is the derived compliance state of one employee.
type StatusLevel string

const (
	StatusNormal    StatusLevel = "normal"
	StatusWarned    StatusLevel = "warned"
	StatusSuspended StatusLevel = "suspended"
)

// IsValid returns true if the level is a recognized value.
func (s StatusLevel) IsValid() bool {
	switch s {
	case StatusNormal, StatusWarned, StatusSuspended:
		return true
	}
	return false
}

// ChangeType classifies a status-history entry.
type ChangeType string

const (
	// ChangeViolation records one effective event adding a warning.
	ChangeViolation ChangeType = "violation"

	// ChangeRecovery records a manual or imported downgrade. The
	// aggregator never produces it from replay; it exists so imported
	// histories can be represented.
	ChangeRecovery ChangeType = "recovery"

	// ChangeEscalation records accumulated warnings converting into one
	// suspension.
	ChangeEscalation ChangeType = "escalation"
)

// StatusTransition is one entry in the replayable status history.
type StatusTransition struct {
	// Week is the ISO week label of the triggering event, e.g. "2026-W07".
	Week       string     `json:"week"`
	Reason     string     `json:"reason"`
	Timestamp  time.Time  `json:"timestamp"`
	ChangeType ChangeType `json:"changeType"`
}

// ViolationStatus is the derived compliance status of one employee.
// It is recomputed on demand from the live effective-event set and is
// never persisted, so it is always consistent with the latest toggles.
type ViolationStatus struct {
	EmployeeID string      `json:"employeeId"`
	Status     StatusLevel `json:"status"`

	// Counts derived from effective events only.
	CurrentWarningCount    int `json:"currentWarningCount"`
	CurrentSuspensionCount int `json:"currentSuspensionCount"`

	// TotalViolations counts all effective events ever; escalation
	// resets do not reduce it.
	TotalViolations int `json:"totalViolations"`

	History []StatusTransition `json:"statusHistory"`
}
