package domain

import "time"

// RuleConfiguration is the operator-supplied threshold set for one
// evaluation run. It is a value passed explicitly into every evaluation
// call; the engine never reads thresholds from ambient state. A
// configuration with no thresholds set is inert: the evaluator reports
// "not configured" rather than a false violation.
type RuleConfiguration struct {
	// Timeout rule: triggers only when BOTH the rate and the lead volume
	// exceed their thresholds (strict >), so low-traffic accounts are
	// not penalized for a noisy rate.
	TimeoutRateThresholdPercent *float64 `json:"timeoutRateThresholdPercent,omitempty"`
	MinLeadsForTimeoutRule      *int     `json:"minLeadsForTimeoutRule,omitempty"`

	// Shortfall rule: triggers when published notes fall below this
	// minimum (strict <).
	MinPublishedNotes *int `json:"minPublishedNotes,omitempty"`

	// Observation window. A missing bound is unbounded on that side.
	WindowStart *time.Time `json:"windowStart,omitempty"`
	WindowEnd   *time.Time `json:"windowEnd,omitempty"`

	// CustomExpression is an optional CEL expression over snapshot
	// variables (timeout_rate, message_leads, published_notes). When it
	// evaluates true an "other"-kind violation is emitted.
	CustomExpression string `json:"customExpression,omitempty"`

	// CustomReason labels events produced by CustomExpression.
	CustomReason string `json:"customReason,omitempty"`
}

// HasThresholds reports whether any rule is configured at all.
func (c *RuleConfiguration) HasThresholds() bool {
	if c == nil {
		return false
	}
	return (c.TimeoutRateThresholdPercent != nil && c.MinLeadsForTimeoutRule != nil) ||
		c.MinPublishedNotes != nil ||
		c.CustomExpression != ""
}

// MetricSnapshot holds the counters one employee produced in one
// reporting window. The response-metric window may differ from the
// leads window, so both are carried.
type MetricSnapshot struct {
	EmployeeID string `json:"employeeId"`

	// TimeoutRatePercent is in [0, 100].
	TimeoutRatePercent  float64 `json:"timeoutRatePercent"`
	MessageLeadsCount   int     `json:"messageLeadsCount"`
	PublishedNotesCount int     `json:"publishedNotesCount"`

	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	// Response-metric window for the timeout rate, when it differs from
	// the leads window.
	ResponseWindowStart time.Time `json:"responseWindowStart,omitempty"`
	ResponseWindowEnd   time.Time `json:"responseWindowEnd,omitempty"`

	CollectedAt time.Time `json:"collectedAt,omitempty"`
}

// Outcome is the result of evaluating one snapshot against one
// configuration.
type Outcome int

const (
	// OutcomeNone means no rule triggered, or the configuration was
	// inert, or the windows did not overlap.
	OutcomeNone Outcome = iota
	OutcomeTimeout
	OutcomeShortfall
	OutcomeBoth
)

// String returns a readable label for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeShortfall:
		return "shortfall"
	case OutcomeBoth:
		return "both"
	default:
		return "none"
	}
}

// Kinds expands an outcome into the violation kinds it implies. Both
// yields two kinds so each event stays independently toggle-able.
func (o Outcome) Kinds() []ViolationKind {
	switch o {
	case OutcomeTimeout:
		return []ViolationKind{KindResponseTimeout}
	case OutcomeShortfall:
		return []ViolationKind{KindPublishingShortfall}
	case OutcomeBoth:
		return []ViolationKind{KindResponseTimeout, KindPublishingShortfall}
	default:
		return nil
	}
}
