// Package rules provides the compliance rule evaluator.
package rules

import (
	"fmt"

	"github.com/teamops/warden/internal/domain"
)

// Evaluate maps one metric snapshot and one rule configuration to an
// outcome. Pure: no side effects, and missing optional config fields
// never produce an error, only OutcomeNone.
func Evaluate(snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) domain.Outcome {
	if snap == nil || cfg == nil || !cfg.HasThresholds() {
		return domain.OutcomeNone
	}
	if !windowsOverlap(snap, cfg) {
		return domain.OutcomeNone
	}

	timeout := timeoutTriggers(snap, cfg)
	shortfall := shortfallTriggers(snap, cfg)

	switch {
	case timeout && shortfall:
		return domain.OutcomeBoth
	case timeout:
		return domain.OutcomeTimeout
	case shortfall:
		return domain.OutcomeShortfall
	default:
		return domain.OutcomeNone
	}
}

// windowsOverlap tests the snapshot window against the configured
// observation window: snapStart <= cfgEnd && snapEnd >= cfgStart, with
// a missing bound treated as unbounded on that side.
func windowsOverlap(snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) bool {
	if cfg.WindowEnd != nil && snap.WindowStart.After(*cfg.WindowEnd) {
		return false
	}
	if cfg.WindowStart != nil && snap.WindowEnd.Before(*cfg.WindowStart) {
		return false
	}
	return true
}

// timeoutTriggers requires BOTH bounds exceeded, strict inequality. A
// high timeout rate alone does not trigger without sufficient lead
// volume.
func timeoutTriggers(snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) bool {
	if cfg.TimeoutRateThresholdPercent == nil || cfg.MinLeadsForTimeoutRule == nil {
		return false
	}
	return snap.TimeoutRatePercent > *cfg.TimeoutRateThresholdPercent &&
		snap.MessageLeadsCount > *cfg.MinLeadsForTimeoutRule
}

func shortfallTriggers(snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) bool {
	if cfg.MinPublishedNotes == nil {
		return false
	}
	return snap.PublishedNotesCount < *cfg.MinPublishedNotes
}

// Reason builds the human-readable audit string for one triggered kind.
// It embeds the numeric values that triggered the rule.
func Reason(kind domain.ViolationKind, snap *domain.MetricSnapshot, cfg *domain.RuleConfiguration) string {
	switch kind {
	case domain.KindResponseTimeout:
		return fmt.Sprintf(
			"timeout rate %.2f%% exceeded threshold %.2f%% with %d message leads (minimum %d)",
			snap.TimeoutRatePercent, deref(cfg.TimeoutRateThresholdPercent),
			snap.MessageLeadsCount, derefInt(cfg.MinLeadsForTimeoutRule),
		)
	case domain.KindPublishingShortfall:
		return fmt.Sprintf(
			"published %d notes, below minimum %d",
			snap.PublishedNotesCount, derefInt(cfg.MinPublishedNotes),
		)
	default:
		if cfg != nil && cfg.CustomReason != "" {
			return fmt.Sprintf(
				"%s (timeout rate %.2f%%, %d leads, %d notes)",
				cfg.CustomReason, snap.TimeoutRatePercent,
				snap.MessageLeadsCount, snap.PublishedNotesCount,
			)
		}
		return fmt.Sprintf(
			"custom rule triggered (timeout rate %.2f%%, %d leads, %d notes)",
			snap.TimeoutRatePercent, snap.MessageLeadsCount, snap.PublishedNotesCount,
		)
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
