// Package domain defines the core types and interfaces for Warden.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ViolationKind identifies which compliance rule an event records.
type ViolationKind string

const (
	// KindResponseTimeout is a timeout-rate violation: the account let too
	// many message leads time out relative to its lead volume.
	KindResponseTimeout ViolationKind = "response_timeout"

	// KindPublishingShortfall is a publishing violation: the account
	// published fewer notes than the configured minimum for the window.
	KindPublishingShortfall ViolationKind = "publishing_shortfall"

	// KindOther covers manual entries and custom-rule triggers.
	KindOther ViolationKind = "other"
)

// IsValid returns true if the kind is a recognized value.
func (k ViolationKind) IsValid() bool {
	switch k {
	case KindResponseTimeout, KindPublishingShortfall, KindOther:
		return true
	}
	return false
}

// SourceType identifies how a violation event entered the system.
type SourceType string

const (
	SourceManual        SourceType = "manual"
	SourceImported      SourceType = "imported"
	SourceAutoGenerated SourceType = "auto_generated"
)

// IsValid returns true if the source type is a recognized value.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceManual, SourceImported, SourceAutoGenerated:
		return true
	}
	return false
}

// SourceMetadata is the provenance frozen into an event at creation time:
// the rule configuration and the metric snapshot that produced it. It is
// written once and read only for audit display, never recomputed.
type SourceMetadata struct {
	RuleConfig *RuleConfiguration `json:"ruleConfig,omitempty"`
	Snapshot   *MetricSnapshot    `json:"snapshot,omitempty"`
}

// ViolationEvent is an append-mostly fact: one rule triggered for one
// employee at one point in time. Only IsEffective and the Reason/Kind
// pair (manual correction) may change after creation.
type ViolationEvent struct {
	ID           string        `json:"id"`
	EmployeeID   string        `json:"employeeId"`
	EmployeeName string        `json:"employeeName,omitempty"`
	Kind         ViolationKind `json:"kind"`

	// Reason embeds the numeric values that triggered the rule, for audit.
	Reason string `json:"reason"`

	SourceType    SourceType      `json:"sourceType"`
	SourceBatchID string          `json:"sourceBatchId,omitempty"`
	SourceMeta    *SourceMetadata `json:"sourceMetadata,omitempty"`

	// CreatedAt defines which weekly bucket the event belongs to.
	CreatedAt time.Time `json:"createdAt"`

	// IsEffective is the soft include/exclude bit. Toggling it never
	// changes CreatedAt and never deletes the record.
	IsEffective bool `json:"isEffective"`
}

// Validate checks the fields a caller must supply before a create.
func (e *ViolationEvent) Validate() error {
	if e.EmployeeID == "" {
		return fmt.Errorf("%w: employeeId is required", ErrInvalidInput)
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: unknown violation kind %q", ErrInvalidInput, e.Kind)
	}
	if e.Reason == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	if !e.SourceType.IsValid() {
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, e.SourceType)
	}
	return nil
}

// MarshalMeta serializes the frozen provenance blob for storage.
func (e *ViolationEvent) MarshalMeta() ([]byte, error) {
	if e.SourceMeta == nil {
		return nil, nil
	}
	return json.Marshal(e.SourceMeta)
}
