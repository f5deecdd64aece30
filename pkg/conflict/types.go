// Package conflict tracks detected drift through its resolution lifecycle.
//
// A Conflict moves strictly forward:
//
//	Pending -> Resolved -> Applied
//	Pending -> Resolved -> Skipped
//
// Resolved requires a Resolution; Applied and Skipped are terminal and are
// reached only by the sync orchestrator after writing (or deliberately not
// writing) the resolved state.
package conflict

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
)

// Status is a conflict's position in the resolution lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusApplied  Status = "applied"
	StatusSkipped  Status = "skipped"
)

// rank orders statuses so transitions can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusResolved:
		return 1
	case StatusApplied, StatusSkipped:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusSkipped
}

// Action is the resolution decision for one conflict.
type Action string

const (
	ActionKeepSource Action = "keep-source"
	ActionKeepTarget Action = "keep-target"
	ActionMerge      Action = "merge"
	ActionSkip       Action = "skip"
)

// FieldDrift records one top-level field whose resolved value differs
// between source and target, annotated with the baseline value when one
// exists to support three-way classification downstream.
type FieldDrift struct {
	Field         string `json:"field"`
	SourceValue   any    `json:"source_value,omitempty"`
	TargetValue   any    `json:"target_value,omitempty"`
	BaselineValue any    `json:"baseline_value,omitempty"`
	HasBaseline   bool   `json:"has_baseline"`
}

// Resolution captures the decision for one conflict. Merge resolutions
// carry MergedFields covering every field in the entity's schema; partial
// entities are never persisted.
type Resolution struct {
	Action       Action        `json:"action"`
	MergedFields entity.Fields `json:"merged_fields,omitempty"`
	ResolvedBy   string        `json:"resolved_by"`
	ResolvedAt   time.Time     `json:"resolved_at"`
}

// Conflict is one entity's detected drift plus its resolution state.
type Conflict struct {
	ID            string        `json:"id"`
	Ref           entity.Ref    `json:"ref"`
	Source        entity.State  `json:"source"`
	Target        entity.State  `json:"target"`
	Baseline      *entity.State `json:"baseline,omitempty"`
	Schema        entity.Schema `json:"schema,omitempty"`
	DriftedFields []FieldDrift  `json:"drifted_fields"`
	Status        Status        `json:"status"`
	Resolution    *Resolution   `json:"resolution,omitempty"`
}

// clone returns a deep copy. The engine hands these out so callers can
// mutate the result without corrupting engine-held state.
func (c *Conflict) clone() *Conflict {
	cp := *c
	cp.Source = c.Source.Clone()
	cp.Target = c.Target.Clone()
	if c.Baseline != nil {
		b := c.Baseline.Clone()
		cp.Baseline = &b
	}
	if c.DriftedFields != nil {
		cp.DriftedFields = append([]FieldDrift(nil), c.DriftedFields...)
	}
	if c.Resolution != nil {
		r := *c.Resolution
		r.MergedFields = c.Resolution.MergedFields.Clone()
		cp.Resolution = &r
	}
	return &cp
}

// DriftedFieldNames returns the names of the drifted fields in order.
func (c *Conflict) DriftedFieldNames() []string {
	names := make([]string, 0, len(c.DriftedFields))
	for _, fd := range c.DriftedFields {
		names = append(names, fd.Field)
	}
	return names
}

// HasBaseline reports whether three-way comparison is possible.
func (c *Conflict) HasBaseline() bool {
	return c.Baseline != nil
}
