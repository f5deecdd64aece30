// Package drift computes field-level differences between two observed
// entity states, optionally annotated against a baseline for three-way
// classification.
package drift

import (
	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/google/uuid"
)

// Detect compares source and target fields key by key and returns a
// Pending conflict describing the drift, or nil when the two states are
// identical (the entity needs no synchronization).
//
// Detect is pure: it never mutates its inputs and is deterministic given
// the same three states.
func Detect(source, target entity.State, baseline *entity.State, schema entity.Schema) *conflict.Conflict {
	var drifted []conflict.FieldDrift

	for _, name := range entity.Names(source.Fields, target.Fields) {
		sv, sok := source.Fields[name]
		tv, tok := target.Fields[name]
		if sok && tok && entity.FieldEqual(schema, name, sv, tv) {
			continue
		}

		fd := conflict.FieldDrift{
			Field:       name,
			SourceValue: cloneIfPresent(sv, sok),
			TargetValue: cloneIfPresent(tv, tok),
		}
		if baseline != nil {
			if bv, ok := baseline.Fields[name]; ok {
				fd.BaselineValue = entity.CloneValue(bv)
				fd.HasBaseline = true
			}
		}
		drifted = append(drifted, fd)
	}

	if len(drifted) == 0 {
		return nil
	}

	c := &conflict.Conflict{
		ID:            uuid.New().String(),
		Ref:           source.Ref,
		Source:        source.Clone(),
		Target:        target.Clone(),
		Schema:        schema,
		DriftedFields: drifted,
		Status:        conflict.StatusPending,
	}
	if baseline != nil {
		b := baseline.Clone()
		c.Baseline = &b
	}
	return c
}

func cloneIfPresent(v any, present bool) any {
	if !present {
		return nil
	}
	return entity.CloneValue(v)
}
