// pkg/merge/threeway.go

package merge

import (
	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
)

// ThreeWay is the default merge strategy. For each drifted field it
// classifies the edit against the baseline:
//
//   - unchanged on source -> take the target value
//   - unchanged on target -> take the source value
//   - changed on both     -> irreconcilable; the whole merge is refused
//
// A genuine double-edit never gets a guessed winner. Without a baseline
// the classification is ambiguous, so the strategy always refuses.
type ThreeWay struct{}

func (ThreeWay) Name() string { return "three-way" }

func (ThreeWay) TryMerge(c *conflict.Conflict) (entity.Fields, error) {
	if !c.HasBaseline() {
		return nil, ErrMergeUnavailable
	}

	// Non-drifted fields agree on both sides, so the source's copy of
	// them is the shared value. Drifted fields are decided below.
	merged := c.Source.Fields.Clone()

	for _, fd := range c.DriftedFields {
		var baseVal any
		if fd.HasBaseline {
			baseVal = fd.BaselineValue
		}
		sourceSame := entity.FieldEqual(c.Schema, fd.Field, fd.SourceValue, baseVal)
		targetSame := entity.FieldEqual(c.Schema, fd.Field, fd.TargetValue, baseVal)

		switch {
		case sourceSame && !targetSame:
			setField(merged, fd.Field, fd.TargetValue)
		case targetSame && !sourceSame:
			setField(merged, fd.Field, fd.SourceValue)
		default:
			// Changed on both sides to different values, or both match
			// the baseline yet still drifted (presence vs nil ambiguity).
			return nil, ErrMergeUnavailable
		}
	}

	return merged, nil
}

// setField writes a drifted field's winning value; a nil value means the
// winning side deleted the field.
func setField(fields entity.Fields, name string, value any) {
	if value == nil {
		delete(fields, name)
		return
	}
	fields[name] = entity.CloneValue(value)
}
