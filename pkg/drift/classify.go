// pkg/drift/classify.go

package drift

import "github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"

// Type categorizes one drifted field for reporting.
type Type string

const (
	// TypeAdded - the field exists on the source but not the target.
	TypeAdded Type = "added"
	// TypeRemoved - the field exists on the target but not the source.
	TypeRemoved Type = "removed"
	// TypeModified - the field exists on both sides with different values.
	TypeModified Type = "modified"
)

// Classify reports how a drifted field differs between source and target.
func Classify(fd conflict.FieldDrift) Type {
	switch {
	case fd.SourceValue != nil && fd.TargetValue == nil:
		return TypeAdded
	case fd.SourceValue == nil && fd.TargetValue != nil:
		return TypeRemoved
	default:
		return TypeModified
	}
}
