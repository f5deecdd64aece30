// pkg/entity/schema.go

package entity

// Schema carries the comparison hints for one entity type. List-valued
// fields compare order-sensitively unless tagged as a set here.
type Schema struct {
	// SetFields names the top-level fields whose list values compare as
	// unordered sets.
	SetFields map[string]bool `json:"set_fields,omitempty"`
}

// IsSet reports whether a field's list value compares order-insensitively.
func (s Schema) IsSet(field string) bool {
	return s.SetFields[field]
}
