// Package entity holds the typed model of a synchronizable configuration
// object: an addressable (type, name) pair within a namespace, an ordered
// mapping of field name to value, and the observed state of one entity as
// seen from one system at sync time.
//
// Entities and states are value objects. Every mutation produces a new
// value; nothing in this package mutates its receiver or arguments.
package entity

import (
	"fmt"
	"sort"
	"time"
)

// Ref addresses one configuration entity within a namespace.
type Ref struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Name      string `json:"name"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Namespace, r.Type, r.Name)
}

// Fields is an entity's field name to value mapping. Values are scalars,
// []any lists, or nested map[string]any.
type Fields map[string]any

// State is the state of one entity as observed from one system at sync time.
type State struct {
	Ref          Ref       `json:"ref"`
	Fields       Fields    `json:"fields"`
	SourceSystem string    `json:"source_system"`
	ObservedAt   time.Time `json:"observed_at"`
	Revision     string    `json:"revision,omitempty"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Fields = s.Fields.Clone()
	return out
}

// Clone returns a deep copy of the field set.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single field value.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, nested := range tv {
			out[k] = CloneValue(nested)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, nested := range tv {
			out[i] = CloneValue(nested)
		}
		return out
	default:
		return v
	}
}

// Names returns the sorted field names of the union of both field sets.
func Names(a, b Fields) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StatesByRef indexes a state list by entity ref.
func StatesByRef(states []State) map[Ref]State {
	out := make(map[Ref]State, len(states))
	for _, s := range states {
		out[s.Ref] = s
	}
	return out
}
