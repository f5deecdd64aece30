// Package merge attempts to reconcile two divergent entity states given a
// common baseline.
//
// Strategies are registered by name; the built-in three-way algorithm is
// the default. Plugin-provided strategies are plain registrations against
// the same interface, not runtime patching.
package merge

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	cerr "github.com/cockroachdb/errors"
)

// ErrMergeUnavailable signals that a strategy cannot produce a merge for
// this conflict and the caller must fall back to manual resolution.
var ErrMergeUnavailable = cerr.New("auto-merge unavailable for this conflict")

// Strategy merges a conflict's divergent states into one field set, or
// returns ErrMergeUnavailable.
type Strategy interface {
	Name() string
	TryMerge(c *conflict.Conflict) (entity.Fields, error)
}

// strategyRegistry holds all registered merge strategies
var strategyRegistry = make(map[string]Strategy)

// Register registers a merge strategy in the global registry.
func Register(s Strategy) {
	strategyRegistry[s.Name()] = s
}

// Get retrieves a strategy by name.
func Get(name string) (Strategy, error) {
	s, exists := strategyRegistry[name]
	if !exists {
		return nil, fmt.Errorf("no merge strategy registered with name: %s", name)
	}
	return s, nil
}

// List returns all registered strategy names.
func List() []string {
	names := make([]string, 0, len(strategyRegistry))
	for name := range strategyRegistry {
		names = append(names, name)
	}
	return names
}

func init() {
	Register(ThreeWay{})
}
