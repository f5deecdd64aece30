// Package sync coordinates one synchronization pass between a source and
// a target configuration system.
//
// The package follows the Assess → Intervene → Evaluate pattern:
//   - Assess: fetch both entity sets and the baseline, detect drift
//   - Intervene: snapshot, apply resolved state entity by entity
//   - Evaluate: persist the new baseline, report the pass result
//
// Push and Pull share one algorithm, differing only in which configured
// system plays which role.
package sync

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
)

// SystemAdapter is the collaborator interface to one configuration
// system. The engine is adapter-agnostic; adapters own their protocols.
type SystemAdapter interface {
	Name() string
	FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error)
	ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error
}

// Direction says which configured system plays the source role.
type Direction string

const (
	// DirectionPush syncs local state onto the remote system.
	DirectionPush Direction = "push"
	// DirectionPull syncs remote state onto the local system.
	DirectionPull Direction = "pull"
)

// Resolver supplies resolution decisions for the detected conflict set.
// Interactive callers may hold the engine for arbitrarily long between
// detection and decision; the engine itself never blocks on a human.
type Resolver interface {
	Resolve(rc *metis_io.RuntimeContext, eng *conflict.Engine) error
}

// SyncConfig is everything one pass needs.
type SyncConfig struct {
	Context   config.SyncContext
	Direction Direction
	Source    SystemAdapter
	Target    SystemAdapter
	Resolver  Resolver
	Schemas   map[string]entity.Schema
	DryRun    bool
}

// Failure is one entity's apply failure, reported and never retried
// within the pass.
type Failure struct {
	Ref        entity.Ref `json:"ref"`
	ConflictID string     `json:"conflict_id,omitempty"`
	Reason     string     `json:"reason"`
}

// Result is the partial-success summary of one sync pass.
type Result struct {
	OperationID string           `json:"operation_id"`
	Direction   Direction        `json:"direction"`
	Namespace   string           `json:"namespace"`
	DryRun      bool             `json:"dry_run"`
	Synced      []entity.Ref     `json:"synced,omitempty"`
	Applied     []entity.Ref     `json:"applied,omitempty"`
	Skipped     []entity.Ref     `json:"skipped,omitempty"`
	Unchanged   int              `json:"unchanged"`
	Failures    []Failure        `json:"failures,omitempty"`
	SnapshotID  string           `json:"snapshot_id,omitempty"`
	Preview     conflict.Summary `json:"preview"`
	Duration    time.Duration    `json:"duration"`
}

// Success reports whether every entity either synced, applied, or was
// deliberately skipped.
func (r *Result) Success() bool {
	return len(r.Failures) == 0
}
