// pkg/conflict/engine.go

package conflict

import (
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Merger attempts an automatic merge for a conflict. Any error means the
// merge is unavailable and the caller must supply fields manually.
type Merger interface {
	TryMerge(c *Conflict) (entity.Fields, error)
}

// Engine tracks the conflict set of one sync pass through the resolution
// lifecycle. All transitions are linearized behind one mutex, so a single
// conflict is only ever resolved once.
type Engine struct {
	mu        sync.Mutex
	conflicts map[string]*Conflict
	order     []string
	merger    Merger
}

// NewEngine builds an engine over the detected conflict set.
func NewEngine(merger Merger, conflicts []*Conflict) *Engine {
	e := &Engine{
		conflicts: make(map[string]*Conflict, len(conflicts)),
		merger:    merger,
	}
	for _, c := range conflicts {
		e.conflicts[c.ID] = c
		e.order = append(e.order, c.ID)
	}
	return e
}

// Get returns a deep copy of one conflict.
func (e *Engine) Get(id string) (*Conflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conflicts[id]
	if !ok {
		return nil, metis_err.NewInvalidResolution(id, "unknown conflict id")
	}
	return c.clone(), nil
}

// All returns deep copies of every conflict in detection order.
func (e *Engine) All() []*Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Conflict, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.conflicts[id].clone())
	}
	return out
}

// Pending returns deep copies of the conflicts still awaiting a decision.
func (e *Engine) Pending() []*Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Conflict
	for _, id := range e.order {
		if e.conflicts[id].Status == StatusPending {
			out = append(out, e.conflicts[id].clone())
		}
	}
	return out
}

// ResolveOne validates and records a resolution for one pending conflict.
//
// A Merge action requires either a successful automatic merge or
// caller-supplied manualFields covering the full entity; anything less is
// rejected with InvalidResolution and the conflict stays Pending.
func (e *Engine) ResolveOne(rc *metis_io.RuntimeContext, id string, action Action, manualFields entity.Fields, resolvedBy string) (*Conflict, error) {
	logger := otelzap.Ctx(rc.Ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conflicts[id]
	if !ok {
		return nil, metis_err.NewInvalidResolution(id, "unknown conflict id")
	}
	if c.Status != StatusPending {
		return nil, metis_err.NewInvalidResolution(id, "conflict is not pending (status: "+string(c.Status)+")")
	}

	res, err := e.buildResolution(c, action, manualFields, resolvedBy)
	if err != nil {
		return nil, err
	}

	c.Status = StatusResolved
	c.Resolution = res

	logger.Info("Conflict resolved",
		zap.String("conflict_id", id),
		zap.String("entity", c.Ref.String()),
		zap.String("action", string(action)),
		zap.String("resolved_by", resolvedBy))

	return c.clone(), nil
}

// Filter selects conflicts for batch resolution.
type Filter struct {
	// Type restricts by entity type when non-empty.
	Type string
	// PendingOnly is implied: batch operations only ever touch Pending
	// conflicts. The field exists so callers can be explicit about it.
	PendingOnly bool
}

func (f Filter) matches(c *Conflict) bool {
	if c.Status != StatusPending {
		return false
	}
	if f.Type != "" && c.Ref.Type != f.Type {
		return false
	}
	return true
}

// ResolveBatch applies one action to every Pending conflict matching the
// filter. Conflicts already Resolved, Applied, or Skipped are untouched;
// batch operations are strictly additive over the pending set.
//
// Returns the number of conflicts resolved. With ActionMerge, conflicts
// whose automatic merge is unavailable are left Pending and reported in
// the returned error while the rest proceed.
func (e *Engine) ResolveBatch(rc *metis_io.RuntimeContext, filter Filter, action Action, resolvedBy string) (int, error) {
	logger := otelzap.Ctx(rc.Ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	var resolved, failed int
	var errs *multierror.Error
	for _, id := range e.order {
		c := e.conflicts[id]
		if !filter.matches(c) {
			continue
		}
		res, err := e.buildResolution(c, action, nil, resolvedBy)
		if err != nil {
			errs = multierror.Append(errs, err)
			failed++
			continue
		}
		c.Status = StatusResolved
		c.Resolution = res
		resolved++
	}

	logger.Info("Batch resolution applied",
		zap.String("action", string(action)),
		zap.Int("resolved", resolved),
		zap.Int("failed", failed))

	return resolved, errs.ErrorOrNil()
}

// MarkApplied transitions a resolved conflict to Applied. Only the sync
// orchestrator calls this, after the entity's write and audit entry have
// both succeeded.
func (e *Engine) MarkApplied(id string) error {
	return e.finalize(id, StatusApplied)
}

// MarkSkipped transitions a conflict to Skipped, either from Pending
// (skip-conflicts policy) or from a Resolved skip decision.
func (e *Engine) MarkSkipped(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conflicts[id]
	if !ok {
		return metis_err.NewInvalidResolution(id, "unknown conflict id")
	}
	if c.Status.Terminal() {
		return metis_err.NewInvalidResolution(id, "conflict already finalized")
	}
	if c.Resolution == nil {
		c.Resolution = &Resolution{Action: ActionSkip, ResolvedBy: "policy", ResolvedAt: time.Now().UTC()}
	}
	c.Status = StatusSkipped
	return nil
}

func (e *Engine) finalize(id string, status Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conflicts[id]
	if !ok {
		return metis_err.NewInvalidResolution(id, "unknown conflict id")
	}
	// Forward-only: Applied requires a Resolved conflict.
	if c.Status != StatusResolved {
		return metis_err.NewInvalidResolution(id, "cannot finalize from status "+string(c.Status))
	}
	c.Status = status
	return nil
}

// buildResolution validates the action against the conflict and produces
// the Resolution record. Caller holds e.mu.
func (e *Engine) buildResolution(c *Conflict, action Action, manualFields entity.Fields, resolvedBy string) (*Resolution, error) {
	res := &Resolution{
		Action:     action,
		ResolvedBy: resolvedBy,
		ResolvedAt: time.Now().UTC(),
	}

	switch action {
	case ActionKeepSource, ActionKeepTarget, ActionSkip:
		// Whole-entity actions need no field set.
	case ActionMerge:
		fields := manualFields
		if fields == nil && e.merger != nil {
			merged, err := e.merger.TryMerge(c)
			if err != nil {
				return nil, metis_err.NewInvalidResolution(c.ID,
					"auto-merge unavailable and no manual fields supplied: "+err.Error())
			}
			fields = merged
		}
		if fields == nil {
			return nil, metis_err.NewInvalidResolution(c.ID, "merge requires merged fields")
		}
		if err := validateMergeCoverage(c, fields); err != nil {
			return nil, err
		}
		res.MergedFields = fields.Clone()
	default:
		return nil, metis_err.NewInvalidResolution(c.ID, "unknown action "+string(action))
	}

	return res, nil
}

// validateMergeCoverage rejects partial entities: every field the two
// sides agree on must be present, and every drifted field must either be
// present or have been deleted by the winning side.
func validateMergeCoverage(c *Conflict, fields entity.Fields) error {
	drifted := make(map[string]bool, len(c.DriftedFields))
	for _, fd := range c.DriftedFields {
		drifted[fd.Field] = true
	}
	for _, name := range entity.Names(c.Source.Fields, c.Target.Fields) {
		if drifted[name] {
			continue
		}
		if _, ok := fields[name]; !ok {
			return metis_err.NewInvalidResolution(c.ID, "merged fields missing agreed field "+name)
		}
	}
	return nil
}
