// pkg/conflict/preview.go

package conflict

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
)

// PreviewEntry is one conflict's planned outcome.
type PreviewEntry struct {
	ConflictID    string     `json:"conflict_id"`
	Ref           entity.Ref `json:"ref"`
	Status        Status     `json:"status"`
	Action        Action     `json:"action,omitempty"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
}

// Summary is a read-only projection of the whole conflict set, used to
// render a confirmation step before commit.
type Summary struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	Pending     int            `json:"pending"`
	Resolved    int            `json:"resolved"`
	Finalized   int            `json:"finalized"`
	Entries     []PreviewEntry `json:"entries"`
}

// Preview projects the current conflict set without side effects. It is
// repeatable: calling it any number of times changes nothing.
func (e *Engine) Preview() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{GeneratedAt: time.Now().UTC(), Total: len(e.order)}
	for _, id := range e.order {
		c := e.conflicts[id]
		entry := PreviewEntry{
			ConflictID: c.ID,
			Ref:        c.Ref,
			Status:     c.Status,
		}
		switch c.Status {
		case StatusPending:
			s.Pending++
		case StatusResolved:
			s.Resolved++
		default:
			s.Finalized++
		}
		if c.Resolution != nil {
			entry.Action = c.Resolution.Action
			entry.ChangedFields = changedFields(c)
		}
		s.Entries = append(s.Entries, entry)
	}
	return s
}

// changedFields lists the target-side fields the chosen action will change.
func changedFields(c *Conflict) []string {
	result, ok := ResultState(c)
	if !ok {
		return nil
	}
	var changed []string
	for _, name := range entity.Names(result.Fields, c.Target.Fields) {
		rv, rok := result.Fields[name]
		tv, tok := c.Target.Fields[name]
		if rok && tok && entity.FieldEqual(c.Schema, name, rv, tv) {
			continue
		}
		changed = append(changed, name)
	}
	return changed
}

// ResultState computes the full entity state a resolution will write to
// the target. KeepSource and KeepTarget replace the entire entity with
// that side's observed state, never a hybrid that was never observed
// together. The second return is false for Skip or unresolved conflicts.
func ResultState(c *Conflict) (entity.State, bool) {
	if c.Resolution == nil {
		return entity.State{}, false
	}
	switch c.Resolution.Action {
	case ActionKeepSource:
		return c.Source.Clone(), true
	case ActionKeepTarget:
		return c.Target.Clone(), true
	case ActionMerge:
		out := c.Source.Clone()
		out.Fields = c.Resolution.MergedFields.Clone()
		return out, true
	default:
		return entity.State{}, false
	}
}
