// pkg/audit/query.go

package audit

import (
	"sort"
	"time"
)

// QueryFilter narrows Query results. Offset and Limit make the sequence
// restartable and finite per call for export collaborators that page
// through history.
type QueryFilter struct {
	Operation string
	Actor     string
	Since     time.Time
	Until     time.Time
	Offset    int
	Limit     int
}

// Query returns matching entries ordered by timestamp. The engine
// guarantees ordered, queryable access; delivery to export collaborators
// is their concern.
func (l *Log) Query(namespace string, filter QueryFilter) ([]Entry, error) {
	entries, err := l.readAll(namespace)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ActiveRollbackTarget reports whether any entry at or after the cutoff
// references the snapshot as a rollback target. The snapshot store
// consults this before deleting.
func (l *Log) ActiveRollbackTarget(namespace, snapshotID string, since time.Time) (bool, error) {
	entries, err := l.readAll(namespace)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Timestamp.Before(since) {
			continue
		}
		if e.Detail.SnapshotID == snapshotID {
			return true, nil
		}
	}
	return false, nil
}
