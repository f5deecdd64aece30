// Package rollback restores entity state from the snapshot store, either
// on manual request or when a policy trigger fires.
package rollback

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/drift"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Applier is the slice of the system adapter surface rollback needs.
type Applier interface {
	Name() string
	FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error)
	ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error
}

// Failure is one entity that could not be restored.
type Failure struct {
	Ref    entity.Ref `json:"ref"`
	Reason string     `json:"reason"`
}

// Result summarizes one rollback operation.
type Result struct {
	SnapshotID string        `json:"snapshot_id"`
	Namespace  string        `json:"namespace"`
	Restored   []entity.Ref  `json:"restored,omitempty"`
	Unchanged  int           `json:"unchanged"`
	Failures   []Failure     `json:"failures,omitempty"`
	Trigger    string        `json:"trigger,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Controller restores snapshots and evaluates automatic triggers.
type Controller struct {
	Snapshots *snapshot.Store
	Audit     *audit.Log
	Schemas   map[string]entity.Schema
}

// NewController wires the controller to its stores.
func NewController(snapshots *snapshot.Store, auditLog *audit.Log, schemas map[string]entity.Schema) *Controller {
	return &Controller{Snapshots: snapshots, Audit: auditLog, Schemas: schemas}
}

// RollbackTo computes the diff between current target state and the
// snapshot, applies it entity by entity, and appends an audit entry
// referencing the snapshot. components, when non-empty, restricts the
// restore to those entity types.
func (c *Controller) RollbackTo(rc *metis_io.RuntimeContext, sc config.SyncContext, snapshotID string, target Applier, components []string) (*Result, error) {
	return c.rollbackTo(rc, sc, snapshotID, target, components, "")
}

func (c *Controller) rollbackTo(rc *metis_io.RuntimeContext, sc config.SyncContext, snapshotID string, target Applier, components []string, trigger string) (*Result, error) {
	logger := otelzap.Ctx(rc.Ctx)
	startTime := time.Now()

	snap, err := c.Snapshots.Get(sc.Namespace, snapshotID)
	if err != nil {
		return nil, err
	}

	current, err := target.FetchEntities(rc, sc.Namespace)
	if err != nil {
		return nil, metis_err.NewFetchFailure(target.Name(), err)
	}
	currentByRef := entity.StatesByRef(current)

	wanted := componentSet(components)
	result := &Result{SnapshotID: snapshotID, Namespace: sc.Namespace, Trigger: trigger}

	logger.Info("Rollback starting",
		zap.String("snapshot_id", snapshotID),
		zap.String("namespace", sc.Namespace),
		zap.String("target", target.Name()),
		zap.Strings("components", components),
		zap.String("trigger", trigger))

	for _, recorded := range snap.EntityStates {
		if wanted != nil && !wanted[recorded.Ref.Type] {
			continue
		}

		cur, exists := currentByRef[recorded.Ref]
		if exists && drift.Detect(recorded, cur, nil, c.Schemas[recorded.Ref.Type]) == nil {
			result.Unchanged++
			continue
		}

		if err := target.ApplyEntity(rc, recorded); err != nil {
			result.Failures = append(result.Failures, Failure{
				Ref:    recorded.Ref,
				Reason: err.Error(),
			})
			logger.Error("Entity restore failed",
				zap.String("entity", recorded.Ref.String()),
				zap.Error(err))
			continue
		}
		result.Restored = append(result.Restored, recorded.Ref)
	}

	operation := "rollback"
	if trigger != "" {
		operation = "rollback.auto"
	}
	if _, err := c.Audit.Append(rc, sc.Namespace, audit.Record{
		Actor:     sc.Actor,
		Operation: operation,
		AfterRef:  target.Name(),
		Detail: audit.Detail{
			SnapshotID: snapshotID,
			Trigger:    trigger,
			Reason:     rollbackSummary(result),
		},
	}); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	logger.Info("Rollback completed",
		zap.String("snapshot_id", snapshotID),
		zap.Int("restored", len(result.Restored)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func componentSet(components []string) map[string]bool {
	if len(components) == 0 {
		return nil
	}
	out := make(map[string]bool, len(components))
	for _, comp := range components {
		out[comp] = true
	}
	return out
}

func rollbackSummary(r *Result) string {
	if len(r.Failures) == 0 {
		return "restored"
	}
	return "restored with failures"
}
