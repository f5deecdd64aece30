// pkg/sync/orchestrator.go
package sync

import (
	"sort"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/drift"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/merge"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs sync passes against the persistent stores.
type Orchestrator struct {
	DataDir   string
	Snapshots *snapshot.Store
	Audit     *audit.Log
	Strategy  merge.Strategy
}

// NewOrchestrator wires the orchestrator to its stores and merge strategy.
func NewOrchestrator(dataDir string, snapshots *snapshot.Store, auditLog *audit.Log, strategy merge.Strategy) *Orchestrator {
	return &Orchestrator{
		DataDir:   dataDir,
		Snapshots: snapshots,
		Audit:     auditLog,
		Strategy:  strategy,
	}
}

// Push syncs the local system onto the remote one.
func (o *Orchestrator) Push(rc *metis_io.RuntimeContext, cfg *SyncConfig) (*Result, error) {
	cfg.Direction = DirectionPush
	return o.ExecuteSync(rc, cfg)
}

// Pull syncs the remote system onto the local one. The caller builds the
// SyncConfig with the roles already swapped; Pull only labels the pass.
func (o *Orchestrator) Pull(rc *metis_io.RuntimeContext, cfg *SyncConfig) (*Result, error) {
	cfg.Direction = DirectionPull
	return o.ExecuteSync(rc, cfg)
}

// ExecuteSync executes the full synchronization workflow:
// fetch → detect drift → resolve conflicts → snapshot → apply → audit →
// persist baseline.
//
// A failure applying one entity never aborts the remaining entities and
// never rolls back siblings; failures are collected into the returned
// Result. A FetchFailure aborts the pass before any mutation.
func (o *Orchestrator) ExecuteSync(rc *metis_io.RuntimeContext, cfg *SyncConfig) (result *Result, err error) {
	logger := otelzap.Ctx(rc.Ctx)
	startTime := time.Now()

	if err := config.ValidateSyncContext(&cfg.Context); err != nil {
		return nil, err
	}
	namespace := cfg.Context.Namespace

	result = &Result{
		OperationID: uuid.New().String(),
		Direction:   cfg.Direction,
		Namespace:   namespace,
		DryRun:      cfg.DryRun,
	}

	logger.Info("Sync operation initialized",
		zap.String("operation_id", result.OperationID),
		zap.String("direction", string(cfg.Direction)),
		zap.String("namespace", namespace),
		zap.String("source", cfg.Source.Name()),
		zap.String("target", cfg.Target.Name()),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("skip_conflicts", cfg.Context.Policy.SkipConflicts))

	lock, err := acquireNamespaceLock(o.DataDir, namespace)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.release(); rerr != nil {
			logger.Warn("Failed to release namespace lock", zap.Error(rerr))
		}
	}()

	// ASSESS: fetch both sides and the baseline. Nothing has been
	// mutated yet, so any failure here aborts the pass cleanly.
	logger.Info("[ASSESS] Fetch phase starting")
	fetchStart := time.Now()

	var sourceStates, targetStates []entity.State
	var g errgroup.Group
	g.Go(func() error {
		states, ferr := cfg.Source.FetchEntities(rc, namespace)
		if ferr != nil {
			return metis_err.NewFetchFailure(cfg.Source.Name(), ferr)
		}
		sourceStates = states
		return nil
	})
	g.Go(func() error {
		states, ferr := cfg.Target.FetchEntities(rc, namespace)
		if ferr != nil {
			return metis_err.NewFetchFailure(cfg.Target.Name(), ferr)
		}
		targetStates = states
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	baseline, haveBaseline, err := o.Snapshots.LoadBaseline(namespace)
	if err != nil {
		return nil, err
	}

	logger.Info("[ASSESS] Fetch completed",
		zap.Duration("elapsed", time.Since(fetchStart)),
		zap.Int("source_entities", len(sourceStates)),
		zap.Int("target_entities", len(targetStates)),
		zap.Bool("baseline_available", haveBaseline))

	sourceByRef := entity.StatesByRef(sourceStates)
	targetByRef := entity.StatesByRef(targetStates)
	var baselineByRef map[entity.Ref]entity.State
	if haveBaseline {
		baselineByRef = entity.StatesByRef(baseline.EntityStates)
	}

	// Detect drift per entity. Entities present only on the source sync
	// trivially; identical entities are no-ops.
	var trivial []entity.State
	var conflicts []*conflict.Conflict
	for _, ref := range sortedRefs(sourceByRef, targetByRef) {
		src, hasSrc := sourceByRef[ref]
		tgt, hasTgt := targetByRef[ref]
		schema := cfg.Schemas[ref.Type]

		if hasSrc && !hasTgt {
			trivial = append(trivial, src)
			continue
		}
		if !hasSrc {
			// Observed only on the target: deletion on the source or
			// creation on the target, the user decides.
			src = entity.State{Ref: ref, SourceSystem: cfg.Source.Name()}
		}

		var base *entity.State
		if baselineByRef != nil {
			if b, ok := baselineByRef[ref]; ok {
				base = &b
			}
		}

		if c := drift.Detect(src, tgt, base, schema); c != nil {
			conflicts = append(conflicts, c)
		} else {
			result.Unchanged++
		}
	}

	logger.Info("[ASSESS] Drift detection completed",
		zap.Int("trivial", len(trivial)),
		zap.Int("conflicts", len(conflicts)),
		zap.Int("unchanged", result.Unchanged))

	eng := conflict.NewEngine(o.Strategy, conflicts)

	// Resolution. Skip-conflicts policy marks everything Skipped;
	// otherwise the caller's resolver decides (interactively or batch).
	if cfg.Context.Policy.SkipConflicts {
		for _, c := range eng.Pending() {
			if serr := eng.MarkSkipped(c.ID); serr != nil {
				return nil, serr
			}
		}
	} else if cfg.Resolver != nil && len(conflicts) > 0 {
		if rerr := cfg.Resolver.Resolve(rc, eng); rerr != nil {
			return nil, rerr
		}
	}
	result.Preview = eng.Preview()

	if cfg.DryRun {
		logger.Info("Dry-run completed - no changes made",
			zap.String("operation_id", result.OperationID))
		result.Duration = time.Since(startTime)
		return result, nil
	}

	// INTERVENE: snapshot before any destructive apply, then write each
	// entity independently.
	if err := o.applyPhase(rc, cfg, eng, trivial, targetByRef, result); err != nil {
		return nil, err
	}

	// EVALUATE: persist the post-sync agreed state for future three-way
	// merges, then record the pass itself.
	if err := o.persistBaseline(rc, cfg, eng, trivial, sourceByRef, targetByRef, result); err != nil {
		return nil, err
	}

	if _, aerr := o.Audit.Append(rc, namespace, audit.Record{
		Actor:     cfg.Context.Actor,
		Operation: "sync." + string(cfg.Direction),
		AfterRef:  result.OperationID,
		Detail: audit.Detail{
			SnapshotID: result.SnapshotID,
			Reason:     passSummary(result),
		},
	}); aerr != nil {
		return nil, aerr
	}

	result.Duration = time.Since(startTime)
	logger.Info("Sync operation completed",
		zap.String("operation_id", result.OperationID),
		zap.Int("synced", len(result.Synced)),
		zap.Int("applied", len(result.Applied)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("total_elapsed", result.Duration))

	return result, nil
}

// applyPhase writes trivial copies and resolved conflicts to the target.
// Each entity is an independent unit: failures are collected, never
// retried, and never a reason to roll back siblings.
func (o *Orchestrator) applyPhase(rc *metis_io.RuntimeContext, cfg *SyncConfig, eng *conflict.Engine, trivial []entity.State, targetByRef map[entity.Ref]entity.State, result *Result) error {
	logger := otelzap.Ctx(rc.Ctx)
	namespace := cfg.Context.Namespace

	resolved := resolvedConflicts(eng)

	// Pre-change snapshot of every target entity a destructive apply
	// will overwrite. Mandatory before any Applied transition; this is
	// what makes rollback possible.
	var affected []entity.State
	for _, c := range resolved {
		if rs, ok := conflict.ResultState(c); ok {
			if tgt, exists := targetByRef[c.Ref]; exists && !entity.FieldsEqual(c.Schema, rs.Fields, tgt.Fields) {
				affected = append(affected, tgt)
			}
		}
	}
	if len(affected) > 0 {
		snapID, serr := o.Snapshots.Create(rc, namespace, "pre-sync "+result.OperationID, affected)
		if serr != nil {
			return serr
		}
		result.SnapshotID = snapID
	}

	// Trivial copies carry no conflict state, so they may run
	// concurrently under the policy's worker bound.
	concurrency := cfg.Context.Policy.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(rc.Ctx)
	g.SetLimit(concurrency)
	for _, st := range trivial {
		st := st
		g.Go(func() error {
			// Complete the in-flight entity before honoring cancellation.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			aerr := o.applyOne(rc, cfg, st, "sync.copy", "")
			mu.Lock()
			defer mu.Unlock()
			if aerr != nil {
				result.Failures = append(result.Failures, Failure{Ref: st.Ref, Reason: aerr.Error()})
			} else {
				result.Synced = append(result.Synced, st.Ref)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Resolved conflicts transition one at a time: a single conflict is
	// only ever resolved and finalized once.
	for _, c := range resolved {
		if err := rc.Ctx.Err(); err != nil {
			return err
		}
		if c.Resolution.Action == conflict.ActionSkip {
			if serr := eng.MarkSkipped(c.ID); serr != nil {
				return serr
			}
			result.Skipped = append(result.Skipped, c.Ref)
			continue
		}

		rs, ok := conflict.ResultState(c)
		if !ok {
			continue
		}

		if aerr := o.applyOne(rc, cfg, rs, "sync.apply", c.ID); aerr != nil {
			result.Failures = append(result.Failures, Failure{Ref: c.Ref, ConflictID: c.ID, Reason: aerr.Error()})
			logger.Error("Entity apply failed",
				zap.String("entity", c.Ref.String()),
				zap.String("conflict_id", c.ID),
				zap.Error(aerr))
			continue
		}
		if merr := eng.MarkApplied(c.ID); merr != nil {
			return merr
		}
		result.Applied = append(result.Applied, c.Ref)
	}

	// Conflicts skipped by policy (never resolved) are reported too.
	for _, c := range eng.All() {
		if c.Status == conflict.StatusSkipped && c.Resolution != nil && c.Resolution.ResolvedBy == "policy" {
			result.Skipped = append(result.Skipped, c.Ref)
		}
	}

	return nil
}

// applyOne writes one entity to the target, then audits the transition.
// Audit-then-confirm: when the audit write fails the entity is not
// considered applied, and the failure is reported like an apply failure.
func (o *Orchestrator) applyOne(rc *metis_io.RuntimeContext, cfg *SyncConfig, state entity.State, operation, conflictID string) error {
	if err := cfg.Target.ApplyEntity(rc, state); err != nil {
		return metis_err.NewApplyFailure(state.Ref.String(), err)
	}
	if _, err := o.Audit.Append(rc, cfg.Context.Namespace, audit.Record{
		Actor:     cfg.Context.Actor,
		Operation: operation,
		BeforeRef: cfg.Source.Name(),
		AfterRef:  cfg.Target.Name(),
		Detail: audit.Detail{
			EntityRef:  state.Ref.String(),
			ConflictID: conflictID,
		},
	}); err != nil {
		return err
	}
	return nil
}

// persistBaseline records the post-sync agreed state. Entities that
// failed or were skipped stay out of the baseline, forcing a two-way
// comparison for them next pass.
func (o *Orchestrator) persistBaseline(rc *metis_io.RuntimeContext, cfg *SyncConfig, eng *conflict.Engine, trivial []entity.State, sourceByRef, targetByRef map[entity.Ref]entity.State, result *Result) error {
	failed := make(map[entity.Ref]bool, len(result.Failures))
	for _, f := range result.Failures {
		failed[f.Ref] = true
	}

	var agreed []entity.State

	for ref, src := range sourceByRef {
		tgt, hasTgt := targetByRef[ref]
		if hasTgt && entity.FieldsEqual(cfg.Schemas[ref.Type], src.Fields, tgt.Fields) {
			agreed = append(agreed, src)
		}
	}
	for _, st := range trivial {
		if !failed[st.Ref] {
			agreed = append(agreed, st)
		}
	}
	for _, c := range eng.All() {
		if c.Status != conflict.StatusApplied || failed[c.Ref] {
			continue
		}
		if rs, ok := conflict.ResultState(c); ok {
			agreed = append(agreed, rs)
		}
	}

	return o.Snapshots.SaveBaseline(rc, cfg.Context.Namespace, agreed)
}

func resolvedConflicts(eng *conflict.Engine) []*conflict.Conflict {
	var out []*conflict.Conflict
	for _, c := range eng.All() {
		if c.Status == conflict.StatusResolved {
			out = append(out, c)
		}
	}
	return out
}

func sortedRefs(a, b map[entity.Ref]entity.State) []entity.Ref {
	seen := make(map[entity.Ref]struct{}, len(a)+len(b))
	for ref := range a {
		seen[ref] = struct{}{}
	}
	for ref := range b {
		seen[ref] = struct{}{}
	}
	refs := make([]entity.Ref, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

func passSummary(r *Result) string {
	if r.Success() {
		return "completed"
	}
	return "completed with failures"
}
