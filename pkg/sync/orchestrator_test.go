// pkg/sync/orchestrator_test.go

package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/conflict"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/merge"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAdapter is an in-memory system adapter for orchestrator tests.
type memAdapter struct {
	name string

	mu       gosync.Mutex
	states   map[entity.Ref]entity.State
	applied  []entity.Ref
	failRefs map[entity.Ref]bool
	fetchErr error
}

func newMemAdapter(name string, states ...entity.State) *memAdapter {
	a := &memAdapter{name: name, states: make(map[entity.Ref]entity.State), failRefs: make(map[entity.Ref]bool)}
	for _, s := range states {
		s.SourceSystem = name
		a.states[s.Ref] = s
	}
	return a
}

func (a *memAdapter) Name() string { return a.name }

func (a *memAdapter) FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	var out []entity.State
	for _, s := range a.states {
		if s.Ref.Namespace == namespace {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (a *memAdapter) ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failRefs[state.Ref] {
		return fmt.Errorf("simulated write failure")
	}
	a.states[state.Ref] = state.Clone()
	a.applied = append(a.applied, state.Ref)
	return nil
}

func (a *memAdapter) get(ref entity.Ref) (entity.State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.states[ref]
	return s, ok
}

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(rc *metis_io.RuntimeContext, eng *conflict.Engine) error

func (f resolverFunc) Resolve(rc *metis_io.RuntimeContext, eng *conflict.Engine) error {
	return f(rc, eng)
}

func resolveAll(action conflict.Action) resolverFunc {
	return func(rc *metis_io.RuntimeContext, eng *conflict.Engine) error {
		_, err := eng.ResolveBatch(rc, conflict.Filter{}, action, "test")
		return err
	}
}

type harness struct {
	dataDir      string
	store        *snapshot.Store
	log          *audit.Log
	orchestrator *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dataDir := t.TempDir()
	log := audit.NewLog(filepath.Join(dataDir, "audit"))
	store := snapshot.NewStore(dataDir, 24*time.Hour, log)
	strategy, err := merge.Get("three-way")
	require.NoError(t, err)
	return &harness{
		dataDir:      dataDir,
		store:        store,
		log:          log,
		orchestrator: NewOrchestrator(dataDir, store, log, strategy),
	}
}

func syncConfig(source, target *memAdapter, resolver Resolver) *SyncConfig {
	return &SyncConfig{
		Context: config.SyncContext{
			Namespace: "test",
			Actor:     "tester",
			Policy:    config.Policy{Concurrency: 2},
		},
		Source:   source,
		Target:   target,
		Resolver: resolver,
	}
}

func TestExecuteSync_FirstPass(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	// new entity only on the source, one identical pair, one drifted pair
	newSvc := testutil.State("service", "new", entity.Fields{"port": 9000})
	same := testutil.State("service", "same", entity.Fields{"port": 80})
	driftedSrc := testutil.State("service", "drifted", entity.Fields{"port": 8080})
	driftedTgt := testutil.State("service", "drifted", entity.Fields{"port": 80})

	source := newMemAdapter("local", newSvc, same, driftedSrc)
	target := newMemAdapter("remote", same, driftedTgt)

	result, err := h.orchestrator.Push(rc, syncConfig(source, target, resolveAll(conflict.ActionKeepSource)))
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, DirectionPush, result.Direction)
	assert.ElementsMatch(t, []entity.Ref{newSvc.Ref}, result.Synced)
	assert.ElementsMatch(t, []entity.Ref{driftedSrc.Ref}, result.Applied)
	assert.Equal(t, 1, result.Unchanged)
	assert.Empty(t, result.Skipped)

	// Target now carries the source's states.
	got, ok := target.get(driftedSrc.Ref)
	require.True(t, ok)
	assert.Equal(t, 8080, got.Fields["port"])
	_, ok = target.get(newSvc.Ref)
	assert.True(t, ok)

	// Pre-change snapshot covers the overwritten target entity.
	require.NotEmpty(t, result.SnapshotID)
	snap, err := h.store.Get("test", result.SnapshotID)
	require.NoError(t, err)
	require.Len(t, snap.EntityStates, 1)
	assert.Equal(t, driftedTgt.Ref, snap.EntityStates[0].Ref)

	// Baseline records the agreed state of everything that synced.
	baseline, found, err := h.store.LoadBaseline("test")
	require.NoError(t, err)
	require.True(t, found)
	refs := map[entity.Ref]bool{}
	for _, s := range baseline.EntityStates {
		refs[s.Ref] = true
	}
	assert.True(t, refs[newSvc.Ref])
	assert.True(t, refs[same.Ref])
	assert.True(t, refs[driftedSrc.Ref])

	// Audit trail: entity-level entries plus the pass-level entry.
	entries, err := h.log.Query("test", audit.QueryFilter{})
	require.NoError(t, err)
	var ops []string
	for _, e := range entries {
		ops = append(ops, e.Operation)
	}
	assert.Contains(t, ops, "sync.copy")
	assert.Contains(t, ops, "sync.apply")
	assert.Contains(t, ops, "sync.push")
}

func TestExecuteSync_NoOpSecondPass(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	st := testutil.State("service", "web", entity.Fields{"port": 8080})
	source := newMemAdapter("local", st)
	target := newMemAdapter("remote")

	first, err := h.orchestrator.Push(rc, syncConfig(source, target, nil))
	require.NoError(t, err)
	require.True(t, first.Success())

	second, err := h.orchestrator.Push(rc, syncConfig(source, target, nil))
	require.NoError(t, err)
	assert.True(t, second.Success())
	assert.Empty(t, second.Synced)
	assert.Empty(t, second.Applied)
	assert.Equal(t, 1, second.Unchanged)
	assert.Empty(t, second.SnapshotID, "a no-op pass takes no pre-change snapshot")
}

func TestExecuteSync_ThreeWayMergePreservesBothEdits(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	// Baseline {port:80, retries:3}; source edited port, target edited
	// retries. The merge keeps both edits.
	baseline := testutil.State("service", "web", entity.Fields{"port": 80, "retries": 3})
	require.NoError(t, h.store.SaveBaseline(rc, "test", []entity.State{baseline}))

	source := newMemAdapter("local", testutil.State("service", "web", entity.Fields{"port": 8080, "retries": 3}))
	target := newMemAdapter("remote", testutil.State("service", "web", entity.Fields{"port": 80, "retries": 5}))

	result, err := h.orchestrator.Push(rc, syncConfig(source, target, resolveAll(conflict.ActionMerge)))
	require.NoError(t, err)
	require.True(t, result.Success())
	require.Len(t, result.Applied, 1)

	got, ok := target.get(testutil.Ref("service", "web"))
	require.True(t, ok)
	assert.Equal(t, 8080, got.Fields["port"])
	assert.Equal(t, 5, got.Fields["retries"])
}

func TestExecuteSync_SkipConflictsPolicy(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	driftedTgt := testutil.State("service", "web", entity.Fields{"port": 80})
	source := newMemAdapter("local",
		testutil.State("service", "web", entity.Fields{"port": 8080}),
		testutil.State("service", "clean", entity.Fields{"x": 1}))
	target := newMemAdapter("remote", driftedTgt)

	cfg := syncConfig(source, target, nil)
	cfg.Context.Policy.SkipConflicts = true

	result, err := h.orchestrator.Push(rc, cfg)
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Len(t, result.Synced, 1)
	assert.Len(t, result.Skipped, 1)
	assert.Empty(t, result.Applied)

	// The conflicted target entity is untouched.
	got, _ := target.get(driftedTgt.Ref)
	assert.Equal(t, 80, got.Fields["port"])

	// Skipped entities stay out of the baseline, forcing two-way
	// comparison next pass.
	baseline, found, err := h.store.LoadBaseline("test")
	require.NoError(t, err)
	require.True(t, found)
	for _, s := range baseline.EntityStates {
		assert.NotEqual(t, driftedTgt.Ref, s.Ref)
	}
}

func TestExecuteSync_DryRunWritesNothing(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	source := newMemAdapter("local", testutil.State("service", "web", entity.Fields{"port": 8080}))
	target := newMemAdapter("remote", testutil.State("service", "web", entity.Fields{"port": 80}))

	cfg := syncConfig(source, target, resolveAll(conflict.ActionKeepSource))
	cfg.DryRun = true

	result, err := h.orchestrator.Push(rc, cfg)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Preview.Resolved)
	assert.Empty(t, target.applied)
	assert.Empty(t, result.SnapshotID)

	_, found, err := h.store.LoadBaseline("test")
	require.NoError(t, err)
	assert.False(t, found, "dry-run must not persist a baseline")

	entries, err := h.log.Query("test", audit.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "dry-run must not audit")

	// The namespace lock was released: a real pass can follow.
	_, err = h.orchestrator.Push(rc, syncConfig(source, target, resolveAll(conflict.ActionKeepSource)))
	assert.NoError(t, err)
}

func TestExecuteSync_ApplyFailureIsIsolated(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	badRef := testutil.Ref("service", "bad")
	source := newMemAdapter("local",
		testutil.State("service", "bad", entity.Fields{"port": 1}),
		testutil.State("service", "good", entity.Fields{"port": 2}))
	target := newMemAdapter("remote")
	target.failRefs[badRef] = true

	result, err := h.orchestrator.Push(rc, syncConfig(source, target, nil))
	require.NoError(t, err)

	assert.False(t, result.Success())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, badRef, result.Failures[0].Ref)
	assert.ElementsMatch(t, []entity.Ref{testutil.Ref("service", "good")}, result.Synced)

	// The failed entity stays out of the baseline.
	baseline, found, err := h.store.LoadBaseline("test")
	require.NoError(t, err)
	require.True(t, found)
	for _, s := range baseline.EntityStates {
		assert.NotEqual(t, badRef, s.Ref)
	}
}

func TestExecuteSync_AuditWriteFailureFailsEntity(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	// A regular file where the namespace's audit directory belongs makes
	// every append fail while target writes still succeed.
	require.NoError(t, os.MkdirAll(filepath.Join(h.dataDir, "audit"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "audit", "test"), []byte("x"), 0600))

	same := testutil.State("service", "same", entity.Fields{"port": 80})
	driftedSrc := testutil.State("service", "drifted", entity.Fields{"port": 8080})
	driftedTgt := testutil.State("service", "drifted", entity.Fields{"port": 80})

	source := newMemAdapter("local", same, driftedSrc)
	target := newMemAdapter("remote", same, driftedTgt)

	_, err := h.orchestrator.Push(rc, syncConfig(source, target, resolveAll(conflict.ActionKeepSource)))
	require.Error(t, err)
	assert.True(t, metis_err.IsKind(err, metis_err.KindAuditWriteFailure))

	// The target write landed before the audit append failed.
	got, ok := target.get(driftedSrc.Ref)
	require.True(t, ok)
	assert.Equal(t, 8080, got.Fields["port"])

	// An unaudited apply is not committed: the entity stays out of the
	// baseline while the agreed pair stays in.
	baseline, found, berr := h.store.LoadBaseline("test")
	require.NoError(t, berr)
	require.True(t, found)
	refs := map[entity.Ref]bool{}
	for _, s := range baseline.EntityStates {
		refs[s.Ref] = true
	}
	assert.False(t, refs[driftedSrc.Ref])
	assert.True(t, refs[same.Ref])
}

// cancelOnApply cancels the pass after each successful target write.
type cancelOnApply struct {
	*memAdapter
	cancel context.CancelFunc
}

func (a *cancelOnApply) ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error {
	err := a.memAdapter.ApplyEntity(rc, state)
	a.cancel()
	return err
}

func TestExecuteSync_CancellationHonoredBetweenEntities(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	ctx, cancel := context.WithCancel(rc.Ctx)
	rc.Ctx = ctx

	source := newMemAdapter("local",
		testutil.State("service", "alpha", entity.Fields{"port": 1}),
		testutil.State("service", "beta", entity.Fields{"port": 2}))
	target := newMemAdapter("remote",
		testutil.State("service", "alpha", entity.Fields{"port": 10}),
		testutil.State("service", "beta", entity.Fields{"port": 20}))

	cfg := syncConfig(source, target, resolveAll(conflict.ActionKeepSource))
	cfg.Target = &cancelOnApply{memAdapter: target, cancel: cancel}

	_, err := h.orchestrator.Push(rc, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The in-flight entity ran to completion, audit entry included.
	got, ok := target.get(testutil.Ref("service", "alpha"))
	require.True(t, ok)
	assert.Equal(t, 1, got.Fields["port"])
	entries, qerr := h.log.Query("test", audit.QueryFilter{Operation: "sync.apply"})
	require.NoError(t, qerr)
	require.Len(t, entries, 1)

	// The next entity was never attempted.
	got, _ = target.get(testutil.Ref("service", "beta"))
	assert.Equal(t, 20, got.Fields["port"])
}

func TestExecuteSync_TargetOnlyEntityBecomesConflict(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	orphan := testutil.State("service", "orphan", entity.Fields{"port": 80})
	source := newMemAdapter("local")
	target := newMemAdapter("remote", orphan)

	var seen []*conflict.Conflict
	capture := resolverFunc(func(rc *metis_io.RuntimeContext, eng *conflict.Engine) error {
		seen = eng.Pending()
		_, err := eng.ResolveBatch(rc, conflict.Filter{}, conflict.ActionKeepTarget, "test")
		return err
	})

	result, err := h.orchestrator.Push(rc, syncConfig(source, target, capture))
	require.NoError(t, err)
	require.True(t, result.Success())

	require.Len(t, seen, 1)
	assert.Equal(t, orphan.Ref, seen[0].Ref)
	assert.Empty(t, seen[0].Source.Fields, "fabricated source side is empty")

	// Keep-target restores the target's own state: a no-op write.
	got, _ := target.get(orphan.Ref)
	assert.Equal(t, 80, got.Fields["port"])
}

func TestExecuteSync_FetchFailureAborts(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	source := newMemAdapter("local")
	source.fetchErr = fmt.Errorf("connection refused")
	target := newMemAdapter("remote")

	_, err := h.orchestrator.Push(rc, syncConfig(source, target, nil))
	require.Error(t, err)
	assert.True(t, metis_err.IsKind(err, metis_err.KindFetchFailure))

	_, found, berr := h.store.LoadBaseline("test")
	require.NoError(t, berr)
	assert.False(t, found)
}

func TestExecuteSync_NamespaceLockRejectsSecondWriter(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	lockPath := filepath.Join(h.dataDir, "test", ".sync.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0700))
	require.NoError(t, os.WriteFile(lockPath, []byte("12345\n"), 0600))

	source := newMemAdapter("local", testutil.State("service", "web", entity.Fields{"port": 1}))
	target := newMemAdapter("remote")

	_, err := h.orchestrator.Push(rc, syncConfig(source, target, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another sync pass")

	// Releasing the stale lock unblocks the pass.
	require.NoError(t, os.Remove(lockPath))
	_, err = h.orchestrator.Push(rc, syncConfig(source, target, nil))
	assert.NoError(t, err)
}

func TestExecuteSync_RequiresValidContext(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	h := newHarness(t)

	cfg := syncConfig(newMemAdapter("local"), newMemAdapter("remote"), nil)
	cfg.Context.Namespace = ""

	_, err := h.orchestrator.Push(rc, cfg)
	assert.Error(t, err)
}
