// pkg/rollback/controller_test.go

package rollback

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memApplier is an in-memory target for rollback tests.
type memApplier struct {
	name     string
	states   map[entity.Ref]entity.State
	failRefs map[entity.Ref]bool
}

func newMemApplier(states ...entity.State) *memApplier {
	a := &memApplier{name: "remote", states: make(map[entity.Ref]entity.State), failRefs: make(map[entity.Ref]bool)}
	for _, s := range states {
		a.states[s.Ref] = s
	}
	return a
}

func (a *memApplier) Name() string { return a.name }

func (a *memApplier) FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error) {
	var out []entity.State
	for _, s := range a.states {
		if s.Ref.Namespace == namespace {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (a *memApplier) ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error {
	if a.failRefs[state.Ref] {
		return fmt.Errorf("simulated write failure")
	}
	a.states[state.Ref] = state.Clone()
	return nil
}

func newStores(t *testing.T) (*snapshot.Store, *audit.Log, string) {
	t.Helper()
	dataDir := t.TempDir()
	log := audit.NewLog(filepath.Join(dataDir, "audit"))
	return snapshot.NewStore(dataDir, 24*time.Hour, log), log, dataDir
}

func testSyncContext() config.SyncContext {
	return config.SyncContext{Namespace: "test", Actor: "tester", Policy: config.Policy{Concurrency: 1}}
}

func TestRollbackTo_RestoresOnlyDriftedEntities(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	store, log, _ := newStores(t)

	recorded := []entity.State{
		testutil.State("service", "web", entity.Fields{"port": 80}),
		testutil.State("service", "db", entity.Fields{"size": 10}),
	}
	snapID, err := store.Create(rc, "test", "pre-sync op1", recorded)
	require.NoError(t, err)

	// Only web drifted since the snapshot.
	target := newMemApplier(
		testutil.State("service", "web", entity.Fields{"port": 9999}),
		testutil.State("service", "db", entity.Fields{"size": 10}))

	c := NewController(store, log, nil)
	result, err := c.RollbackTo(rc, testSyncContext(), snapID, target, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []entity.Ref{testutil.Ref("service", "web")}, result.Restored)
	assert.Equal(t, 1, result.Unchanged)
	assert.Empty(t, result.Failures)
	// Snapshot states round-trip through JSON, so numbers come back as
	// float64.
	assert.EqualValues(t, 80, target.states[testutil.Ref("service", "web")].Fields["port"])

	entries, err := log.Query("test", audit.QueryFilter{Operation: "rollback"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, snapID, entries[0].Detail.SnapshotID)
	assert.Equal(t, "restored", entries[0].Detail.Reason)
}

func TestRollbackTo_ComponentFilter(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	store, log, _ := newStores(t)

	snapID, err := store.Create(rc, "test", "pre-sync op1", []entity.State{
		testutil.State("service", "web", entity.Fields{"port": 80}),
		testutil.State("job", "backup", entity.Fields{"schedule": "daily"}),
	})
	require.NoError(t, err)

	target := newMemApplier(
		testutil.State("service", "web", entity.Fields{"port": 9999}),
		testutil.State("job", "backup", entity.Fields{"schedule": "hourly"}))

	c := NewController(store, log, nil)
	result, err := c.RollbackTo(rc, testSyncContext(), snapID, target, []string{"service"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []entity.Ref{testutil.Ref("service", "web")}, result.Restored)
	// The filtered-out type is untouched, not counted as unchanged.
	assert.Equal(t, 0, result.Unchanged)
	assert.Equal(t, "hourly", target.states[testutil.Ref("job", "backup")].Fields["schedule"])
}

func TestRollbackTo_FailureIsIsolated(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	store, log, _ := newStores(t)

	snapID, err := store.Create(rc, "test", "pre-sync op1", []entity.State{
		testutil.State("service", "bad", entity.Fields{"port": 1}),
		testutil.State("service", "good", entity.Fields{"port": 2}),
	})
	require.NoError(t, err)

	target := newMemApplier(
		testutil.State("service", "bad", entity.Fields{"port": 100}),
		testutil.State("service", "good", entity.Fields{"port": 200}))
	target.failRefs[testutil.Ref("service", "bad")] = true

	c := NewController(store, log, nil)
	result, err := c.RollbackTo(rc, testSyncContext(), snapID, target, nil)
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, testutil.Ref("service", "bad"), result.Failures[0].Ref)
	assert.ElementsMatch(t, []entity.Ref{testutil.Ref("service", "good")}, result.Restored)

	entries, err := log.Query("test", audit.QueryFilter{Operation: "rollback"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "restored with failures", entries[0].Detail.Reason)
}

func TestRollbackTo_UnknownSnapshot(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	store, log, _ := newStores(t)

	c := NewController(store, log, nil)
	_, err := c.RollbackTo(rc, testSyncContext(), "no-such-id", newMemApplier(), nil)
	assert.Error(t, err)
}
