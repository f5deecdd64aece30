// pkg/audit/log_test.go

package audit

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_err"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendChains(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	first, err := log.Append(rc, "test", Record{Actor: "alice", Operation: "sync.push"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)
	assert.Empty(t, first.PrevHash, "genesis entry has empty prev_hash")
	assert.NotEmpty(t, first.Hash)

	second, err := log.Append(rc, "test", Record{Actor: "alice", Operation: "sync.apply"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestLog_NamespacePartitionsAreIndependent(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	a, err := log.Append(rc, "prod", Record{Actor: "alice", Operation: "sync.push"})
	require.NoError(t, err)
	b, err := log.Append(rc, "staging", Record{Actor: "bob", Operation: "sync.push"})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Seq)
	assert.Equal(t, 1, b.Seq)
	assert.Empty(t, b.PrevHash)
}

func TestLog_TailSurvivesReopen(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	dir := t.TempDir()

	log := NewLog(dir)
	first, err := log.Append(rc, "test", Record{Actor: "alice", Operation: "sync.push"})
	require.NoError(t, err)

	reopened := NewLog(dir)
	second, err := reopened.Append(rc, "test", Record{Actor: "alice", Operation: "sync.pull"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestVerify_IntactChain(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	for i := 0; i < 5; i++ {
		_, err := log.Append(rc, "test", Record{Actor: "alice", Operation: "sync.push"})
		require.NoError(t, err)
	}

	result, err := log.Verify(rc, "test", 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.Entries)
	assert.Zero(t, result.BrokenSeq)

	// Partial verification stops at to-seq.
	result, err = log.Verify(rc, "test", 3)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Entries)
}

func TestVerify_DetectsTamperedEntry(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	dir := t.TempDir()
	log := NewLog(dir)

	for _, actor := range []string{"alice", "bob", "carol"} {
		_, err := log.Append(rc, "test", Record{Actor: actor, Operation: "sync.push"})
		require.NoError(t, err)
	}

	// Flip a recorded actor in place; the entry's stored hash no longer
	// matches its content.
	path := log.path("test")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"actor":"bob"`, `"actor":"mallory"`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))

	result, err := log.Verify(rc, "test", 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.BrokenSeq)

	err = log.VerifyErr(rc, "test")
	assert.True(t, metis_err.IsKind(err, metis_err.KindChainIntegrityViolation))
}

func TestVerify_DetectsDeletedEntry(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	dir := t.TempDir()
	log := NewLog(dir)

	for i := 0; i < 3; i++ {
		_, err := log.Append(rc, "test", Record{Actor: "alice", Operation: "sync.push"})
		require.NoError(t, err)
	}

	// Drop the middle line.
	path := log.path("test")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	require.NoError(t, os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0600))

	result, err := log.Verify(rc, "test", 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 3, result.BrokenSeq)
	assert.Contains(t, result.Reason, "prev_hash")
}

func TestVerify_EmptyPartition(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	result, err := log.Verify(rc, "empty", 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Zero(t, result.Entries)
}

func TestQuery_FiltersAndPaging(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	ops := []Record{
		{Actor: "alice", Operation: "sync.push"},
		{Actor: "bob", Operation: "rollback"},
		{Actor: "alice", Operation: "sync.push"},
		{Actor: "alice", Operation: "sync.pull"},
	}
	for _, rec := range ops {
		_, err := log.Append(rc, "test", rec)
		require.NoError(t, err)
	}

	entries, err := log.Query("test", QueryFilter{Operation: "sync.push"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = log.Query("test", QueryFilter{Actor: "bob"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rollback", entries[0].Operation)

	// Paged access is restartable: offset+limit walks the full set in
	// order without gaps.
	var seqs []int
	for offset := 0; ; offset += 2 {
		page, err := log.Query("test", QueryFilter{Offset: offset, Limit: 2})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			seqs = append(seqs, e.Seq)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4}, seqs)
}

func TestActiveRollbackTarget(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	log := NewLog(t.TempDir())

	_, err := log.Append(rc, "test", Record{
		Actor:     "alice",
		Operation: "rollback",
		Detail:    Detail{SnapshotID: "snap-1"},
	})
	require.NoError(t, err)

	active, err := log.ActiveRollbackTarget("test", "snap-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, active)

	active, err = log.ActiveRollbackTarget("test", "snap-2", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, active)

	// Entries older than the cutoff no longer pin the snapshot.
	active, err = log.ActiveRollbackTarget("test", "snap-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, active)
}
