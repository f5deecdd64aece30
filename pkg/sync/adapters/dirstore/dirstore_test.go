// pkg/sync/adapters/dirstore/dirstore_test.go

package dirstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchEntities_ReadsLayout(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	root := t.TempDir()

	dir := filepath.Join(root, "test", "service")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web.yaml"),
		[]byte("port: 8080\nretries: 3\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("ignored"), 0600))

	a := New("local", root)
	states, err := a.FetchEntities(rc, "test")
	require.NoError(t, err)
	require.Len(t, states, 1)

	st := states[0]
	assert.Equal(t, entity.Ref{Namespace: "test", Type: "service", Name: "web"}, st.Ref)
	assert.Equal(t, "local", st.SourceSystem)
	assert.Equal(t, 8080, st.Fields["port"])
	assert.NotEmpty(t, st.Revision)
}

func TestFetchEntities_MissingNamespaceIsEmpty(t *testing.T) {
	rc := testutil.RuntimeContext(t)

	a := New("local", t.TempDir())
	states, err := a.FetchEntities(rc, "absent")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestApplyEntity_RoundTrip(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	root := t.TempDir()
	a := New("local", root)

	st := testutil.State("service", "web", entity.Fields{
		"port":  8080,
		"hosts": []any{"a.example", "b.example"},
	})
	require.NoError(t, a.ApplyEntity(rc, st))

	// The document lands at <root>/<namespace>/<type>/<name>.yaml with no
	// temp file left behind.
	path := filepath.Join(root, "test", "service", "web.yaml")
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	states, err := a.FetchEntities(rc, "test")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 8080, states[0].Fields["port"])
	assert.Equal(t, []any{"a.example", "b.example"}, states[0].Fields["hosts"])
}

func TestApplyEntity_OverwriteChangesRevision(t *testing.T) {
	rc := testutil.RuntimeContext(t)
	a := New("local", t.TempDir())

	require.NoError(t, a.ApplyEntity(rc, testutil.State("service", "web", entity.Fields{"port": 80})))
	before, err := a.FetchEntities(rc, "test")
	require.NoError(t, err)

	require.NoError(t, a.ApplyEntity(rc, testutil.State("service", "web", entity.Fields{"port": 8080})))
	after, err := a.FetchEntities(rc, "test")
	require.NoError(t, err)

	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].Revision, after[0].Revision)
}
