// pkg/sync/lock.go

package sync

import (
	"fmt"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
)

// namespaceLock is the single-writer discipline for one namespace: two
// concurrent sync passes must never race on the same baseline and
// snapshot lineage.
type namespaceLock struct {
	path string
}

// acquireNamespaceLock takes the exclusive lock for a namespace, failing
// fast when another pass holds it.
func acquireNamespaceLock(dataDir, namespace string) (*namespaceLock, error) {
	dir := filepath.Join(dataDir, namespace)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, cerr.Wrap(err, "failed to create namespace directory")
	}

	path := filepath.Join(dir, ".sync.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, cerr.Newf("namespace %s is locked by another sync pass (remove %s if stale)", namespace, path)
		}
		return nil, cerr.Wrap(err, "failed to acquire namespace lock")
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return &namespaceLock{path: path}, nil
}

func (l *namespaceLock) release() error {
	return os.Remove(l.path)
}
