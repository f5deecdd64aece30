// Package snapshot provides durable, immutable, timestamped captures of
// entity sets, partitioned per namespace, plus the distinguished
// "latest agreed" baseline pointer used for three-way merges.
//
// A snapshot's content is frozen the moment Create returns. Snapshots are
// never edited in place; cleanup only ever deletes whole snapshots past
// retention.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Snapshot is one immutable capture of an entity set.
type Snapshot struct {
	ID           string         `json:"id"`
	Namespace    string         `json:"namespace"`
	Label        string         `json:"label"`
	CreatedAt    time.Time      `json:"created_at"`
	EntityStates []entity.State `json:"entity_states"`
}

// Metadata is the listing view of a snapshot.
type Metadata struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Entities  int       `json:"entities"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Label       string
	LabelPrefix string
	Since       time.Time
	Until       time.Time
}

// ReferenceChecker reports whether a snapshot is still the active
// rollback target of an audit entry inside the retention window. The
// audit log supplies the implementation; the store only consults it
// before deleting.
type ReferenceChecker interface {
	ActiveRollbackTarget(namespace, snapshotID string, since time.Time) (bool, error)
}

// Store is the file-backed snapshot store. One partition (directory) per
// namespace.
type Store struct {
	baseDir    string
	retention  time.Duration
	refs       ReferenceChecker
	passphrase []byte
}

// NewStore opens a snapshot store rooted at baseDir.
func NewStore(baseDir string, retention time.Duration, refs ReferenceChecker) *Store {
	return &Store{baseDir: baseDir, retention: retention, refs: refs}
}

func (s *Store) namespaceDir(namespace string) string {
	return filepath.Join(s.baseDir, namespace, "snapshots")
}

func (s *Store) path(namespace, id string) string {
	return filepath.Join(s.namespaceDir(namespace), id+".json")
}

// Create durably writes a new snapshot and returns its id. The write is
// atomic: the file appears under its final name only once fully synced.
func (s *Store) Create(rc *metis_io.RuntimeContext, namespace, label string, states []entity.State) (string, error) {
	logger := otelzap.Ctx(rc.Ctx)

	dir := s.namespaceDir(namespace)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", cerr.Wrap(err, "failed to create snapshot directory")
	}

	snap := Snapshot{
		ID:           uuid.New().String(),
		Namespace:    namespace,
		Label:        label,
		CreatedAt:    time.Now().UTC(),
		EntityStates: cloneStates(states),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", cerr.Wrap(err, "failed to encode snapshot")
	}
	data, err = s.seal(data)
	if err != nil {
		return "", err
	}

	final := s.path(namespace, snap.ID)
	if err := writeFileSync(final, data); err != nil {
		return "", cerr.Wrap(err, "failed to write snapshot")
	}

	logger.Info("Snapshot created",
		zap.String("snapshot_id", snap.ID),
		zap.String("namespace", namespace),
		zap.String("label", label),
		zap.Int("entities", len(states)))

	return snap.ID, nil
}

// Get loads one snapshot by id.
func (s *Store) Get(namespace, id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(namespace, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Newf("snapshot %s not found in namespace %s", id, namespace)
		}
		return nil, cerr.Wrap(err, "failed to read snapshot")
	}
	data, err = s.open(data)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, cerr.Wrap(err, "failed to decode snapshot")
	}
	return &snap, nil
}

// List returns snapshot metadata matching the filter, newest first.
func (s *Store) List(namespace string, filter ListFilter) ([]Metadata, error) {
	dir := s.namespaceDir(namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.Wrap(err, "failed to list snapshots")
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		snap, err := s.Get(namespace, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		if filter.Label != "" && snap.Label != filter.Label {
			continue
		}
		if filter.LabelPrefix != "" && !strings.HasPrefix(snap.Label, filter.LabelPrefix) {
			continue
		}
		if !filter.Since.IsZero() && snap.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && snap.CreatedAt.After(filter.Until) {
			continue
		}
		out = append(out, Metadata{
			ID:        snap.ID,
			Namespace: snap.Namespace,
			Label:     snap.Label,
			CreatedAt: snap.CreatedAt,
			Entities:  len(snap.EntityStates),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Latest returns the newest snapshot matching the filter, or nil.
func (s *Store) Latest(namespace string, filter ListFilter) (*Snapshot, error) {
	metas, err := s.List(namespace, filter)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, nil
	}
	return s.Get(namespace, metas[0].ID)
}

// Delete removes one whole snapshot. Deletion is refused while any audit
// entry since the retention cutoff still references the snapshot as the
// active rollback target.
func (s *Store) Delete(rc *metis_io.RuntimeContext, namespace, id string) error {
	logger := otelzap.Ctx(rc.Ctx)

	if s.refs != nil {
		cutoff := time.Now().UTC().Add(-s.retention)
		active, err := s.refs.ActiveRollbackTarget(namespace, id, cutoff)
		if err != nil {
			return cerr.Wrap(err, "failed to check rollback references")
		}
		if active {
			return cerr.Newf("snapshot %s is an active rollback target and cannot be deleted", id)
		}
	}

	if err := os.Remove(s.path(namespace, id)); err != nil {
		if os.IsNotExist(err) {
			return cerr.Newf("snapshot %s not found in namespace %s", id, namespace)
		}
		return cerr.Wrap(err, "failed to delete snapshot")
	}

	logger.Info("Snapshot deleted",
		zap.String("snapshot_id", id),
		zap.String("namespace", namespace))
	return nil
}

// Prune deletes whole snapshots older than the retention window. In-use
// rollback targets are kept and reported, not treated as failures.
func (s *Store) Prune(rc *metis_io.RuntimeContext, namespace string) (deleted, kept int, err error) {
	logger := otelzap.Ctx(rc.Ctx)
	cutoff := time.Now().UTC().Add(-s.retention)

	metas, err := s.List(namespace, ListFilter{Until: cutoff})
	if err != nil {
		return 0, 0, err
	}

	for _, m := range metas {
		if derr := s.Delete(rc, namespace, m.ID); derr != nil {
			kept++
			logger.Warn("Snapshot kept during prune",
				zap.String("snapshot_id", m.ID),
				zap.Error(derr))
			continue
		}
		deleted++
	}

	logger.Info("Snapshot prune completed",
		zap.String("namespace", namespace),
		zap.Int("deleted", deleted),
		zap.Int("kept", kept))
	return deleted, kept, nil
}

func cloneStates(states []entity.State) []entity.State {
	out := make([]entity.State, len(states))
	for i, st := range states {
		out[i] = st.Clone()
	}
	return out
}

// writeFileSync writes data to a temp file, fsyncs, then renames into place.
func writeFileSync(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
