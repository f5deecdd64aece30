// pkg/snapshot/baseline.go

package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Baseline is the last mutually agreed entity set, captured at the end of
// the previous successful sync. Its absence disables three-way merge.
type Baseline struct {
	Namespace    string         `json:"namespace"`
	CapturedAt   time.Time      `json:"captured_at"`
	EntityStates []entity.State `json:"entity_states"`
}

func (s *Store) baselinePath(namespace string) string {
	return filepath.Join(s.baseDir, namespace, "baseline.json")
}

// SaveBaseline replaces the namespace's "latest agreed" pointer.
func (s *Store) SaveBaseline(rc *metis_io.RuntimeContext, namespace string, states []entity.State) error {
	logger := otelzap.Ctx(rc.Ctx)

	if err := os.MkdirAll(filepath.Join(s.baseDir, namespace), 0700); err != nil {
		return cerr.Wrap(err, "failed to create namespace directory")
	}

	b := Baseline{
		Namespace:    namespace,
		CapturedAt:   time.Now().UTC(),
		EntityStates: cloneStates(states),
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return cerr.Wrap(err, "failed to encode baseline")
	}
	if err := writeFileSync(s.baselinePath(namespace), data); err != nil {
		return cerr.Wrap(err, "failed to write baseline")
	}

	logger.Info("Baseline saved",
		zap.String("namespace", namespace),
		zap.Int("entities", len(states)))
	return nil
}

// LoadBaseline returns the namespace's baseline, or found=false when no
// successful sync has recorded one yet.
func (s *Store) LoadBaseline(namespace string) (*Baseline, bool, error) {
	data, err := os.ReadFile(s.baselinePath(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, cerr.Wrap(err, "failed to read baseline")
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, false, cerr.Wrap(err, "failed to decode baseline")
	}
	return &b, true, nil
}
