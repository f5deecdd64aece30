// Package dirstore is the local-filesystem system adapter: one YAML
// document per entity, laid out as <root>/<namespace>/<type>/<name>.yaml
// with the document body as the entity's field mapping.
package dirstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Adapter reads and writes entity documents under a root directory.
type Adapter struct {
	name string
	root string
}

// New creates a directory-store adapter.
func New(name, root string) *Adapter {
	return &Adapter{name: name, root: root}
}

func (a *Adapter) Name() string { return a.name }

// FetchEntities loads every entity document in the namespace.
func (a *Adapter) FetchEntities(rc *metis_io.RuntimeContext, namespace string) ([]entity.State, error) {
	logger := otelzap.Ctx(rc.Ctx)

	nsDir := filepath.Join(a.root, namespace)
	typeDirs, err := os.ReadDir(nsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.Wrapf(err, "failed to read namespace directory %s", nsDir)
	}

	var states []entity.State
	observedAt := time.Now().UTC()
	for _, td := range typeDirs {
		if !td.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(nsDir, td.Name()))
		if err != nil {
			return nil, cerr.Wrap(err, "failed to read type directory")
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".yaml")
			path := filepath.Join(nsDir, td.Name(), e.Name())
			fields, err := readDocument(path)
			if err != nil {
				return nil, err
			}
			states = append(states, entity.State{
				Ref:          entity.Ref{Namespace: namespace, Type: td.Name(), Name: name},
				Fields:       fields,
				SourceSystem: a.name,
				ObservedAt:   observedAt,
				Revision:     revisionOf(fields),
			})
		}
	}

	logger.Debug("Directory store fetched",
		zap.String("adapter", a.name),
		zap.String("namespace", namespace),
		zap.Int("entities", len(states)))
	return states, nil
}

// ApplyEntity writes one entity document atomically.
func (a *Adapter) ApplyEntity(rc *metis_io.RuntimeContext, state entity.State) error {
	dir := filepath.Join(a.root, state.Ref.Namespace, state.Ref.Type)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return cerr.Wrap(err, "failed to create entity directory")
	}

	data, err := yaml.Marshal(map[string]any(state.Fields))
	if err != nil {
		return cerr.Wrap(err, "failed to encode entity document")
	}

	path := filepath.Join(dir, state.Ref.Name+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return cerr.Wrap(err, "failed to write entity document")
	}
	return os.Rename(tmp, path)
}

func readDocument(path string) (entity.Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to read entity document %s", path)
	}
	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, cerr.Wrapf(err, "failed to parse entity document %s", path)
	}
	return entity.Fields(fields), nil
}

// revisionOf derives a content revision from the canonical field encoding.
func revisionOf(fields entity.Fields) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
