// Package engine assembles a working engine from configuration: stores,
// adapters, merge strategy, and the secrets collaborator. The CLI layer
// calls Open once per invocation and hands the pieces to commands.
package engine

import (
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/audit"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/merge"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/rollback"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/secrets"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/snapshot"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/sync"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/sync/adapters/consulkv"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/sync/adapters/dirstore"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Engine bundles the assembled collaborators for one CLI invocation.
type Engine struct {
	Cfg          *config.Config
	Snapshots    *snapshot.Store
	Audit        *audit.Log
	Orchestrator *sync.Orchestrator
	Controller   *rollback.Controller
	Schemas      map[string]entity.Schema
}

// Open loads configuration and wires up stores, adapters, the merge
// strategy, and snapshot encryption when Vault is enabled.
func Open(rc *metis_io.RuntimeContext, configPath string) (*Engine, error) {
	logger := otelzap.Ctx(rc.Ctx)

	cfg, err := config.Load(rc, configPath)
	if err != nil {
		return nil, err
	}

	auditLog := audit.NewLog(filepath.Join(cfg.DataDir, "audit"))
	store := snapshot.NewStore(cfg.DataDir, cfg.Policy.Retention, auditLog)

	if cfg.Vault.Enabled {
		var provider secrets.Provider
		provider, err = secrets.NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, err
		}
		passphrase, err := provider.SnapshotPassphrase(rc)
		if err != nil {
			return nil, err
		}
		store = store.WithEncryption(passphrase)
		logger.Info("Snapshot encryption enabled")
	}

	strategy, err := merge.Get(cfg.Policy.Strategy)
	if err != nil {
		return nil, err
	}

	if err := registerAdapters(cfg); err != nil {
		return nil, err
	}

	schemas := cfg.Schemas()
	return &Engine{
		Cfg:          cfg,
		Snapshots:    store,
		Audit:        auditLog,
		Orchestrator: sync.NewOrchestrator(cfg.DataDir, store, auditLog, strategy),
		Controller:   rollback.NewController(store, auditLog, schemas),
		Schemas:      schemas,
	}, nil
}

// registerAdapters instantiates every configured system and places it in
// the global adapter registry under its configured name.
func registerAdapters(cfg *config.Config) error {
	for name, sc := range cfg.Systems {
		switch sc.Kind {
		case "dir":
			sync.RegisterAdapter(dirstore.New(name, sc.Path))
		case "consul-kv":
			adapter, err := consulkv.New(name, sc.Address, sc.Prefix)
			if err != nil {
				return cerr.Wrapf(err, "failed to configure system %q", name)
			}
			sync.RegisterAdapter(adapter)
		default:
			return cerr.Newf("system %q has unknown kind %q", name, sc.Kind)
		}
	}
	return nil
}

// Adapter resolves a configured system by name.
func (e *Engine) Adapter(rc *metis_io.RuntimeContext, name string) (sync.SystemAdapter, error) {
	adapter, err := sync.GetAdapter(name)
	if err != nil {
		otelzap.Ctx(rc.Ctx).Error("Unknown system requested",
			zap.String("system", name),
			zap.Strings("configured", sync.ListAdapters()))
		return nil, err
	}
	return adapter, nil
}

// SyncContext builds the per-pass context from policy plus overrides.
func (e *Engine) SyncContext(namespace, actor string) config.SyncContext {
	return config.SyncContext{
		Namespace: namespace,
		Actor:     actor,
		Policy:    e.Cfg.Policy,
	}
}
