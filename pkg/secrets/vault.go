// Package secrets is the collaborator boundary for snapshot-store
// encryption credentials. Key management itself lives in Vault; the
// engine only fetches the passphrase it is told to use.
package secrets

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/config"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/vault/api"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Provider supplies the snapshot-store passphrase.
type Provider interface {
	SnapshotPassphrase(rc *metis_io.RuntimeContext) (string, error)
}

// VaultProvider reads the passphrase from a Vault KVv2 secret.
type VaultProvider struct {
	client     *api.Client
	mountPath  string
	secretPath string
}

// NewVaultProvider connects to Vault using the configured address and
// the standard VAULT_TOKEN environment resolution.
func NewVaultProvider(cfg config.VaultConfig) (*VaultProvider, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, cerr.Wrap(err, "failed to create vault client")
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	return &VaultProvider{
		client:     client,
		mountPath:  mount,
		secretPath: cfg.SecretPath,
	}, nil
}

// SnapshotPassphrase fetches the "passphrase" key of the configured secret.
func (p *VaultProvider) SnapshotPassphrase(rc *metis_io.RuntimeContext) (string, error) {
	logger := otelzap.Ctx(rc.Ctx)

	secret, err := p.client.KVv2(p.mountPath).Get(rc.Ctx, p.secretPath)
	if err != nil {
		return "", cerr.Wrapf(err, "failed to read vault secret %s/%s", p.mountPath, p.secretPath)
	}

	passphrase, ok := secret.Data["passphrase"].(string)
	if !ok || passphrase == "" {
		return "", cerr.Newf("vault secret %s/%s has no passphrase key", p.mountPath, p.secretPath)
	}

	logger.Debug("Snapshot passphrase resolved",
		zap.String("mount", p.mountPath),
		zap.String("path", p.secretPath))
	return passphrase, nil
}

// StaticProvider returns a fixed passphrase; used in tests and when the
// Vault collaborator is disabled.
type StaticProvider struct {
	Passphrase string
}

func (p *StaticProvider) SnapshotPassphrase(*metis_io.RuntimeContext) (string, error) {
	return p.Passphrase, nil
}
