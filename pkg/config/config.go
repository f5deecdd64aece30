// Package config loads the engine configuration and defines the explicit
// SyncContext passed into every orchestrator call. There is no
// process-wide mutable "current environment"; callers always say which
// namespace, actor, and policy they mean.
package config

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/entity"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TriggerConfig is one automatic-rollback trigger: a predicate sampled on
// each evaluation that must hold continuously for Window before firing.
type TriggerConfig struct {
	Name      string        `mapstructure:"name" validate:"required"`
	Condition string        `mapstructure:"condition" validate:"required"`
	Threshold float64       `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window" validate:"required"`
	Action    string        `mapstructure:"action" validate:"oneof=rollback alert-only"`
}

// AutoRollbackConfig gates failure-triggered rollback per environment.
// Disabled by default; enabling it is an explicit policy decision.
type AutoRollbackConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Triggers []TriggerConfig `mapstructure:"triggers" validate:"dive"`
}

// Policy is the per-namespace sync policy.
type Policy struct {
	SkipConflicts bool               `mapstructure:"skip_conflicts"`
	Strategy      string             `mapstructure:"strategy"`
	AutoRollback  AutoRollbackConfig `mapstructure:"auto_rollback"`
	Retention     time.Duration      `mapstructure:"retention"`
	Concurrency   int                `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}

// SystemConfig describes one configured system adapter.
type SystemConfig struct {
	Kind    string `mapstructure:"kind" validate:"required,oneof=dir consul-kv"`
	Path    string `mapstructure:"path"`
	Address string `mapstructure:"address"`
	Prefix  string `mapstructure:"prefix"`
}

// VaultConfig locates the secrets collaborator.
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
}

// Config is the full engine configuration.
type Config struct {
	DataDir string                  `mapstructure:"data_dir" validate:"required"`
	Policy  Policy                  `mapstructure:"policy"`
	Systems map[string]SystemConfig `mapstructure:"systems" validate:"dive"`
	Vault   VaultConfig             `mapstructure:"vault"`
	// SetFields maps entity type to the fields whose list values compare
	// as unordered sets.
	SetFields map[string][]string `mapstructure:"set_fields"`
}

// Schemas converts the set-field hints into per-type entity schemas.
func (c *Config) Schemas() map[string]entity.Schema {
	out := make(map[string]entity.Schema, len(c.SetFields))
	for typ, fields := range c.SetFields {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		out[typ] = entity.Schema{SetFields: set}
	}
	return out
}

// SyncContext names the namespace, actor, and policy of one sync pass.
type SyncContext struct {
	Namespace string `validate:"required"`
	Actor     string `validate:"required"`
	Policy    Policy
}

// Load reads the config file (YAML), applies defaults, and validates.
func Load(rc *metis_io.RuntimeContext, path string) (*Config, error) {
	logger := otelzap.Ctx(rc.Ctx)

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metis")
		v.AddConfigPath("/etc/metis")
		v.AddConfigPath("$HOME/.metis")
		v.AddConfigPath(".")
	}

	v.SetDefault("data_dir", "/var/lib/metis")
	v.SetDefault("policy.strategy", "three-way")
	v.SetDefault("policy.retention", (30 * 24 * time.Hour).String())
	v.SetDefault("policy.concurrency", 4)
	v.SetDefault("policy.auto_rollback.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && cerr.As(err, &notFound) {
			logger.Warn("No config file found, using defaults")
		} else {
			return nil, cerr.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cerr.Wrap(err, "failed to unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("systems", len(cfg.Systems)))
	return &cfg, nil
}

// Validate runs struct validation over a config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return cerr.Wrap(err, "config validation failed")
	}
	return nil
}

// ValidateSyncContext validates a caller-built SyncContext.
func ValidateSyncContext(sc *SyncContext) error {
	if err := validator.New().Struct(sc); err != nil {
		return cerr.Wrap(err, "sync context validation failed")
	}
	return nil
}
