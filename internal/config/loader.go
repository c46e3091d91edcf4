// Package config provides configuration loading, defaults, and validation
// for GraphChem.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform settings.
const envPrefix = "GRAPHCHEM"

// configKeys lists every key in the Config tree.  Viper's Unmarshal only
// visits keys it already knows about, so each key must be bound explicitly
// for environment-only configuration to work; AutomaticEnv alone is not
// enough without a config file.
var configKeys = []string{
	"server.host", "server.port", "server.mode",
	"server.read_timeout", "server.write_timeout", "server.shutdown_timeout",

	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.max_open_conns",
	"database.max_idle_conns", "database.conn_max_lifetime",
	"database.conn_max_idle_time", "database.migration_path",

	"redis.addr", "redis.password", "redis.db", "redis.pool_size",
	"redis.min_idle_conns", "redis.dial_timeout", "redis.read_timeout",
	"redis.write_timeout", "redis.default_ttl", "redis.key_prefix",

	"kafka.brokers", "kafka.progress_topic", "kafka.producer_retries",
	"kafka.batch_timeout", "kafka.async",

	"milvus.addr", "milvus.db_name", "milvus.collection",
	"milvus.embedding_dim", "milvus.index_type", "milvus.hnsw_m",
	"milvus.hnsw_ef_construction", "milvus.default_top_k",

	"minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.bucket", "minio.use_ssl",

	"log.level", "log.format", "log.output_paths",

	"model.conv_channels", "model.dense_size", "model.max_degree",
	"model.dropout_rate", "model.seed",

	"training.epochs", "training.batch_size", "training.learning_rate",
	"training.optimizer", "training.pad_batches", "training.seed",
	"training.clip_norm", "training.checkpoint_dir",

	"dataset.path", "dataset.smiles_column", "dataset.task_columns",
	"dataset.train_fraction", "dataset.valid_fraction",
	"dataset.test_fraction", "dataset.split_seed",
}

// newViper builds a pre-configured Viper instance with the platform's
// standard settings: YAML file type, GRAPHCHEM_ env prefix, automatic env
// binding, and a key replacer that maps "." → "_" so that nested keys like
// "database.host" resolve to "GRAPHCHEM_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		// BindEnv only fails on an empty key.
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges any GRAPHCHEM_* environment
// variable overrides, applies platform defaults for unset fields, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from GRAPHCHEM_* environment
// variables, with no config file required.  Preferred for containerised
// (12-factor) deployments.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  Intended for
// hot-reloading non-critical settings such as log level; callers are
// responsible for applying only the safe subset at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is NOT called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read errors are ignored here; callers should Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			// A broken on-disk config must not propagate into the process.
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
