// Package config defines all configuration structures for GraphChem.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables for the predict API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the run store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the featurization cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the training-event producer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ProgressTopic   string        `mapstructure:"progress_topic"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	Async           bool          `mapstructure:"async"`
}

// MilvusConfig holds vector-store connection parameters for the embedding index.
type MilvusConfig struct {
	Addr               string `mapstructure:"addr"`
	DBName             string `mapstructure:"db_name"`
	Collection         string `mapstructure:"collection"`
	EmbeddingDim       int    `mapstructure:"embedding_dim"`
	IndexType          string `mapstructure:"index_type"`
	HNSWM              int    `mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `mapstructure:"hnsw_ef_construction"`
	DefaultTopK        int    `mapstructure:"default_top_k"`
}

// MinIOConfig holds object-storage parameters for checkpoint artifacts.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ModelConfig holds the graph convolutional network architecture parameters.
type ModelConfig struct {
	ConvChannels []int   `mapstructure:"conv_channels"` // output width of each GraphConv block
	DenseSize    int     `mapstructure:"dense_size"`    // atom-level dense layer width
	MaxDegree    int     `mapstructure:"max_degree"`    // maximum supported atom degree
	DropoutRate  float64 `mapstructure:"dropout_rate"`
	Seed         int64   `mapstructure:"seed"`
}

// TrainingConfig holds the training loop parameters.
type TrainingConfig struct {
	Epochs        int     `mapstructure:"epochs"`
	BatchSize     int     `mapstructure:"batch_size"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	Optimizer     string  `mapstructure:"optimizer"` // "adam" | "sgd"
	PadBatches    bool    `mapstructure:"pad_batches"`
	Seed          int64   `mapstructure:"seed"`
	ClipNorm      float64 `mapstructure:"clip_norm"` // 0 disables gradient clipping
	CheckpointDir string  `mapstructure:"checkpoint_dir"`
}

// DatasetConfig holds benchmark dataset parameters.
type DatasetConfig struct {
	Path          string   `mapstructure:"path"`
	SMILESColumn  string   `mapstructure:"smiles_column"`
	TaskColumns   []string `mapstructure:"task_columns"` // empty = all non-SMILES columns
	TrainFraction float64  `mapstructure:"train_fraction"`
	ValidFraction float64  `mapstructure:"valid_fraction"`
	TestFraction  float64  `mapstructure:"test_fraction"`
	SplitSeed     int64    `mapstructure:"split_seed"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the platform.  Every
// infrastructure component and service reads its settings from the relevant
// sub-struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Log      LogConfig      `mapstructure:"log"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if len(c.Model.ConvChannels) == 0 {
		return fmt.Errorf("config: model.conv_channels must name at least one layer width")
	}
	for i, w := range c.Model.ConvChannels {
		if w < 1 {
			return fmt.Errorf("config: model.conv_channels[%d] must be ≥ 1, got %d", i, w)
		}
	}
	if c.Model.DenseSize < 1 {
		return fmt.Errorf("config: model.dense_size must be ≥ 1, got %d", c.Model.DenseSize)
	}
	if c.Model.MaxDegree < 1 {
		return fmt.Errorf("config: model.max_degree must be ≥ 1, got %d", c.Model.MaxDegree)
	}
	if c.Model.DropoutRate < 0 || c.Model.DropoutRate >= 1 {
		return fmt.Errorf("config: model.dropout_rate must be in [0, 1), got %g", c.Model.DropoutRate)
	}

	if c.Training.Epochs < 1 {
		return fmt.Errorf("config: training.epochs must be ≥ 1, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("config: training.batch_size must be ≥ 1, got %d", c.Training.BatchSize)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("config: training.learning_rate must be > 0, got %g", c.Training.LearningRate)
	}
	switch c.Training.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("config: training.optimizer %q is invalid; expected adam|sgd", c.Training.Optimizer)
	}
	if c.Training.ClipNorm < 0 {
		return fmt.Errorf("config: training.clip_norm must be ≥ 0, got %g", c.Training.ClipNorm)
	}

	fracSum := c.Dataset.TrainFraction + c.Dataset.ValidFraction + c.Dataset.TestFraction
	if fracSum < 0.999 || fracSum > 1.001 {
		return fmt.Errorf("config: dataset split fractions must sum to 1.0, got %g", fracSum)
	}

	return nil
}
