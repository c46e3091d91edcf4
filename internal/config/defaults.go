package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBName = "graphchem"

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker   = "localhost:9092"
	DefaultProgressTopic = "graphchem.training.progress"

	DefaultMilvusAddr       = "localhost:19530"
	DefaultMilvusCollection = "molecule_embeddings"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "graphchem-checkpoints"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDenseSize   = 128
	DefaultMaxDegree   = 10
	DefaultDropoutRate = 0.0

	DefaultEpochs       = 10
	DefaultBatchSize    = 50
	DefaultLearningRate = 1e-3
	DefaultOptimizer    = "adam"

	DefaultSMILESColumn  = "smiles"
	DefaultTrainFraction = 0.8
	DefaultValidFraction = 0.1
	DefaultTestFraction  = 0.1
)

// DefaultConvChannels is the output width of each graph convolution block.
var DefaultConvChannels = []int{64, 64}

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields already set by the caller are left unchanged so that explicit
// configuration always wins.  Call after unmarshalling and before Validate().
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 24 * time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "graphchem:"
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ProgressTopic == "" {
		cfg.Kafka.ProgressTopic = DefaultProgressTopic
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = time.Second
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = DefaultMilvusCollection
	}
	if cfg.Milvus.IndexType == "" {
		cfg.Milvus.IndexType = "HNSW"
	}
	if cfg.Milvus.HNSWM == 0 {
		cfg.Milvus.HNSWM = 16
	}
	if cfg.Milvus.HNSWEfConstruction == 0 {
		cfg.Milvus.HNSWEfConstruction = 200
	}
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = 10
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Model ─────────────────────────────────────────────────────────────────
	if len(cfg.Model.ConvChannels) == 0 {
		cfg.Model.ConvChannels = append([]int(nil), DefaultConvChannels...)
	}
	if cfg.Model.DenseSize == 0 {
		cfg.Model.DenseSize = DefaultDenseSize
	}
	if cfg.Model.MaxDegree == 0 {
		cfg.Model.MaxDegree = DefaultMaxDegree
	}

	// ── Training ──────────────────────────────────────────────────────────────
	if cfg.Training.Epochs == 0 {
		cfg.Training.Epochs = DefaultEpochs
	}
	if cfg.Training.BatchSize == 0 {
		cfg.Training.BatchSize = DefaultBatchSize
	}
	if cfg.Training.LearningRate == 0 {
		cfg.Training.LearningRate = DefaultLearningRate
	}
	if cfg.Training.Optimizer == "" {
		cfg.Training.Optimizer = DefaultOptimizer
	}
	if cfg.Training.CheckpointDir == "" {
		cfg.Training.CheckpointDir = "checkpoints"
	}

	// ── Dataset ───────────────────────────────────────────────────────────────
	if cfg.Dataset.SMILESColumn == "" {
		cfg.Dataset.SMILESColumn = DefaultSMILESColumn
	}
	if cfg.Dataset.TrainFraction == 0 && cfg.Dataset.ValidFraction == 0 && cfg.Dataset.TestFraction == 0 {
		cfg.Dataset.TrainFraction = DefaultTrainFraction
		cfg.Dataset.ValidFraction = DefaultValidFraction
		cfg.Dataset.TestFraction = DefaultTestFraction
	}
}

// NewDefaultConfig returns a Config populated entirely with platform defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
