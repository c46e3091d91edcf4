// Command apiserver runs the GraphChem HTTP API: prediction, similarity
// search, and training-run management backed by Postgres, Redis, Kafka,
// MinIO, and Milvus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/molforge/graphchem/internal/application/experiment"
	"github.com/molforge/graphchem/internal/config"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/infrastructure/database/postgres"
	"github.com/molforge/graphchem/internal/infrastructure/database/redis"
	"github.com/molforge/graphchem/internal/infrastructure/messaging/kafka"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	"github.com/molforge/graphchem/internal/infrastructure/search/milvus"
	"github.com/molforge/graphchem/internal/infrastructure/storage/minio"
	httpserver "github.com/molforge/graphchem/internal/interfaces/http"
	"github.com/molforge/graphchem/internal/interfaces/http/handlers"
	"github.com/molforge/graphchem/internal/training"
)

const (
	defaultConfigPath = "configs/graphchem.yaml"
	trainingLockTTL   = 30 * time.Minute
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	checkpointPath := flag.String("checkpoint", "", "model checkpoint served by /predict and /similar")
	taskNames := flag.String("tasks", "", "comma-separated task names matching the checkpoint")
	migrate := flag.Bool("migrate", true, "run database migrations on startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *checkpointPath, *taskNames, *migrate); err != nil {
		logger.Error("apiserver exited with error", logging.Err(err))
		os.Exit(1)
	}
}

// loadConfig reads the config file when it exists, otherwise builds the
// configuration from GRAPHCHEM_* environment variables.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func run(cfg *config.Config, logger logging.Logger, checkpointPath, taskNames string, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting graphchem apiserver",
		logging.String("host", cfg.Server.Host),
		logging.Int("port", cfg.Server.Port),
	)

	// Postgres run store. Required: runs cannot be tracked without it.
	pgCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	pool, err := postgres.Connect(ctx, pgCfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := postgres.RunMigrations("file://"+cfg.Database.MigrationPath, pgCfg.DSN(), logger); err != nil {
			return err
		}
	}
	runRepo := postgres.NewRunRepository(pool)

	// Redis featurization cache and training locks. Required.
	redisClient, err := redis.NewClient(ctx, redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		KeyPrefix:    cfg.Redis.KeyPrefix,
		DefaultTTL:   cfg.Redis.DefaultTTL,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	mets := metrics.New()

	svcOpts := []experiment.Option{
		experiment.WithGraphCache(redis.NewMolGraphCache(redisClient)),
		experiment.WithLockFactory(func(name string) experiment.Locker {
			return redis.NewLock(redisClient, name, trainingLockTTL)
		}),
		experiment.WithMetrics(mets),
	}

	// Kafka progress events. Optional: training still works without them.
	producer, err := kafka.NewProgressProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.ProgressTopic,
		MaxRetries:   cfg.Kafka.ProducerRetries,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Async:        cfg.Kafka.Async,
	}, logger)
	if err != nil {
		logger.Warn("kafka progress producer disabled", logging.Err(err))
	} else {
		defer producer.Close()
		svcOpts = append(svcOpts, experiment.WithProgressSink(producer))
	}

	// MinIO checkpoint storage, falling back to the local directory.
	var ckpts training.CheckpointStore
	store, err := minio.NewCheckpointStore(ctx, minio.Config{
		Endpoint:        cfg.MinIO.Endpoint,
		AccessKeyID:     cfg.MinIO.AccessKey,
		SecretAccessKey: cfg.MinIO.SecretKey,
		UseSSL:          cfg.MinIO.UseSSL,
		Bucket:          cfg.MinIO.Bucket,
	}, logger)
	if err != nil {
		logger.Warn("object storage unavailable, using local checkpoint directory",
			logging.String("dir", cfg.Training.CheckpointDir), logging.Err(err))
		ckpts = localCheckpointFallback(cfg.Training.CheckpointDir, logger)
	} else {
		ckpts = store
	}
	if ckpts != nil {
		svcOpts = append(svcOpts, experiment.WithCheckpointStore(ckpts))
	}

	// Optional serving model.
	var served *model.GraphConvModel
	if checkpointPath != "" {
		served, err = loadModel(checkpointPath)
		if err != nil {
			return err
		}
		logger.Info("serving model loaded",
			logging.String("checkpoint", checkpointPath),
			logging.Int("tasks", served.Config().NumTasks),
		)
	}

	// Milvus embedding index. Optional: /similar returns 501 without it.
	var index *milvus.EmbeddingIndex
	dim := cfg.Milvus.EmbeddingDim
	if dim == 0 {
		if served != nil {
			dim = served.EmbeddingDim()
		} else {
			dim = cfg.Model.DenseSize
		}
	}
	index, err = milvus.NewEmbeddingIndex(ctx, milvus.Config{
		Address:      cfg.Milvus.Addr,
		Collection:   cfg.Milvus.Collection,
		Dim:          dim,
		IndexM:       cfg.Milvus.HNSWM,
		IndexEfBuild: cfg.Milvus.HNSWEfConstruction,
	}, logger)
	if err != nil {
		logger.Warn("embedding index disabled", logging.Err(err))
		index = nil
	} else {
		defer index.Close()
		svcOpts = append(svcOpts, experiment.WithEmbeddingIndexer(index))
	}

	svc := experiment.NewService(runRepo, logger.Named("experiment"), svcOpts...)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		PredictHandler: newPredictHandler(served, taskNames, index, mets, logger),
		RunsHandler:    handlers.NewRunsHandler(svc, *cfg, logger.Named("runs")),
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    redisClient,
		}),
		Metrics: mets,
		Logger:  logger.Named("http"),
		Mode:    cfg.Server.Mode,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	logger.Info("apiserver stopped")
	return nil
}

func newPredictHandler(served *model.GraphConvModel, taskNames string, index *milvus.EmbeddingIndex, mets *metrics.Metrics, logger logging.Logger) *handlers.PredictHandler {
	var m handlers.PropertyModel
	if served != nil {
		m = served
	}
	var searcher handlers.EmbeddingSearcher
	if index != nil {
		searcher = index
	}
	return handlers.NewPredictHandler(m, splitTasks(taskNames), searcher, mets, logger.Named("predict"))
}

// localCheckpointFallback builds a directory-backed checkpoint store when
// object storage is down.  Returns nil when the directory cannot be created;
// the run then proceeds without checkpoints.
func localCheckpointFallback(dir string, logger logging.Logger) training.CheckpointStore {
	local, err := training.NewLocalCheckpointStore(dir)
	if err != nil {
		logger.Warn("local checkpoint directory unavailable, running without checkpoints",
			logging.String("dir", dir), logging.Err(err))
		return nil
	}
	return local
}

func loadModel(path string) (*model.GraphConvModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer f.Close()
	return model.Load(f)
}

func splitTasks(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
