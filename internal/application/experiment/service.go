// Package experiment orchestrates training runs: it loads and splits the
// dataset, takes the training lock, drives the trainer, records run state,
// and exports molecule embeddings to the vector index.
package experiment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/molforge/graphchem/internal/config"
	"github.com/molforge/graphchem/internal/domain/dataset"
	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/gnn/nn"
	"github.com/molforge/graphchem/internal/infrastructure/database/postgres"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	"github.com/molforge/graphchem/internal/infrastructure/search/milvus"
	"github.com/molforge/graphchem/internal/training"
	"github.com/molforge/graphchem/pkg/errors"
)

// RunStore persists run records.  *postgres.RunRepository satisfies it.
type RunStore interface {
	Create(ctx context.Context, run *postgres.Run) error
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, bestEpoch int, meanAUC float64, checkpointKey string) error
	Fail(ctx context.Context, id string, runErr error) error
	Get(ctx context.Context, id string) (*postgres.Run, error)
	List(ctx context.Context, limit int) ([]*postgres.Run, error)
}

// Locker guards a dataset against concurrent training runs.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// LockFactory builds a Locker for the named dataset.  A nil factory
// disables locking.
type LockFactory func(name string) Locker

// EmbeddingIndexer receives molecule embeddings after a successful run.
// *milvus.EmbeddingIndex satisfies it.
type EmbeddingIndexer interface {
	Insert(ctx context.Context, records []milvus.EmbeddingRecord) error
}

// Service coordinates the full lifecycle of a training run.
type Service struct {
	runs    RunStore
	newLock LockFactory
	cache   dataset.GraphCache
	sink    training.ProgressSink
	ckpts   training.CheckpointStore
	embed   EmbeddingIndexer
	metrics *metrics.Metrics
	logger  logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithLockFactory enables per-dataset training locks.
func WithLockFactory(f LockFactory) Option {
	return func(s *Service) { s.newLock = f }
}

// WithGraphCache caches featurized molecules between runs.
func WithGraphCache(c dataset.GraphCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithProgressSink publishes training progress events.
func WithProgressSink(sink training.ProgressSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithCheckpointStore persists model checkpoints during training.
func WithCheckpointStore(store training.CheckpointStore) Option {
	return func(s *Service) { s.ckpts = store }
}

// WithEmbeddingIndexer exports test-set embeddings after training.
func WithEmbeddingIndexer(idx EmbeddingIndexer) Option {
	return func(s *Service) { s.embed = idx }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService builds an experiment service around a run store.
func NewService(runs RunStore, logger logging.Logger, opts ...Option) *Service {
	s := &Service{runs: runs, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartRunInput carries everything needed to launch a training run.
type StartRunInput struct {
	// RunID optionally fixes the run identifier; empty generates one.
	// Callers that start runs asynchronously set it so they can report
	// the id before the run finishes.
	RunID string

	DatasetName string
	Dataset     config.DatasetConfig
	Model       config.ModelConfig
	Training    config.TrainingConfig
}

// RunOutcome summarizes a finished run.
type RunOutcome struct {
	RunID         string             `json:"run_id"`
	BestEpoch     int                `json:"best_epoch"`
	BestMeanAUC   float64            `json:"best_mean_auc"`
	TestAUC       float64            `json:"test_auc"`
	TaskAUC       map[string]float64 `json:"task_auc,omitempty"`
	EpochLosses   []float64          `json:"epoch_losses"`
	CheckpointKey string             `json:"checkpoint_key,omitempty"`
	Elapsed       time.Duration      `json:"elapsed"`
}

// runConfig is the JSON shape stored on the run record.
type runConfig struct {
	Dataset  config.DatasetConfig  `json:"dataset"`
	Model    config.ModelConfig    `json:"model"`
	Training config.TrainingConfig `json:"training"`
}

// StartRun executes a full training run synchronously and returns its
// outcome.  The run record tracks progress so failures are attributable
// after the fact.
func (s *Service) StartRun(ctx context.Context, in StartRunInput) (*RunOutcome, error) {
	started := time.Now()

	ds, err := dataset.LoadCSV(in.Dataset.Path, dataset.LoadOptions{
		SMILESColumn: in.Dataset.SMILESColumn,
		TaskColumns:  in.Dataset.TaskColumns,
	})
	if err != nil {
		return nil, err
	}

	split, err := dataset.RandomSplit(ds,
		in.Dataset.TrainFraction, in.Dataset.ValidFraction, in.Dataset.TestFraction,
		in.Dataset.SplitSeed)
	if err != nil {
		return nil, err
	}

	if s.newLock != nil {
		lock := s.newLock(in.DatasetName)
		if err := lock.Acquire(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release training lock",
					logging.String("dataset", in.DatasetName), logging.Err(err))
			}
		}()
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	cfgJSON, err := json.Marshal(runConfig{Dataset: in.Dataset, Model: in.Model, Training: in.Training})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode run config")
	}
	if err := s.runs.Create(ctx, &postgres.Run{
		ID:      runID,
		Dataset: in.DatasetName,
		Tasks:   ds.Tasks,
		Config:  cfgJSON,
	}); err != nil {
		return nil, err
	}

	outcome, err := s.executeRun(ctx, runID, ds, split, in)
	if err != nil {
		if failErr := s.runs.Fail(context.WithoutCancel(ctx), runID, err); failErr != nil {
			s.logger.Error("failed to record run failure",
				logging.String("run_id", runID), logging.Err(failErr))
		}
		return nil, err
	}
	outcome.Elapsed = time.Since(started)
	return outcome, nil
}

func (s *Service) executeRun(ctx context.Context, runID string, ds *dataset.Dataset, split *dataset.Split, in StartRunInput) (*RunOutcome, error) {
	if err := s.runs.Start(ctx, runID); err != nil {
		return nil, err
	}

	m, err := model.New(model.Config{
		NumTasks:     ds.NumTasks(),
		NumFeatures:  molecule.NumAtomFeatures,
		ConvChannels: in.Model.ConvChannels,
		DenseSize:    in.Model.DenseSize,
		MaxDegree:    in.Model.MaxDegree,
		DropoutRate:  in.Model.DropoutRate,
		Seed:         in.Model.Seed,
	})
	if err != nil {
		return nil, err
	}

	opt, err := nn.New(in.Training.Optimizer, in.Training.LearningRate)
	if err != nil {
		return nil, err
	}

	featurizer := molecule.NewFeaturizer(in.Model.MaxDegree)

	// The three splits featurize independently.
	var fzTrain, fzValid, fzTest *dataset.Featurized
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fzTrain, err = dataset.Featurize(gctx, split.Train, featurizer, s.cache)
		return err
	})
	g.Go(func() (err error) {
		fzValid, err = dataset.Featurize(gctx, split.Valid, featurizer, s.cache)
		return err
	})
	g.Go(func() (err error) {
		fzTest, err = dataset.Featurize(gctx, split.Test, featurizer, s.cache)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		dropped := len(fzTrain.Dropped) + len(fzValid.Dropped) + len(fzTest.Dropped)
		s.metrics.FeaturizeFailuresTotal.Add(float64(dropped))
	}

	opts := []training.Option{training.WithLogger(s.logger.Named("trainer"))}
	if s.metrics != nil {
		opts = append(opts, training.WithMetrics(s.metrics))
	}
	if s.sink != nil {
		opts = append(opts, training.WithProgressSink(s.sink))
	}
	if s.ckpts != nil {
		opts = append(opts, training.WithCheckpointStore(s.ckpts))
	}
	trainer, err := training.NewTrainer(m, opt, training.Config{
		Epochs:    in.Training.Epochs,
		BatchSize: in.Training.BatchSize,
		Pad:       in.Training.PadBatches,
		Seed:      in.Training.Seed,
		MaxDegree: in.Model.MaxDegree,
		ClipNorm:  in.Training.ClipNorm,
	}, opts...)
	if err != nil {
		return nil, err
	}

	result, err := trainer.Run(ctx, runID, fzTrain, fzValid)
	if err != nil {
		return nil, err
	}

	testScores, err := training.Evaluate(m, fzTest, in.Training.BatchSize, in.Model.MaxDegree)
	if err != nil {
		return nil, err
	}

	if err := s.runs.Complete(ctx, runID, result.BestEpoch, testScores.Mean(), result.LastCheckKey); err != nil {
		return nil, err
	}

	if s.embed != nil {
		if err := s.exportEmbeddings(ctx, runID, m, fzTest, in); err != nil {
			// Embedding export is best effort; the run itself succeeded.
			s.logger.Warn("embedding export failed",
				logging.String("run_id", runID), logging.Err(err))
		}
	}

	s.logger.Info("run completed",
		logging.String("run_id", runID),
		logging.Int("best_epoch", result.BestEpoch),
		logging.Float64("test_mean_auc", testScores.Mean()),
	)

	return &RunOutcome{
		RunID:         runID,
		BestEpoch:     result.BestEpoch,
		BestMeanAUC:   result.BestMeanAUC,
		TestAUC:       testScores.Mean(),
		TaskAUC:       testScores.Scores,
		EpochLosses:   result.EpochLosses,
		CheckpointKey: result.LastCheckKey,
	}, nil
}

// exportEmbeddings runs the trained model over the test split and indexes
// the molecule embeddings.  Batches keep dataset order so rows line up
// with their SMILES.
func (s *Service) exportEmbeddings(ctx context.Context, runID string, m *model.GraphConvModel, fz *dataset.Featurized, in StartRunInput) error {
	batches, err := fz.Batches(dataset.BatchOptions{
		BatchSize: in.Training.BatchSize,
		MaxDegree: in.Model.MaxDegree,
	})
	if err != nil {
		return err
	}

	var records []milvus.EmbeddingRecord
	offset := 0
	for _, batch := range batches {
		emb, err := m.Embed(batch.Graph)
		if err != nil {
			return err
		}
		rows := batch.Size() - batch.Padded
		for i := 0; i < rows; i++ {
			row := emb.RawRowView(i)
			vec := make([]float32, len(row))
			for j, v := range row {
				vec[j] = float32(v)
			}
			records = append(records, milvus.EmbeddingRecord{
				SMILES: fz.Dataset.SMILES[offset+i],
				RunID:  runID,
				Vector: vec,
			})
		}
		offset += rows
	}

	if err := s.embed.Insert(ctx, records); err != nil {
		return err
	}
	s.logger.Info("embeddings exported",
		logging.String("run_id", runID),
		logging.Int("count", len(records)),
	)
	return nil
}

// GetRun returns a run record by id.
func (s *Service) GetRun(ctx context.Context, id string) (*postgres.Run, error) {
	return s.runs.Get(ctx, id)
}

// ListRuns returns the most recent runs.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*postgres.Run, error) {
	return s.runs.List(ctx, limit)
}
