package training

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/domain/dataset"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/gnn/nn"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	"github.com/molforge/graphchem/pkg/errors"
)

// Config holds the optimization hyperparameters for a run.
type Config struct {
	Epochs    int
	BatchSize int

	// Pad fills the final batch of every epoch to a uniform size with
	// weight-zero rows.
	Pad bool

	// Seed drives the per-epoch shuffle; epoch e shuffles with Seed+e so
	// that epochs differ but runs reproduce.
	Seed int64

	// MaxDegree caps atom degrees in batch assembly.
	MaxDegree int

	// ClipNorm bounds the global gradient norm; non-positive disables
	// clipping.
	ClipNorm float64

	// CheckpointEvery saves a checkpoint every N epochs when a store is
	// configured; 0 checkpoints only the final epoch.
	CheckpointEvery int
}

// Result summarizes a completed run.
type Result struct {
	Epochs       int
	EpochLosses  []float64
	FinalAUC     *TaskScores
	BestMeanAUC  float64
	BestEpoch    int
	LastCheckKey string
}

// Trainer drives the epoch loop for one model.
type Trainer struct {
	model   *model.GraphConvModel
	opt     nn.Optimizer
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics
	sink    ProgressSink
	store   CheckpointStore
}

// Option customizes a Trainer.
type Option func(*Trainer)

// WithLogger sets the trainer's logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trainer) { t.metrics = m }
}

// WithProgressSink publishes progress events to the given sink.
func WithProgressSink(s ProgressSink) Option {
	return func(t *Trainer) { t.sink = s }
}

// WithCheckpointStore persists periodic checkpoints to the given store.
func WithCheckpointStore(s CheckpointStore) Option {
	return func(t *Trainer) { t.store = s }
}

// NewTrainer builds a trainer for the given model and optimizer.
func NewTrainer(m *model.GraphConvModel, opt nn.Optimizer, cfg Config, opts ...Option) (*Trainer, error) {
	if cfg.Epochs < 1 {
		return nil, errors.New(errors.ErrCodeBadRequest, "training needs at least one epoch")
	}
	if cfg.BatchSize < 1 {
		return nil, errors.New(errors.ErrCodeBatchSizeInvalid, "training needs a positive batch size")
	}

	t := &Trainer{
		model:  m,
		opt:    opt,
		cfg:    cfg,
		logger: logging.NewNopLogger(),
		sink:   nopSink{},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Run trains the model on train, evaluating on valid after every epoch when
// valid is non-nil.  The context cancels between batches; a cancelled run
// returns the error alongside a partial Result.
func (t *Trainer) Run(ctx context.Context, runID string, train, valid *dataset.Featurized) (*Result, error) {
	result := &Result{BestEpoch: -1}

	t.logger.Info("training started",
		logging.String("run_id", runID),
		logging.Int("epochs", t.cfg.Epochs),
		logging.Int("batch_size", t.cfg.BatchSize),
		logging.Int("train_rows", train.Len()),
	)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		epochStart := time.Now()

		batches, err := train.Batches(dataset.BatchOptions{
			BatchSize:   t.cfg.BatchSize,
			Pad:         t.cfg.Pad,
			Shuffle:     true,
			ShuffleSeed: t.cfg.Seed + int64(epoch),
			MaxDegree:   t.cfg.MaxDegree,
		})
		if err != nil {
			return result, err
		}

		epochLoss := 0.0
		for bi, batch := range batches {
			if err := ctx.Err(); err != nil {
				return result, errors.Wrap(err, errors.ErrCodeTrainingFailed, "training cancelled")
			}

			loss, err := t.trainStep(batch)
			if err != nil {
				return result, err
			}
			epochLoss += loss

			if t.metrics != nil {
				t.metrics.TrainingBatchesTotal.Inc()
				t.metrics.TrainingLoss.Set(loss)
			}
			_ = t.sink.PublishProgress(ctx, ProgressEvent{
				RunID: runID, Stage: "batch", Epoch: epoch, Batch: bi,
				Loss: loss, Timestamp: time.Now(),
			})
		}
		epochLoss /= float64(len(batches))
		result.EpochLosses = append(result.EpochLosses, epochLoss)
		result.Epochs = epoch + 1

		meanAUC := 0.0
		if valid != nil {
			scores, err := Evaluate(t.model, valid, t.cfg.BatchSize, t.cfg.MaxDegree)
			if err != nil {
				return result, err
			}
			meanAUC = scores.Mean()
			result.FinalAUC = scores
			if meanAUC > result.BestMeanAUC {
				result.BestMeanAUC = meanAUC
				result.BestEpoch = epoch
			}
			if t.metrics != nil {
				for task, auc := range scores.Scores {
					t.metrics.ValidationAUC.WithLabelValues(task).Set(auc)
				}
			}
		}

		if t.metrics != nil {
			t.metrics.TrainingEpochsTotal.Inc()
			t.metrics.EpochDuration.Observe(time.Since(epochStart).Seconds())
		}
		t.logger.Info("epoch finished",
			logging.String("run_id", runID),
			logging.Int("epoch", epoch),
			logging.Float64("loss", epochLoss),
			logging.Float64("mean_auc", meanAUC),
			logging.Duration("elapsed", time.Since(epochStart)),
		)
		_ = t.sink.PublishProgress(ctx, ProgressEvent{
			RunID: runID, Stage: "epoch", Epoch: epoch,
			Loss: epochLoss, MeanAUC: meanAUC, Timestamp: time.Now(),
		})

		if t.shouldCheckpoint(epoch) {
			key, err := t.checkpoint(ctx, runID, epoch)
			if err != nil {
				return result, err
			}
			result.LastCheckKey = key
		}
	}

	_ = t.sink.PublishProgress(ctx, ProgressEvent{
		RunID: runID, Stage: "done", Epoch: t.cfg.Epochs - 1,
		MeanAUC: result.BestMeanAUC, Timestamp: time.Now(),
	})
	return result, nil
}

// trainStep runs forward, loss, backward, and one optimizer step on a batch.
func (t *Trainer) trainStep(batch *dataset.Batch) (float64, error) {
	logits, err := t.model.Forward(batch.Graph, true)
	if err != nil {
		return 0, err
	}
	loss, grad, err := nn.WeightedSoftmaxCrossEntropy(logits, batch.Labels, batch.Weights)
	if err != nil {
		return 0, err
	}
	t.model.Backward(grad)
	nn.ClipGradients(t.model.Params(), t.cfg.ClipNorm)
	t.opt.Step(t.model.Params())
	return loss, nil
}

func (t *Trainer) shouldCheckpoint(epoch int) bool {
	if t.store == nil {
		return false
	}
	if epoch == t.cfg.Epochs-1 {
		return true
	}
	return t.cfg.CheckpointEvery > 0 && (epoch+1)%t.cfg.CheckpointEvery == 0
}

// checkpoint gob-encodes the model and writes it to the checkpoint store.
func (t *Trainer) checkpoint(ctx context.Context, runID string, epoch int) (string, error) {
	var buf bytes.Buffer
	if err := t.model.Save(&buf); err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/epoch-%03d.gob", runID, epoch)
	if err := t.store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to store checkpoint "+key)
	}
	t.logger.Debug("checkpoint written", logging.String("key", key))
	return key, nil
}

// Evaluate scores the model on a featurized dataset, returning per-task
// ROC-AUC over the labeled rows.
func Evaluate(m *model.GraphConvModel, fz *dataset.Featurized, batchSize, maxDegree int) (*TaskScores, error) {
	batches, err := fz.Batches(dataset.BatchOptions{BatchSize: batchSize, MaxDegree: maxDegree})
	if err != nil {
		return nil, err
	}

	var probRows, labelRows, weightRows [][]float64
	for _, batch := range batches {
		probs, err := m.Predict(batch.Graph)
		if err != nil {
			return nil, err
		}
		rows := batch.Size() - batch.Padded
		for i := 0; i < rows; i++ {
			probRows = append(probRows, append([]float64(nil), probs.RawRowView(i)...))
			labelRows = append(labelRows, append([]float64(nil), batch.Labels.RawRowView(i)...))
			weightRows = append(weightRows, append([]float64(nil), batch.Weights.RawRowView(i)...))
		}
	}

	return MultitaskRocAUC(fz.Dataset.Tasks,
		rowsToDense(probRows), rowsToDense(labelRows), rowsToDense(weightRows))
}

// rowsToDense stacks equal-length rows into a dense matrix.
func rowsToDense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return mat.NewDense(1, 1, nil)
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}
