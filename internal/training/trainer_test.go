package training

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/internal/domain/dataset"
	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/gnn/nn"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
)

const trainCSV = `smiles,tox
CCO,0
c1ccccc1,1
CC(=O)O,0
CCN,1
CCCC,0
c1ccncc1,1
CCOC,0
CC(C)O,1
`

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (s *recordingSink) PublishProgress(_ context.Context, ev ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) stages() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, ev := range s.events {
		counts[ev.Stage]++
	}
	return counts
}

func featurizedFixture(t *testing.T) *dataset.Featurized {
	t.Helper()
	d, err := dataset.ReadCSV(strings.NewReader(trainCSV), dataset.LoadOptions{})
	require.NoError(t, err)
	fz, err := dataset.Featurize(context.Background(), d, molecule.NewFeaturizer(0), nil)
	require.NoError(t, err)
	return fz
}

func fixtureModel(t *testing.T) *model.GraphConvModel {
	t.Helper()
	m, err := model.New(model.Config{
		NumTasks:     1,
		NumFeatures:  molecule.NumAtomFeatures,
		ConvChannels: []int{8},
		DenseSize:    4,
		MaxDegree:    6,
		Seed:         1,
	})
	require.NoError(t, err)
	return m
}

func TestTrainer_Run(t *testing.T) {
	fz := featurizedFixture(t)
	m := fixtureModel(t)
	sink := &recordingSink{}
	mets := metrics.New()
	store, err := NewLocalCheckpointStore(t.TempDir())
	require.NoError(t, err)

	tr, err := NewTrainer(m, nn.NewAdam(0.01), Config{
		Epochs:    3,
		BatchSize: 4,
		Pad:       true,
		Seed:      5,
		MaxDegree: 6,
	}, WithProgressSink(sink), WithMetrics(mets), WithCheckpointStore(store))
	require.NoError(t, err)

	result, err := tr.Run(context.Background(), "run-1", fz, fz)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Epochs)
	assert.Len(t, result.EpochLosses, 3)
	require.NotNil(t, result.FinalAUC)
	assert.Contains(t, result.FinalAUC.Scores, "tox")

	// 2 batches per epoch × 3 epochs, plus per-epoch and final events.
	stages := sink.stages()
	assert.Equal(t, 6, stages["batch"])
	assert.Equal(t, 3, stages["epoch"])
	assert.Equal(t, 1, stages["done"])

	// The final epoch is always checkpointed, and the bytes round-trip.
	require.NotEmpty(t, result.LastCheckKey)
	data, err := store.Get(context.Background(), result.LastCheckKey)
	require.NoError(t, err)
	restored, err := model.Load(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, m.Config(), restored.Config())
}

func TestTrainer_LossDecreases(t *testing.T) {
	fz := featurizedFixture(t)
	m := fixtureModel(t)

	tr, err := NewTrainer(m, nn.NewAdam(0.01), Config{
		Epochs:    20,
		BatchSize: 8,
		Seed:      5,
		MaxDegree: 6,
	})
	require.NoError(t, err)

	result, err := tr.Run(context.Background(), "run-loss", fz, nil)
	require.NoError(t, err)

	first := result.EpochLosses[0]
	last := result.EpochLosses[len(result.EpochLosses)-1]
	assert.Less(t, last, first, "loss must decrease while overfitting 8 molecules")
}

func TestTrainer_Cancellation(t *testing.T) {
	fz := featurizedFixture(t)
	tr, err := NewTrainer(fixtureModel(t), nn.NewSGD(0.01), Config{
		Epochs:    100,
		BatchSize: 2,
		Seed:      5,
		MaxDegree: 6,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tr.Run(ctx, "run-cancel", fz, nil)
	assert.Error(t, err)
}

func TestTrainer_CheckpointEvery(t *testing.T) {
	fz := featurizedFixture(t)
	store, err := NewLocalCheckpointStore(t.TempDir())
	require.NoError(t, err)

	tr, err := NewTrainer(fixtureModel(t), nn.NewSGD(0.01), Config{
		Epochs:          4,
		BatchSize:       8,
		Seed:            5,
		MaxDegree:       6,
		CheckpointEvery: 2,
	}, WithCheckpointStore(store))
	require.NoError(t, err)

	_, err = tr.Run(context.Background(), "run-ckpt", fz, nil)
	require.NoError(t, err)

	// Epochs 1 and 3 (0-based) hit the interval; epoch 3 is also final.
	_, err = store.Get(context.Background(), "run-ckpt/epoch-001.gob")
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), "run-ckpt/epoch-003.gob")
	assert.NoError(t, err)
}

func TestNewTrainer_Validation(t *testing.T) {
	m := fixtureModel(t)

	_, err := NewTrainer(m, nn.NewSGD(0.1), Config{Epochs: 0, BatchSize: 4})
	assert.Error(t, err)

	_, err = NewTrainer(m, nn.NewSGD(0.1), Config{Epochs: 1, BatchSize: 0})
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	fz := featurizedFixture(t)
	m := fixtureModel(t)

	scores, err := Evaluate(m, fz, 4, 6)
	require.NoError(t, err)
	require.Contains(t, scores.Scores, "tox")
	assert.GreaterOrEqual(t, scores.Scores["tox"], 0.0)
	assert.LessOrEqual(t, scores.Scores["tox"], 1.0)
}

func TestLocalCheckpointStore(t *testing.T) {
	store, err := NewLocalCheckpointStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "run/epoch-000.gob", []byte("payload")))

	data, err := store.Get(ctx, "run/epoch-000.gob")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}
