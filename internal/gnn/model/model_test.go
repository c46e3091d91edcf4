package model

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/internal/gnn/nn"
)

func testConfig() Config {
	return Config{
		NumTasks:     2,
		NumFeatures:  molecule.NumAtomFeatures,
		ConvChannels: []int{16, 16},
		DenseSize:    8,
		MaxDegree:    6,
		Seed:         42,
	}
}

func testModelBatch(t *testing.T) *graph.BatchGraph {
	t.Helper()
	f := molecule.NewFeaturizer(6)
	graphs, failed, err := f.FeaturizeAll([]string{"CCO", "c1ccccc1", "CC(=O)O", "C"})
	require.NoError(t, err)
	require.Empty(t, failed)

	b, err := graph.NewBatchGraph(graphs, 6)
	require.NoError(t, err)
	return b
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.NumTasks = 0
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.ConvChannels = nil
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.DropoutRate = 1.0
	assert.Error(t, cfg.Validate())
}

func TestForward_Shapes(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	b := testModelBatch(t)

	logits, err := m.Forward(b, false)
	require.NoError(t, err)

	rows, cols := logits.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols) // 2 tasks × 2 classes
}

func TestForward_FeatureWidthMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.NumFeatures = 10
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.Forward(testModelBatch(t), false)
	assert.Error(t, err)
}

func TestForward_Deterministic(t *testing.T) {
	b := testModelBatch(t)

	m1, err := New(testConfig())
	require.NoError(t, err)
	m2, err := New(testConfig())
	require.NoError(t, err)

	l1, err := m1.Forward(b, false)
	require.NoError(t, err)
	l2, err := m2.Forward(b, false)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(l1, l2, 1e-15),
		"same seed must give identical outputs")
}

func TestPredict_Probabilities(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	probs, err := m.Predict(testModelBatch(t))
	require.NoError(t, err)

	rows, cols := probs.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := probs.At(i, j)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}
	}
}

func TestEmbed(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	emb, err := m.Embed(testModelBatch(t))
	require.NoError(t, err)

	rows, cols := emb.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, m.EmbeddingDim(), cols)
}

func TestTraining_ReducesLoss(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	b := testModelBatch(t)

	labels := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
		0, 0,
	})
	weights := mat.NewDense(4, 2, []float64{
		1, 1,
		1, 1,
		1, 0, // one missing label
		1, 1,
	})

	opt := nn.NewAdam(0.01)

	logits, err := m.Forward(b, true)
	require.NoError(t, err)
	initialLoss, grad, err := nn.WeightedSoftmaxCrossEntropy(logits, labels, weights)
	require.NoError(t, err)
	m.Backward(grad)
	opt.Step(m.Params())

	var finalLoss float64
	for step := 0; step < 50; step++ {
		logits, err = m.Forward(b, true)
		require.NoError(t, err)
		finalLoss, grad, err = nn.WeightedSoftmaxCrossEntropy(logits, labels, weights)
		require.NoError(t, err)
		m.Backward(grad)
		opt.Step(m.Params())
	}

	assert.Less(t, finalLoss, initialLoss,
		"overfitting four molecules must reduce the loss")
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	b := testModelBatch(t)

	before, err := m.Forward(b, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))

	restored, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Config(), restored.Config())

	after, err := restored.Forward(b, false)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(before, after, 1e-15),
		"restored model must reproduce the original outputs")
}

func TestLoad_RejectsForeignData(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	// A snapshot without the format header is not a checkpoint.
	var buf bytes.Buffer
	s := m.Snapshot()
	s.Magic = ""
	require.NoError(t, gob.NewEncoder(&buf).Encode(s))
	_, err = Load(&buf)
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownVersion(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	s := m.Snapshot()
	s.Version = 99
	require.NoError(t, gob.NewEncoder(&buf).Encode(s))
	_, err = Load(&buf)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestRestore_ArchitectureMismatch(t *testing.T) {
	m1, err := New(testConfig())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.DenseSize = 4
	m2, err := New(cfg)
	require.NoError(t, err)

	err = m2.Restore(m1.Snapshot())
	assert.Error(t, err)
}
