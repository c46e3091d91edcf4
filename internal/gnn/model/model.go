// Package model assembles the graph convolution layers into the multitask
// molecular property prediction network and handles checkpoint
// serialization.
package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/internal/gnn/layers"
	"github.com/molforge/graphchem/internal/gnn/nn"
	"github.com/molforge/graphchem/pkg/errors"
)

// Config describes the network architecture.
type Config struct {
	NumTasks     int
	NumFeatures  int
	ConvChannels []int
	DenseSize    int
	MaxDegree    int
	DropoutRate  float64
	Seed         int64
}

// Validate checks the architecture parameters.
func (c Config) Validate() error {
	if c.NumTasks < 1 {
		return errors.New(errors.ErrCodeBadRequest, "model needs at least one task")
	}
	if c.NumFeatures < 1 {
		return errors.New(errors.ErrCodeBadRequest, "model needs a positive feature width")
	}
	if len(c.ConvChannels) == 0 {
		return errors.New(errors.ErrCodeBadRequest, "model needs at least one conv layer")
	}
	for i, ch := range c.ConvChannels {
		if ch < 1 {
			return errors.Newf(errors.ErrCodeBadRequest, "conv layer %d has width %d", i, ch)
		}
	}
	if c.DenseSize < 1 {
		return errors.New(errors.ErrCodeBadRequest, "model needs a positive dense size")
	}
	if c.MaxDegree < 1 {
		return errors.New(errors.ErrCodeBadRequest, "model needs a positive max degree")
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return errors.Newf(errors.ErrCodeBadRequest, "dropout rate %v outside [0, 1)", c.DropoutRate)
	}
	return nil
}

// convBlock is one GraphConv → ReLU → GraphPool stage.
type convBlock struct {
	conv *layers.GraphConv
	relu *layers.ReLU
	pool *layers.GraphPool
}

// GraphConvModel is the multitask graph convolution network:
//
//	[GraphConv → ReLU → GraphPool] × len(ConvChannels)
//	Dense(DenseSize) → ReLU → Dropout           (per atom)
//	GraphGather(mean) → Tanh                    (per molecule)
//	Dense(NumTasks·2)                           (classification head)
//
// Forward caches per-layer state, so a model instance must not be shared
// across concurrent Forward/Backward calls.
type GraphConvModel struct {
	cfg Config

	blocks  []*convBlock
	dense   *layers.Dense
	relu    *layers.ReLU
	dropout *layers.Dropout
	gather  *layers.GraphGather
	tanh    *layers.Tanh
	head    *layers.Dense

	params []*layers.Parameter

	// lastEmbedding holds the gather+tanh output of the most recent Forward.
	lastEmbedding *mat.Dense
}

// New builds a GraphConvModel with weights initialized from cfg.Seed.
func New(cfg Config) (*GraphConvModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &GraphConvModel{cfg: cfg}
	in := cfg.NumFeatures
	for _, ch := range cfg.ConvChannels {
		m.blocks = append(m.blocks, &convBlock{
			conv: layers.NewGraphConv(in, ch, cfg.MaxDegree, rng),
			relu: layers.NewReLU(),
			pool: layers.NewGraphPool(),
		})
		in = ch
	}
	m.dense = layers.NewDense("dense", in, cfg.DenseSize, rng)
	m.relu = layers.NewReLU()
	m.dropout = layers.NewDropout(cfg.DropoutRate, rng)
	m.gather = layers.NewGraphGather(layers.GatherMean)
	m.tanh = layers.NewTanh()
	m.head = layers.NewDense("head", cfg.DenseSize, cfg.NumTasks*2, rng)

	for _, b := range m.blocks {
		m.params = append(m.params, b.conv.Params()...)
	}
	m.params = append(m.params, m.dense.Params()...)
	m.params = append(m.params, m.head.Params()...)

	return m, nil
}

// Config returns the architecture the model was built with.
func (m *GraphConvModel) Config() Config { return m.cfg }

// Params returns all trainable parameters in a stable order.
func (m *GraphConvModel) Params() []*layers.Parameter { return m.params }

// NumTasks returns the number of prediction tasks.
func (m *GraphConvModel) NumTasks() int { return m.cfg.NumTasks }

// Forward runs the network on a batch and returns the head logits, a
// numMolecules × (NumTasks·2) matrix.  training enables dropout.
func (m *GraphConvModel) Forward(b *graph.BatchGraph, training bool) (*mat.Dense, error) {
	if b.NumFeatures() != m.cfg.NumFeatures {
		return nil, errors.Newf(errors.ErrCodeShapeMismatch,
			"batch has feature width %d, model expects %d", b.NumFeatures(), m.cfg.NumFeatures)
	}

	x := b.Atoms
	for _, blk := range m.blocks {
		x = blk.conv.Forward(x, b)
		x = blk.relu.Forward(x)
		x = blk.pool.Forward(x, b)
	}

	x = m.dense.Forward(x)
	x = m.relu.Forward(x)
	m.dropout.Training = training
	x = m.dropout.Forward(x)

	x = m.gather.Forward(x, b)
	x = m.tanh.Forward(x)
	m.lastEmbedding = x

	return m.head.Forward(x), nil
}

// Backward propagates the loss gradient dLogits through the network,
// accumulating gradients on every parameter.  Must follow a Forward call on
// the same batch.
func (m *GraphConvModel) Backward(dLogits *mat.Dense) {
	g := m.head.Backward(dLogits)
	g = m.tanh.Backward(g)
	g = m.gather.Backward(g)
	g = m.dropout.Backward(g)
	g = m.relu.Backward(g)
	g = m.dense.Backward(g)

	for i := len(m.blocks) - 1; i >= 0; i-- {
		blk := m.blocks[i]
		g = blk.pool.Backward(g)
		g = blk.relu.Backward(g)
		g = blk.conv.Backward(g)
	}
}

// Predict runs inference and returns per-task positive-class probabilities,
// a numMolecules × NumTasks matrix.
func (m *GraphConvModel) Predict(b *graph.BatchGraph) (*mat.Dense, error) {
	logits, err := m.Forward(b, false)
	if err != nil {
		return nil, err
	}
	return nn.TaskProbabilities(logits), nil
}

// Embed returns the per-molecule embedding: the gather output after tanh, a
// numMolecules × DenseSize matrix.  This is the representation exported to
// the vector index.
func (m *GraphConvModel) Embed(b *graph.BatchGraph) (*mat.Dense, error) {
	if _, err := m.Forward(b, false); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(m.lastEmbedding)
	return out, nil
}

// EmbeddingDim returns the width of the molecule embedding.
func (m *GraphConvModel) EmbeddingDim() int { return m.cfg.DenseSize }

// String describes the architecture for logs.
func (m *GraphConvModel) String() string {
	return fmt.Sprintf("GraphConvModel{tasks=%d conv=%v dense=%d maxDegree=%d}",
		m.cfg.NumTasks, m.cfg.ConvChannels, m.cfg.DenseSize, m.cfg.MaxDegree)
}
