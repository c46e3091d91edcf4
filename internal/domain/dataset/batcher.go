package dataset

import (
	"context"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/pkg/errors"
)

// GraphCache caches featurized molecule graphs keyed by SMILES, letting
// repeated epochs and repeated runs skip re-featurization.  Implementations
// must treat a miss as (nil, false) rather than an error.
type GraphCache interface {
	Get(ctx context.Context, smiles string) (*graph.MolGraph, bool)
	Set(ctx context.Context, smiles string, g *graph.MolGraph)
}

// Featurized pairs a dataset with the molecule graph of every row.  Rows
// whose SMILES failed to featurize are dropped; Dropped records their
// original indices.
type Featurized struct {
	Dataset *Dataset
	Graphs  []*graph.MolGraph
	Dropped []int
}

// Len returns the number of featurized rows.
func (fz *Featurized) Len() int { return len(fz.Graphs) }

// Featurize converts every dataset row into a molecule graph, consulting the
// cache when one is provided.  Unfeaturizable rows are dropped from both the
// graphs and the label table.
func Featurize(ctx context.Context, d *Dataset, f *molecule.Featurizer, cache GraphCache) (*Featurized, error) {
	var (
		graphs  []*graph.MolGraph
		kept    []int
		dropped []int
	)

	for i, s := range d.SMILES {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "featurization cancelled")
		}

		if cache != nil {
			if g, ok := cache.Get(ctx, s); ok {
				graphs = append(graphs, g)
				kept = append(kept, i)
				continue
			}
		}

		g, err := f.Featurize(s)
		if err != nil {
			dropped = append(dropped, i)
			continue
		}
		if cache != nil {
			cache.Set(ctx, s, g)
		}
		graphs = append(graphs, g)
		kept = append(kept, i)
	}

	if len(graphs) == 0 {
		return nil, errors.New(errors.ErrCodeDatasetEmpty, "no rows survived featurization")
	}

	ds, err := d.Select(kept)
	if err != nil {
		return nil, err
	}
	return &Featurized{Dataset: ds, Graphs: graphs, Dropped: dropped}, nil
}

// Batch is one minibatch ready for the model: the packed graph plus aligned
// label and weight matrices.  Padded counts trailing rows that were added to
// fill the batch; they carry all-zero weights and must be excluded from
// predictions reported to the caller.
type Batch struct {
	Graph   *graph.BatchGraph
	Labels  *mat.Dense
	Weights *mat.Dense
	Padded  int
}

// Size returns the number of molecules in the batch, padding included.
func (b *Batch) Size() int { return b.Graph.NumMolecules }

// BatchOptions controls minibatch generation.
type BatchOptions struct {
	BatchSize int

	// Pad fills the final short batch up to BatchSize by repeating earlier
	// rows with zero weight, so every batch has an identical molecule count.
	Pad bool

	// Shuffle randomizes row order with ShuffleSeed before batching.
	Shuffle     bool
	ShuffleSeed int64

	// MaxDegree caps the atom degree in the packed graphs.
	MaxDegree int
}

// Batches splits the featurized dataset into minibatches.
func (fz *Featurized) Batches(opts BatchOptions) ([]*Batch, error) {
	if opts.BatchSize < 1 {
		return nil, errors.Newf(errors.ErrCodeBatchSizeInvalid, "batch size %d", opts.BatchSize)
	}
	maxDegree := opts.MaxDegree
	if maxDegree < 1 {
		maxDegree = graph.DefaultMaxDegree
	}

	n := fz.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if opts.Shuffle {
		rand.New(rand.NewSource(opts.ShuffleSeed)).Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	numTasks := fz.Dataset.NumTasks()
	var batches []*Batch

	for start := 0; start < n; start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > n {
			end = n
		}
		rows := order[start:end]

		padded := 0
		if opts.Pad && len(rows) < opts.BatchSize {
			padded = opts.BatchSize - len(rows)
			// Repeat rows from the start of the batch as weight-zero filler.
			filler := make([]int, 0, padded)
			for i := 0; i < padded; i++ {
				filler = append(filler, rows[i%len(rows)])
			}
			rows = append(append([]int(nil), rows...), filler...)
		}

		mols := make([]*graph.MolGraph, len(rows))
		labels := mat.NewDense(len(rows), numTasks, nil)
		weights := mat.NewDense(len(rows), numTasks, nil)
		for bi, r := range rows {
			mols[bi] = fz.Graphs[r]
			labels.SetRow(bi, fz.Dataset.Labels.RawRowView(r))
			if bi < len(rows)-padded {
				weights.SetRow(bi, fz.Dataset.Weights.RawRowView(r))
			}
		}

		bg, err := graph.NewBatchGraph(mols, maxDegree)
		if err != nil {
			return nil, err
		}
		batches = append(batches, &Batch{Graph: bg, Labels: labels, Weights: weights, Padded: padded})
	}

	return batches, nil
}
