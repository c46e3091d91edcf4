package layers

import (
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
)

// GatherMode selects the per-molecule reduction of GraphGather.
type GatherMode int

const (
	// GatherSum adds the feature rows of a molecule's atoms.
	GatherSum GatherMode = iota
	// GatherMean averages them, making the readout independent of molecule
	// size.
	GatherMean
)

// GraphGather reduces per-atom features to per-molecule features using the
// batch membership mapping, collapsing numAtoms rows into numMolecules rows.
type GraphGather struct {
	mode GatherMode

	cacheMembership []int
	cacheSizes      []int
	cacheRows       int
}

// NewGraphGather returns a gather layer with the given reduction mode.
func NewGraphGather(mode GatherMode) *GraphGather {
	return &GraphGather{mode: mode}
}

// Params returns nil; gathering has no trainable parameters.
func (gg *GraphGather) Params() []*Parameter { return nil }

// Forward reduces x (numAtoms × features) to a numMolecules × features
// matrix.
func (gg *GraphGather) Forward(x *mat.Dense, b *graph.BatchGraph) *mat.Dense {
	rows, cols := x.Dims()

	out := mat.NewDense(b.NumMolecules, cols, nil)
	for i := 0; i < rows; i++ {
		addRowInto(out, b.Membership[i], x, i)
	}

	sizes := b.MoleculeSizes()
	if gg.mode == GatherMean {
		for m := 0; m < b.NumMolecules; m++ {
			if sizes[m] == 0 {
				continue
			}
			inv := 1.0 / float64(sizes[m])
			for j := 0; j < cols; j++ {
				out.Set(m, j, out.At(m, j)*inv)
			}
		}
	}

	gg.cacheMembership = b.Membership
	gg.cacheSizes = sizes
	gg.cacheRows = rows
	return out
}

// Backward broadcasts the per-molecule gradient back to every member atom.
func (gg *GraphGather) Backward(dOut *mat.Dense) *mat.Dense {
	_, cols := dOut.Dims()
	dx := mat.NewDense(gg.cacheRows, cols, nil)

	for i := 0; i < gg.cacheRows; i++ {
		m := gg.cacheMembership[i]
		scale := 1.0
		if gg.mode == GatherMean && gg.cacheSizes[m] > 0 {
			scale = 1.0 / float64(gg.cacheSizes[m])
		}
		for j := 0; j < cols; j++ {
			dx.Set(i, j, dOut.At(m, j)*scale)
		}
	}
	return dx
}
