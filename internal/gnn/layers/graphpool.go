package layers

import (
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
)

// GraphPool replaces each atom's features with the elementwise maximum over
// the atom and its bonded neighbors.  A degree-0 atom passes through
// unchanged.
type GraphPool struct {
	// argmax[i*cols+j] records the winning source row for output (i, j) so
	// that the backward pass can route gradient to it.
	argmax []int
	rows   int
	cols   int
}

// NewGraphPool returns a max-over-neighborhood pooling layer.
func NewGraphPool() *GraphPool { return &GraphPool{} }

// Params returns nil; pooling has no trainable parameters.
func (gp *GraphPool) Params() []*Parameter { return nil }

// Forward computes the neighborhood max for every atom row.
func (gp *GraphPool) Forward(x *mat.Dense, b *graph.BatchGraph) *mat.Dense {
	rows, cols := x.Dims()
	adj := b.NeighborList()

	out := mat.NewDense(rows, cols, nil)
	gp.argmax = make([]int, rows*cols)
	gp.rows, gp.cols = rows, cols

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			best := x.At(i, j)
			bestRow := i
			for _, n := range adj[i] {
				if v := x.At(n, j); v > best {
					best = v
					bestRow = n
				}
			}
			out.Set(i, j, best)
			gp.argmax[i*cols+j] = bestRow
		}
	}
	return out
}

// Backward routes each output gradient entry to the atom row that won the
// max in the forward pass.
func (gp *GraphPool) Backward(dOut *mat.Dense) *mat.Dense {
	dx := mat.NewDense(gp.rows, gp.cols, nil)
	for i := 0; i < gp.rows; i++ {
		for j := 0; j < gp.cols; j++ {
			src := gp.argmax[i*gp.cols+j]
			dx.Set(src, j, dx.At(src, j)+dOut.At(i, j))
		}
	}
	return dx
}
