package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
)

// GraphConv is a degree-partitioned graph convolution.  Every atom receives a
// self transform; atoms of degree d additionally receive a transform of the
// sum of their d neighbors' features, with separate weights per degree.
//
// The degree-sorted batch layout makes the neighbor aggregation a sequence of
// fixed-shape gathers: for each degree d, the (size_d × d) adjacency table
// selects neighbor rows, which are summed and multiplied through W[d].
type GraphConv struct {
	inDim     int
	outDim    int
	maxDegree int

	selfW *Parameter
	selfB *Parameter
	degW  []*Parameter // index 1..maxDegree; index 0 unused
	degB  []*Parameter

	// Forward cache for the backward pass.
	cacheInput *mat.Dense
	cacheBatch *graph.BatchGraph
	cacheSums  []*mat.Dense // per-degree neighbor sums
}

// NewGraphConv constructs a graph convolution from inDim to outDim features
// supporting atom degrees up to maxDegree.
func NewGraphConv(inDim, outDim, maxDegree int, rng *rand.Rand) *GraphConv {
	gc := &GraphConv{
		inDim:     inDim,
		outDim:    outDim,
		maxDegree: maxDegree,
		selfW:     newParameter("graphconv/self_w", inDim, outDim, scaledNormal(rng, inDim)),
		selfB:     newParameter("graphconv/self_b", 1, outDim, nil),
		degW:      make([]*Parameter, maxDegree+1),
		degB:      make([]*Parameter, maxDegree+1),
	}
	for d := 1; d <= maxDegree; d++ {
		gc.degW[d] = newParameter(fmt.Sprintf("graphconv/deg%d_w", d),
			inDim, outDim, scaledNormal(rng, inDim))
		gc.degB[d] = newParameter(fmt.Sprintf("graphconv/deg%d_b", d), 1, outDim, nil)
	}
	return gc
}

// OutDim returns the output feature width.
func (gc *GraphConv) OutDim() int { return gc.outDim }

// Params returns all trainable parameters of the layer.
func (gc *GraphConv) Params() []*Parameter {
	params := []*Parameter{gc.selfW, gc.selfB}
	for d := 1; d <= gc.maxDegree; d++ {
		params = append(params, gc.degW[d], gc.degB[d])
	}
	return params
}

// Forward computes the convolution over the batch.  x is numAtoms × inDim in
// the batch's degree-sorted row order.
func (gc *GraphConv) Forward(x *mat.Dense, b *graph.BatchGraph) *mat.Dense {
	numAtoms, _ := x.Dims()

	out := mat.NewDense(numAtoms, gc.outDim, nil)
	out.Mul(x, gc.selfW.Value)
	addRowVector(out, gc.selfB.Value)

	gc.cacheInput = x
	gc.cacheBatch = b
	gc.cacheSums = make([]*mat.Dense, gc.maxDegree+1)

	for d := 1; d <= gc.maxDegree && d <= b.MaxDegree; d++ {
		sl := b.DegreeSlice[d]
		if sl.Size == 0 {
			continue
		}

		// Sum the d neighbor rows of every degree-d atom.
		sums := mat.NewDense(sl.Size, gc.inDim, nil)
		for ri, nbrs := range b.DegreeAdj[d] {
			for _, n := range nbrs {
				addRowInto(sums, ri, x, n)
			}
		}
		gc.cacheSums[d] = sums

		block := mat.NewDense(sl.Size, gc.outDim, nil)
		block.Mul(sums, gc.degW[d].Value)
		addRowVector(block, gc.degB[d].Value)

		for ri := 0; ri < sl.Size; ri++ {
			addRowInto(out, sl.Start+ri, block, ri)
		}
	}

	return out
}

// Backward propagates the gradient dOut (numAtoms × outDim) through the
// layer, accumulating parameter gradients and returning the gradient with
// respect to the input features.
func (gc *GraphConv) Backward(dOut *mat.Dense) *mat.Dense {
	x := gc.cacheInput
	b := gc.cacheBatch
	numAtoms, _ := x.Dims()

	// Self path.
	var dSelfW mat.Dense
	dSelfW.Mul(x.T(), dOut)
	gc.selfW.Grad.Add(gc.selfW.Grad, &dSelfW)
	columnSumInto(gc.selfB.Grad, dOut)

	dx := mat.NewDense(numAtoms, gc.inDim, nil)
	dx.Mul(dOut, gc.selfW.Value.T())

	// Per-degree neighbor paths.
	for d := 1; d <= gc.maxDegree && d <= b.MaxDegree; d++ {
		sl := b.DegreeSlice[d]
		if sl.Size == 0 {
			continue
		}
		sums := gc.cacheSums[d]

		dBlock := dOut.Slice(sl.Start, sl.Start+sl.Size, 0, gc.outDim).(*mat.Dense)

		var dW mat.Dense
		dW.Mul(sums.T(), dBlock)
		gc.degW[d].Grad.Add(gc.degW[d].Grad, &dW)
		columnSumInto(gc.degB[d].Grad, dBlock)

		var dSums mat.Dense
		dSums.Mul(dBlock, gc.degW[d].Value.T())
		for ri, nbrs := range b.DegreeAdj[d] {
			for _, n := range nbrs {
				addRowInto(dx, n, &dSums, ri)
			}
		}
	}

	return dx
}
