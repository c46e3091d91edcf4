package layers

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer: y = x·W + b.
type Dense struct {
	inDim  int
	outDim int

	w *Parameter
	b *Parameter

	cacheInput *mat.Dense
}

// NewDense constructs a fully connected layer with Glorot-initialized
// weights and zero bias.
func NewDense(name string, inDim, outDim int, rng *rand.Rand) *Dense {
	return &Dense{
		inDim:  inDim,
		outDim: outDim,
		w:      newParameter(name+"/w", inDim, outDim, glorotUniform(rng, inDim, outDim)),
		b:      newParameter(name+"/b", 1, outDim, nil),
	}
}

// OutDim returns the output width.
func (d *Dense) OutDim() int { return d.outDim }

// Params returns the layer's weight and bias.
func (d *Dense) Params() []*Parameter { return []*Parameter{d.w, d.b} }

// Forward computes x·W + b.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, d.outDim, nil)
	out.Mul(x, d.w.Value)
	addRowVector(out, d.b.Value)
	d.cacheInput = x
	return out
}

// Backward accumulates parameter gradients and returns the input gradient.
func (d *Dense) Backward(dOut *mat.Dense) *mat.Dense {
	var dW mat.Dense
	dW.Mul(d.cacheInput.T(), dOut)
	d.w.Grad.Add(d.w.Grad, &dW)
	columnSumInto(d.b.Grad, dOut)

	rows, _ := dOut.Dims()
	dx := mat.NewDense(rows, d.inDim, nil)
	dx.Mul(dOut, d.w.Value.T())
	return dx
}
