// Package layers implements the neural network layers of the graph
// convolution model.  Every layer computes its forward pass on gonum dense
// matrices and provides an explicit backward pass that accumulates parameter
// gradients; there is no autodiff.
package layers

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Parameter is a trainable tensor together with its accumulated gradient.
type Parameter struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// ZeroGrad resets the accumulated gradient to zero.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

func newParameter(name string, rows, cols int, init func(r, c int) float64) *Parameter {
	value := mat.NewDense(rows, cols, nil)
	if init != nil {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				value.Set(i, j, init(i, j))
			}
		}
	}
	return &Parameter{
		Name:  name,
		Value: value,
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// glorotUniform returns an initializer drawing from U(-limit, limit) with
// limit = sqrt(6 / (fanIn + fanOut)).
func glorotUniform(rng *rand.Rand, fanIn, fanOut int) func(r, c int) float64 {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return func(_, _ int) float64 {
		return (rng.Float64()*2 - 1) * limit
	}
}

// scaledNormal returns an initializer drawing from N(0, 1/fanIn).  Used for
// the per-degree convolution weights, where many summed neighbor terms make
// the wider Glorot limits too hot.
func scaledNormal(rng *rand.Rand, fanIn int) func(r, c int) float64 {
	stddev := 1.0 / math.Sqrt(float64(fanIn))
	return func(_, _ int) float64 {
		return rng.NormFloat64() * stddev
	}
}

// addRowVector adds the 1×cols bias row b to every row of m in place.
func addRowVector(m *mat.Dense, b *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, m.At(i, j)+b.At(0, j))
		}
	}
}

// columnSumInto accumulates the column sums of m into the 1×cols target.
func columnSumInto(target *mat.Dense, m *mat.Dense) {
	rows, cols := m.Dims()
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += m.At(i, j)
		}
		target.Set(0, j, target.At(0, j)+sum)
	}
}

// addRowInto adds src row srcRow into dst row dstRow.
func addRowInto(dst *mat.Dense, dstRow int, src *mat.Dense, srcRow int) {
	_, cols := dst.Dims()
	for j := 0; j < cols; j++ {
		dst.Set(dstRow, j, dst.At(dstRow, j)+src.At(srcRow, j))
	}
}
