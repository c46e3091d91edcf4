package layers

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout randomly zeroes activations during training with probability rate,
// scaling survivors by 1/(1-rate) so that expected activations match
// inference.  With Training false, or rate 0, it is the identity.
type Dropout struct {
	rate     float64
	rng      *rand.Rand
	Training bool

	cacheMask *mat.Dense
}

// NewDropout returns a dropout layer with the given drop probability.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{rate: rate, rng: rng}
}

// Params returns nil.
func (d *Dropout) Params() []*Parameter { return nil }

// Forward applies the dropout mask in training mode.
func (d *Dropout) Forward(x *mat.Dense) *mat.Dense {
	if !d.Training || d.rate <= 0 {
		d.cacheMask = nil
		return x
	}

	rows, cols := x.Dims()
	scale := 1.0 / (1.0 - d.rate)
	mask := mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if d.rng.Float64() >= d.rate {
				mask.Set(i, j, scale)
				out.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	d.cacheMask = mask
	return out
}

// Backward applies the same mask to the incoming gradient.
func (d *Dropout) Backward(dOut *mat.Dense) *mat.Dense {
	if d.cacheMask == nil {
		return dOut
	}
	rows, cols := dOut.Dims()
	dx := mat.NewDense(rows, cols, nil)
	dx.MulElem(dOut, d.cacheMask)
	return dx
}
