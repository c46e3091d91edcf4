package layers

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReLU is the rectified linear activation.
type ReLU struct {
	cacheInput *mat.Dense
}

// NewReLU returns a ReLU activation layer.
func NewReLU() *ReLU { return &ReLU{} }

// Params returns nil; activations have no trainable parameters.
func (r *ReLU) Params() []*Parameter { return nil }

// Forward applies max(0, x) elementwise.
func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := x.At(i, j); v > 0 {
				out.Set(i, j, v)
			}
		}
	}
	r.cacheInput = x
	return out
}

// Backward zeroes gradient where the input was non-positive.
func (r *ReLU) Backward(dOut *mat.Dense) *mat.Dense {
	rows, cols := dOut.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if r.cacheInput.At(i, j) > 0 {
				dx.Set(i, j, dOut.At(i, j))
			}
		}
	}
	return dx
}

// Tanh is the hyperbolic tangent activation.
type Tanh struct {
	cacheOutput *mat.Dense
}

// NewTanh returns a tanh activation layer.
func NewTanh() *Tanh { return &Tanh{} }

// Params returns nil.
func (t *Tanh) Params() []*Parameter { return nil }

// Forward applies tanh elementwise.
func (t *Tanh) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, math.Tanh(x.At(i, j)))
		}
	}
	t.cacheOutput = out
	return out
}

// Backward multiplies by 1 - tanh², using the cached forward output.
func (t *Tanh) Backward(dOut *mat.Dense) *mat.Dense {
	rows, cols := dOut.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			y := t.cacheOutput.At(i, j)
			dx.Set(i, j, dOut.At(i, j)*(1-y*y))
		}
	}
	return dx
}

// Sigmoid is the logistic activation.
type Sigmoid struct {
	cacheOutput *mat.Dense
}

// NewSigmoid returns a sigmoid activation layer.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

// Params returns nil.
func (s *Sigmoid) Params() []*Parameter { return nil }

// Forward applies 1/(1+exp(-x)) elementwise.
func (s *Sigmoid) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, 1/(1+math.Exp(-x.At(i, j))))
		}
	}
	s.cacheOutput = out
	return out
}

// Backward multiplies by y(1-y), using the cached forward output.
func (s *Sigmoid) Backward(dOut *mat.Dense) *mat.Dense {
	rows, cols := dOut.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			y := s.cacheOutput.At(i, j)
			dx.Set(i, j, dOut.At(i, j)*y*(1-y))
		}
	}
	return dx
}

// Identity passes values through unchanged.  Useful as the final activation
// when a head produces raw scores.
type Identity struct{}

// NewIdentity returns an identity activation layer.
func NewIdentity() *Identity { return &Identity{} }

// Params returns nil.
func (Identity) Params() []*Parameter { return nil }

// Forward returns x unchanged.
func (Identity) Forward(x *mat.Dense) *mat.Dense { return x }

// Backward returns the upstream gradient unchanged.
func (Identity) Backward(dOut *mat.Dense) *mat.Dense { return dOut }

// SoftmaxRows applies a numerically stable softmax to each row of x,
// returning a new matrix.  Used by the classification head and the loss.
func SoftmaxRows(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		max := math.Inf(-1)
		for j := 0; j < cols; j++ {
			if v := x.At(i, j); v > max {
				max = v
			}
		}
		sum := 0.0
		for j := 0; j < cols; j++ {
			e := math.Exp(x.At(i, j) - max)
			out.Set(i, j, e)
			sum += e
		}
		for j := 0; j < cols; j++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}
