// Package nn provides the optimization and loss machinery shared by the
// graph convolution model: SGD and Adam parameter updates and the
// label-weighted softmax cross-entropy used for multitask classification.
package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/layers"
	"github.com/molforge/graphchem/pkg/errors"
)

// Optimizer applies one update step to a set of parameters using their
// accumulated gradients, then clears the gradients.
type Optimizer interface {
	Step(params []*layers.Parameter)
}

// New constructs an optimizer by name ("sgd" or "adam").
func New(name string, learningRate float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return NewSGD(learningRate), nil
	case "adam":
		return NewAdam(learningRate), nil
	default:
		return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown optimizer %q", name)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SGD
// ─────────────────────────────────────────────────────────────────────────────

// SGD is plain stochastic gradient descent.
type SGD struct {
	lr float64
}

// NewSGD returns an SGD optimizer with the given learning rate.
func NewSGD(lr float64) *SGD { return &SGD{lr: lr} }

// Step applies p ← p − lr·∇p for each parameter and zeroes the gradients.
func (s *SGD) Step(params []*layers.Parameter) {
	for _, p := range params {
		rows, cols := p.Value.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				p.Value.Set(i, j, p.Value.At(i, j)-s.lr*p.Grad.At(i, j))
			}
		}
		p.ZeroGrad()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Adam
// ─────────────────────────────────────────────────────────────────────────────

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates.
type Adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64

	t int
	m map[*layers.Parameter]*mat.Dense
	v map[*layers.Parameter]*mat.Dense
}

// NewAdam returns an Adam optimizer with standard hyperparameters
// (β1=0.9, β2=0.999, ε=1e-8).
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		m:       make(map[*layers.Parameter]*mat.Dense),
		v:       make(map[*layers.Parameter]*mat.Dense),
	}
}

// Step applies one Adam update and zeroes the gradients.  Moment buffers are
// allocated lazily per parameter on first use.
func (a *Adam) Step(params []*layers.Parameter) {
	a.t++
	correction1 := 1 - math.Pow(a.beta1, float64(a.t))
	correction2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range params {
		rows, cols := p.Value.Dims()
		m, ok := a.m[p]
		if !ok {
			m = mat.NewDense(rows, cols, nil)
			a.m[p] = m
		}
		v, ok := a.v[p]
		if !ok {
			v = mat.NewDense(rows, cols, nil)
			a.v[p] = v
		}

		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j)
				mij := a.beta1*m.At(i, j) + (1-a.beta1)*g
				vij := a.beta2*v.At(i, j) + (1-a.beta2)*g*g
				m.Set(i, j, mij)
				v.Set(i, j, vij)

				mHat := mij / correction1
				vHat := vij / correction2
				p.Value.Set(i, j, p.Value.At(i, j)-a.lr*mHat/(math.Sqrt(vHat)+a.epsilon))
			}
		}
		p.ZeroGrad()
	}
}
