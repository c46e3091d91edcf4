package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/layers"
	"github.com/molforge/graphchem/pkg/errors"
)

// WeightedSoftmaxCrossEntropy computes the multitask classification loss.
//
// logits is numMolecules × (numTasks·2): two logits per task, laid out task
// by task.  labels is numMolecules × numTasks with values 0 or 1.  weights is
// the same shape; a weight of 0 marks a missing label, which contributes
// neither loss nor gradient.
//
// The returned loss is the weighted mean over labeled (molecule, task) pairs.
// grad has the shape of logits and is already normalized by the total weight,
// so callers backpropagate it directly.
func WeightedSoftmaxCrossEntropy(logits, labels, weights *mat.Dense) (float64, *mat.Dense, error) {
	numMols, logitCols := logits.Dims()
	labelRows, numTasks := labels.Dims()
	weightRows, weightCols := weights.Dims()

	if labelRows != numMols || weightRows != numMols || weightCols != numTasks {
		return 0, nil, errors.Newf(errors.ErrCodeShapeMismatch,
			"loss shapes disagree: logits %dx%d, labels %dx%d, weights %dx%d",
			numMols, logitCols, labelRows, numTasks, weightRows, weightCols)
	}
	if logitCols != numTasks*2 {
		return 0, nil, errors.Newf(errors.ErrCodeShapeMismatch,
			"logits have %d columns, want %d for %d binary tasks", logitCols, numTasks*2, numTasks)
	}

	grad := mat.NewDense(numMols, logitCols, nil)
	totalLoss := 0.0
	totalWeight := 0.0

	for i := 0; i < numMols; i++ {
		for task := 0; task < numTasks; task++ {
			w := weights.At(i, task)
			if w == 0 {
				continue
			}

			c0 := task * 2
			l0, l1 := logits.At(i, c0), logits.At(i, c0+1)

			// Stable log-softmax over the two class logits.
			max := math.Max(l0, l1)
			logSum := max + math.Log(math.Exp(l0-max)+math.Exp(l1-max))
			p0 := math.Exp(l0 - logSum)
			p1 := math.Exp(l1 - logSum)

			y := labels.At(i, task)
			if y > 0.5 {
				totalLoss += -w * (l1 - logSum)
			} else {
				totalLoss += -w * (l0 - logSum)
			}
			totalWeight += w

			// d(loss)/d(logit) = p − onehot(y), scaled by the pair weight.
			target0, target1 := 1.0, 0.0
			if y > 0.5 {
				target0, target1 = 0.0, 1.0
			}
			grad.Set(i, c0, w*(p0-target0))
			grad.Set(i, c0+1, w*(p1-target1))
		}
	}

	if totalWeight == 0 {
		// A batch of entirely missing labels produces zero loss and zero
		// gradient rather than NaN.
		return 0, grad, nil
	}

	totalLoss /= totalWeight
	grad.Scale(1.0/totalWeight, grad)
	return totalLoss, grad, nil
}

// TaskProbabilities converts head logits to per-task positive-class
// probabilities: a numMolecules × numTasks matrix of P(class=1).
func TaskProbabilities(logits *mat.Dense) *mat.Dense {
	numMols, logitCols := logits.Dims()
	numTasks := logitCols / 2

	probs := mat.NewDense(numMols, numTasks, nil)
	for i := 0; i < numMols; i++ {
		for task := 0; task < numTasks; task++ {
			l0, l1 := logits.At(i, task*2), logits.At(i, task*2+1)
			max := math.Max(l0, l1)
			e0 := math.Exp(l0 - max)
			e1 := math.Exp(l1 - max)
			probs.Set(i, task, e1/(e0+e1))
		}
	}
	return probs
}

// ClipGradients scales all parameter gradients down so that their global L2
// norm does not exceed maxNorm.  A non-positive maxNorm disables clipping.
func ClipGradients(params []*layers.Parameter, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	sumSq := 0.0
	for _, p := range params {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j)
				sumSq += g * g
			}
		}
	}
	norm := math.Sqrt(sumSq)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, p := range params {
		p.Grad.Scale(scale, p.Grad)
	}
}
