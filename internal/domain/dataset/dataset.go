// Package dataset loads molecular property CSV files and turns them into
// featurized, batched training data.
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/pkg/errors"
)

// Dataset holds a molecular property table: one SMILES string per row, one
// label column per task.  Weights carry the labeled-ness of every cell: a
// weight of 0 marks a missing label, which is skipped by both the loss and
// the evaluation metrics.
type Dataset struct {
	Tasks  []string
	SMILES []string

	// Labels and Weights are len(SMILES) × len(Tasks).
	Labels  *mat.Dense
	Weights *mat.Dense
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.SMILES) }

// NumTasks returns the number of label columns.
func (d *Dataset) NumTasks() int { return len(d.Tasks) }

// Select returns a new Dataset containing the given rows, in order.
func (d *Dataset) Select(rows []int) (*Dataset, error) {
	n := len(rows)
	out := &Dataset{
		Tasks:   d.Tasks,
		SMILES:  make([]string, n),
		Labels:  mat.NewDense(max(n, 1), len(d.Tasks), nil),
		Weights: mat.NewDense(max(n, 1), len(d.Tasks), nil),
	}
	for i, r := range rows {
		if r < 0 || r >= d.Len() {
			return nil, errors.Newf(errors.ErrCodeBadRequest,
				"row index %d out of range for dataset of %d rows", r, d.Len())
		}
		out.SMILES[i] = d.SMILES[r]
		out.Labels.SetRow(i, d.Labels.RawRowView(r))
		out.Weights.SetRow(i, d.Weights.RawRowView(r))
	}
	return out, nil
}

// LabeledCount returns, per task, how many rows carry a non-zero weight.
func (d *Dataset) LabeledCount() []int {
	counts := make([]int, d.NumTasks())
	for i := 0; i < d.Len(); i++ {
		for t := 0; t < d.NumTasks(); t++ {
			if d.Weights.At(i, t) != 0 {
				counts[t]++
			}
		}
	}
	return counts
}
