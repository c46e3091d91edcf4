// Package training drives model optimization and evaluation: the epoch loop,
// checkpointing, progress events, and the ROC-AUC metric used to score
// multitask classifiers.
package training

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/pkg/errors"
)

// RocAUC computes the area under the ROC curve from scores and binary
// labels using the Mann-Whitney rank statistic.  Tied scores receive their
// average rank, so constant scores yield exactly 0.5.
//
// Returns an error when the labels contain only one class; AUC is undefined
// there.
func RocAUC(scores, labels []float64) (float64, error) {
	if len(scores) != len(labels) {
		return 0, errors.Newf(errors.ErrCodeShapeMismatch,
			"scores and labels disagree: %d vs %d", len(scores), len(labels))
	}
	n := len(scores)

	nPos, nNeg := 0, 0
	for _, y := range labels {
		if y > 0.5 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.Newf(errors.ErrCodeEvaluationFailed,
			"ROC-AUC undefined: %d positive and %d negative labels", nPos, nNeg)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	// Average ranks across tie groups, then sum the ranks of positives.
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && scores[order[j]] == scores[order[i]] {
			j++
		}
		// Ranks are 1-based; the tie group [i, j) shares the mean rank.
		avg := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	rankSum := 0.0
	for i, y := range labels {
		if y > 0.5 {
			rankSum += ranks[i]
		}
	}

	auc := (rankSum - float64(nPos)*float64(nPos+1)/2.0) / (float64(nPos) * float64(nNeg))
	return auc, nil
}

// TaskScores holds per-task evaluation results.  Tasks whose AUC is
// undefined on the evaluated data appear in Skipped instead of Scores.
type TaskScores struct {
	Tasks   []string
	Scores  map[string]float64
	Skipped []string
}

// Mean returns the mean score over the defined tasks, or 0 when every task
// was skipped.
func (ts *TaskScores) Mean() float64 {
	if len(ts.Scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range ts.Scores {
		sum += v
	}
	return sum / float64(len(ts.Scores))
}

// MultitaskRocAUC scores each task independently, using only the rows whose
// weight is non-zero for that task.  probs and labels are numRows ×
// numTasks.
func MultitaskRocAUC(tasks []string, probs, labels, weights *mat.Dense) (*TaskScores, error) {
	rows, cols := probs.Dims()
	if cols != len(tasks) {
		return nil, errors.Newf(errors.ErrCodeShapeMismatch,
			"probabilities have %d columns for %d tasks", cols, len(tasks))
	}

	result := &TaskScores{Tasks: tasks, Scores: map[string]float64{}}
	for t, name := range tasks {
		var s, y []float64
		for i := 0; i < rows; i++ {
			if weights.At(i, t) == 0 {
				continue
			}
			s = append(s, probs.At(i, t))
			y = append(y, labels.At(i, t))
		}
		auc, err := RocAUC(s, y)
		if err != nil {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		result.Scores[name] = auc
	}
	return result, nil
}
