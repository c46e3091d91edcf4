package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/pkg/errors"
)

type predictOptions struct {
	checkpoint string
	smiles     []string
	tasks      []string
}

// Prediction holds per-task probabilities for one molecule.
type Prediction struct {
	SMILES        string             `json:"smiles"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// PredictSummary is the output of the predict command.
type PredictSummary struct {
	Predictions []Prediction `json:"predictions"`
}

func (s *PredictSummary) String() string {
	var b strings.Builder
	for _, p := range s.Predictions {
		fmt.Fprintf(&b, "%s\n", p.SMILES)
		for task, prob := range p.Probabilities {
			fmt.Fprintf(&b, "  %-12s %.4f\n", task, prob)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewPredictCmd creates the predict command, which scores molecules with a
// saved checkpoint.
func NewPredictCmd() *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict task probabilities for molecules from a checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.checkpoint, "checkpoint", "", "path to the model checkpoint (required)")
	f.StringSliceVar(&opts.smiles, "smiles", nil, "SMILES strings to score (repeatable)")
	f.StringSliceVar(&opts.tasks, "tasks", nil, "task names, in training order (default task_0..task_N)")
	_ = cmd.MarkFlagRequired("checkpoint")
	_ = cmd.MarkFlagRequired("smiles")

	return cmd
}

func runPredict(cmd *cobra.Command, opts *predictOptions) error {
	if _, err := GetCLIContext(cmd); err != nil {
		return err
	}

	m, err := loadCheckpoint(opts.checkpoint)
	if err != nil {
		return err
	}
	numTasks := m.Config().NumTasks

	tasks := opts.tasks
	if len(tasks) == 0 {
		tasks = make([]string, numTasks)
		for i := range tasks {
			tasks[i] = fmt.Sprintf("task_%d", i)
		}
	}
	if len(tasks) != numTasks {
		return errors.Newf(errors.ErrCodeBadRequest,
			"%d task names given for a %d-task checkpoint", len(tasks), numTasks)
	}

	featurizer := molecule.NewFeaturizer(m.Config().MaxDegree)
	mols := make([]*graph.MolGraph, 0, len(opts.smiles))
	for _, s := range opts.smiles {
		g, err := featurizer.Featurize(s)
		if err != nil {
			return err
		}
		mols = append(mols, g)
	}

	batch, err := graph.NewBatchGraph(mols, m.Config().MaxDegree)
	if err != nil {
		return err
	}
	probs, err := m.Predict(batch)
	if err != nil {
		return err
	}

	summary := &PredictSummary{}
	for i, s := range opts.smiles {
		p := Prediction{SMILES: s, Probabilities: map[string]float64{}}
		for t, name := range tasks {
			p.Probabilities[name] = probs.At(i, t)
		}
		summary.Predictions = append(summary.Predictions, p)
	}
	return PrintResult(cmd, summary)
}
