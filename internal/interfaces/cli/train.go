package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/molforge/graphchem/internal/config"
	"github.com/molforge/graphchem/internal/domain/dataset"
	"github.com/molforge/graphchem/internal/domain/molecule"
	"github.com/molforge/graphchem/internal/gnn/model"
	"github.com/molforge/graphchem/internal/gnn/nn"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/training"
)

type trainOptions struct {
	dataset       string
	epochs        int
	batchSize     int
	learningRate  float64
	optimizer     string
	checkpointDir string
	seed          int64
	clipNorm      float64
}

// TrainSummary is the result printed after a local training run.
type TrainSummary struct {
	RunID         string             `json:"run_id"`
	Epochs        int                `json:"epochs"`
	FinalLoss     float64            `json:"final_loss"`
	BestEpoch     int                `json:"best_epoch"`
	BestMeanAUC   float64            `json:"best_mean_auc"`
	TestMeanAUC   float64            `json:"test_mean_auc"`
	TaskAUC       map[string]float64 `json:"task_auc,omitempty"`
	CheckpointKey string             `json:"checkpoint_key,omitempty"`
}

func (s *TrainSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s finished after %d epochs\n", s.RunID, s.Epochs)
	fmt.Fprintf(&b, "  final loss:    %.4f\n", s.FinalLoss)
	fmt.Fprintf(&b, "  best epoch:    %d (valid mean AUC %.4f)\n", s.BestEpoch, s.BestMeanAUC)
	fmt.Fprintf(&b, "  test mean AUC: %.4f\n", s.TestMeanAUC)
	for task, auc := range s.TaskAUC {
		fmt.Fprintf(&b, "    %-12s %.4f\n", task, auc)
	}
	if s.CheckpointKey != "" {
		fmt.Fprintf(&b, "  checkpoint:    %s", s.CheckpointKey)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewTrainCmd creates the train command, which runs a full training loop
// locally with checkpoints on the filesystem.
func NewTrainCmd() *cobra.Command {
	opts := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a graph convolution model on a SMILES CSV dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dataset, "dataset", "", "path to the CSV dataset (required)")
	f.IntVar(&opts.epochs, "epochs", 0, "number of training epochs (default from config)")
	f.IntVar(&opts.batchSize, "batch-size", 0, "batch size (default from config)")
	f.Float64Var(&opts.learningRate, "learning-rate", 0, "optimizer learning rate (default from config)")
	f.StringVar(&opts.optimizer, "optimizer", "", "optimizer: adam or sgd (default from config)")
	f.StringVar(&opts.checkpointDir, "checkpoint-dir", "", "directory for model checkpoints (default from config)")
	f.Int64Var(&opts.seed, "seed", 0, "shuffle and init seed (default from config)")
	f.Float64Var(&opts.clipNorm, "clip-norm", 0, "max gradient norm, 0 disables clipping (default from config)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runTrain(cmd *cobra.Command, opts *trainOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	applyTrainOverrides(cfg, opts)

	ds, err := dataset.LoadCSV(opts.dataset, dataset.LoadOptions{
		SMILESColumn: cfg.Dataset.SMILESColumn,
		TaskColumns:  cfg.Dataset.TaskColumns,
	})
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("dataset loaded",
		logging.String("path", opts.dataset),
		logging.Int("molecules", ds.Len()),
		logging.Int("tasks", ds.NumTasks()),
	)

	split, err := dataset.RandomSplit(ds,
		cfg.Dataset.TrainFraction, cfg.Dataset.ValidFraction, cfg.Dataset.TestFraction,
		cfg.Dataset.SplitSeed)
	if err != nil {
		return err
	}

	featurizer := molecule.NewFeaturizer(cfg.Model.MaxDegree)
	ctx := cmd.Context()
	fzTrain, err := dataset.Featurize(ctx, split.Train, featurizer, nil)
	if err != nil {
		return err
	}
	fzValid, err := dataset.Featurize(ctx, split.Valid, featurizer, nil)
	if err != nil {
		return err
	}
	fzTest, err := dataset.Featurize(ctx, split.Test, featurizer, nil)
	if err != nil {
		return err
	}

	m, err := model.New(model.Config{
		NumTasks:     ds.NumTasks(),
		NumFeatures:  molecule.NumAtomFeatures,
		ConvChannels: cfg.Model.ConvChannels,
		DenseSize:    cfg.Model.DenseSize,
		MaxDegree:    cfg.Model.MaxDegree,
		DropoutRate:  cfg.Model.DropoutRate,
		Seed:         cfg.Model.Seed,
	})
	if err != nil {
		return err
	}

	opt, err := nn.New(cfg.Training.Optimizer, cfg.Training.LearningRate)
	if err != nil {
		return err
	}

	trainerOpts := []training.Option{training.WithLogger(cliCtx.Logger.Named("trainer"))}
	if cfg.Training.CheckpointDir != "" {
		store, err := training.NewLocalCheckpointStore(cfg.Training.CheckpointDir)
		if err != nil {
			return err
		}
		trainerOpts = append(trainerOpts, training.WithCheckpointStore(store))
	}

	trainer, err := training.NewTrainer(m, opt, training.Config{
		Epochs:    cfg.Training.Epochs,
		BatchSize: cfg.Training.BatchSize,
		Pad:       cfg.Training.PadBatches,
		Seed:      cfg.Training.Seed,
		MaxDegree: cfg.Model.MaxDegree,
		ClipNorm:  cfg.Training.ClipNorm,
	}, trainerOpts...)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	result, err := trainer.Run(ctx, runID, fzTrain, fzValid)
	if err != nil {
		return err
	}

	testScores, err := training.Evaluate(m, fzTest, cfg.Training.BatchSize, cfg.Model.MaxDegree)
	if err != nil {
		return err
	}

	return PrintResult(cmd, &TrainSummary{
		RunID:         runID,
		Epochs:        result.Epochs,
		FinalLoss:     result.EpochLosses[len(result.EpochLosses)-1],
		BestEpoch:     result.BestEpoch,
		BestMeanAUC:   result.BestMeanAUC,
		TestMeanAUC:   testScores.Mean(),
		TaskAUC:       testScores.Scores,
		CheckpointKey: result.LastCheckKey,
	})
}

func applyTrainOverrides(cfg *config.Config, opts *trainOptions) {
	if opts.epochs > 0 {
		cfg.Training.Epochs = opts.epochs
	}
	if opts.batchSize > 0 {
		cfg.Training.BatchSize = opts.batchSize
	}
	if opts.learningRate > 0 {
		cfg.Training.LearningRate = opts.learningRate
	}
	if opts.optimizer != "" {
		cfg.Training.Optimizer = opts.optimizer
	}
	if opts.checkpointDir != "" {
		cfg.Training.CheckpointDir = opts.checkpointDir
	}
	if opts.seed != 0 {
		cfg.Training.Seed = opts.seed
		cfg.Model.Seed = opts.seed
	}
	if opts.clipNorm > 0 {
		cfg.Training.ClipNorm = opts.clipNorm
	}
}
