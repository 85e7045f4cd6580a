package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/diet"
	"github.com/happyhackingspace/diet/classifier"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		dataPath   string
		epochs     int
		seed       int64
		lossType   string
		confidence string
		checkpoint bool
		summaryDir string
	)

	cmd := &cobra.Command{
		Use:   "train <modeldir>",
		Short: "Train a model on YAML NLU data",
		Args:  cobra.ExactArgs(1),
		Example: `  diet train model/ --data data/nlu.yml
  diet train model/ --data data/nlu.yml --epochs 500 --checkpoint
  diet train model/ --data data/nlu.yml --loss margin -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelDir := args[0]

			cfg := classifier.DefaultConfig()
			if epochs > 0 {
				cfg.Epochs = epochs
			}
			cfg.RandomSeed = seed
			if lossType != "" {
				cfg.LossType = lossType
			}
			if confidence != "" {
				cfg.ModelConfidence = confidence
			}
			cfg.CheckpointModel = checkpoint
			cfg.SummaryLogDir = summaryDir

			slog.Info("Training model", "data", dataPath, "output", modelDir)
			start := time.Now()
			p, err := diet.Train(dataPath, cfg)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))

			if err := p.Save(modelDir); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "data/nlu.yml", "Path to YAML training data")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "Number of training epochs (0 = default)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVar(&lossType, "loss", "", "Loss type: cross_entropy or margin")
	cmd.Flags().StringVar(&confidence, "confidence", "", "Confidence mode: softmax or linear_norm")
	cmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "Keep the best checkpoint by validation loss")
	cmd.Flags().StringVar(&summaryDir, "summary-dir", "", "Write training summary artifacts to this directory")
	return cmd
}
