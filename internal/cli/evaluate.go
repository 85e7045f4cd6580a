package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/diet"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var (
		dataPath string
		folds    int
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate a model configuration on YAML NLU data",
		Example: `  diet evaluate --data data/nlu.yml
  diet evaluate --data data/nlu.yml --folds 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := diet.Evaluate(dataPath, nil, &diet.EvalConfig{Folds: folds, Seed: seed})
			if err != nil {
				return err
			}

			fmt.Printf("Intent accuracy: %.3f (%d/%d)\n",
				result.IntentAccuracy, result.IntentCorrect, result.IntentTotal)
			if result.EntityTotal > 0 {
				fmt.Printf("Entity accuracy: %.3f (%d/%d)\n",
					result.EntityAccuracy, result.EntityCorrect, result.EntityTotal)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "data/nlu.yml", "Path to YAML training data")
	cmd.Flags().IntVar(&folds, "folds", 5, "Number of cross-validation folds")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Shuffle seed")
	return cmd
}
