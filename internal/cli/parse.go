package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/diet"
)

func (c *CLI) newParseCommand() *cobra.Command {
	var modelDir string

	cmd := &cobra.Command{
		Use:   "parse [message]",
		Short: "Classify a message, or messages from stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  diet parse "book a flight to paris" --model model/
  echo "hello there" | diet parse --model model/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := diet.Load(modelDir)
			if err != nil {
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")

			if len(args) == 1 {
				res, err := p.Parse(args[0])
				if err != nil {
					return err
				}
				return out.Encode(res)
			}

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				res, err := p.Parse(line)
				if err != nil {
					fmt.Fprintf(os.Stderr, "parse %q: %v\n", line, err)
					continue
				}
				if err := out.Encode(res); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&modelDir, "model", "model", "Path to a trained model directory")
	return cmd
}
