package cleancmder

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/cleaning"
	"github.com/sightlinelabs/vizbench/pkg/cliui"
	"github.com/sightlinelabs/vizbench/pkg/logger"
)

type applyCommander struct {
	debug  bool
	logger *zap.Logger

	input              string
	output             string
	trainDiscards      string
	validationDiscards string
}

const applyLongDesc string = `Filter a results file using previously collected discard files.

Records whose validation sample was flagged are dropped entirely.
Flagged training samples are scrubbed from the retrieved-context list of
the records that remain. The input file is never modified; the filtered
records are written to a new file.

Either discard file may be omitted, in which case that side of the
filtering is skipped.

Examples:
  vizbench clean apply --input results/results.jsonl --output results/results_cleaned.jsonl
  vizbench clean apply -i results/results.jsonl -o results/clean.jsonl --train-discards ""`

func newApplyCmd() *cobra.Command {
	cmder := &applyCommander{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Filter a results file using collected discard files",
		Long:  applyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.input, "input", "i", "results/results.jsonl", "Results file to filter")
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "results/results_cleaned.jsonl", "Destination for the filtered records")
	cmd.Flags().StringVar(&cmder.trainDiscards, "train-discards", "embeddings/train_to_discard.json", "Discard file for training samples (empty to skip)")
	cmd.Flags().StringVar(&cmder.validationDiscards, "validation-discards", "embeddings/validation_to_discard.json", "Discard file for validation samples (empty to skip)")

	return cmd
}

func (c *applyCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	validationIDs, err := c.loadDiscards(c.validationDiscards)
	if err != nil {
		return fmt.Errorf("reading validation discards: %w", err)
	}

	trainIDs, err := c.loadDiscards(c.trainDiscards)
	if err != nil {
		return fmt.Errorf("reading train discards: %w", err)
	}

	var stats cleaning.ApplyStats
	err = cliui.Step(os.Stdout, "Filtering "+c.input, func() error {
		var applyErr error
		stats, applyErr = cleaning.Apply(c.input, c.output, validationIDs, trainIDs, c.logger)
		return applyErr
	})
	if err != nil {
		return fmt.Errorf("applying discards: %w", err)
	}

	fmt.Printf("  %s %d kept, %s\n",
		cliui.SuccessMark, stats.Kept,
		cliui.DimStyle.Render(fmt.Sprintf("%d dropped, %d context entries scrubbed -> %s",
			stats.Eliminated, stats.ScrubbedNeighbors, c.output)))
	return nil
}

// loadDiscards reads a discard file, treating an empty path or a missing file
// as "no discards" so each side of the filtering is optional.
func (c *applyCommander) loadDiscards(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}

	ids, err := cleaning.ReadDiscardIDs(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("discard file not found, skipping", zap.String("path", path))
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}
