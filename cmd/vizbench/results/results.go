// Package resultscmder provides the results command group for inspecting
// evaluation output.
package resultscmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sightlinelabs/vizbench/pkg/cliui"
	"github.com/sightlinelabs/vizbench/pkg/results"
)

const resultsLongDesc string = `Inspect evaluation results.

Examples:
  vizbench results summary
  vizbench results summary --results results/results_cleaned.jsonl`

func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect evaluation results",
		Long:  resultsLongDesc,
	}

	cmd.AddCommand(newSummaryCmd())

	return cmd
}

type summaryCommander struct {
	resultsPath string
}

const summaryLongDesc string = `Aggregate a results file into a per-model, per-mode table.

Each row counts the records for one model in one mode, how many of them
failed, and the mean wall-clock seconds a record took (retries and
backoff included).`

func newSummaryCmd() *cobra.Command {
	cmder := &summaryCommander{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate results per model and mode",
		Long:  summaryLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.resultsPath, "results", "results/results.jsonl", "Results file to summarize")

	return cmd
}

func (c *summaryCommander) run() error {
	rows, err := results.Summarize(c.resultsPath)
	if err != nil {
		return fmt.Errorf("summarizing %s: %w", c.resultsPath, err)
	}

	if len(rows) == 0 {
		fmt.Println(cliui.DimStyle.Render("No records in " + c.resultsPath))
		return nil
	}

	rendered, err := cliui.RenderMarkdown(summaryMarkdown(c.resultsPath, rows))
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	fmt.Print(rendered)
	return nil
}

func summaryMarkdown(path string, rows []results.SummaryRow) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Results summary\n\n`%s`\n\n", path)
	b.WriteString("| Model | Mode | Records | Failed | Mean seconds |\n")
	b.WriteString("|-------|------|--------:|-------:|-------------:|\n")

	for _, row := range rows {
		mode := "without context"
		if row.WithContext {
			mode = "with context"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %.2f |\n",
			row.ModelName, mode, row.Total, row.Failed, row.MeanProcessingSeconds)
	}

	return b.String()
}
