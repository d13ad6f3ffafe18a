// Package vizbenchcmder
package vizbenchcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/sightlinelabs/vizbench/cmd/vizbench/auth"
	cleancmder "github.com/sightlinelabs/vizbench/cmd/vizbench/clean"
	configcmder "github.com/sightlinelabs/vizbench/cmd/vizbench/config"
	ingestcmder "github.com/sightlinelabs/vizbench/cmd/vizbench/ingest"
	resultscmder "github.com/sightlinelabs/vizbench/cmd/vizbench/results"
	runcmder "github.com/sightlinelabs/vizbench/cmd/vizbench/run"
	versioncmder "github.com/sightlinelabs/vizbench/cmd/version"
)

const vizbenchLongDesc string = `Vizbench evaluates vision-language models on accessibility VQA data
with retrieval-augmented context.

Typical workflow:
  vizbench ingest            Load embedding dumps into the vector index
  vizbench run               Evaluate configured models over the validation set
  vizbench clean collect     Flag irrelevant questions with a judge model
  vizbench clean apply       Scrub flagged samples out of a results file
  vizbench results summary   Summarize a results file per model and mode`

const vizbenchShortDesc string = "Vizbench - retrieval-augmented VLM evaluation"

func NewVizbenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vizbench",
		Short: vizbenchShortDesc,
		Long:  vizbenchLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .vizbench/ config directory")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(cleancmder.NewCleanCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(resultscmder.NewResultsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
