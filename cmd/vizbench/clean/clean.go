// Package cleancmder provides the clean command group for flagging and
// removing irrelevant dataset samples.
package cleancmder

import (
	"github.com/spf13/cobra"
)

const cleanLongDesc string = `Flag and remove irrelevant dataset samples.

Cleaning is a two-phase workflow so the judge's verdicts can be reviewed
before anything is removed:

  collect  judges every question with an LLM (text only, images are never
           sent) and writes the flagged samples to discard files
  apply    filters a results file, dropping records for discarded
           validation samples and scrubbing discarded training samples
           from retrieved context

Review and hand-edit the discard files between the two phases as needed.`

const cleanShortDesc string = "Flag and remove irrelevant dataset samples"

func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: cleanShortDesc,
		Long:  cleanLongDesc,
	}

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newApplyCmd())

	return cmd
}
