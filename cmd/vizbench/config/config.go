// Package configcmder provides the config command for managing persistent
// vizbench configuration stored in the .vizbench/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent vizbench configuration.

Configuration is stored as config.toml in the .vizbench/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  dataset.train_embeddings, dataset.validation_embeddings,
  dataset.dimensions, dataset.embedding_provider, dataset.max_samples,
  retrieval.backend, retrieval.collection, retrieval.top_k,
  retrieval.sqlite_path, retrieval.chroma_url,
  retrieval.qdrant_host, retrieval.qdrant_port,
  evaluation.results_path, evaluation.with_context, evaluation.without_context,
  evaluation.attempt_timeout_seconds, evaluation.max_retries,
  prompts.system, prompts.base, prompts.context_header, prompts.context_entry,
  events.provider, events.kafka_brokers, events.kafka_topic

The [[models]] list is edited in config.toml directly.

Use subcommands to get, set, or list configuration values:
  vizbench config set <key> <value>    Set a configuration value
  vizbench config get <key>            Get a configuration value
  vizbench config list                 List all configuration values

Examples:
  vizbench config set retrieval.backend qdrant
  vizbench config set retrieval.top_k 3
  vizbench config get evaluation.results_path
  vizbench config list`

const configShortDesc string = "Manage persistent vizbench configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
