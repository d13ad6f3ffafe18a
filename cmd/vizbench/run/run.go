// Package runcmder provides the run command that evaluates every configured
// model over the validation set.
package runcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/credentials"
	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/eval"
	"github.com/sightlinelabs/vizbench/pkg/eventstream"
	"github.com/sightlinelabs/vizbench/pkg/eventstream/kafka"
	"github.com/sightlinelabs/vizbench/pkg/eventstream/nop"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider"
	"github.com/sightlinelabs/vizbench/pkg/logger"
	"github.com/sightlinelabs/vizbench/pkg/prompt"
	"github.com/sightlinelabs/vizbench/pkg/ratelimit"
	"github.com/sightlinelabs/vizbench/pkg/results"
	vectorutils "github.com/sightlinelabs/vizbench/pkg/vector/utils"
)

// runFlags defines the flags this command exposes, keyed by the registry
// constants in pkg/config.
var runFlags = config.FlagSet{
	config.FlagValidationEmbeddings: {
		Name:        "validation-embeddings",
		ViperKey:    "dataset.validation_embeddings",
		Description: "Path to the validation embedding dump",
	},
	config.FlagMaxSamples: {
		Name:        "max-samples",
		ViperKey:    "dataset.max_samples",
		Description: "Cap on validation samples to evaluate (0 = all)",
	},
	config.FlagBackend: {
		Name:        "backend",
		ViperKey:    "retrieval.backend",
		Description: "Vector index backend (inmemory, sqlitevec, chroma, qdrant)",
	},
	config.FlagCollection: {
		Name:        "collection",
		ViperKey:    "retrieval.collection",
		Description: "Training collection used for retrieval",
	},
	config.FlagTopK: {
		Name:        "top-k",
		Shorthand:   "k",
		ViperKey:    "retrieval.top_k",
		Description: "Number of similar training samples to retrieve",
	},
	config.FlagSQLitePath: {
		Name:        "sqlite-path",
		ViperKey:    "retrieval.sqlite_path",
		Description: "SQLite database path for the sqlitevec backend",
	},
	config.FlagChromaURL: {
		Name:        "chroma-url",
		ViperKey:    "retrieval.chroma_url",
		Description: "Chroma server URL for the chroma backend",
	},
	config.FlagQdrantHost: {
		Name:        "qdrant-host",
		ViperKey:    "retrieval.qdrant_host",
		Description: "Qdrant host for the qdrant backend",
	},
	config.FlagResults: {
		Name:        "results",
		ViperKey:    "evaluation.results_path",
		Description: "Results JSONL path (appended, reruns skip existing records)",
	},
	config.FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Record event publisher (nop or kafka)",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma-separated Kafka brokers for the kafka publisher",
	},
}

var runFlagKeys = []string{
	config.FlagValidationEmbeddings,
	config.FlagMaxSamples,
	config.FlagBackend,
	config.FlagCollection,
	config.FlagTopK,
	config.FlagSQLitePath,
	config.FlagChromaURL,
	config.FlagQdrantHost,
	config.FlagResults,
	config.FlagEventsProvider,
	config.FlagKafkaBrokers,
}

type runCommander struct {
	cfg        *config.Config
	configDir  string
	onlySample string
	debug      bool
	logger     *zap.Logger

	// flag targets; viper binding is what actually feeds cfg
	validationEmbeddings string
	maxSamples           uint
	backend              string
	collection           string
	topK                 uint
	sqlitePath           string
	chromaURL            string
	qdrantHost           string
	resultsPath          string
	eventsProvider       string
	kafkaBrokers         string
}

const runLongDesc string = `Evaluate every configured model over the validation set.

Each validation sample is dispatched to each model in each enabled mode
(with and without retrieved context). Results append to a JSONL file as
they arrive; rerunning skips records that are already present, so an
interrupted run resumes where it left off.

Models, credentials, and rate limits come from config.toml and
credentials.toml in the .vizbench/ directory.

Examples:
  vizbench run
  vizbench run --max-samples 50
  vizbench run --only-sample VizWiz_val_00000123
  vizbench run --backend qdrant --qdrant-host localhost
  vizbench run --results results/tonight.jsonl`

const runShortDesc string = "Evaluate configured models over the validation set"

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, runFlags, runFlagKeys)

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return cmder.cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, runFlags, config.FlagValidationEmbeddings, &cmder.validationEmbeddings)
	config.AddUintFlag(cmd, runFlags, config.FlagMaxSamples, &cmder.maxSamples)
	config.AddStringFlag(cmd, runFlags, config.FlagBackend, &cmder.backend)
	config.AddStringFlag(cmd, runFlags, config.FlagCollection, &cmder.collection)
	config.AddUintFlag(cmd, runFlags, config.FlagTopK, &cmder.topK)
	config.AddStringFlag(cmd, runFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, runFlags, config.FlagChromaURL, &cmder.chromaURL)
	config.AddStringFlag(cmd, runFlags, config.FlagQdrantHost, &cmder.qdrantHost)
	config.AddStringFlag(cmd, runFlags, config.FlagResults, &cmder.resultsPath)
	config.AddStringFlag(cmd, runFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, runFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	cmd.Flags().StringVar(&cmder.onlySample, "only-sample", "", "Evaluate a single validation id")

	return cmd
}

func (c *runCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfg := c.cfg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		c.logger.Info("shutdown requested, finishing in-flight requests")
		cancel()
	}()

	samples, err := dataset.Load(cfg.Dataset.ValidationEmbeddings, int(cfg.Dataset.Dimensions), c.logger)
	if err != nil {
		return fmt.Errorf("loading validation samples: %w", err)
	}
	samples = dataset.Filter(samples, c.onlySample, int(cfg.Dataset.MaxSamples))
	if len(samples) == 0 {
		return fmt.Errorf("no validation samples selected")
	}

	index, err := vectorutils.NewIndex(&vectorutils.NewIndexOpts{
		Backend:    cfg.Retrieval.Backend,
		SQLitePath: cfg.Retrieval.SQLitePath,
		ChromaURL:  cfg.Retrieval.ChromaURL,
		QdrantHost: cfg.Retrieval.QdrantHost,
		QdrantPort: int(cfg.Retrieval.QdrantPort),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	defer func() { _ = index.Close() }()

	collection, err := index.CreateOrOpenCollection(ctx, cfg.Retrieval.Collection, int(cfg.Dataset.Dimensions))
	if err != nil {
		return fmt.Errorf("opening collection %q: %w", cfg.Retrieval.Collection, err)
	}

	providers, kinds, err := c.buildProviders(cfg)
	if err != nil {
		return err
	}

	store, err := results.Open(cfg.Evaluation.ResultsPath, c.logger)
	if err != nil {
		return fmt.Errorf("opening results store: %w", err)
	}
	defer func() { _ = store.Close() }()

	publisher, err := c.buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	runner, err := eval.NewRunner(store, collection, providers, publisher, eval.Options{
		TopK:              int(cfg.Retrieval.TopK),
		WithContext:       cfg.Evaluation.WithContext,
		WithoutContext:    cfg.Evaluation.WithoutContext,
		EmbeddingProvider: cfg.Dataset.EmbeddingProvider,
		Template: prompt.Template{
			System:        cfg.Prompts.System,
			Base:          cfg.Prompts.Base,
			ContextHeader: cfg.Prompts.ContextHeader,
			ContextEntry:  cfg.Prompts.ContextEntry,
		},
		ProviderKinds: kinds,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("building runner: %w", err)
	}

	if err := runner.Run(ctx, samples); err != nil {
		return fmt.Errorf("evaluation run: %w", err)
	}

	c.logger.Info("evaluation run complete",
		zap.Int("samples", len(samples)),
		zap.Int("models", len(providers)),
		zap.Int("records", store.Count()),
		zap.String("results", cfg.Evaluation.ResultsPath))
	return nil
}

// buildProviders constructs the retry-wrapped backend for every configured
// model, plus the model-name to provider-kind mapping for event attribution.
func (c *runCommander) buildProviders(cfg *config.Config) ([]provider.Provider, map[string]string, error) {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading credentials: %w", err)
	}

	limiter, err := ratelimit.NewRegistry(cfg.Models, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building rate limiters: %w", err)
	}

	policy := provider.DefaultRetryPolicy()
	if cfg.Evaluation.MaxRetries > 0 {
		policy.MaxAttempts = cfg.Evaluation.MaxRetries
	}
	if cfg.Evaluation.AttemptTimeoutSeconds > 0 {
		policy.AttemptTimeout = time.Duration(cfg.Evaluation.AttemptTimeoutSeconds) * time.Second
	}

	providers := make([]provider.Provider, 0, len(cfg.Models))
	kinds := make(map[string]string, len(cfg.Models))
	for _, m := range cfg.Models {
		key, err := mgr.Resolve(m.Provider)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving credentials for %s: %w", m.Name, err)
		}

		p, err := provider.New(m, key, c.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("building provider for %s: %w", m.Name, err)
		}

		providers = append(providers, provider.WithRetry(p, limiter, policy, c.logger))
		kinds[m.Name] = m.Provider
	}
	return providers, kinds, nil
}

func (c *runCommander) buildPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("building kafka publisher: %w", err)
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", cfg.Events.Provider)
	}
}
