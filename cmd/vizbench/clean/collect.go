package cleancmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/cleaning"
	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/credentials"
	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider"
	"github.com/sightlinelabs/vizbench/pkg/logger"
	"github.com/sightlinelabs/vizbench/pkg/ratelimit"
	vectorutils "github.com/sightlinelabs/vizbench/pkg/vector/utils"
)

var collectFlags = config.FlagSet{
	config.FlagTrainEmbeddings: {
		Name:        "train-embeddings",
		ViperKey:    "dataset.train_embeddings",
		Description: "Path to the training embedding dump",
	},
	config.FlagValidationEmbeddings: {
		Name:        "validation-embeddings",
		ViperKey:    "dataset.validation_embeddings",
		Description: "Path to the validation embedding dump",
	},
	config.FlagBackend: {
		Name:        "backend",
		ViperKey:    "retrieval.backend",
		Description: "Vector index backend holding the training collection",
	},
	config.FlagCollection: {
		Name:        "collection",
		ViperKey:    "retrieval.collection",
		Description: "Training collection to judge",
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
}

var collectFlagKeys = []string{
	config.FlagTrainEmbeddings,
	config.FlagValidationEmbeddings,
	config.FlagBackend,
	config.FlagCollection,
	config.FlagSQLitePath,
	config.FlagChromaURL,
	config.FlagQdrantHost,
}

type collectCommander struct {
	cfg       *config.Config
	configDir string
	debug     bool
	logger    *zap.Logger

	judgeModel         string
	trainDiscards      string
	validationDiscards string
	maxPerSplit        int
	skipTrain          bool
	skipValidation     bool

	trainEmbeddings      string
	validationEmbeddings string
	backend              string
	collection           string
	sqlitePath           string
	chromaURL            string
	qdrantHost           string
}

const collectLongDesc string = `Judge every dataset question with an LLM and write flagged samples to
discard files.

The judge sees only the question text, never the image, so it can only
flag questions that are irrelevant on their face (greetings, fragments,
questions whose answer could not depend on the image). If the judge's
response cannot be parsed, a conservative keyword heuristic decides
instead; if the judge call itself fails, the sample is kept.

The discard files are plain JSON arrays meant to be reviewed (and
hand-edited) before running "vizbench clean apply".

Examples:
  vizbench clean collect
  vizbench clean collect --judge-model gpt-4o --max 200
  vizbench clean collect --skip-train`

func newCollectCmd() *cobra.Command {
	cmder := &collectCommander{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Judge dataset questions and write discard files",
		Long:  collectLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, collectFlags, collectFlagKeys)

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

	config.AddStringFlag(cmd, collectFlags, config.FlagTrainEmbeddings, &cmder.trainEmbeddings)
	config.AddStringFlag(cmd, collectFlags, config.FlagValidationEmbeddings, &cmder.validationEmbeddings)
	config.AddStringFlag(cmd, collectFlags, config.FlagBackend, &cmder.backend)
	config.AddStringFlag(cmd, collectFlags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, collectFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, collectFlags, config.FlagChromaURL, &cmder.chromaURL)
	config.AddStringFlag(cmd, collectFlags, config.FlagQdrantHost, &cmder.qdrantHost)

	cmd.Flags().StringVar(&cmder.judgeModel, "judge-model", "", "Configured model to use as the judge (defaults to the first model in config.toml)")
	cmd.Flags().StringVar(&cmder.trainDiscards, "train-discards", "embeddings/train_to_discard.json", "Output path for flagged training samples")
	cmd.Flags().StringVar(&cmder.validationDiscards, "validation-discards", "embeddings/validation_to_discard.json", "Output path for flagged validation samples")
	cmd.Flags().IntVar(&cmder.maxPerSplit, "max", 0, "Cap on samples judged per split (0 = all)")
	cmd.Flags().BoolVar(&cmder.skipTrain, "skip-train", false, "Skip judging the training collection")
	cmd.Flags().BoolVar(&cmder.skipValidation, "skip-validation", false, "Skip judging the validation set")

	return cmd
}

func (c *collectCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfg := c.cfg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	judge, err := c.buildJudge(cfg)
	if err != nil {
		return err
	}

	collector, err := cleaning.NewCollector(judge, c.logger)
	if err != nil {
		return fmt.Errorf("building collector: %w", err)
	}

	if !c.skipTrain {
		if err := c.collectTrain(ctx, collector); err != nil {
			return err
		}
	}

	if !c.skipValidation {
		if err := c.collectValidation(ctx, collector); err != nil {
			return err
		}
	}

	return nil
}

func (c *collectCommander) collectTrain(ctx context.Context, collector *cleaning.Collector) error {
	cfg := c.cfg

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

	entries, err := collector.CollectTrain(ctx, collection, c.maxPerSplit)
	if err != nil {
		return fmt.Errorf("judging training collection: %w", err)
	}

	if err := cleaning.WriteDiscards(c.trainDiscards, entries); err != nil {
		return fmt.Errorf("writing train discards: %w", err)
	}

	c.logger.Info("train discards written",
		zap.Int("flagged", len(entries)),
		zap.String("path", c.trainDiscards))
	return nil
}

func (c *collectCommander) collectValidation(ctx context.Context, collector *cleaning.Collector) error {
	cfg := c.cfg

	samples, err := dataset.Load(cfg.Dataset.ValidationEmbeddings, int(cfg.Dataset.Dimensions), c.logger)
	if err != nil {
		return fmt.Errorf("loading validation samples: %w", err)
	}

	entries, err := collector.CollectValidation(ctx, samples, c.maxPerSplit)
	if err != nil {
		return fmt.Errorf("judging validation set: %w", err)
	}

	if err := cleaning.WriteDiscards(c.validationDiscards, entries); err != nil {
		return fmt.Errorf("writing validation discards: %w", err)
	}

	c.logger.Info("validation discards written",
		zap.Int("flagged", len(entries)),
		zap.String("path", c.validationDiscards))
	return nil
}

// buildJudge resolves the judge model from config and wraps it with the same
// rate limiting and retry behavior the evaluation run uses.
func (c *collectCommander) buildJudge(cfg *config.Config) (provider.Provider, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no models configured; add a [[models]] entry to config.toml")
	}

	model := cfg.Models[0]
	if c.judgeModel != "" {
		found := false
		for _, m := range cfg.Models {
			if m.Name == c.judgeModel {
				model = m
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("judge model %q is not configured", c.judgeModel)
		}
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.Resolve(model.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials for %s: %w", model.Name, err)
	}

	p, err := provider.New(model, key, c.logger)
	if err != nil {
		return nil, fmt.Errorf("building provider for %s: %w", model.Name, err)
	}

	limiter, err := ratelimit.NewRegistry(cfg.Models, c.logger)
	if err != nil {
		return nil, fmt.Errorf("building rate limiters: %w", err)
	}

	c.logger.Info("using judge model", zap.String("model", model.Name), zap.String("provider", model.Provider))
	return provider.WithRetry(p, limiter, provider.DefaultRetryPolicy(), c.logger), nil
}
