// Package ingestcmder provides the ingest command that loads the training
// embedding dump into the vector index.
package ingestcmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/cliui"
	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/logger"
	"github.com/sightlinelabs/vizbench/pkg/vector"
	vectorutils "github.com/sightlinelabs/vizbench/pkg/vector/utils"
)

var ingestFlags = config.FlagSet{
	config.FlagTrainEmbeddings: {
		Name:        "train-embeddings",
		ViperKey:    "dataset.train_embeddings",
		Description: "Path to the training embedding dump",
	},
	config.FlagDimensions: {
		Name:        "dimensions",
		ViperKey:    "dataset.dimensions",
		Description: "Embedding vector dimensionality",
	},
	config.FlagBackend: {
		Name:        "backend",
		ViperKey:    "retrieval.backend",
		Description: "Vector index backend (inmemory, sqlitevec, chroma, qdrant)",
	},
	config.FlagCollection: {
		Name:        "collection",
		ViperKey:    "retrieval.collection",
		Description: "Collection to ingest into",
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

var ingestFlagKeys = []string{
	config.FlagTrainEmbeddings,
	config.FlagDimensions,
	config.FlagBackend,
	config.FlagCollection,
	config.FlagSQLitePath,
	config.FlagChromaURL,
	config.FlagQdrantHost,
}

type ingestCommander struct {
	cfg       *config.Config
	configDir string
	debug     bool
	logger    *zap.Logger

	trainEmbeddings string
	dimensions      uint
	backend         string
	collection      string
	sqlitePath      string
	chromaURL       string
	qdrantHost      string
}

const ingestLongDesc string = `Load the training embedding dump into the vector index.

Each training sample's embedding is stored under its VizWiz id along with
its question, crowd answer, and image URL so retrieval can reconstruct
few-shot context later. Ingest is idempotent: samples whose id already
exists in the collection are skipped, so rerunning after adding samples
to the dump only inserts the new ones.

Examples:
  vizbench ingest
  vizbench ingest --backend qdrant --qdrant-host localhost
  vizbench ingest --train-embeddings embeddings/train.json --collection train`

const ingestShortDesc string = "Load training embeddings into the vector index"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, ingestFlags, ingestFlagKeys)

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
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

	config.AddStringFlag(cmd, ingestFlags, config.FlagTrainEmbeddings, &cmder.trainEmbeddings)
	config.AddUintFlag(cmd, ingestFlags, config.FlagDimensions, &cmder.dimensions)
	config.AddStringFlag(cmd, ingestFlags, config.FlagBackend, &cmder.backend)
	config.AddStringFlag(cmd, ingestFlags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, ingestFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, ingestFlags, config.FlagChromaURL, &cmder.chromaURL)
	config.AddStringFlag(cmd, ingestFlags, config.FlagQdrantHost, &cmder.qdrantHost)

	return cmd
}

func (c *ingestCommander) run() error {
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

	var samples []dataset.Sample
	err := cliui.Step(os.Stdout, "Loading "+cfg.Dataset.TrainEmbeddings, func() error {
		var loadErr error
		samples, loadErr = dataset.Load(cfg.Dataset.TrainEmbeddings, int(cfg.Dataset.Dimensions), c.logger)
		return loadErr
	})
	if err != nil {
		return fmt.Errorf("loading training samples: %w", err)
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

	var added, skipped int
	err = cliui.Step(os.Stdout, fmt.Sprintf("Ingesting %d samples into %q", len(samples), cfg.Retrieval.Collection), func() error {
		for _, sample := range samples {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			record := vector.Record{
				ID:     sample.ID,
				Vector: sample.Embedding,
				Metadata: map[string]any{
					"image_url":      sample.Metadata.ImageURL,
					"question":       sample.Metadata.Question,
					"crowd_majority": sample.Metadata.CrowdMajority,
				},
			}

			if err := collection.Add(ctx, record); err != nil {
				if errors.Is(err, vector.ErrDuplicateID) {
					skipped++
					continue
				}
				return fmt.Errorf("adding sample %s: %w", sample.ID, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("ingest complete",
		zap.String("collection", cfg.Retrieval.Collection),
		zap.Int("added", added),
		zap.Int("skipped", skipped))
	fmt.Printf("  %s %d added, %s\n",
		cliui.SuccessMark, added,
		cliui.DimStyle.Render(fmt.Sprintf("%d already present", skipped)))
	return nil
}
