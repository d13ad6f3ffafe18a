package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sightlinelabs/vizbench/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the VIZBENCH_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (VIZBENCH_RETRIEVAL_TOP_K, VIZBENCH_EVALUATION_RESULTS_PATH, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: VIZBENCH_RETRIEVAL_BACKEND, VIZBENCH_DATASET_MAX_SAMPLES, etc.
	v.SetEnvPrefix("VIZBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the resolved viper state, so commands
// see the full flag > env > file > default precedence chain as one struct.
// The [[models]] array only comes from the config file; there is no sensible
// flag or env encoding for it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Dataset: DatasetConfig{
			TrainEmbeddings:      v.GetString("dataset.train_embeddings"),
			ValidationEmbeddings: v.GetString("dataset.validation_embeddings"),
			Dimensions:           v.GetUint("dataset.dimensions"),
			EmbeddingProvider:    v.GetString("dataset.embedding_provider"),
			MaxSamples:           v.GetUint("dataset.max_samples"),
		},
		Retrieval: RetrievalConfig{
			Backend:    v.GetString("retrieval.backend"),
			Collection: v.GetString("retrieval.collection"),
			TopK:       v.GetUint("retrieval.top_k"),
			SQLitePath: v.GetString("retrieval.sqlite_path"),
			ChromaURL:  v.GetString("retrieval.chroma_url"),
			QdrantHost: v.GetString("retrieval.qdrant_host"),
			QdrantPort: v.GetUint("retrieval.qdrant_port"),
		},
		Evaluation: EvaluationConfig{
			ResultsPath:           v.GetString("evaluation.results_path"),
			WithContext:           v.GetBool("evaluation.with_context"),
			WithoutContext:        v.GetBool("evaluation.without_context"),
			AttemptTimeoutSeconds: v.GetUint("evaluation.attempt_timeout_seconds"),
			MaxRetries:            v.GetUint("evaluation.max_retries"),
		},
		Prompts: PromptsConfig{
			System:        v.GetString("prompts.system"),
			Base:          v.GetString("prompts.base"),
			ContextHeader: v.GetString("prompts.context_header"),
			ContextEntry:  v.GetString("prompts.context_entry"),
		},
		Events: EventsConfig{
			Provider:     v.GetString("events.provider"),
			KafkaBrokers: v.GetString("events.kafka_brokers"),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
	}

	if err := v.UnmarshalKey("models", &cfg.Models); err != nil {
		return nil, fmt.Errorf("parsing models: %w", err)
	}

	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Dataset
	v.SetDefault("dataset.train_embeddings", d.Dataset.TrainEmbeddings)
	v.SetDefault("dataset.validation_embeddings", d.Dataset.ValidationEmbeddings)
	v.SetDefault("dataset.dimensions", d.Dataset.Dimensions)
	v.SetDefault("dataset.embedding_provider", d.Dataset.EmbeddingProvider)
	v.SetDefault("dataset.max_samples", d.Dataset.MaxSamples)

	// Retrieval
	v.SetDefault("retrieval.backend", d.Retrieval.Backend)
	v.SetDefault("retrieval.collection", d.Retrieval.Collection)
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.sqlite_path", d.Retrieval.SQLitePath)
	v.SetDefault("retrieval.chroma_url", d.Retrieval.ChromaURL)
	v.SetDefault("retrieval.qdrant_host", d.Retrieval.QdrantHost)
	v.SetDefault("retrieval.qdrant_port", d.Retrieval.QdrantPort)

	// Evaluation
	v.SetDefault("evaluation.results_path", d.Evaluation.ResultsPath)
	v.SetDefault("evaluation.with_context", d.Evaluation.WithContext)
	v.SetDefault("evaluation.without_context", d.Evaluation.WithoutContext)
	v.SetDefault("evaluation.attempt_timeout_seconds", d.Evaluation.AttemptTimeoutSeconds)
	v.SetDefault("evaluation.max_retries", d.Evaluation.MaxRetries)

	// Prompts (defaults are empty; empty fragments fall back to the
	// built-in template at assembly time)
	v.SetDefault("prompts.system", d.Prompts.System)
	v.SetDefault("prompts.base", d.Prompts.Base)
	v.SetDefault("prompts.context_header", d.Prompts.ContextHeader)
	v.SetDefault("prompts.context_entry", d.Prompts.ContextEntry)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)
}
