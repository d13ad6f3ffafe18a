package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent vizbench configuration stored as
// config.toml in the .vizbench/ directory. The TOML layout uses sections for
// logical grouping, plus an array of [[models]] tables naming the models
// under evaluation.
type Config struct {
	Version    int              `toml:"version"`
	Dataset    DatasetConfig    `toml:"dataset"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Prompts    PromptsConfig    `toml:"prompts"`
	Events     EventsConfig     `toml:"events"`
	Models     []ModelConfig    `toml:"models"`
}

// DatasetConfig points at the precomputed embedding dumps.
type DatasetConfig struct {
	TrainEmbeddings      string `toml:"train_embeddings,omitempty"`
	ValidationEmbeddings string `toml:"validation_embeddings,omitempty"`
	Dimensions           uint   `toml:"dimensions,omitempty"`

	// EmbeddingProvider labels result records with the service that produced
	// the embedding dumps. Informational only.
	EmbeddingProvider string `toml:"embedding_provider,omitempty"`

	// MaxSamples caps the number of validation samples evaluated.
	// Zero means no cap.
	MaxSamples uint `toml:"max_samples,omitempty"`
}

// RetrievalConfig holds vector index settings.
type RetrievalConfig struct {
	Backend    string `toml:"backend,omitempty"`
	Collection string `toml:"collection,omitempty"`
	TopK       uint   `toml:"top_k,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
	ChromaURL  string `toml:"chroma_url,omitempty"`
	QdrantHost string `toml:"qdrant_host,omitempty"`
	QdrantPort uint   `toml:"qdrant_port,omitempty"`
}

// EvaluationConfig holds orchestrator settings.
type EvaluationConfig struct {
	ResultsPath           string `toml:"results_path,omitempty"`
	WithContext           bool   `toml:"with_context"`
	WithoutContext        bool   `toml:"without_context"`
	AttemptTimeoutSeconds uint   `toml:"attempt_timeout_seconds,omitempty"`
	MaxRetries            uint   `toml:"max_retries,omitempty"`
}

// PromptsConfig overrides the prompt template fragments. Empty fields fall
// back to the built-in defaults.
type PromptsConfig struct {
	System        string `toml:"system,omitempty"`
	Base          string `toml:"base,omitempty"`
	ContextHeader string `toml:"context_header,omitempty"`
	ContextEntry  string `toml:"context_entry,omitempty"`
}

// EventsConfig holds result-event publishing settings.
type EventsConfig struct {
	Provider     string `toml:"provider,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ModelConfig describes one model under evaluation. The mapstructure tags
// keep viper's UnmarshalKey aligned with the TOML key names.
type ModelConfig struct {
	// Name labels result records; must be unique across the models list.
	Name string `toml:"name" mapstructure:"name"`

	// Provider selects the backend: "openai", "anthropic", "gemini", or "ollama".
	Provider string `toml:"provider" mapstructure:"provider"`

	// Model is the provider-side model identifier.
	Model string `toml:"model" mapstructure:"model"`

	// Target overrides the provider endpoint. Used for ollama.
	Target string `toml:"target,omitempty" mapstructure:"target"`

	// RequestsPerMinute is the sustained request budget for this model.
	RequestsPerMinute uint `toml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure. The [[models]]
// array is managed by editing config.toml directly rather than through keys.
var configKeys = map[string]configKeyInfo{
	"dataset.train_embeddings": {
		get: func(c *Config) string { return c.Dataset.TrainEmbeddings },
		set: func(c *Config, v string) error { c.Dataset.TrainEmbeddings = v; return nil },
	},
	"dataset.validation_embeddings": {
		get: func(c *Config) string { return c.Dataset.ValidationEmbeddings },
		set: func(c *Config, v string) error { c.Dataset.ValidationEmbeddings = v; return nil },
	},
	"dataset.dimensions": {
		get: func(c *Config) string { return formatUint(c.Dataset.Dimensions) },
		set: func(c *Config, v string) error {
			return setUint(&c.Dataset.Dimensions, "dataset.dimensions", v)
		},
	},
	"dataset.embedding_provider": {
		get: func(c *Config) string { return c.Dataset.EmbeddingProvider },
		set: func(c *Config, v string) error { c.Dataset.EmbeddingProvider = v; return nil },
	},
	"dataset.max_samples": {
		get: func(c *Config) string { return formatUint(c.Dataset.MaxSamples) },
		set: func(c *Config, v string) error {
			return setUint(&c.Dataset.MaxSamples, "dataset.max_samples", v)
		},
	},
	"retrieval.backend": {
		get: func(c *Config) string { return c.Retrieval.Backend },
		set: func(c *Config, v string) error { c.Retrieval.Backend = v; return nil },
	},
	"retrieval.collection": {
		get: func(c *Config) string { return c.Retrieval.Collection },
		set: func(c *Config, v string) error { c.Retrieval.Collection = v; return nil },
	},
	"retrieval.top_k": {
		get: func(c *Config) string { return formatUint(c.Retrieval.TopK) },
		set: func(c *Config, v string) error {
			return setUint(&c.Retrieval.TopK, "retrieval.top_k", v)
		},
	},
	"retrieval.sqlite_path": {
		get: func(c *Config) string { return c.Retrieval.SQLitePath },
		set: func(c *Config, v string) error { c.Retrieval.SQLitePath = v; return nil },
	},
	"retrieval.chroma_url": {
		get: func(c *Config) string { return c.Retrieval.ChromaURL },
		set: func(c *Config, v string) error { c.Retrieval.ChromaURL = v; return nil },
	},
	"retrieval.qdrant_host": {
		get: func(c *Config) string { return c.Retrieval.QdrantHost },
		set: func(c *Config, v string) error { c.Retrieval.QdrantHost = v; return nil },
	},
	"retrieval.qdrant_port": {
		get: func(c *Config) string { return formatUint(c.Retrieval.QdrantPort) },
		set: func(c *Config, v string) error {
			return setUint(&c.Retrieval.QdrantPort, "retrieval.qdrant_port", v)
		},
	},
	"evaluation.results_path": {
		get: func(c *Config) string { return c.Evaluation.ResultsPath },
		set: func(c *Config, v string) error { c.Evaluation.ResultsPath = v; return nil },
	},
	"evaluation.with_context": {
		get: func(c *Config) string { return strconv.FormatBool(c.Evaluation.WithContext) },
		set: func(c *Config, v string) error {
			return setBool(&c.Evaluation.WithContext, "evaluation.with_context", v)
		},
	},
	"evaluation.without_context": {
		get: func(c *Config) string { return strconv.FormatBool(c.Evaluation.WithoutContext) },
		set: func(c *Config, v string) error {
			return setBool(&c.Evaluation.WithoutContext, "evaluation.without_context", v)
		},
	},
	"evaluation.attempt_timeout_seconds": {
		get: func(c *Config) string { return formatUint(c.Evaluation.AttemptTimeoutSeconds) },
		set: func(c *Config, v string) error {
			return setUint(&c.Evaluation.AttemptTimeoutSeconds, "evaluation.attempt_timeout_seconds", v)
		},
	},
	"evaluation.max_retries": {
		get: func(c *Config) string { return formatUint(c.Evaluation.MaxRetries) },
		set: func(c *Config, v string) error {
			return setUint(&c.Evaluation.MaxRetries, "evaluation.max_retries", v)
		},
	},
	"prompts.system": {
		get: func(c *Config) string { return c.Prompts.System },
		set: func(c *Config, v string) error { c.Prompts.System = v; return nil },
	},
	"prompts.base": {
		get: func(c *Config) string { return c.Prompts.Base },
		set: func(c *Config, v string) error { c.Prompts.Base = v; return nil },
	},
	"prompts.context_header": {
		get: func(c *Config) string { return c.Prompts.ContextHeader },
		set: func(c *Config, v string) error { c.Prompts.ContextHeader = v; return nil },
	},
	"prompts.context_entry": {
		get: func(c *Config) string { return c.Prompts.ContextEntry },
		set: func(c *Config, v string) error { c.Prompts.ContextEntry = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func setUint(target *uint, key, v string) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}

func setBool(target *bool, key, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = b
	return nil
}
