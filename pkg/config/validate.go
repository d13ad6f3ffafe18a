package config

import (
	"fmt"
	"slices"
)

// ValidRetrievalBackends lists the supported vector index backends.
func ValidRetrievalBackends() []string {
	return []string{"chroma", "inmemory", "qdrant", "sqlitevec"}
}

// ValidProviderKinds lists the supported model provider kinds.
func ValidProviderKinds() []string {
	return []string{"anthropic", "gemini", "ollama", "openai"}
}

// Validate checks the configuration for problems that would make an
// evaluation run impossible. It reports the first problem found so the user
// can fix issues one at a time with a clear message.
func (c *Config) Validate() error {
	if !slices.Contains(ValidRetrievalBackends(), c.Retrieval.Backend) {
		return fmt.Errorf("unknown retrieval backend %q (available: %v)",
			c.Retrieval.Backend, ValidRetrievalBackends())
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}

	if c.Dataset.Dimensions < 1 {
		return fmt.Errorf("dataset.dimensions must be at least 1, got %d", c.Dataset.Dimensions)
	}

	switch c.Retrieval.Backend {
	case "chroma":
		if c.Retrieval.ChromaURL == "" {
			return fmt.Errorf("retrieval.chroma_url is required for the chroma backend")
		}
	case "qdrant":
		if c.Retrieval.QdrantHost == "" {
			return fmt.Errorf("retrieval.qdrant_host is required for the qdrant backend")
		}
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one [[models]] entry is required")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true

		if !slices.Contains(ValidProviderKinds(), m.Provider) {
			return fmt.Errorf("model %q: unknown provider %q (available: %v)",
				m.Name, m.Provider, ValidProviderKinds())
		}
		if m.Model == "" {
			return fmt.Errorf("model %q: model identifier is required", m.Name)
		}
		if m.RequestsPerMinute < 1 {
			return fmt.Errorf("model %q: requests_per_minute must be at least 1, got %d",
				m.Name, m.RequestsPerMinute)
		}
	}

	if !c.Evaluation.WithContext && !c.Evaluation.WithoutContext {
		return fmt.Errorf("both evaluation modes are disabled; enable with_context, without_context, or both")
	}

	if c.Events.Provider == "kafka" && c.Events.KafkaBrokers == "" {
		return fmt.Errorf("events.kafka_brokers is required for the kafka provider")
	}

	return nil
}
