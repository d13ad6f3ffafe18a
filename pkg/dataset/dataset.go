// Package dataset loads the precomputed embedding dumps produced by the
// multimodal embedding service. Each dump is a single JSON document holding
// an items array; every item carries a stable ID, an embedding vector, and
// the metadata needed for prompting (image URL, question, crowd answer).
package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Sample is one dataset entry with its precomputed embedding.
type Sample struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata holds the prompting fields attached to a sample.
type Metadata struct {
	ImageURL      string `json:"image_url"`
	Question      string `json:"question"`
	CrowdMajority string `json:"crowd_majority"`
}

// dump is the on-disk shape of an embedding dump file.
type dump struct {
	Items []Sample `json:"items"`
}

// Load reads an embedding dump and verifies every embedding has the expected
// dimensionality. Dump order is preserved.
func Load(path string, dims int, logger *zap.Logger) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embedding dump: %w", err)
	}

	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing embedding dump %s: %w", path, err)
	}

	seen := make(map[string]bool, len(d.Items))
	for i, s := range d.Items {
		if s.ID == "" {
			return nil, fmt.Errorf("embedding dump %s: item %d has no id", path, i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("embedding dump %s: duplicate id %q", path, s.ID)
		}
		seen[s.ID] = true

		if len(s.Embedding) != dims {
			return nil, fmt.Errorf("embedding dump %s: item %q has %d dims, expected %d",
				path, s.ID, len(s.Embedding), dims)
		}
	}

	logger.Info("loaded embedding dump",
		zap.String("path", path),
		zap.Int("samples", len(d.Items)),
		zap.Int("dims", dims),
	)

	return d.Items, nil
}

// Filter narrows a sample list for a run. When onlyID is non-empty only that
// sample is kept; otherwise maxSamples caps the list (zero means no cap).
// Order is preserved, so repeated runs see the same prefix.
func Filter(samples []Sample, onlyID string, maxSamples int) []Sample {
	if onlyID != "" {
		for _, s := range samples {
			if s.ID == onlyID {
				return []Sample{s}
			}
		}
		return nil
	}

	if maxSamples > 0 && maxSamples < len(samples) {
		return samples[:maxSamples]
	}

	return samples
}
