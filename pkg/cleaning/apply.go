package cleaning

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/results"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// ApplyStats summarizes one cleaning pass.
type ApplyStats struct {
	Total      int
	Eliminated int
	Kept       int
	// ScrubbedNeighbors counts similar_images entries removed from kept
	// records.
	ScrubbedNeighbors int
}

// WriteDiscards saves discard entries as indented JSON for manual review.
func WriteDiscards(path string, entries []DiscardEntry) error {
	if entries == nil {
		entries = []DiscardEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling discard entries: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating discard directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing discard file: %w", err)
	}
	return nil
}

// ReadDiscardIDs loads the id set from a discard file, typically after a
// manual review pass has pruned it.
func ReadDiscardIDs(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading discard file: %w", err)
	}

	var entries []DiscardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing discard file %s: %w", path, err)
	}

	ids := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		ids[entry.ID] = struct{}{}
	}
	return ids, nil
}

// Apply rewrites an evaluation JSONL, dropping records whose validation id
// was discarded and scrubbing discarded train ids out of each surviving
// record's similar images. The input file is left untouched.
func Apply(inputPath, outputPath string, validationDiscards, trainDiscards map[string]struct{}, logger *zap.Logger) (ApplyStats, error) {
	var stats ApplyStats
	if logger == nil {
		logger = zap.NewNop()
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("opening evaluation file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return stats, fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return stats, fmt.Errorf("creating cleaned file: %w", err)
	}
	defer out.Close()

	writer := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var rec results.EvaluationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return stats, fmt.Errorf("parsing evaluation record on line %d: %w", stats.Total, err)
		}

		if _, discard := validationDiscards[rec.ValidationID]; discard {
			stats.Eliminated++
			logger.Debug("eliminating record", zap.String("validation_id", rec.ValidationID))
			continue
		}

		kept := make([]vector.Result, 0, len(rec.SimilarImages))
		for _, img := range rec.SimilarImages {
			if _, discard := trainDiscards[img.ID]; discard {
				stats.ScrubbedNeighbors++
				continue
			}
			kept = append(kept, img)
		}
		rec.SimilarImages = kept

		data, err := json.Marshal(rec)
		if err != nil {
			return stats, fmt.Errorf("marshaling cleaned record: %w", err)
		}
		if _, err := writer.Write(data); err != nil {
			return stats, fmt.Errorf("writing cleaned record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return stats, fmt.Errorf("writing cleaned record: %w", err)
		}
		stats.Kept++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading evaluation file: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return stats, fmt.Errorf("flushing cleaned file: %w", err)
	}
	if err := out.Sync(); err != nil {
		return stats, fmt.Errorf("syncing cleaned file: %w", err)
	}

	logger.Info("cleaning applied",
		zap.Int("total", stats.Total),
		zap.Int("eliminated", stats.Eliminated),
		zap.Int("kept", stats.Kept),
		zap.Int("scrubbed_neighbors", stats.ScrubbedNeighbors))

	return stats, nil
}
