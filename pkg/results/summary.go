package results

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// SummaryRow aggregates the records for one model and mode.
type SummaryRow struct {
	ModelName             string
	WithContext           bool
	Total                 int
	Failed                int
	MeanProcessingSeconds float64
}

// Summarize reads a results JSONL and aggregates it per model and mode.
// Rows are sorted by model name, with-context first within a model.
// Unparseable lines are skipped, matching Open's tolerance for a torn tail.
func Summarize(path string) ([]SummaryRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results file: %w", err)
	}

	type bucket struct {
		row     SummaryRow
		seconds float64
	}
	buckets := make(map[Key]*bucket)

	for _, line := range splitLines(data) {
		var rec EvaluationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		key := Key{ModelName: rec.ModelName, WithContext: rec.WithContext}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{row: SummaryRow{ModelName: rec.ModelName, WithContext: rec.WithContext}}
			buckets[key] = b
		}
		b.row.Total++
		if rec.Error != "" {
			b.row.Failed++
		}
		b.seconds += rec.ProcessingTimeSeconds
	}

	rows := make([]SummaryRow, 0, len(buckets))
	for _, b := range buckets {
		if b.row.Total > 0 {
			b.row.MeanProcessingSeconds = b.seconds / float64(b.row.Total)
		}
		rows = append(rows, b.row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ModelName != rows[j].ModelName {
			return rows[i].ModelName < rows[j].ModelName
		}
		return rows[i].WithContext && !rows[j].WithContext
	})
	return rows, nil
}
