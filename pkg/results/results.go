// Package results persists evaluation records as append-only JSONL. The
// store is the source of truth for resumption: a record's
// (validation_id, model_name, with_context) triple is written exactly once,
// and re-runs skip triples already on disk.
package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// EvaluationRecord is the unit of output, one JSONL line per dispatch.
type EvaluationRecord struct {
	ValidationID          string          `json:"validation_id"`
	ModelName             string          `json:"model_name"`
	WithContext           bool            `json:"with_context"`
	EmbeddingProvider     string          `json:"embedding_provider"`
	TopKSimilar           int             `json:"top_k_similar"`
	ImageURL              string          `json:"image_url"`
	RealQuestion          string          `json:"real_question"`
	CrowdMajority         string          `json:"crowd_majority"`
	SimilarImages         []vector.Result `json:"similar_images"`
	PromptUsed            string          `json:"prompt_used"`
	LLMResponse           string          `json:"llm_response"`
	Timestamp             time.Time       `json:"timestamp"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	Error                 string          `json:"error,omitempty"`
}

// Key is the natural key for idempotent resumption.
type Key struct {
	ValidationID string
	ModelName    string
	WithContext  bool
}

// KeyOf extracts the natural key from a record.
func KeyOf(rec EvaluationRecord) Key {
	return Key{
		ValidationID: rec.ValidationID,
		ModelName:    rec.ModelName,
		WithContext:  rec.WithContext,
	}
}

// Store is an append-only JSONL store with an in-memory key index.
// Appending flushes and fsyncs before returning, so a record acknowledged to
// the caller survives a crash. Records are never rewritten.
type Store struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	keys   map[Key]struct{}
	logger *zap.Logger
}

// Open creates or opens the JSONL file at path and indexes existing records.
// A truncated final line (crash mid-append) is tolerated and ignored; its
// triple will be evaluated again.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}

	keys := make(map[Key]struct{})

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading results file: %w", err)
	}

	var skipped int
	for _, line := range splitLines(existing) {
		var rec EvaluationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Either a torn final line or garbage; count it and move on.
			skipped++
			continue
		}
		keys[KeyOf(rec)] = struct{}{}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening results file: %w", err)
	}

	// A file not ending in a newline carries a torn final line. Terminate it
	// so the next append starts on a fresh line instead of extending garbage.
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := file.Write([]byte{'\n'}); err != nil {
			file.Close()
			return nil, fmt.Errorf("terminating torn line: %w", err)
		}
	}

	logger.Info("opened results store",
		zap.String("path", path),
		zap.Int("existing", len(keys)),
		zap.Int("skipped_lines", skipped),
	)

	return &Store{
		file:   file,
		writer: bufio.NewWriter(file),
		keys:   keys,
		logger: logger,
	}, nil
}

// Contains reports whether the triple already has a persisted record.
func (s *Store) Contains(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok
}

// Count returns the number of indexed records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Append durably writes one record. Duplicate triples are rejected so a
// record can never be written twice.
func (s *Store) Append(rec EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyOf(rec)
	if _, ok := s.keys[key]; ok {
		return fmt.Errorf("record already persisted for %s/%s/with_context=%t",
			key.ValidationID, key.ModelName, key.WithContext)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flushing record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing record: %w", err)
	}

	s.keys[key] = struct{}{}

	return nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// splitLines splits on newlines, dropping empty lines. The final element may
// be a torn line without a trailing newline; the caller decides what to do
// with lines that fail to parse.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
