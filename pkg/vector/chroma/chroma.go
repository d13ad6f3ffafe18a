// Package chroma provides a Chroma vector database index over its REST API.
// Collections are created with the cosine space and carry their fixed
// dimensionality in collection metadata, so reopening can verify agreement.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// Index implements vector.Index using Chroma's REST API.
type Index struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the Chroma index.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string
}

// NewIndex creates a new Chroma-backed index.
func NewIndex(c Config, logger *zap.Logger) (*Index, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	return &Index{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Close releases resources held by the index.
func (ix *Index) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func (ix *Index) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections", ix.baseURL)
}

// CreateOrOpenCollection gets an existing collection or creates a new one
// configured for cosine distance. Dimensionality is recorded in collection
// metadata and verified on reopen.
func (ix *Index) CreateOrOpenCollection(ctx context.Context, name string, dims int) (vector.Collection, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensionality must be positive, got %d", vector.ErrDimensionMismatch, dims)
	}

	// Try to get the existing collection first
	url := fmt.Sprintf("%s/%s", ix.collectionsURL(), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating get request: %w", err)
	}

	resp, err := ix.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var coll chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
			return nil, fmt.Errorf("decoding collection response: %w", err)
		}

		if stored, ok := coll.Metadata["dimensions"]; ok {
			if storedDims, ok := toInt(stored); ok && storedDims != dims {
				return nil, fmt.Errorf("%w: collection %q has dims %d, requested %d",
					vector.ErrDimensionMismatch, name, storedDims, dims)
			}
		}

		return ix.newCollection(name, coll.ID, dims), nil
	}

	// Collection doesn't exist, create it
	createBody := chromaCreateRequest{
		Name: name,
		Metadata: map[string]any{
			"hnsw:space": "cosine",
			"dimensions": dims,
		},
	}
	jsonBody, err := json.Marshal(createBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, ix.collectionsURL(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = ix.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var coll chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}

	ix.logger.Info("created chroma collection",
		zap.String("name", name),
		zap.String("collection_id", coll.ID),
		zap.Int("dims", dims),
	)

	return ix.newCollection(name, coll.ID, dims), nil
}

func (ix *Index) newCollection(name, id string, dims int) *Collection {
	return &Collection{
		baseURL:      ix.baseURL,
		name:         name,
		collectionID: id,
		dims:         dims,
		httpClient:   ix.httpClient,
		logger:       ix.logger,
	}
}

// Collection implements vector.Collection over one Chroma collection.
type Collection struct {
	baseURL      string
	name         string
	collectionID string
	dims         int
	httpClient   *http.Client
	logger       *zap.Logger
}

func (c *Collection) Name() string { return c.name }
func (c *Collection) Dims() int    { return c.dims }

func (c *Collection) url(op string) string {
	return fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/%s",
		c.baseURL, c.collectionID, op)
}

func (c *Collection) post(ctx context.Context, op string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(op), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: status %d: %s", op, resp.StatusCode, string(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", op, err)
		}
	}

	return nil
}

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("count"), nil)
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending count request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("count failed: status %d: %s", resp.StatusCode, string(payload))
	}

	var n int
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}

	return n, nil
}

// Add stores one record. Chroma upserts silently on duplicate ids, so
// existence is checked first to honor the duplicate-rejection contract.
func (c *Collection) Add(ctx context.Context, rec vector.Record) error {
	if len(rec.Vector) != c.dims {
		return fmt.Errorf("%w: record %q has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), c.name, c.dims)
	}

	var existing chromaGetResponse
	if err := c.post(ctx, "get", chromaGetRequest{IDs: []string{rec.ID}, Include: []string{}}, &existing); err != nil {
		return err
	}
	if len(existing.IDs) > 0 {
		return fmt.Errorf("%w: %q in collection %q", vector.ErrDuplicateID, rec.ID, c.name)
	}

	reqBody := chromaAddRequest{
		IDs:        []string{rec.ID},
		Embeddings: [][]float64{rec.Vector},
		Metadatas:  []map[string]any{rec.Metadata},
	}
	if err := c.post(ctx, "add", reqBody, nil); err != nil {
		return err
	}

	c.logger.Debug("added record to chroma",
		zap.String("collection", c.name),
		zap.String("id", rec.ID),
	)

	return nil
}

// Search runs a KNN query. Chroma returns cosine distance (1 - similarity)
// for collections created with the cosine space. Excluded ids are filtered
// after the query, which over-fetches so k is not shrunk.
func (c *Collection) Search(ctx context.Context, query []float64, k int, opts ...vector.SearchOption) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != c.dims {
		return nil, fmt.Errorf("%w: query has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, len(query), c.name, c.dims)
	}
	if isZero(query) {
		return nil, fmt.Errorf("%w: query", vector.ErrZeroVector)
	}

	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %q", vector.ErrEmptyCollection, c.name)
	}

	o := vector.ApplyOptions(opts)

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float64{query},
		NResults:        k + len(o.ExcludeIDs),
		Include:         []string{"metadatas", "distances"},
	}

	var queryResp chromaQueryResponse
	if err := c.post(ctx, "query", reqBody, &queryResp); err != nil {
		return nil, err
	}

	var results []vector.Result
	if len(queryResp.IDs) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	for i, id := range ids {
		if _, skip := o.ExcludeIDs[id]; skip {
			continue
		}

		result := vector.Result{ID: id}
		if i < len(distances) {
			result.Distance = distances[i]
		}
		if i < len(metadatas) {
			result.Metadata = metadatas[i]
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}

	c.logger.Debug("queried chroma",
		zap.String("collection", c.name),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Snapshot returns every stored record with its embedding and metadata.
func (c *Collection) Snapshot(ctx context.Context) ([]vector.Record, error) {
	var getResp chromaGetResponse
	if err := c.post(ctx, "get", chromaGetRequest{Include: []string{"metadatas", "embeddings"}}, &getResp); err != nil {
		return nil, err
	}

	records := make([]vector.Record, len(getResp.IDs))
	for i, id := range getResp.IDs {
		records[i] = vector.Record{ID: id}
		if i < len(getResp.Embeddings) {
			records[i].Vector = getResp.Embeddings[i]
		}
		if i < len(getResp.Metadatas) {
			records[i].Metadata = getResp.Metadatas[i]
		}
	}

	return records, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func isZero(v []float64) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
