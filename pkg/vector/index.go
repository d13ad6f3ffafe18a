// Package vector provides interfaces and implementations for persistent
// embedding storage and nearest-neighbor retrieval.
package vector

import "context"

// Record is a stored embedding with its identifying metadata. Records are
// immutable once added to a collection.
type Record struct {
	// ID uniquely identifies the record within its collection.
	ID string

	// Vector is the embedding. Its length must match the collection
	// dimensionality.
	Vector []float64

	// Metadata holds scalar fields carried alongside the embedding
	// (image_url, question, crowd_majority, ...).
	Metadata map[string]any
}

// Result is a read-only projection of a matched record plus its cosine
// distance to the query vector.
type Result struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchOptions carries optional search behavior. Construct via SearchOption
// functions.
type SearchOptions struct {
	// ExcludeIDs are record IDs filtered out of the result set before it is
	// truncated to k, so exclusion does not shrink the neighbor count.
	ExcludeIDs map[string]struct{}
}

// SearchOption mutates SearchOptions.
type SearchOption func(*SearchOptions)

// ExcludeID removes the given record ID from search results. Used by the
// evaluation loop so a sample never retrieves itself.
func ExcludeID(id string) SearchOption {
	return func(o *SearchOptions) {
		if o.ExcludeIDs == nil {
			o.ExcludeIDs = make(map[string]struct{})
		}
		o.ExcludeIDs[id] = struct{}{}
	}
}

// ApplyOptions folds a list of SearchOptions into a SearchOptions value.
func ApplyOptions(opts []SearchOption) SearchOptions {
	var o SearchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Collection is a named set of records sharing a fixed dimensionality and a
// cosine similarity metric.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Dims returns the fixed vector dimensionality of the collection.
	Dims() int

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Add stores a record. Returns ErrDuplicateID if the ID is already
	// present and ErrDimensionMismatch if the vector length disagrees with
	// the collection dimensionality.
	Add(ctx context.Context, rec Record) error

	// Search returns the k nearest records to the query vector by cosine
	// distance, strictly ascending, ties broken by ascending ID. The result
	// length is min(k, collection size after exclusions). Returns
	// ErrEmptyCollection when the collection holds no records and k > 0,
	// and ErrZeroVector when the query has zero magnitude.
	Search(ctx context.Context, query []float64, k int, opts ...SearchOption) ([]Result, error)

	// Snapshot returns all records in insertion order. Used by the dataset
	// cleaning workflow to walk the training collection.
	Snapshot(ctx context.Context) ([]Record, error)
}

// Index opens named collections. Opening an existing collection is a no-op
// with content intact; it never re-inserts or drops records.
type Index interface {
	// CreateOrOpenCollection opens the named collection, creating it when
	// absent. Returns ErrDimensionMismatch if dims disagrees with the stored
	// dimensionality.
	CreateOrOpenCollection(ctx context.Context, name string, dims int) (Collection, error)

	// Close releases any resources held by the index.
	Close() error
}
