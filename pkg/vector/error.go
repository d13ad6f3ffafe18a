package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees with
	// the collection dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrDuplicateID is returned when adding a record whose ID already exists
	// in the collection.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrEmptyCollection is returned when searching a collection with no
	// records.
	ErrEmptyCollection = errors.New("empty collection")

	// ErrZeroVector is returned when cosine distance is undefined because a
	// vector has zero magnitude.
	ErrZeroVector = errors.New("zero magnitude vector")
)
