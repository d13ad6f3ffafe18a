package vector

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 - cosine_similarity(a, b), accumulated in float64.
// The result is 0 for identical direction and up to 2 for opposite direction.
// Returns ErrZeroVector when either vector has zero magnitude and
// ErrDimensionMismatch when lengths differ.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}

	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}
