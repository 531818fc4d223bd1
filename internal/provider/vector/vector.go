// Package vector defines the similarity-search contract and a cosine
// normalization helper. Vectors are normalized before indexing or querying
// so inner-product scores equal cosine similarity.
package vector

import (
	"context"
	"math"
)

// Match is one search hit.
type Match struct {
	DocID string  `json:"doc_id"`
	Score float32 `json:"score"`
}

// Index is the similarity-search contract.
type Index interface {
	// Add indexes vectors under ids; metadata entries align with ids and
	// may be nil.
	Add(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error

	// Search returns up to k matches with score >= threshold, best first.
	Search(ctx context.Context, query []float32, k int, threshold float32) ([]Match, error)

	// Size reports the number of indexed vectors.
	Size() int
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
