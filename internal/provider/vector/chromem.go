package vector

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex implements Index on an embedded chromem-go collection.
// With an empty path the index lives in memory; otherwise it persists
// under the given directory.
type ChromemIndex struct {
	collection *chromem.Collection
}

// NewChromemIndex opens (or creates) the named collection.
func NewChromemIndex(path, name string) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store at %s: %w", path, err)
		}
	}

	// Embeddings are always supplied by the caller, so the collection's
	// own embedding func must never run.
	collection, err := db.GetOrCreateCollection(name, nil, unusedEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}
	return &ChromemIndex{collection: collection}, nil
}

func unusedEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding must be precomputed")
}

// Add implements Index.
func (i *ChromemIndex) Add(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	for n, id := range ids {
		doc := chromem.Document{
			ID:        id,
			Embedding: Normalize(vectors[n]),
		}
		if metadata != nil && n < len(metadata) {
			doc.Metadata = metadata[n]
		}
		if err := i.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index %s: %w", id, err)
		}
	}
	return nil
}

// Search implements Index.
func (i *ChromemIndex) Search(ctx context.Context, query []float32, k int, threshold float32) ([]Match, error) {
	size := i.collection.Count()
	if size == 0 || k <= 0 {
		return nil, nil
	}
	if k > size {
		k = size
	}

	results, err := i.collection.QueryEmbedding(ctx, Normalize(query), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{DocID: r.ID, Score: r.Similarity})
	}
	return matches, nil
}

// Size implements Index.
func (i *ChromemIndex) Size() int { return i.collection.Count() }
