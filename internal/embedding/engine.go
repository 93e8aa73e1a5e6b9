// Package embedding generates fixed-dimension vector embeddings for
// conversation text and scores them by cosine similarity for the Context
// Aggregator's semantic and hybrid retrieval strategies.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Engine generates vector embeddings for text. A single Engine instance is
// shared for the process lifetime; the underlying model/client is loaded
// lazily on first call, grounded on codenerd/internal/embedding/engine.go's
// EmbeddingEngine interface.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// NoEmbedding is the sentinel "could not embed this text" result. Callers
// must treat a nil vector (or one whose length doesn't match Dimensions)
// as this sentinel and skip semantic scoring for that record, per
// SPEC_FULL.md §4.3's graceful-degradation requirement.
var NoEmbedding []float32

// CosineSimilarity returns dot(a,b) / (||a||*||b||), 0 if either vector has
// zero magnitude. Ported from codenerd/internal/embedding/engine.go.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		magA += float64(a[i] * a[i])
		magB += float64(b[i] * b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// SimilarityResult is one scored entry from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK scores every vector in corpus against query and returns the k
// highest-similarity results, descending. Vectors whose dimension doesn't
// match query are skipped rather than erroring the whole search.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}

	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if len(results) > k {
		results = results[:k]
	}
	return results
}
