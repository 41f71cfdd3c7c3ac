// Package vectorindex maintains per-graph approximate nearest-neighbor
// indexes over embedding vectors, with a brute-force fallback that reads
// straight from the repository.
package vectorindex

import (
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
	"github.com/veldtdb/veldt/pkg/math/vector"
)

// scorePair carries both views of a comparison so callers can populate
// results without recomputing.
type scorePair struct {
	score    float64
	distance float64
}

// evaluate computes the requested metric between query and candidate.
// The score field is the metric value itself; distance is the matching
// distance form (1-cos for the cosine metrics, the raw distance for
// Euclidean, negated value for dot product so lower is always closer).
func evaluate(searchType graph.SearchType, query, candidate []float32) (scorePair, error) {
	switch searchType {
	case graph.SearchCosineSimilarity:
		sim := vector.CosineSimilarity(query, candidate)
		return scorePair{score: sim, distance: 1.0 - sim}, nil
	case graph.SearchCosineDistance:
		dist := vector.CosineDistance(query, candidate)
		return scorePair{score: dist, distance: dist}, nil
	case graph.SearchEuclideanDistance:
		dist := vector.EuclideanDistance(query, candidate)
		return scorePair{score: dist, distance: dist}, nil
	case graph.SearchDotProduct:
		dot := vector.DotProduct(query, candidate)
		return scorePair{score: dot, distance: -dot}, nil
	default:
		return scorePair{}, fmt.Errorf("%w: unknown search type %q", graph.ErrValidation, searchType)
	}
}

// higherIsBetter reports the ranking direction of the metric.
func higherIsBetter(searchType graph.SearchType) bool {
	switch searchType {
	case graph.SearchCosineSimilarity, graph.SearchDotProduct:
		return true
	default:
		return false
	}
}

// betterScore reports whether a outranks b under the metric.
func betterScore(searchType graph.SearchType, a, b float64) bool {
	if higherIsBetter(searchType) {
		return a > b
	}
	return a < b
}

// passesMinScore applies the optional cutoff: similarity metrics drop
// results scoring below it, distance metrics drop results above it.
func passesMinScore(searchType graph.SearchType, minScore *float64, score float64) bool {
	if minScore == nil {
		return true
	}
	if higherIsBetter(searchType) {
		return score >= *minScore
	}
	return score <= *minScore
}
