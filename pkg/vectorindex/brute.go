package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/veldtdb/veldt/pkg/graph"
)

// BruteForceSearch scores every vector of the graph straight from the
// relational store. Exact by construction, so it is the reference
// behavior the index approximates, and the fallback whenever the index
// is disabled, building, stale, or below its size threshold.
func BruteForceSearch(ctx context.Context, source VectorSource, req *graph.VectorSearchRequest) ([]*graph.VectorSearchResult, error) {
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding required", graph.ErrValidation)
	}
	if !req.SearchType.Valid() {
		return nil, fmt.Errorf("%w: unknown search type %q", graph.ErrValidation, req.SearchType)
	}

	var results []*graph.VectorSearchResult
	err := source.ReadVectorsForGraph(ctx, req.TenantGUID, req.GraphGUID, req.Domain, func(v *graph.Vector) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", graph.ErrStorage, err)
		}
		if len(v.Embedding) != len(req.Embedding) {
			// Dimensionality enforcement happens at write time; skip
			// rather than fail if an older graph holds mixed sizes.
			return nil
		}
		pair, err := evaluate(req.SearchType, req.Embedding, v.Embedding)
		if err != nil {
			return err
		}
		if !passesMinScore(req.SearchType, req.MinScore, pair.score) {
			return nil
		}
		results = append(results, &graph.VectorSearchResult{
			VectorGUID: v.GUID,
			NodeGUID:   v.NodeGUID,
			EdgeGUID:   v.EdgeGUID,
			Score:      pair.score,
			Distance:   pair.distance,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return betterScore(req.SearchType, results[i].Score, results[j].Score)
	})
	if req.TopK > 0 && len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}
