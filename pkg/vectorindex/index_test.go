package vectorindex

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

// memorySource is a VectorSource backed by a slice, standing in for the
// repository in index tests.
type memorySource struct {
	vectors []*graph.Vector
}

func (s *memorySource) ReadVectorsForGraph(ctx context.Context, tenantGUID, graphGUID string, domain graph.SearchDomain, fn func(*graph.Vector) error) error {
	for _, v := range s.vectors {
		switch domain {
		case graph.SearchDomainNode:
			if v.NodeGUID == "" {
				continue
			}
		case graph.SearchDomainEdge:
			if v.EdgeGUID == "" {
				continue
			}
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func nodeVector(guid, nodeGUID string, embedding []float32) *graph.Vector {
	return &graph.Vector{
		GUID:           guid,
		NodeGUID:       nodeGUID,
		Embedding:      embedding,
		Dimensionality: len(embedding),
	}
}

func ramConfig(dims, threshold int) graph.VectorIndexConfig {
	return graph.VectorIndexConfig{
		Type:           graph.VectorIndexRAM,
		Dimensions:     dims,
		M:              16,
		Ef:             100,
		EfConstruction: 200,
		Threshold:      threshold,
	}
}

func searchRequest(embedding []float32, topK int) *graph.VectorSearchRequest {
	return &graph.VectorSearchRequest{
		TenantGUID: "tenant-1",
		GraphGUID:  "graph-1",
		Domain:     graph.SearchDomainNode,
		SearchType: graph.SearchCosineSimilarity,
		Embedding:  embedding,
		TopK:       topK,
	}
}

func TestManager_EnableAndSearch(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("v1", "n1", []float32{1, 0, 0, 0}),
		nodeVector("v2", "n2", []float32{0.9, 0.1, 0, 0}),
		nodeVector("v3", "n3", []float32{0, 1, 0, 0}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(4, 1), source)
	require.NoError(t, err)
	require.NotNil(t, ix)

	stats := ix.Stats()
	assert.Equal(t, StateReady, stats.State)
	assert.Equal(t, 3, stats.VectorCount)
	assert.False(t, stats.Stale)

	results, ok, err := ix.Search(searchRequest([]float32{1, 0, 0, 0}, 2))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].VectorGUID)
	assert.Equal(t, "n1", results[0].NodeGUID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "v2", results[1].VectorGUID)
}

func TestGraphIndex_ThresholdFallback(t *testing.T) {
	ctx := context.Background()
	const threshold = 5

	source := &memorySource{}
	for i := 0; i < threshold-1; i++ {
		source.vectors = append(source.vectors,
			nodeVector(fmt.Sprintf("v%d", i), fmt.Sprintf("n%d", i), randomUnit(4, int64(i))))
	}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(4, threshold), source)
	require.NoError(t, err)

	// Below threshold the index declines and the caller brute-forces.
	_, ok, err := ix.Search(searchRequest([]float32{1, 0, 0, 0}, 3))
	require.NoError(t, err)
	assert.False(t, ok)

	// The Tth vector tips it over.
	require.NoError(t, ix.Insert(nodeVector("tip", "n-tip", randomUnit(4, 99))))
	_, ok, err = ix.Search(searchRequest([]float32{1, 0, 0, 0}, 3))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGraphIndex_RemovedVectorNeverSurfaces(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("keep", "n1", []float32{1, 0, 0, 0}),
		nodeVector("drop", "n2", []float32{0.99, 0.01, 0, 0}),
		nodeVector("far", "n3", []float32{0, 1, 0, 0}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(4, 1), source)
	require.NoError(t, err)

	require.NoError(t, ix.Remove("drop"))
	require.NoError(t, ix.Remove("drop")) // idempotent

	results, ok, err := ix.Search(searchRequest([]float32{1, 0, 0, 0}, 10))
	require.NoError(t, err)
	require.True(t, ok)
	for _, r := range results {
		assert.NotEqual(t, "drop", r.VectorGUID)
	}
}

func TestGraphIndex_StaleDeclinesUntilRebuild(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("v1", "n1", []float32{1, 0, 0, 0}),
		nodeVector("v2", "n2", []float32{0, 1, 0, 0}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(4, 1), source)
	require.NoError(t, err)

	ix.MarkStale()
	assert.True(t, ix.Stale())

	_, ok, err := ix.Search(searchRequest([]float32{1, 0, 0, 0}, 2))
	require.NoError(t, err)
	assert.False(t, ok)

	rebuilt, err := m.Rebuild(ctx, "tenant-1", "graph-1", nil, source)
	require.NoError(t, err)
	assert.False(t, rebuilt.Stale())

	results, ok, err := rebuilt.Search(searchRequest([]float32{1, 0, 0, 0}, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", results[0].VectorGUID)
}

func TestGraphIndex_MetricRanking(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("near", "n1", []float32{1, 0}),
		nodeVector("mid", "n2", []float32{2, 2}),
		nodeVector("far", "n3", []float32{-3, 0}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(2, 1), source)
	require.NoError(t, err)

	req := searchRequest([]float32{1, 0}, 3)

	req.SearchType = graph.SearchEuclideanDistance
	results, ok, err := ix.Search(req)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].VectorGUID)
	assert.InDelta(t, 0.0, results[0].Score, 1e-6)
	// Euclidean ranks ascending, so the farthest comes last.
	assert.Equal(t, "far", results[2].VectorGUID)

	req.SearchType = graph.SearchDotProduct
	results, ok, err = ix.Search(req)
	require.NoError(t, err)
	require.True(t, ok)
	// Dot product rewards magnitude: (2,2) beats (1,0).
	assert.Equal(t, "mid", results[0].VectorGUID)
	assert.InDelta(t, 2.0, results[0].Score, 1e-6)
}

func TestGraphIndex_MinScoreCutoff(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("aligned", "n1", []float32{1, 0}),
		nodeVector("orthogonal", "n2", []float32{0, 1}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(2, 1), source)
	require.NoError(t, err)

	req := searchRequest([]float32{1, 0}, 10)
	cutoff := 0.5
	req.MinScore = &cutoff

	results, ok, err := ix.Search(req)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned", results[0].VectorGUID)
}

func TestManager_Disable(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("v1", "n1", []float32{1, 0}),
	}}

	m := NewManager()
	_, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(2, 1), source)
	require.NoError(t, err)

	require.NoError(t, m.Disable("tenant-1", "graph-1"))
	assert.Nil(t, m.Get("tenant-1", "graph-1"))

	// Idempotent.
	assert.NoError(t, m.Disable("tenant-1", "graph-1"))

	_, err = m.Rebuild(ctx, "tenant-1", "graph-1", nil, source)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "graph-1")

	cfg := graph.VectorIndexConfig{
		Type:           graph.VectorIndexFile,
		Dimensions:     4,
		M:              16,
		Ef:             100,
		EfConstruction: 200,
		Threshold:      1,
		IndexFile:      dir,
	}
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("v1", "n1", []float32{1, 0, 0, 0}),
		nodeVector("v2", "n2", []float32{0, 1, 0, 0}),
	}}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", cfg, source)
	require.NoError(t, err)
	stats := ix.Stats()
	assert.Equal(t, 2, stats.VectorCount)
	require.NoError(t, m.Close())

	// A new manager reopening the same directory reloads without the
	// source: verify by handing it an empty one.
	m2 := NewManager()
	reopened, err := m2.Enable(ctx, "tenant-1", "graph-1", cfg, &memorySource{})
	require.NoError(t, err)
	defer m2.Close()

	stats = reopened.Stats()
	assert.Equal(t, StateReady, stats.State)
	assert.Equal(t, 2, stats.VectorCount)

	results, ok, err := reopened.Search(searchRequest([]float32{1, 0, 0, 0}, 1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "v1", results[0].VectorGUID)
}

func TestBruteForceSearch_RanksExactly(t *testing.T) {
	ctx := context.Background()
	source := &memorySource{vectors: []*graph.Vector{
		nodeVector("v1", "n1", []float32{1, 0}),
		nodeVector("v2", "n2", []float32{0.5, 0.5}),
		nodeVector("v3", "n3", []float32{0, 1}),
	}}

	results, err := BruteForceSearch(ctx, source, searchRequest([]float32{1, 0}, 2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].VectorGUID)
	assert.Equal(t, "v2", results[1].VectorGUID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	_, err = BruteForceSearch(ctx, source, &graph.VectorSearchRequest{
		TenantGUID: "tenant-1", GraphGUID: "graph-1",
		SearchType: "sideways", Embedding: []float32{1, 0},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)
}

// For identical data, indexed and brute-force search agree on the top
// results and never resurrect removed vectors.
func TestIndexAndBruteForceAgree(t *testing.T) {
	ctx := context.Background()
	const n = 200

	source := &memorySource{}
	for i := 0; i < n; i++ {
		source.vectors = append(source.vectors,
			nodeVector(fmt.Sprintf("v%03d", i), fmt.Sprintf("n%03d", i), randomUnit(8, int64(i))))
	}

	m := NewManager()
	ix, err := m.Enable(ctx, "tenant-1", "graph-1", ramConfig(8, 1), source)
	require.NoError(t, err)

	query := randomUnit(8, 4242)
	req := searchRequest(query, 5)

	exact, err := BruteForceSearch(ctx, source, req)
	require.NoError(t, err)
	require.Len(t, exact, 5)

	approx, ok, err := ix.Search(req)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, approx)

	assert.Equal(t, exact[0].VectorGUID, approx[0].VectorGUID)
	assert.InDelta(t, exact[0].Score, approx[0].Score, 1e-9)
}
