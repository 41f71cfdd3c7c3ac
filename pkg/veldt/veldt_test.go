package veldt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
	"github.com/veldtdb/veldt/pkg/vectorindex"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		DatabasePath: filepath.Join(dir, "veldt.db"),
		DataDir:      dir,
		DefaultIndex: graph.VectorIndexConfig{
			M:              16,
			Ef:             100,
			EfConstruction: 200,
			Threshold:      1,
		},
	}
}

func openTestDB(t *testing.T, opts Options) *DB {
	t.Helper()
	db, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedGraphWithVectors(t *testing.T, db *DB, count int) (*graph.Tenant, *graph.Graph, []*graph.Node) {
	t.Helper()
	ctx := context.Background()

	tenant, err := db.CreateTenant(ctx, &graph.Tenant{Name: "acme", Active: true})
	require.NoError(t, err)
	g, err := db.CreateGraph(ctx, &graph.Graph{TenantGUID: tenant.GUID, Name: "knowledge"})
	require.NoError(t, err)

	nodes := make([]*graph.Node, 0, count)
	for i := 0; i < count; i++ {
		n, err := db.CreateNode(ctx, &graph.Node{
			TenantGUID: tenant.GUID,
			GraphGUID:  g.GUID,
			Name:       fmt.Sprintf("node-%03d", i),
			Vectors: []*graph.Vector{{
				Model:     "test-embedder",
				Embedding: basisVector(i, count),
			}},
		})
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	return tenant, g, nodes
}

// basisVector spreads nodes over distinct directions in a space wide
// enough for the whole set.
func basisVector(i, count int) []float32 {
	v := make([]float32, count)
	v[i] = 1
	return v
}

func nodeQuery(tenantGUID, graphGUID string, embedding []float32) *graph.VectorSearchRequest {
	return &graph.VectorSearchRequest{
		TenantGUID: tenantGUID,
		GraphGUID:  graphGUID,
		Domain:     graph.SearchDomainNode,
		SearchType: graph.SearchCosineSimilarity,
		Embedding:  embedding,
		TopK:       3,
	}
}

func TestSearchVectors_BruteForceWithoutIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, nodes := seedGraphWithVectors(t, db, 4)

	results, err := db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(2, 4)))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, nodes[2].GUID, results[0].NodeGUID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearchVectors_IndexedLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, nodes := seedGraphWithVectors(t, db, 8)

	err := db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 8,
	})
	require.NoError(t, err)

	// The applied configuration is persisted on the graph row.
	stored, err := db.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	require.NotNil(t, stored.VectorIndex)
	assert.Equal(t, graph.VectorIndexRAM, stored.VectorIndex.Type)
	assert.Equal(t, 16, stored.VectorIndex.M)

	stats, err := db.GetVectorIndexStatistics(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.Equal(t, vectorindex.StateReady, stats.State)
	assert.Equal(t, 8, stats.VectorCount)

	results, err := db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(5, 8)))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, nodes[5].GUID, results[0].NodeGUID)

	// New nodes are searchable without a rebuild.
	extra, err := db.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID,
		GraphGUID:  g.GUID,
		Name:       "late arrival",
		Vectors: []*graph.Vector{{
			Model:     "test-embedder",
			Embedding: []float32{0.7, 0.7, 0, 0, 0, 0, 0, 0},
		}},
	})
	require.NoError(t, err)

	results, err = db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, []float32{0.7, 0.7, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, extra.GUID, results[0].NodeGUID)

	// Deleting a node drops its vectors from the index.
	require.NoError(t, db.DeleteNode(ctx, tenant.GUID, g.GUID, nodes[5].GUID))
	results, err = db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(5, 8)))
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, nodes[5].GUID, r.NodeGUID)
	}
}

func TestSearchVectors_ThresholdFallsBackToBruteForce(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.DefaultIndex.Threshold = 100
	db := openTestDB(t, opts)
	tenant, g, nodes := seedGraphWithVectors(t, db, 4)

	err := db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 4,
	})
	require.NoError(t, err)

	// Far below the threshold the store scan still answers exactly.
	results, err := db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(1, 4)))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, nodes[1].GUID, results[0].NodeGUID)
}

func TestDisableVectorIndexing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, nodes := seedGraphWithVectors(t, db, 4)

	require.NoError(t, db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 4,
	}))
	require.NoError(t, db.DisableVectorIndexing(ctx, tenant.GUID, g.GUID))

	stored, err := db.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	require.NotNil(t, stored.VectorIndex)
	assert.Equal(t, graph.VectorIndexNone, stored.VectorIndex.Type)

	stats, err := db.GetVectorIndexStatistics(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.Equal(t, vectorindex.StateDisabled, stats.State)
	assert.Equal(t, 4, stats.VectorCount)

	// Searches keep working through the exhaustive path.
	results, err := db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(0, 4)))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, nodes[0].GUID, results[0].NodeGUID)
}

func TestRebuildVectorIndex_ReplacesConfig(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, _ := seedGraphWithVectors(t, db, 4)

	require.NoError(t, db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 4,
	}))

	require.NoError(t, db.RebuildVectorIndex(ctx, tenant.GUID, g.GUID, &graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 4,
		M:          8,
		Ef:         64,
	}))

	stored, err := db.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	require.NotNil(t, stored.VectorIndex)
	assert.Equal(t, 8, stored.VectorIndex.M)
	assert.Equal(t, 64, stored.VectorIndex.Ef)

	_, err = db.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(3, 4)))
	require.NoError(t, err)

	// Rebuilding a graph that never enabled indexing fails.
	other, err := db.CreateGraph(ctx, &graph.Graph{TenantGUID: tenant.GUID, Name: "bare"})
	require.NoError(t, err)
	err = db.RebuildVectorIndex(ctx, tenant.GUID, other.GUID, nil)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestOpen_RestoresFileIndexes(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)

	db, err := Open(opts)
	require.NoError(t, err)
	tenant, g, nodes := seedGraphWithVectors(t, db, 6)
	require.NoError(t, db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexFile,
		Dimensions: 6,
	}))
	require.NoError(t, db.Close())

	reopened := openTestDB(t, opts)
	stats, err := reopened.GetVectorIndexStatistics(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.Equal(t, vectorindex.StateReady, stats.State)
	assert.Equal(t, 6, stats.VectorCount)
	assert.Equal(t, graph.VectorIndexFile, stats.Type)

	results, err := reopened.SearchVectors(ctx, nodeQuery(tenant.GUID, g.GUID, basisVector(2, 6)))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, nodes[2].GUID, results[0].NodeGUID)
}

func TestDeleteGraph_DropsIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, _ := seedGraphWithVectors(t, db, 4)

	require.NoError(t, db.EnableVectorIndexing(ctx, tenant.GUID, g.GUID, graph.VectorIndexConfig{
		Type:       graph.VectorIndexRAM,
		Dimensions: 4,
	}))
	require.NoError(t, db.DeleteGraph(ctx, tenant.GUID, g.GUID, true))

	_, err := db.GetVectorIndexStatistics(ctx, tenant.GUID, g.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestSearchVectors_Validation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testOptions(t))
	tenant, g, _ := seedGraphWithVectors(t, db, 2)

	_, err := db.SearchVectors(ctx, &graph.VectorSearchRequest{
		GraphGUID:  g.GUID,
		SearchType: graph.SearchCosineSimilarity,
		Embedding:  []float32{1, 0},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	_, err = db.SearchVectors(ctx, &graph.VectorSearchRequest{
		TenantGUID: tenant.GUID,
		GraphGUID:  g.GUID,
		SearchType: "sideways",
		Embedding:  []float32{1, 0},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	_, err = db.SearchVectors(ctx, nodeQuery(tenant.GUID, "no-such-graph", []float32{1, 0}))
	assert.ErrorIs(t, err, graph.ErrNotFound)
}
