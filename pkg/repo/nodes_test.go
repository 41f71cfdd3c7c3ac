package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

func TestCreateNode_WithSubordinates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	node, err := c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID,
		GraphGUID:  g.GUID,
		Name:       "alpha",
		Labels:     []string{"concept", "demo"},
		Tags:       map[string]string{"kind": "test", "tier": "1"},
		Data:       map[string]any{"weight": 3.5},
		Vectors: []*graph.Vector{
			{Model: "mini", Content: "alpha text", Embedding: []float32{1, 0, 0, 0}},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, node.GUID)
	require.NotEmpty(t, node.Vectors[0].GUID)
	assert.Equal(t, 4, node.Vectors[0].Dimensionality)

	read, err := c.ReadNode(ctx, tenant.GUID, g.GUID, node.GUID, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"concept", "demo"}, read.Labels)
	assert.Equal(t, "test", read.Tags["kind"])
	require.Len(t, read.Vectors, 1)
	assert.Equal(t, []float32{1, 0, 0, 0}, read.Vectors[0].Embedding)
	assert.Equal(t, node.GUID, read.Vectors[0].NodeGUID)

	// Without the flag, subordinates stay unloaded.
	bare, err := c.ReadNode(ctx, tenant.GUID, g.GUID, node.GUID, false)
	require.NoError(t, err)
	assert.Empty(t, bare.Labels)
	assert.Empty(t, bare.Vectors)
}

func TestCreateNode_UnknownGraph(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)

	_, err := c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: graph.NewGUID(), Name: "orphan",
	})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestCreateNode_CrossTenantGraph(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	other, err := c.CreateTenant(ctx, &graph.Tenant{Name: "other", Active: true})
	require.NoError(t, err)
	g := seedGraph(t, c, tenant.GUID)

	_, err = c.CreateNode(ctx, &graph.Node{
		TenantGUID: other.GUID, GraphGUID: g.GUID, Name: "intruder",
	})
	assert.ErrorIs(t, err, graph.ErrScopeViolation)
}

func TestCreateNode_DimensionEnforcement(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)

	g, err := c.CreateGraph(ctx, &graph.Graph{
		TenantGUID:  tenant.GUID,
		Name:        "fixed-dims",
		VectorIndex: &graph.VectorIndexConfig{Type: graph.VectorIndexRAM, Dimensions: 4},
	})
	require.NoError(t, err)

	_, err = c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "wrong",
		Vectors: []*graph.Vector{{Embedding: []float32{1, 2, 3}}},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	// Matching dimensionality goes through.
	_, err = c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "right",
		Vectors: []*graph.Vector{{Embedding: []float32{1, 2, 3, 4}}},
	})
	assert.NoError(t, err)
}

func TestCreateNode_FirstVectorFixesDimensions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	// No configured dimensionality: the first stored vector sets it.
	_, err := c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "first",
		Vectors: []*graph.Vector{{Embedding: []float32{1, 0}}},
	})
	require.NoError(t, err)

	_, err = c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "second",
		Vectors: []*graph.Vector{{Embedding: []float32{1, 0, 0}}},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)
}

func TestCreateNodes_Batch(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	batch := []*graph.Node{
		{TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "b1"},
		{TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "b2"},
		{TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "b3"},
	}
	created, err := c.CreateNodes(ctx, batch)
	require.NoError(t, err)
	require.Len(t, created, 3)

	page, err := c.EnumerateNodes(ctx, graph.EnumerationRequest{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalRecords)
}

func TestCreateNodes_BatchAtomicity(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	// Second entry references a missing graph, so nothing commits.
	batch := []*graph.Node{
		{TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "ok"},
		{TenantGUID: tenant.GUID, GraphGUID: graph.NewGUID(), Name: "broken"},
	}
	_, err := c.CreateNodes(ctx, batch)
	require.ErrorIs(t, err, graph.ErrNotFound)

	page, err := c.EnumerateNodes(ctx, graph.EnumerationRequest{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.TotalRecords)
}

func TestUpdateNode_ReplacesLabelsAndTags(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	node, err := c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "before",
		Labels: []string{"old"},
		Tags:   map[string]string{"old": "1"},
	})
	require.NoError(t, err)

	node.Name = "after"
	node.Labels = []string{"new-a", "new-b"}
	node.Tags = map[string]string{"new": "2"}
	_, err = c.UpdateNode(ctx, node)
	require.NoError(t, err)

	read, err := c.ReadNode(ctx, tenant.GUID, g.GUID, node.GUID, true)
	require.NoError(t, err)
	assert.Equal(t, "after", read.Name)
	assert.ElementsMatch(t, []string{"new-a", "new-b"}, read.Labels)
	assert.Equal(t, map[string]string{"new": "2"}, read.Tags)
}

func TestUpdateNode_NotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	_, err := c.UpdateNode(ctx, &graph.Node{
		GUID: graph.NewGUID(), TenantGUID: tenant.GUID, GraphGUID: g.GUID, Name: "ghost",
	})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestDeleteNode_CascadesEdges(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	a := seedNode(t, c, tenant.GUID, g.GUID, "a")
	b := seedNode(t, c, tenant.GUID, g.GUID, "b")
	edge, err := c.CreateEdge(ctx, &graph.Edge{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID,
		FromGUID: a.GUID, ToGUID: b.GUID, Name: "links",
		Vectors: []*graph.Vector{{Embedding: []float32{0, 1}}},
	})
	require.NoError(t, err)
	edgeVectorGUID := edge.Vectors[0].GUID

	require.NoError(t, c.DeleteNode(ctx, tenant.GUID, g.GUID, a.GUID))

	_, err = c.ReadNode(ctx, tenant.GUID, g.GUID, a.GUID, false)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadEdge(ctx, tenant.GUID, g.GUID, edge.GUID, false)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadVector(ctx, tenant.GUID, edgeVectorGUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	// The other endpoint survives.
	_, err = c.ReadNode(ctx, tenant.GUID, g.GUID, b.GUID, false)
	assert.NoError(t, err)
}

func TestDeleteNode_Idempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)
	node := seedNode(t, c, tenant.GUID, g.GUID, "gone")

	require.NoError(t, c.DeleteNode(ctx, tenant.GUID, g.GUID, node.GUID))
	assert.NoError(t, c.DeleteNode(ctx, tenant.GUID, g.GUID, node.GUID))
}

func TestReadManyNodes_StreamsAllAndStopsEarly(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)
	seedNodes(t, c, tenant.GUID, g.GUID, 25)

	var seen []string
	err := c.ReadManyNodes(ctx, graph.EnumerationRequest{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID,
		Ordering: graph.OrderNameAscending, MaxResults: 7,
	}, func(n *graph.Node) error {
		seen = append(seen, n.Name)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 25)
	assert.Equal(t, "node-000", seen[0])
	assert.Equal(t, "node-024", seen[24])

	count := 0
	err = c.ReadManyNodes(ctx, graph.EnumerationRequest{
		TenantGUID: tenant.GUID, GraphGUID: g.GUID, MaxResults: 10,
	}, func(n *graph.Node) error {
		count++
		if count == 12 {
			return ErrStopIteration
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}
