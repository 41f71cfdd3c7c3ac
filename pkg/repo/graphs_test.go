package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

func TestGraphLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)

	g, err := c.CreateGraph(ctx, &graph.Graph{
		TenantGUID: tenant.GUID,
		Name:       "knowledge",
		Data:       map[string]any{"kind": "demo"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, g.GUID)

	read, err := c.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.Equal(t, "knowledge", read.Name)
	assert.Equal(t, "demo", read.Data["kind"])

	read.Name = "renamed"
	_, err = c.UpdateGraph(ctx, read)
	require.NoError(t, err)

	again, err := c.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	require.NoError(t, c.DeleteGraph(ctx, tenant.GUID, g.GUID, false))
	_, err = c.ReadGraph(ctx, tenant.GUID, g.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestReadGraph_CrossTenantScopeViolation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	other, err := c.CreateTenant(ctx, &graph.Tenant{Name: "other", Active: true})
	require.NoError(t, err)

	g := seedGraph(t, c, tenant.GUID)

	_, err = c.ReadGraph(ctx, other.GUID, g.GUID)
	assert.ErrorIs(t, err, graph.ErrScopeViolation)

	err = c.DeleteGraph(ctx, other.GUID, g.GUID, true)
	assert.ErrorIs(t, err, graph.ErrScopeViolation)
}

func TestCreateGraph_IndexConfigValidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)

	// Unknown type
	_, err := c.CreateGraph(ctx, &graph.Graph{
		TenantGUID:  tenant.GUID,
		Name:        "bad-type",
		VectorIndex: &graph.VectorIndexConfig{Type: "lsm", Dimensions: 8},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	// Missing dimensions
	_, err = c.CreateGraph(ctx, &graph.Graph{
		TenantGUID:  tenant.GUID,
		Name:        "no-dims",
		VectorIndex: &graph.VectorIndexConfig{Type: graph.VectorIndexRAM},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	// File variant without a location
	_, err = c.CreateGraph(ctx, &graph.Graph{
		TenantGUID:  tenant.GUID,
		Name:        "no-file",
		VectorIndex: &graph.VectorIndexConfig{Type: graph.VectorIndexFile, Dimensions: 8},
	})
	assert.ErrorIs(t, err, graph.ErrValidation)

	// Valid config round-trips.
	g, err := c.CreateGraph(ctx, &graph.Graph{
		TenantGUID: tenant.GUID,
		Name:       "indexed",
		VectorIndex: &graph.VectorIndexConfig{
			Type: graph.VectorIndexRAM, Dimensions: 8, M: 16, Ef: 100, EfConstruction: 200, Threshold: 10,
		},
	})
	require.NoError(t, err)

	read, err := c.ReadGraph(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	require.NotNil(t, read.VectorIndex)
	assert.Equal(t, graph.VectorIndexRAM, read.VectorIndex.Type)
	assert.Equal(t, 8, read.VectorIndex.Dimensions)
}

func TestDeleteGraph_RefusesNonEmptyWithoutForce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)
	seedNode(t, c, tenant.GUID, g.GUID, "n1")

	err := c.DeleteGraph(ctx, tenant.GUID, g.GUID, false)
	assert.ErrorIs(t, err, graph.ErrConflict)

	empty, err := c.GraphEmpty(ctx, tenant.GUID, g.GUID)
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, c.DeleteGraph(ctx, tenant.GUID, g.GUID, true))
	_, err = c.ReadGraph(ctx, tenant.GUID, g.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestDeleteGraph_ForceCascadesSubordinates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)

	node, err := c.CreateNode(ctx, &graph.Node{
		TenantGUID: tenant.GUID,
		GraphGUID:  g.GUID,
		Name:       "carrier",
		Labels:     []string{"concept"},
		Tags:       map[string]string{"kind": "demo"},
		Vectors: []*graph.Vector{
			{Model: "test-model", Embedding: []float32{1, 0, 0, 0}},
		},
	})
	require.NoError(t, err)
	vectorGUID := node.Vectors[0].GUID

	require.NoError(t, c.DeleteGraph(ctx, tenant.GUID, g.GUID, true))

	_, err = c.ReadNode(ctx, tenant.GUID, g.GUID, node.GUID, false)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadVector(ctx, tenant.GUID, vectorGUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}
