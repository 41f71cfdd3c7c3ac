package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "veldt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seedTenant(t *testing.T, c *Client) *graph.Tenant {
	t.Helper()
	tenant, err := c.CreateTenant(context.Background(), &graph.Tenant{Name: "acme", Active: true})
	require.NoError(t, err)
	return tenant
}

func seedGraph(t *testing.T, c *Client, tenantGUID string) *graph.Graph {
	t.Helper()
	g, err := c.CreateGraph(context.Background(), &graph.Graph{
		TenantGUID: tenantGUID,
		Name:       "knowledge",
	})
	require.NoError(t, err)
	return g
}

func seedNode(t *testing.T, c *Client, tenantGUID, graphGUID, name string) *graph.Node {
	t.Helper()
	n, err := c.CreateNode(context.Background(), &graph.Node{
		TenantGUID: tenantGUID,
		GraphGUID:  graphGUID,
		Name:       name,
	})
	require.NoError(t, err)
	return n
}

func seedNodes(t *testing.T, c *Client, tenantGUID, graphGUID string, count int) []*graph.Node {
	t.Helper()
	nodes := make([]*graph.Node, 0, count)
	for i := 0; i < count; i++ {
		nodes = append(nodes, seedNode(t, c, tenantGUID, graphGUID, fmt.Sprintf("node-%03d", i)))
	}
	return nodes
}
