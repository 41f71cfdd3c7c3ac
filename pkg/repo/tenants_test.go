package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

func TestTenantLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tenant, err := c.CreateTenant(ctx, &graph.Tenant{Name: "acme", Active: true})
	require.NoError(t, err)
	require.NotEmpty(t, tenant.GUID)
	assert.False(t, tenant.CreatedUTC.IsZero())

	read, err := c.ReadTenant(ctx, tenant.GUID)
	require.NoError(t, err)
	assert.Equal(t, "acme", read.Name)
	assert.True(t, read.Active)

	read.Name = "acme-renamed"
	read.Active = false
	updated, err := c.UpdateTenant(ctx, read)
	require.NoError(t, err)
	assert.Equal(t, "acme-renamed", updated.Name)

	again, err := c.ReadTenant(ctx, tenant.GUID)
	require.NoError(t, err)
	assert.Equal(t, "acme-renamed", again.Name)
	assert.False(t, again.Active)

	require.NoError(t, c.DeleteTenant(ctx, tenant.GUID, false))
	_, err = c.ReadTenant(ctx, tenant.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestReadTenant_NotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.ReadTenant(context.Background(), graph.NewGUID())
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestDeleteTenant_Idempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	// Deleting an absent tenant is a no-op.
	assert.NoError(t, c.DeleteTenant(ctx, graph.NewGUID(), false))

	tenant := seedTenant(t, c)
	require.NoError(t, c.DeleteTenant(ctx, tenant.GUID, false))
	assert.NoError(t, c.DeleteTenant(ctx, tenant.GUID, false))
}

func TestDeleteTenant_RefusesNonEmptyWithoutForce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tenant := seedTenant(t, c)
	seedGraph(t, c, tenant.GUID)

	err := c.DeleteTenant(ctx, tenant.GUID, false)
	assert.ErrorIs(t, err, graph.ErrConflict)

	// Still present after the refusal.
	_, err = c.ReadTenant(ctx, tenant.GUID)
	assert.NoError(t, err)
}

func TestDeleteTenant_ForceCascades(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tenant := seedTenant(t, c)
	g := seedGraph(t, c, tenant.GUID)
	node := seedNode(t, c, tenant.GUID, g.GUID, "n1")
	other := seedNode(t, c, tenant.GUID, g.GUID, "n2")
	_, err := c.CreateEdge(ctx, &graph.Edge{
		TenantGUID: tenant.GUID,
		GraphGUID:  g.GUID,
		FromGUID:   node.GUID,
		ToGUID:     other.GUID,
		Name:       "links",
	})
	require.NoError(t, err)

	user, err := c.CreateUser(ctx, &graph.User{
		TenantGUID: tenant.GUID, Email: "a@acme.test", Password: "x", Active: true,
	})
	require.NoError(t, err)
	_, err = c.CreateCredential(ctx, &graph.Credential{
		TenantGUID: tenant.GUID, UserGUID: user.GUID, BearerToken: "tok-1", Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, c.DeleteTenant(ctx, tenant.GUID, true))

	_, err = c.ReadTenant(ctx, tenant.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadGraph(ctx, tenant.GUID, g.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadNode(ctx, tenant.GUID, g.GUID, node.GUID, false)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadUser(ctx, tenant.GUID, user.GUID)
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = c.ReadCredentialByBearerToken(ctx, "tok-1")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestEnumerateTenants(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tenant := seedTenant(t, c)

	page, err := c.EnumerateTenants(ctx, graph.EnumerationRequest{TenantGUID: tenant.GUID})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, tenant.GUID, page.Objects[0].GUID)
	assert.True(t, page.EndOfResults)
	assert.EqualValues(t, 1, page.TotalRecords)
	assert.EqualValues(t, 0, page.RecordsRemaining)
}
