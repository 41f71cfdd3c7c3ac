package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

// Scope checks run inside the creating transaction so a failed check
// leaves no row behind.

func existsTx(ctx context.Context, tx *sql.Tx, table, cond string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE "+cond+" LIMIT 1", args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", graph.ErrStorage, table, err)
	}
	return true, nil
}

// requireTenantTx fails with ErrNotFound when the tenant is absent.
func requireTenantTx(ctx context.Context, tx *sql.Tx, tenantGUID string) error {
	ok, err := existsTx(ctx, tx, "tenants", "guid = ?", tenantGUID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tenant %s", graph.ErrNotFound, tenantGUID)
	}
	return nil
}

// requireGraphTx fails with ErrNotFound when the graph is absent and
// ErrScopeViolation when it belongs to a different tenant.
func requireGraphTx(ctx context.Context, tx *sql.Tx, tenantGUID, graphGUID string) error {
	var owner string
	err := tx.QueryRowContext(ctx, "SELECT tenant_guid FROM graphs WHERE guid = ?", graphGUID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: graph %s", graph.ErrNotFound, graphGUID)
	}
	if err != nil {
		return fmt.Errorf("%w: read graph %s: %v", graph.ErrStorage, graphGUID, err)
	}
	if owner != tenantGUID {
		return fmt.Errorf("%w: graph %s belongs to tenant %s, not %s",
			graph.ErrScopeViolation, graphGUID, owner, tenantGUID)
	}
	return nil
}

// requireNodeInGraphTx fails with ErrNotFound when the node is absent
// and ErrScopeViolation when it lives in a different graph or tenant.
func requireNodeInGraphTx(ctx context.Context, tx *sql.Tx, tenantGUID, graphGUID, nodeGUID string) error {
	var ownerTenant, ownerGraph string
	err := tx.QueryRowContext(ctx, "SELECT tenant_guid, graph_guid FROM nodes WHERE guid = ?", nodeGUID).
		Scan(&ownerTenant, &ownerGraph)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: node %s", graph.ErrNotFound, nodeGUID)
	}
	if err != nil {
		return fmt.Errorf("%w: read node %s: %v", graph.ErrStorage, nodeGUID, err)
	}
	if ownerTenant != tenantGUID || ownerGraph != graphGUID {
		return fmt.Errorf("%w: node %s is not in graph %s of tenant %s",
			graph.ErrScopeViolation, nodeGUID, graphGUID, tenantGUID)
	}
	return nil
}

// requireVectorDimensionsTx enforces that a graph's vector
// dimensionality, once established, is fixed. The configured index
// dimensionality wins; otherwise the first stored vector sets it.
func requireVectorDimensionsTx(ctx context.Context, tx *sql.Tx, g *graph.Graph, graphGUID string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("%w: vector embedding must not be empty", graph.ErrValidation)
	}
	if g != nil && g.VectorIndex != nil && g.VectorIndex.Dimensions > 0 {
		if dims != g.VectorIndex.Dimensions {
			return fmt.Errorf("%w: vector dimensionality %d does not match graph configuration %d",
				graph.ErrValidation, dims, g.VectorIndex.Dimensions)
		}
		return nil
	}

	var existing int
	err := tx.QueryRowContext(ctx,
		"SELECT dimensionality FROM vectors WHERE graph_guid = ? LIMIT 1", graphGUID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read vector dimensionality: %v", graph.ErrStorage, err)
	}
	if dims != existing {
		return fmt.Errorf("%w: vector dimensionality %d does not match existing vectors (%d)",
			graph.ErrValidation, dims, existing)
	}
	return nil
}
