package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

// CreateVector attaches a standalone vector row to an existing node or
// edge, enforcing the graph's dimensionality.
func (c *Client) CreateVector(ctx context.Context, v *graph.Vector) (*graph.Vector, error) {
	if v == nil || v.TenantGUID == "" || v.GraphGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if len(v.Embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding required", graph.ErrValidation)
	}
	if (v.NodeGUID == "") == (v.EdgeGUID == "") {
		return nil, fmt.Errorf("%w: vector must reference exactly one of node or edge", graph.ErrValidation)
	}
	ts := now()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		g, err := readGraphTx(ctx, tx, v.TenantGUID, v.GraphGUID)
		if err != nil {
			return err
		}
		if err := requireLabelOwnerTx(ctx, tx, v.TenantGUID, v.GraphGUID, v.NodeGUID, v.EdgeGUID); err != nil {
			return err
		}
		if err := requireVectorDimensionsTx(ctx, tx, g, v.GraphGUID, len(v.Embedding)); err != nil {
			return err
		}
		return insertVectorTx(ctx, tx, v, ts)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ReadVector returns the vector row or ErrNotFound.
func (c *Client) ReadVector(ctx context.Context, tenantGUID, guid string) (*graph.Vector, error) {
	var found *graph.Vector
	err := c.queryAll(ctx,
		"SELECT "+vectorColumns+" FROM vectors t WHERE t.tenant_guid = ? AND t.guid = ? LIMIT 1",
		[]any{tenantGUID, guid}, func(rows *sql.Rows) error {
			v, err := scanVector(rows)
			if err != nil {
				return err
			}
			found = v
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: vector %s", graph.ErrNotFound, guid)
	}
	return found, nil
}

// UpdateVector replaces model, content, and embedding. The replacement
// embedding must still match the graph's dimensionality.
func (c *Client) UpdateVector(ctx context.Context, v *graph.Vector) (*graph.Vector, error) {
	if v == nil || v.GUID == "" || v.TenantGUID == "" || v.GraphGUID == "" {
		return nil, fmt.Errorf("%w: vector GUID, tenant GUID, and graph GUID required", graph.ErrValidation)
	}
	if len(v.Embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding required", graph.ErrValidation)
	}
	embedding, err := marshalEmbedding(v.Embedding)
	if err != nil {
		return nil, err
	}
	ts := now()
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		g, err := readGraphTx(ctx, tx, v.TenantGUID, v.GraphGUID)
		if err != nil {
			return err
		}
		if err := requireVectorDimensionsTx(ctx, tx, g, v.GraphGUID, len(v.Embedding)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE vectors SET model = ?, dimensionality = ?, content = ?, embedding = ?, last_update_utc = ? WHERE tenant_guid = ? AND guid = ?",
			v.Model, len(v.Embedding), v.Content, embedding, toNanos(ts), v.TenantGUID, v.GUID)
		if err != nil {
			return fmt.Errorf("%w: update vector: %v", graph.ErrStorage, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: vector %s", graph.ErrNotFound, v.GUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.Dimensionality = len(v.Embedding)
	v.LastUpdateUTC = ts
	return v, nil
}

// DeleteVector removes the vector row. Idempotent.
func (c *Client) DeleteVector(ctx context.Context, tenantGUID, guid string) error {
	_, err := c.execute(ctx, "DELETE FROM vectors WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid)
	return err
}

// DeleteVectors removes many vector rows in one transaction.
func (c *Client) DeleteVectors(ctx context.Context, tenantGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM vectors WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete vector %s: %v", graph.ErrStorage, guid, err)
			}
		}
		return nil
	})
}

// ReadVectorsForGraph streams every vector of a graph, optionally
// restricted to node-owned or edge-owned vectors. Used by the index
// builders and the brute-force searcher.
func (c *Client) ReadVectorsForGraph(ctx context.Context, tenantGUID, graphGUID string, domain graph.SearchDomain, fn func(*graph.Vector) error) error {
	query := "SELECT " + vectorColumns + " FROM vectors t WHERE t.tenant_guid = ? AND t.graph_guid = ?"
	switch domain {
	case graph.SearchDomainNode:
		query += " AND t.node_guid IS NOT NULL"
	case graph.SearchDomainEdge:
		query += " AND t.edge_guid IS NOT NULL"
	}
	query += " ORDER BY t.created_utc ASC, t.guid ASC"
	return c.queryAll(ctx, query, []any{tenantGUID, graphGUID}, func(rows *sql.Rows) error {
		v, err := scanVector(rows)
		if err != nil {
			return err
		}
		return fn(v)
	})
}

// ReadVectorsForNode returns the vectors attached to one node.
func (c *Client) ReadVectorsForNode(ctx context.Context, tenantGUID, graphGUID, nodeGUID string) ([]*graph.Vector, error) {
	return c.readOwnedVectors(ctx, "node_guid", tenantGUID, graphGUID, nodeGUID)
}

// ReadVectorsForEdge returns the vectors attached to one edge.
func (c *Client) ReadVectorsForEdge(ctx context.Context, tenantGUID, graphGUID, edgeGUID string) ([]*graph.Vector, error) {
	return c.readOwnedVectors(ctx, "edge_guid", tenantGUID, graphGUID, edgeGUID)
}

func (c *Client) readOwnedVectors(ctx context.Context, ownerCol, tenantGUID, graphGUID, ownerGUID string) ([]*graph.Vector, error) {
	var out []*graph.Vector
	err := c.queryAll(ctx,
		"SELECT "+vectorColumns+" FROM vectors t WHERE t.tenant_guid = ? AND t.graph_guid = ? AND t."+ownerCol+" = ? ORDER BY t.created_utc ASC, t.guid ASC",
		[]any{tenantGUID, graphGUID, ownerGUID}, func(rows *sql.Rows) error {
			v, err := scanVector(rows)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountVectors reports how many vectors a graph holds in the given
// search domain. The facade uses it against the index threshold.
func (c *Client) CountVectors(ctx context.Context, tenantGUID, graphGUID string, domain graph.SearchDomain) (int, error) {
	query := "SELECT COUNT(*) FROM vectors t WHERE t.tenant_guid = ? AND t.graph_guid = ?"
	switch domain {
	case graph.SearchDomainNode:
		query += " AND t.node_guid IS NOT NULL"
	case graph.SearchDomainEdge:
		query += " AND t.edge_guid IS NOT NULL"
	}
	var count int
	if err := c.queryRow(ctx, query, []any{tenantGUID, graphGUID}, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func vectorSpec() tableSpec[*graph.Vector] {
	return tableSpec[*graph.Vector]{
		table:    "vectors",
		columns:  vectorColumns,
		nameCol:  "model",
		hasGraph: true,
		scan:     scanVector,
		key: func(v *graph.Vector) (string, int64, string) {
			return v.GUID, toNanos(v.CreatedUTC), v.Model
		},
	}
}

// EnumerateVectors pages vector rows per the shared enumeration
// contract.
func (c *Client) EnumerateVectors(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Vector], error) {
	return enumerate(ctx, c, vectorSpec(), req)
}
