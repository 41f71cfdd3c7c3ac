package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const edgeColumns = "t.guid, t.tenant_guid, t.graph_guid, t.from_guid, t.to_guid, t.name, t.cost, t.data, t.created_utc, t.last_update_utc"

func scanEdge(rows *sql.Rows) (*graph.Edge, error) {
	var (
		e                graph.Edge
		data             sql.NullString
		created, updated int64
	)
	if err := rows.Scan(&e.GUID, &e.TenantGUID, &e.GraphGUID, &e.FromGUID, &e.ToGUID,
		&e.Name, &e.Cost, &data, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan edge: %v", graph.ErrStorage, err)
	}
	payload, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	e.Data = payload
	e.CreatedUTC = fromNanos(created)
	e.LastUpdateUTC = fromNanos(updated)
	return &e, nil
}

func (c *Client) createEdgeTx(ctx context.Context, tx *sql.Tx, e *graph.Edge) error {
	if e == nil || e.TenantGUID == "" || e.GraphGUID == "" {
		return fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if e.FromGUID == "" || e.ToGUID == "" {
		return fmt.Errorf("%w: from and to node GUIDs required", graph.ErrValidation)
	}
	if e.GUID == "" {
		e.GUID = graph.NewGUID()
	}
	ts := now()
	e.CreatedUTC = ts
	e.LastUpdateUTC = ts

	g, err := readGraphTx(ctx, tx, e.TenantGUID, e.GraphGUID)
	if err != nil {
		return err
	}

	// Both endpoints must live in the same graph as the edge.
	if err := requireNodeInGraphTx(ctx, tx, e.TenantGUID, e.GraphGUID, e.FromGUID); err != nil {
		return err
	}
	if err := requireNodeInGraphTx(ctx, tx, e.TenantGUID, e.GraphGUID, e.ToGUID); err != nil {
		return err
	}

	ok, err := existsTx(ctx, tx, "edges", "guid = ?", e.GUID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: edge %s already exists", graph.ErrConflict, e.GUID)
	}

	for _, v := range e.Vectors {
		if err := requireVectorDimensionsTx(ctx, tx, g, e.GraphGUID, len(v.Embedding)); err != nil {
			return err
		}
	}

	data, err := marshalData(e.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO edges (guid, tenant_guid, graph_guid, from_guid, to_guid, name, cost, data, created_utc, last_update_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.GUID, e.TenantGUID, e.GraphGUID, e.FromGUID, e.ToGUID, e.Name, e.Cost, data, toNanos(ts), toNanos(ts))
	if err != nil {
		return fmt.Errorf("%w: insert edge: %v", graph.ErrStorage, err)
	}

	for _, label := range e.Labels {
		l := &graph.LabelMetadata{
			TenantGUID: e.TenantGUID, GraphGUID: e.GraphGUID, EdgeGUID: e.GUID, Label: label,
		}
		if err := insertLabelTx(ctx, tx, l, ts); err != nil {
			return err
		}
	}
	for key, value := range e.Tags {
		t := &graph.TagMetadata{
			TenantGUID: e.TenantGUID, GraphGUID: e.GraphGUID, EdgeGUID: e.GUID, Key: key, Value: value,
		}
		if err := insertTagTx(ctx, tx, t, ts); err != nil {
			return err
		}
	}
	for _, v := range e.Vectors {
		v.TenantGUID = e.TenantGUID
		v.GraphGUID = e.GraphGUID
		v.EdgeGUID = e.GUID
		if err := insertVectorTx(ctx, tx, v, ts); err != nil {
			return err
		}
	}
	return nil
}

// CreateEdge inserts an edge with its labels, tags, and vectors after
// validating both endpoints exist in the edge's graph.
func (c *Client) CreateEdge(ctx context.Context, e *graph.Edge) (*graph.Edge, error) {
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		return c.createEdgeTx(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEdges inserts many edges in a single transaction.
func (c *Client) CreateEdges(ctx context.Context, edges []*graph.Edge) ([]*graph.Edge, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: at least one edge required", graph.ErrValidation)
	}
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range edges {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", graph.ErrStorage, err)
			}
			if err := c.createEdgeTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// ReadEdge returns the edge or ErrNotFound.
func (c *Client) ReadEdge(ctx context.Context, tenantGUID, graphGUID, guid string, includeSubordinates bool) (*graph.Edge, error) {
	var found *graph.Edge
	err := c.queryAll(ctx,
		"SELECT "+edgeColumns+" FROM edges t WHERE t.tenant_guid = ? AND t.graph_guid = ? AND t.guid = ? LIMIT 1",
		[]any{tenantGUID, graphGUID, guid}, func(rows *sql.Rows) error {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			found = e
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: edge %s", graph.ErrNotFound, guid)
	}
	if includeSubordinates {
		if err := c.loadEdgeSubordinates(ctx, []*graph.Edge{found}); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// ReadManyEdges streams matching edges to fn, paging internally. fn may
// return ErrStopIteration to end the stream early.
func (c *Client) ReadManyEdges(ctx context.Context, req graph.EnumerationRequest, fn func(*graph.Edge) error) error {
	return readMany(ctx, c, edgeSpec(), req, fn)
}

// EdgesBetween returns edges connecting the two nodes in either
// direction.
func (c *Client) EdgesBetween(ctx context.Context, tenantGUID, graphGUID, a, b string) ([]*graph.Edge, error) {
	var out []*graph.Edge
	err := c.queryAll(ctx,
		"SELECT "+edgeColumns+` FROM edges t
		 WHERE t.tenant_guid = ? AND t.graph_guid = ?
		   AND ((t.from_guid = ? AND t.to_guid = ?) OR (t.from_guid = ? AND t.to_guid = ?))
		 ORDER BY t.created_utc ASC, t.guid ASC`,
		[]any{tenantGUID, graphGUID, a, b, b, a}, func(rows *sql.Rows) error {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EdgesOfNode returns every edge touching the node as source or target.
func (c *Client) EdgesOfNode(ctx context.Context, tenantGUID, graphGUID, nodeGUID string) ([]*graph.Edge, error) {
	var out []*graph.Edge
	err := c.queryAll(ctx,
		"SELECT "+edgeColumns+` FROM edges t
		 WHERE t.tenant_guid = ? AND t.graph_guid = ? AND (t.from_guid = ? OR t.to_guid = ?)
		 ORDER BY t.created_utc ASC, t.guid ASC`,
		[]any{tenantGUID, graphGUID, nodeGUID, nodeGUID}, func(rows *sql.Rows) error {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEdge replaces name, cost, data, labels, and tags. Endpoints are
// immutable once the edge exists.
func (c *Client) UpdateEdge(ctx context.Context, e *graph.Edge) (*graph.Edge, error) {
	if e == nil || e.GUID == "" || e.TenantGUID == "" || e.GraphGUID == "" {
		return nil, fmt.Errorf("%w: edge GUID, tenant GUID, and graph GUID required", graph.ErrValidation)
	}
	data, err := marshalData(e.Data)
	if err != nil {
		return nil, err
	}
	ts := now()

	err = c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE edges SET name = ?, cost = ?, data = ?, last_update_utc = ? WHERE tenant_guid = ? AND graph_guid = ? AND guid = ?",
			e.Name, e.Cost, data, toNanos(ts), e.TenantGUID, e.GraphGUID, e.GUID)
		if err != nil {
			return fmt.Errorf("%w: update edge: %v", graph.ErrStorage, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: edge %s", graph.ErrNotFound, e.GUID)
		}

		for _, table := range []string{"labels", "tags"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE edge_guid = ?", e.GUID); err != nil {
				return fmt.Errorf("%w: clear %s: %v", graph.ErrStorage, table, err)
			}
		}
		for _, label := range e.Labels {
			l := &graph.LabelMetadata{
				TenantGUID: e.TenantGUID, GraphGUID: e.GraphGUID, EdgeGUID: e.GUID, Label: label,
			}
			if err := insertLabelTx(ctx, tx, l, ts); err != nil {
				return err
			}
		}
		for key, value := range e.Tags {
			t := &graph.TagMetadata{
				TenantGUID: e.TenantGUID, GraphGUID: e.GraphGUID, EdgeGUID: e.GUID, Key: key, Value: value,
			}
			if err := insertTagTx(ctx, tx, t, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.LastUpdateUTC = ts
	return e, nil
}

// DeleteEdge removes an edge and its subordinates. Idempotent.
func (c *Client) DeleteEdge(ctx context.Context, tenantGUID, graphGUID, guid string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		return deleteEdgeTx(ctx, tx, tenantGUID, graphGUID, guid)
	})
}

// DeleteEdges removes many edges in one transaction. Idempotent per GUID.
func (c *Client) DeleteEdges(ctx context.Context, tenantGUID, graphGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if err := deleteEdgeTx(ctx, tx, tenantGUID, graphGUID, guid); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteEdgeTx(ctx context.Context, tx *sql.Tx, tenantGUID, graphGUID, guid string) error {
	if err := deleteSubordinatesTx(ctx, tx, "edge_guid", guid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM edges WHERE tenant_guid = ? AND graph_guid = ? AND guid = ?",
		tenantGUID, graphGUID, guid); err != nil {
		return fmt.Errorf("%w: delete edge %s: %v", graph.ErrStorage, guid, err)
	}
	return nil
}

func edgeSpec() tableSpec[*graph.Edge] {
	return tableSpec[*graph.Edge]{
		table:      "edges",
		columns:    edgeColumns,
		nameCol:    "name",
		hasGraph:   true,
		labelOwner: "edge_guid",
		tagOwner:   "edge_guid",
		scan:       scanEdge,
		key: func(e *graph.Edge) (string, int64, string) {
			return e.GUID, toNanos(e.CreatedUTC), e.Name
		},
		finish: func(ctx context.Context, c *Client, items []*graph.Edge, req graph.EnumerationRequest) error {
			if !req.IncludeData {
				for _, e := range items {
					e.Data = nil
				}
			}
			if req.IncludeSubordinates {
				return c.loadEdgeSubordinates(ctx, items)
			}
			return nil
		},
	}
}

// EnumerateEdges pages the graph's edges per the shared enumeration
// contract.
func (c *Client) EnumerateEdges(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Edge], error) {
	return enumerate(ctx, c, edgeSpec(), req)
}
