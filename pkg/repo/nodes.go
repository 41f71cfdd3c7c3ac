package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

// ErrStopIteration is the sentinel a ReadMany callback returns to stop
// the stream early without surfacing an error.
var ErrStopIteration = errors.New("iteration stopped")

const nodeColumns = "t.guid, t.tenant_guid, t.graph_guid, t.name, t.data, t.created_utc, t.last_update_utc"

func scanNode(rows *sql.Rows) (*graph.Node, error) {
	var (
		n                graph.Node
		data             sql.NullString
		created, updated int64
	)
	if err := rows.Scan(&n.GUID, &n.TenantGUID, &n.GraphGUID, &n.Name, &data, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan node: %v", graph.ErrStorage, err)
	}
	payload, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	n.Data = payload
	n.CreatedUTC = fromNanos(created)
	n.LastUpdateUTC = fromNanos(updated)
	return &n, nil
}

func (c *Client) createNodeTx(ctx context.Context, tx *sql.Tx, n *graph.Node) error {
	if n == nil || n.TenantGUID == "" || n.GraphGUID == "" {
		return fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if n.GUID == "" {
		n.GUID = graph.NewGUID()
	}
	ts := now()
	n.CreatedUTC = ts
	n.LastUpdateUTC = ts

	g, err := readGraphTx(ctx, tx, n.TenantGUID, n.GraphGUID)
	if err != nil {
		return err
	}

	ok, err := existsTx(ctx, tx, "nodes", "guid = ?", n.GUID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: node %s already exists", graph.ErrConflict, n.GUID)
	}

	for _, v := range n.Vectors {
		if err := requireVectorDimensionsTx(ctx, tx, g, n.GraphGUID, len(v.Embedding)); err != nil {
			return err
		}
	}

	data, err := marshalData(n.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (guid, tenant_guid, graph_guid, name, data, created_utc, last_update_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.GUID, n.TenantGUID, n.GraphGUID, n.Name, data, toNanos(ts), toNanos(ts))
	if err != nil {
		return fmt.Errorf("%w: insert node: %v", graph.ErrStorage, err)
	}

	for _, label := range n.Labels {
		l := &graph.LabelMetadata{
			TenantGUID: n.TenantGUID, GraphGUID: n.GraphGUID, NodeGUID: n.GUID, Label: label,
		}
		if err := insertLabelTx(ctx, tx, l, ts); err != nil {
			return err
		}
	}
	for key, value := range n.Tags {
		t := &graph.TagMetadata{
			TenantGUID: n.TenantGUID, GraphGUID: n.GraphGUID, NodeGUID: n.GUID, Key: key, Value: value,
		}
		if err := insertTagTx(ctx, tx, t, ts); err != nil {
			return err
		}
	}
	for _, v := range n.Vectors {
		v.TenantGUID = n.TenantGUID
		v.GraphGUID = n.GraphGUID
		v.NodeGUID = n.GUID
		if err := insertVectorTx(ctx, tx, v, ts); err != nil {
			return err
		}
	}
	return nil
}

// CreateNode inserts a node with its labels, tags, and vectors in one
// transaction.
func (c *Client) CreateNode(ctx context.Context, n *graph.Node) (*graph.Node, error) {
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		return c.createNodeTx(ctx, tx, n)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// CreateNodes inserts many nodes in a single transaction so callers get
// all-or-nothing semantics for batch loads.
func (c *Client) CreateNodes(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: at least one node required", graph.ErrValidation)
	}
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		for _, n := range nodes {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", graph.ErrStorage, err)
			}
			if err := c.createNodeTx(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// ReadNode returns the node or ErrNotFound. Subordinates are loaded only
// when includeSubordinates is set.
func (c *Client) ReadNode(ctx context.Context, tenantGUID, graphGUID, guid string, includeSubordinates bool) (*graph.Node, error) {
	var found *graph.Node
	err := c.queryAll(ctx,
		"SELECT "+nodeColumns+" FROM nodes t WHERE t.tenant_guid = ? AND t.graph_guid = ? AND t.guid = ? LIMIT 1",
		[]any{tenantGUID, graphGUID, guid}, func(rows *sql.Rows) error {
			n, err := scanNode(rows)
			if err != nil {
				return err
			}
			found = n
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: node %s", graph.ErrNotFound, guid)
	}
	if includeSubordinates {
		if err := c.loadNodeSubordinates(ctx, []*graph.Node{found}); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// ReadManyNodes streams matching nodes to fn in the requested order,
// fetching pages internally so the execution gate is never held across a
// callback. fn may return ErrStopIteration to end the stream early.
func (c *Client) ReadManyNodes(ctx context.Context, req graph.EnumerationRequest, fn func(*graph.Node) error) error {
	return readMany(ctx, c, nodeSpec(), req, fn)
}

// UpdateNode is a full-row replace keyed by GUID: name, data, labels,
// tags. Vectors are managed through the vector methods and the facade so
// the index stays synchronized.
func (c *Client) UpdateNode(ctx context.Context, n *graph.Node) (*graph.Node, error) {
	if n == nil || n.GUID == "" || n.TenantGUID == "" || n.GraphGUID == "" {
		return nil, fmt.Errorf("%w: node GUID, tenant GUID, and graph GUID required", graph.ErrValidation)
	}
	data, err := marshalData(n.Data)
	if err != nil {
		return nil, err
	}
	ts := now()

	err = c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE nodes SET name = ?, data = ?, last_update_utc = ? WHERE tenant_guid = ? AND graph_guid = ? AND guid = ?",
			n.Name, data, toNanos(ts), n.TenantGUID, n.GraphGUID, n.GUID)
		if err != nil {
			return fmt.Errorf("%w: update node: %v", graph.ErrStorage, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: node %s", graph.ErrNotFound, n.GUID)
		}

		// Replace label and tag rows wholesale.
		for _, table := range []string{"labels", "tags"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_guid = ?", n.GUID); err != nil {
				return fmt.Errorf("%w: clear %s: %v", graph.ErrStorage, table, err)
			}
		}
		for _, label := range n.Labels {
			l := &graph.LabelMetadata{
				TenantGUID: n.TenantGUID, GraphGUID: n.GraphGUID, NodeGUID: n.GUID, Label: label,
			}
			if err := insertLabelTx(ctx, tx, l, ts); err != nil {
				return err
			}
		}
		for key, value := range n.Tags {
			t := &graph.TagMetadata{
				TenantGUID: n.TenantGUID, GraphGUID: n.GraphGUID, NodeGUID: n.GUID, Key: key, Value: value,
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
	n.LastUpdateUTC = ts
	return n, nil
}

// DeleteNode removes a node, its subordinates, and every edge touching
// it (with their subordinates). Idempotent.
func (c *Client) DeleteNode(ctx context.Context, tenantGUID, graphGUID, guid string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		return deleteNodeTx(ctx, tx, tenantGUID, graphGUID, guid)
	})
}

// DeleteNodes removes many nodes in one transaction. Idempotent per GUID.
func (c *Client) DeleteNodes(ctx context.Context, tenantGUID, graphGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if err := deleteNodeTx(ctx, tx, tenantGUID, graphGUID, guid); err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteNodeTx(ctx context.Context, tx *sql.Tx, tenantGUID, graphGUID, guid string) error {
	// Edges referencing the node go with it so no edge ever points at a
	// missing endpoint.
	rows, err := tx.QueryContext(ctx,
		"SELECT guid FROM edges WHERE graph_guid = ? AND (from_guid = ? OR to_guid = ?)",
		graphGUID, guid, guid)
	if err != nil {
		return fmt.Errorf("%w: list edges of node %s: %v", graph.ErrStorage, guid, err)
	}
	var edgeGUIDs []string
	for rows.Next() {
		var edgeGUID string
		if err := rows.Scan(&edgeGUID); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan edge guid: %v", graph.ErrStorage, err)
		}
		edgeGUIDs = append(edgeGUIDs, edgeGUID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("%w: list edges of node %s: %v", graph.ErrStorage, guid, err)
	}
	rows.Close()

	for _, edgeGUID := range edgeGUIDs {
		if err := deleteSubordinatesTx(ctx, tx, "edge_guid", edgeGUID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE guid = ?", edgeGUID); err != nil {
			return fmt.Errorf("%w: delete edge %s: %v", graph.ErrStorage, edgeGUID, err)
		}
	}

	if err := deleteSubordinatesTx(ctx, tx, "node_guid", guid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM nodes WHERE tenant_guid = ? AND graph_guid = ? AND guid = ?",
		tenantGUID, graphGUID, guid); err != nil {
		return fmt.Errorf("%w: delete node %s: %v", graph.ErrStorage, guid, err)
	}
	return nil
}

func nodeSpec() tableSpec[*graph.Node] {
	return tableSpec[*graph.Node]{
		table:      "nodes",
		columns:    nodeColumns,
		nameCol:    "name",
		hasGraph:   true,
		labelOwner: "node_guid",
		tagOwner:   "node_guid",
		scan:       scanNode,
		key: func(n *graph.Node) (string, int64, string) {
			return n.GUID, toNanos(n.CreatedUTC), n.Name
		},
		finish: func(ctx context.Context, c *Client, items []*graph.Node, req graph.EnumerationRequest) error {
			if !req.IncludeData {
				for _, n := range items {
					n.Data = nil
				}
			}
			if req.IncludeSubordinates {
				return c.loadNodeSubordinates(ctx, items)
			}
			return nil
		},
	}
}

// EnumerateNodes pages the graph's nodes per the shared enumeration
// contract.
func (c *Client) EnumerateNodes(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Node], error) {
	return enumerate(ctx, c, nodeSpec(), req)
}

// readMany pages through enumerate internally and feeds each row to fn.
func readMany[T any](ctx context.Context, c *Client, spec tableSpec[T], req graph.EnumerationRequest, fn func(T) error) error {
	if req.MaxResults <= 0 {
		req.MaxResults = graph.DefaultMaxResults
	}
	req.ContinuationToken = ""

	for {
		page, err := enumerate(ctx, c, spec, req)
		if err != nil {
			return err
		}
		for _, item := range page.Objects {
			if err := fn(item); err != nil {
				if errors.Is(err, ErrStopIteration) {
					return nil
				}
				return err
			}
		}
		if page.EndOfResults {
			return nil
		}
		req.ContinuationToken = page.ContinuationToken
		req.Skip = 0 // skip applies once, at the start of the stream
	}
}
