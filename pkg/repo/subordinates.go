package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/veldtdb/veldt/pkg/graph"
)

// Subordinates are the label/tag/vector rows attached to a node or edge.
// They are written and removed inside the owner's transaction and loaded
// only when a read asks for them.

func insertLabelTx(ctx context.Context, tx *sql.Tx, l *graph.LabelMetadata, ts time.Time) error {
	if l.GUID == "" {
		l.GUID = graph.NewGUID()
	}
	l.CreatedUTC = ts
	l.LastUpdateUTC = ts
	_, err := tx.ExecContext(ctx,
		`INSERT INTO labels (guid, tenant_guid, graph_guid, node_guid, edge_guid, label, created_utc, last_update_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.GUID, l.TenantGUID, l.GraphGUID, nullable(l.NodeGUID), nullable(l.EdgeGUID),
		l.Label, toNanos(ts), toNanos(ts))
	if err != nil {
		return fmt.Errorf("%w: insert label: %v", graph.ErrStorage, err)
	}
	return nil
}

func insertTagTx(ctx context.Context, tx *sql.Tx, t *graph.TagMetadata, ts time.Time) error {
	if t.GUID == "" {
		t.GUID = graph.NewGUID()
	}
	t.CreatedUTC = ts
	t.LastUpdateUTC = ts
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tags (guid, tenant_guid, graph_guid, node_guid, edge_guid, tag_key, tag_value, created_utc, last_update_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.GUID, t.TenantGUID, t.GraphGUID, nullable(t.NodeGUID), nullable(t.EdgeGUID),
		t.Key, t.Value, toNanos(ts), toNanos(ts))
	if err != nil {
		return fmt.Errorf("%w: insert tag: %v", graph.ErrStorage, err)
	}
	return nil
}

func insertVectorTx(ctx context.Context, tx *sql.Tx, v *graph.Vector, ts time.Time) error {
	if v.GUID == "" {
		v.GUID = graph.NewGUID()
	}
	if v.Dimensionality == 0 {
		v.Dimensionality = len(v.Embedding)
	}
	v.CreatedUTC = ts
	v.LastUpdateUTC = ts
	embedding, err := marshalEmbedding(v.Embedding)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO vectors (guid, tenant_guid, graph_guid, node_guid, edge_guid, model, dimensionality, content, embedding, created_utc, last_update_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.GUID, v.TenantGUID, v.GraphGUID, nullable(v.NodeGUID), nullable(v.EdgeGUID),
		v.Model, v.Dimensionality, v.Content, embedding, toNanos(ts), toNanos(ts))
	if err != nil {
		return fmt.Errorf("%w: insert vector: %v", graph.ErrStorage, err)
	}
	return nil
}

// deleteSubordinatesTx removes every label, tag, and vector row owned by
// the given node or edge.
func deleteSubordinatesTx(ctx context.Context, tx *sql.Tx, ownerCol, ownerGUID string) error {
	for _, table := range []string{"labels", "tags", "vectors"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE "+ownerCol+" = ?", ownerGUID); err != nil {
			return fmt.Errorf("%w: delete %s for %s: %v", graph.ErrStorage, table, ownerGUID, err)
		}
	}
	return nil
}

func scanVector(rows *sql.Rows) (*graph.Vector, error) {
	var (
		v                graph.Vector
		nodeGUID         sql.NullString
		edgeGUID         sql.NullString
		embedding        string
		created, updated int64
	)
	if err := rows.Scan(&v.GUID, &v.TenantGUID, &v.GraphGUID, &nodeGUID, &edgeGUID,
		&v.Model, &v.Dimensionality, &v.Content, &embedding, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan vector: %v", graph.ErrStorage, err)
	}
	v.NodeGUID = fromNullable(nodeGUID)
	v.EdgeGUID = fromNullable(edgeGUID)
	v.CreatedUTC = fromNanos(created)
	v.LastUpdateUTC = fromNanos(updated)
	emb, err := unmarshalEmbedding(embedding)
	if err != nil {
		return nil, err
	}
	v.Embedding = emb
	return &v, nil
}

const vectorColumns = "t.guid, t.tenant_guid, t.graph_guid, t.node_guid, t.edge_guid, t.model, t.dimensionality, t.content, t.embedding, t.created_utc, t.last_update_utc"

// loadNodeSubordinates fills Labels, Tags, and Vectors for a page of
// nodes with one query per subordinate table.
func (c *Client) loadNodeSubordinates(ctx context.Context, nodes []*graph.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	byGUID := make(map[string]*graph.Node, len(nodes))
	guids := make([]any, 0, len(nodes))
	placeholders := make([]byte, 0, len(nodes)*2)
	for i, n := range nodes {
		byGUID[n.GUID] = n
		guids = append(guids, n.GUID)
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	in := string(placeholders)

	err := c.queryAll(ctx,
		"SELECT node_guid, label FROM labels WHERE node_guid IN ("+in+") ORDER BY label",
		guids, func(rows *sql.Rows) error {
			var owner, label string
			if err := rows.Scan(&owner, &label); err != nil {
				return fmt.Errorf("%w: scan label: %v", graph.ErrStorage, err)
			}
			if n := byGUID[owner]; n != nil {
				n.Labels = append(n.Labels, label)
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = c.queryAll(ctx,
		"SELECT node_guid, tag_key, tag_value FROM tags WHERE node_guid IN ("+in+")",
		guids, func(rows *sql.Rows) error {
			var owner, key, value string
			if err := rows.Scan(&owner, &key, &value); err != nil {
				return fmt.Errorf("%w: scan tag: %v", graph.ErrStorage, err)
			}
			if n := byGUID[owner]; n != nil {
				if n.Tags == nil {
					n.Tags = make(map[string]string)
				}
				n.Tags[key] = value
			}
			return nil
		})
	if err != nil {
		return err
	}

	return c.queryAll(ctx,
		"SELECT "+vectorColumns+" FROM vectors t WHERE t.node_guid IN ("+in+")",
		guids, func(rows *sql.Rows) error {
			v, err := scanVector(rows)
			if err != nil {
				return err
			}
			if n := byGUID[v.NodeGUID]; n != nil {
				n.Vectors = append(n.Vectors, v)
			}
			return nil
		})
}

// loadEdgeSubordinates mirrors loadNodeSubordinates for edges.
func (c *Client) loadEdgeSubordinates(ctx context.Context, edges []*graph.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	byGUID := make(map[string]*graph.Edge, len(edges))
	guids := make([]any, 0, len(edges))
	placeholders := make([]byte, 0, len(edges)*2)
	for i, e := range edges {
		byGUID[e.GUID] = e
		guids = append(guids, e.GUID)
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	in := string(placeholders)

	err := c.queryAll(ctx,
		"SELECT edge_guid, label FROM labels WHERE edge_guid IN ("+in+") ORDER BY label",
		guids, func(rows *sql.Rows) error {
			var owner, label string
			if err := rows.Scan(&owner, &label); err != nil {
				return fmt.Errorf("%w: scan label: %v", graph.ErrStorage, err)
			}
			if e := byGUID[owner]; e != nil {
				e.Labels = append(e.Labels, label)
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = c.queryAll(ctx,
		"SELECT edge_guid, tag_key, tag_value FROM tags WHERE edge_guid IN ("+in+")",
		guids, func(rows *sql.Rows) error {
			var owner, key, value string
			if err := rows.Scan(&owner, &key, &value); err != nil {
				return fmt.Errorf("%w: scan tag: %v", graph.ErrStorage, err)
			}
			if e := byGUID[owner]; e != nil {
				if e.Tags == nil {
					e.Tags = make(map[string]string)
				}
				e.Tags[key] = value
			}
			return nil
		})
	if err != nil {
		return err
	}

	return c.queryAll(ctx,
		"SELECT "+vectorColumns+" FROM vectors t WHERE t.edge_guid IN ("+in+")",
		guids, func(rows *sql.Rows) error {
			v, err := scanVector(rows)
			if err != nil {
				return err
			}
			if e := byGUID[v.EdgeGUID]; e != nil {
				e.Vectors = append(e.Vectors, v)
			}
			return nil
		})
}
