package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const tagColumns = "t.guid, t.tenant_guid, t.graph_guid, t.node_guid, t.edge_guid, t.tag_key, t.tag_value, t.created_utc, t.last_update_utc"

func scanTag(rows *sql.Rows) (*graph.TagMetadata, error) {
	var (
		t                graph.TagMetadata
		nodeGUID         sql.NullString
		edgeGUID         sql.NullString
		created, updated int64
	)
	if err := rows.Scan(&t.GUID, &t.TenantGUID, &t.GraphGUID, &nodeGUID, &edgeGUID,
		&t.Key, &t.Value, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan tag: %v", graph.ErrStorage, err)
	}
	t.NodeGUID = fromNullable(nodeGUID)
	t.EdgeGUID = fromNullable(edgeGUID)
	t.CreatedUTC = fromNanos(created)
	t.LastUpdateUTC = fromNanos(updated)
	return &t, nil
}

// CreateTag attaches a standalone tag row to an existing node or edge.
func (c *Client) CreateTag(ctx context.Context, t *graph.TagMetadata) (*graph.TagMetadata, error) {
	if t == nil || t.TenantGUID == "" || t.GraphGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if t.Key == "" {
		return nil, fmt.Errorf("%w: tag key required", graph.ErrValidation)
	}
	if (t.NodeGUID == "") == (t.EdgeGUID == "") {
		return nil, fmt.Errorf("%w: tag must reference exactly one of node or edge", graph.ErrValidation)
	}
	ts := now()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := readGraphTx(ctx, tx, t.TenantGUID, t.GraphGUID); err != nil {
			return err
		}
		if err := requireLabelOwnerTx(ctx, tx, t.TenantGUID, t.GraphGUID, t.NodeGUID, t.EdgeGUID); err != nil {
			return err
		}
		return insertTagTx(ctx, tx, t, ts)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReadTag returns the tag row or ErrNotFound.
func (c *Client) ReadTag(ctx context.Context, tenantGUID, guid string) (*graph.TagMetadata, error) {
	var found *graph.TagMetadata
	err := c.queryAll(ctx,
		"SELECT "+tagColumns+" FROM tags t WHERE t.tenant_guid = ? AND t.guid = ? LIMIT 1",
		[]any{tenantGUID, guid}, func(rows *sql.Rows) error {
			t, err := scanTag(rows)
			if err != nil {
				return err
			}
			found = t
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: tag %s", graph.ErrNotFound, guid)
	}
	return found, nil
}

// UpdateTag changes the key and value in place. Ownership is immutable.
func (c *Client) UpdateTag(ctx context.Context, t *graph.TagMetadata) (*graph.TagMetadata, error) {
	if t == nil || t.GUID == "" || t.TenantGUID == "" {
		return nil, fmt.Errorf("%w: tag GUID and tenant GUID required", graph.ErrValidation)
	}
	if t.Key == "" {
		return nil, fmt.Errorf("%w: tag key required", graph.ErrValidation)
	}
	ts := now()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE tags SET tag_key = ?, tag_value = ?, last_update_utc = ? WHERE tenant_guid = ? AND guid = ?",
			t.Key, t.Value, toNanos(ts), t.TenantGUID, t.GUID)
		if err != nil {
			return fmt.Errorf("%w: update tag: %v", graph.ErrStorage, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: tag %s", graph.ErrNotFound, t.GUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.LastUpdateUTC = ts
	return t, nil
}

// DeleteTag removes the tag row. Idempotent.
func (c *Client) DeleteTag(ctx context.Context, tenantGUID, guid string) error {
	_, err := c.execute(ctx, "DELETE FROM tags WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid)
	return err
}

// DeleteTags removes many tag rows in one transaction.
func (c *Client) DeleteTags(ctx context.Context, tenantGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM tags WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete tag %s: %v", graph.ErrStorage, guid, err)
			}
		}
		return nil
	})
}

func tagSpec() tableSpec[*graph.TagMetadata] {
	return tableSpec[*graph.TagMetadata]{
		table:    "tags",
		columns:  tagColumns,
		nameCol:  "tag_key",
		hasGraph: true,
		scan:     scanTag,
		key: func(t *graph.TagMetadata) (string, int64, string) {
			return t.GUID, toNanos(t.CreatedUTC), t.Key
		},
	}
}

// EnumerateTags pages tag rows per the shared enumeration contract.
func (c *Client) EnumerateTags(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.TagMetadata], error) {
	return enumerate(ctx, c, tagSpec(), req)
}
