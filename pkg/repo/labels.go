package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const labelColumns = "t.guid, t.tenant_guid, t.graph_guid, t.node_guid, t.edge_guid, t.label, t.created_utc, t.last_update_utc"

func scanLabel(rows *sql.Rows) (*graph.LabelMetadata, error) {
	var (
		l                graph.LabelMetadata
		nodeGUID         sql.NullString
		edgeGUID         sql.NullString
		created, updated int64
	)
	if err := rows.Scan(&l.GUID, &l.TenantGUID, &l.GraphGUID, &nodeGUID, &edgeGUID,
		&l.Label, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan label: %v", graph.ErrStorage, err)
	}
	l.NodeGUID = fromNullable(nodeGUID)
	l.EdgeGUID = fromNullable(edgeGUID)
	l.CreatedUTC = fromNanos(created)
	l.LastUpdateUTC = fromNanos(updated)
	return &l, nil
}

func validateLabelOwner(l *graph.LabelMetadata) error {
	if l == nil || l.TenantGUID == "" || l.GraphGUID == "" {
		return fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if l.Label == "" {
		return fmt.Errorf("%w: label value required", graph.ErrValidation)
	}
	if (l.NodeGUID == "") == (l.EdgeGUID == "") {
		return fmt.Errorf("%w: label must reference exactly one of node or edge", graph.ErrValidation)
	}
	return nil
}

// CreateLabel attaches a standalone label row to an existing node or
// edge.
func (c *Client) CreateLabel(ctx context.Context, l *graph.LabelMetadata) (*graph.LabelMetadata, error) {
	if err := validateLabelOwner(l); err != nil {
		return nil, err
	}
	ts := now()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := readGraphTx(ctx, tx, l.TenantGUID, l.GraphGUID); err != nil {
			return err
		}
		if err := requireLabelOwnerTx(ctx, tx, l.TenantGUID, l.GraphGUID, l.NodeGUID, l.EdgeGUID); err != nil {
			return err
		}
		return insertLabelTx(ctx, tx, l, ts)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func requireLabelOwnerTx(ctx context.Context, tx *sql.Tx, tenantGUID, graphGUID, nodeGUID, edgeGUID string) error {
	if nodeGUID != "" {
		return requireNodeInGraphTx(ctx, tx, tenantGUID, graphGUID, nodeGUID)
	}
	ok, err := existsTx(ctx, tx, "edges", "tenant_guid = ? AND graph_guid = ? AND guid = ?", tenantGUID, graphGUID, edgeGUID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: edge %s in graph %s", graph.ErrNotFound, edgeGUID, graphGUID)
	}
	return nil
}

// ReadLabel returns the label row or ErrNotFound.
func (c *Client) ReadLabel(ctx context.Context, tenantGUID, guid string) (*graph.LabelMetadata, error) {
	var found *graph.LabelMetadata
	err := c.queryAll(ctx,
		"SELECT "+labelColumns+" FROM labels t WHERE t.tenant_guid = ? AND t.guid = ? LIMIT 1",
		[]any{tenantGUID, guid}, func(rows *sql.Rows) error {
			l, err := scanLabel(rows)
			if err != nil {
				return err
			}
			found = l
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: label %s", graph.ErrNotFound, guid)
	}
	return found, nil
}

// UpdateLabel changes the label text in place. Ownership is immutable.
func (c *Client) UpdateLabel(ctx context.Context, l *graph.LabelMetadata) (*graph.LabelMetadata, error) {
	if l == nil || l.GUID == "" || l.TenantGUID == "" {
		return nil, fmt.Errorf("%w: label GUID and tenant GUID required", graph.ErrValidation)
	}
	if l.Label == "" {
		return nil, fmt.Errorf("%w: label value required", graph.ErrValidation)
	}
	ts := now()
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE labels SET label = ?, last_update_utc = ? WHERE tenant_guid = ? AND guid = ?",
			l.Label, toNanos(ts), l.TenantGUID, l.GUID)
		if err != nil {
			return fmt.Errorf("%w: update label: %v", graph.ErrStorage, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: label %s", graph.ErrNotFound, l.GUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.LastUpdateUTC = ts
	return l, nil
}

// DeleteLabel removes the label row. Idempotent.
func (c *Client) DeleteLabel(ctx context.Context, tenantGUID, guid string) error {
	_, err := c.execute(ctx, "DELETE FROM labels WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid)
	return err
}

// DeleteLabels removes many label rows in one transaction.
func (c *Client) DeleteLabels(ctx context.Context, tenantGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM labels WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete label %s: %v", graph.ErrStorage, guid, err)
			}
		}
		return nil
	})
}

func labelSpec() tableSpec[*graph.LabelMetadata] {
	return tableSpec[*graph.LabelMetadata]{
		table:    "labels",
		columns:  labelColumns,
		nameCol:  "label",
		hasGraph: true,
		scan:     scanLabel,
		key: func(l *graph.LabelMetadata) (string, int64, string) {
			return l.GUID, toNanos(l.CreatedUTC), l.Label
		},
	}
}

// EnumerateLabels pages label rows per the shared enumeration contract.
func (c *Client) EnumerateLabels(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.LabelMetadata], error) {
	return enumerate(ctx, c, labelSpec(), req)
}
