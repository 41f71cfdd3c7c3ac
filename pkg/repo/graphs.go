package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const graphColumns = "t.guid, t.tenant_guid, t.name, t.vector_index, t.data, t.created_utc, t.last_update_utc"

func scanGraph(rows *sql.Rows) (*graph.Graph, error) {
	var (
		g                graph.Graph
		vectorIndex      sql.NullString
		data             sql.NullString
		created, updated int64
	)
	if err := rows.Scan(&g.GUID, &g.TenantGUID, &g.Name, &vectorIndex, &data, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan graph: %v", graph.ErrStorage, err)
	}
	cfg, err := unmarshalIndexConfig(vectorIndex)
	if err != nil {
		return nil, err
	}
	payload, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	g.VectorIndex = cfg
	g.Data = payload
	g.CreatedUTC = fromNanos(created)
	g.LastUpdateUTC = fromNanos(updated)
	return &g, nil
}

func validateIndexConfig(cfg *graph.VectorIndexConfig) error {
	if cfg == nil {
		return nil
	}
	switch cfg.Type {
	case graph.VectorIndexNone, graph.VectorIndexRAM, graph.VectorIndexFile:
	default:
		return fmt.Errorf("%w: unknown vector index type %q", graph.ErrValidation, cfg.Type)
	}
	if cfg.Type != graph.VectorIndexNone {
		if cfg.Dimensions <= 0 {
			return fmt.Errorf("%w: vector index dimensions must be positive", graph.ErrValidation)
		}
		if cfg.M < 0 || cfg.Ef < 0 || cfg.EfConstruction < 0 || cfg.Threshold < 0 {
			return fmt.Errorf("%w: vector index parameters must be non-negative", graph.ErrValidation)
		}
	}
	if cfg.Type == graph.VectorIndexFile && cfg.IndexFile == "" {
		return fmt.Errorf("%w: file-backed vector index requires an index file path", graph.ErrValidation)
	}
	return nil
}

// CreateGraph inserts a graph, validating any vector index configuration.
func (c *Client) CreateGraph(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	if g == nil || g.TenantGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	if g.Name == "" {
		return nil, fmt.Errorf("%w: graph name required", graph.ErrValidation)
	}
	if err := validateIndexConfig(g.VectorIndex); err != nil {
		return nil, err
	}
	if g.GUID == "" {
		g.GUID = graph.NewGUID()
	}
	ts := now()
	g.CreatedUTC = ts
	g.LastUpdateUTC = ts

	vectorIndex, err := marshalIndexConfig(g.VectorIndex)
	if err != nil {
		return nil, err
	}
	data, err := marshalData(g.Data)
	if err != nil {
		return nil, err
	}

	err = c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireTenantTx(ctx, tx, g.TenantGUID); err != nil {
			return err
		}
		ok, err := existsTx(ctx, tx, "graphs", "guid = ?", g.GUID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: graph %s already exists", graph.ErrConflict, g.GUID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO graphs (guid, tenant_guid, name, vector_index, data, created_utc, last_update_utc)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.GUID, g.TenantGUID, g.Name, vectorIndex, data, toNanos(ts), toNanos(ts))
		if err != nil {
			return fmt.Errorf("%w: insert graph: %v", graph.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ReadGraph returns the graph or ErrNotFound; ErrScopeViolation when it
// belongs to a different tenant.
func (c *Client) ReadGraph(ctx context.Context, tenantGUID, guid string) (*graph.Graph, error) {
	var found *graph.Graph
	err := c.queryAll(ctx,
		"SELECT "+graphColumns+" FROM graphs t WHERE t.guid = ? LIMIT 1",
		[]any{guid}, func(rows *sql.Rows) error {
			g, err := scanGraph(rows)
			if err != nil {
				return err
			}
			found = g
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: graph %s", graph.ErrNotFound, guid)
	}
	if found.TenantGUID != tenantGUID {
		return nil, fmt.Errorf("%w: graph %s belongs to tenant %s, not %s",
			graph.ErrScopeViolation, guid, found.TenantGUID, tenantGUID)
	}
	return found, nil
}

func readGraphTx(ctx context.Context, tx *sql.Tx, tenantGUID, guid string) (*graph.Graph, error) {
	var (
		g                graph.Graph
		vectorIndex      sql.NullString
		data             sql.NullString
		created, updated int64
	)
	err := tx.QueryRowContext(ctx,
		"SELECT guid, tenant_guid, name, vector_index, data, created_utc, last_update_utc FROM graphs WHERE guid = ?",
		guid).Scan(&g.GUID, &g.TenantGUID, &g.Name, &vectorIndex, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: graph %s", graph.ErrNotFound, guid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read graph %s: %v", graph.ErrStorage, guid, err)
	}
	if g.TenantGUID != tenantGUID {
		return nil, fmt.Errorf("%w: graph %s belongs to tenant %s, not %s",
			graph.ErrScopeViolation, guid, g.TenantGUID, tenantGUID)
	}
	cfg, err := unmarshalIndexConfig(vectorIndex)
	if err != nil {
		return nil, err
	}
	payload, err := unmarshalData(data)
	if err != nil {
		return nil, err
	}
	g.VectorIndex = cfg
	g.Data = payload
	g.CreatedUTC = fromNanos(created)
	g.LastUpdateUTC = fromNanos(updated)
	return &g, nil
}

// UpdateGraph replaces the stored row keyed by GUID.
func (c *Client) UpdateGraph(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	if g == nil || g.GUID == "" || g.TenantGUID == "" {
		return nil, fmt.Errorf("%w: graph GUID and tenant GUID required", graph.ErrValidation)
	}
	if g.Name == "" {
		return nil, fmt.Errorf("%w: graph name required", graph.ErrValidation)
	}
	if err := validateIndexConfig(g.VectorIndex); err != nil {
		return nil, err
	}
	vectorIndex, err := marshalIndexConfig(g.VectorIndex)
	if err != nil {
		return nil, err
	}
	data, err := marshalData(g.Data)
	if err != nil {
		return nil, err
	}
	ts := now()
	res, err := c.execute(ctx,
		"UPDATE graphs SET name = ?, vector_index = ?, data = ?, last_update_utc = ? WHERE tenant_guid = ? AND guid = ?",
		g.Name, vectorIndex, data, toNanos(ts), g.TenantGUID, g.GUID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: graph %s", graph.ErrNotFound, g.GUID)
	}
	g.LastUpdateUTC = ts
	return g, nil
}

// GraphEmpty reports whether the graph holds no nodes or edges.
func (c *Client) GraphEmpty(ctx context.Context, tenantGUID, guid string) (bool, error) {
	for _, table := range []string{"nodes", "edges"} {
		var one int
		err := c.queryRow(ctx,
			"SELECT 1 FROM "+table+" WHERE tenant_guid = ? AND graph_guid = ? LIMIT 1",
			[]any{tenantGUID, guid}, &one)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: check %s: %v", graph.ErrStorage, table, err)
		}
	}
	return true, nil
}

// DeleteGraph removes a graph. Deleting a non-existent graph is a no-op.
// A graph with nodes or edges is refused unless force is set, in which
// case every owned node, edge, label, tag, and vector is removed in the
// same transaction.
func (c *Client) DeleteGraph(ctx context.Context, tenantGUID, guid string, force bool) error {
	if tenantGUID == "" || guid == "" {
		return fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT tenant_guid FROM graphs WHERE guid = ?", guid).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read graph %s: %v", graph.ErrStorage, guid, err)
		}
		if owner != tenantGUID {
			return fmt.Errorf("%w: graph %s belongs to tenant %s, not %s",
				graph.ErrScopeViolation, guid, owner, tenantGUID)
		}

		if !force {
			for _, table := range []string{"nodes", "edges"} {
				nonEmpty, err := existsTx(ctx, tx, table, "graph_guid = ?", guid)
				if err != nil {
					return err
				}
				if nonEmpty {
					return fmt.Errorf("%w: graph %s is not empty; delete requires force", graph.ErrConflict, guid)
				}
			}
		}

		for _, table := range []string{"vectors", "tags", "labels", "edges", "nodes"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE graph_guid = ?", guid); err != nil {
				return fmt.Errorf("%w: cascade %s: %v", graph.ErrStorage, table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM graphs WHERE guid = ?", guid); err != nil {
			return fmt.Errorf("%w: delete graph: %v", graph.ErrStorage, err)
		}
		return nil
	})
}

func graphSpec() tableSpec[*graph.Graph] {
	return tableSpec[*graph.Graph]{
		table:   "graphs",
		columns: graphColumns,
		nameCol: "name",
		scan:    scanGraph,
		key: func(g *graph.Graph) (string, int64, string) {
			return g.GUID, toNanos(g.CreatedUTC), g.Name
		},
		finish: func(ctx context.Context, c *Client, items []*graph.Graph, req graph.EnumerationRequest) error {
			if !req.IncludeData {
				for _, g := range items {
					g.Data = nil
				}
			}
			return nil
		},
	}
}

// EnumerateGraphs pages the tenant's graphs.
func (c *Client) EnumerateGraphs(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Graph], error) {
	return enumerate(ctx, c, graphSpec(), req)
}
