package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const tenantColumns = "t.guid, t.name, t.active, t.created_utc, t.last_update_utc"

func scanTenant(rows *sql.Rows) (*graph.Tenant, error) {
	var (
		t                graph.Tenant
		active           int
		created, updated int64
	)
	if err := rows.Scan(&t.GUID, &t.Name, &active, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan tenant: %v", graph.ErrStorage, err)
	}
	t.Active = active != 0
	t.CreatedUTC = fromNanos(created)
	t.LastUpdateUTC = fromNanos(updated)
	return &t, nil
}

// CreateTenant inserts a tenant, assigning GUID and timestamps when
// absent.
func (c *Client) CreateTenant(ctx context.Context, t *graph.Tenant) (*graph.Tenant, error) {
	if t == nil || t.Name == "" {
		return nil, fmt.Errorf("%w: tenant name required", graph.ErrValidation)
	}
	if t.GUID == "" {
		t.GUID = graph.NewGUID()
	}
	ts := now()
	t.CreatedUTC = ts
	t.LastUpdateUTC = ts

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := existsTx(ctx, tx, "tenants", "guid = ?", t.GUID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: tenant %s already exists", graph.ErrConflict, t.GUID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tenants (guid, name, active, created_utc, last_update_utc) VALUES (?, ?, ?, ?, ?)`,
			t.GUID, t.Name, boolToInt(t.Active), toNanos(ts), toNanos(ts))
		if err != nil {
			return fmt.Errorf("%w: insert tenant: %v", graph.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReadTenant returns the tenant or ErrNotFound.
func (c *Client) ReadTenant(ctx context.Context, guid string) (*graph.Tenant, error) {
	if guid == "" {
		return nil, fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	var (
		t                graph.Tenant
		active           int
		created, updated int64
	)
	err := c.queryRow(ctx,
		"SELECT guid, name, active, created_utc, last_update_utc FROM tenants WHERE guid = ?",
		[]any{guid}, &t.GUID, &t.Name, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant %s", graph.ErrNotFound, guid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read tenant %s: %v", graph.ErrStorage, guid, err)
	}
	t.Active = active != 0
	t.CreatedUTC = fromNanos(created)
	t.LastUpdateUTC = fromNanos(updated)
	return &t, nil
}

// UpdateTenant replaces the stored row keyed by GUID.
func (c *Client) UpdateTenant(ctx context.Context, t *graph.Tenant) (*graph.Tenant, error) {
	if t == nil || t.GUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("%w: tenant name required", graph.ErrValidation)
	}
	ts := now()
	res, err := c.execute(ctx,
		"UPDATE tenants SET name = ?, active = ?, last_update_utc = ? WHERE guid = ?",
		t.Name, boolToInt(t.Active), toNanos(ts), t.GUID)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: tenant %s", graph.ErrNotFound, t.GUID)
	}
	t.LastUpdateUTC = ts
	return t, nil
}

// TenantEmpty reports whether the tenant owns no graphs, users, or
// credentials.
func (c *Client) TenantEmpty(ctx context.Context, guid string) (bool, error) {
	for _, table := range []string{"graphs", "users", "credentials"} {
		var one int
		err := c.queryRow(ctx, "SELECT 1 FROM "+table+" WHERE tenant_guid = ? LIMIT 1", []any{guid}, &one)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: check %s: %v", graph.ErrStorage, table, err)
		}
	}
	return true, nil
}

// DeleteTenant removes a tenant. Deleting a non-existent tenant is a
// no-op. A non-empty tenant is refused unless force is set, in which
// case every owned entity is removed in the same transaction.
func (c *Client) DeleteTenant(ctx context.Context, guid string, force bool) error {
	if guid == "" {
		return fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := existsTx(ctx, tx, "tenants", "guid = ?", guid)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if !force {
			for _, table := range []string{"graphs", "users", "credentials"} {
				nonEmpty, err := existsTx(ctx, tx, table, "tenant_guid = ?", guid)
				if err != nil {
					return err
				}
				if nonEmpty {
					return fmt.Errorf("%w: tenant %s is not empty; delete requires force", graph.ErrConflict, guid)
				}
			}
		}

		for _, table := range []string{"vectors", "tags", "labels", "edges", "nodes", "graphs", "credentials", "users"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE tenant_guid = ?", guid); err != nil {
				return fmt.Errorf("%w: cascade %s: %v", graph.ErrStorage, table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tenants WHERE guid = ?", guid); err != nil {
			return fmt.Errorf("%w: delete tenant: %v", graph.ErrStorage, err)
		}
		return nil
	})
}

func tenantSpec() tableSpec[*graph.Tenant] {
	return tableSpec[*graph.Tenant]{
		table:    "tenants",
		columns:  tenantColumns,
		nameCol:  "name",
		scopeCol: "guid", // tenants scope on themselves
		scan:     scanTenant,
		key: func(t *graph.Tenant) (string, int64, string) {
			return t.GUID, toNanos(t.CreatedUTC), t.Name
		},
	}
}

// EnumerateTenants pages over a single tenant row; TenantGUID names the
// tenant, keeping the shared contract uniform across entity kinds.
func (c *Client) EnumerateTenants(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Tenant], error) {
	return enumerate(ctx, c, tenantSpec(), req)
}

// ListTenants returns every tenant ordered by creation time. Intended
// for administrative tooling.
func (c *Client) ListTenants(ctx context.Context) ([]*graph.Tenant, error) {
	var tenants []*graph.Tenant
	err := c.queryAll(ctx,
		"SELECT "+tenantColumns+" FROM tenants t ORDER BY t.created_utc ASC, t.guid ASC",
		nil, func(rows *sql.Rows) error {
			t, err := scanTenant(rows)
			if err != nil {
				return err
			}
			tenants = append(tenants, t)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}
