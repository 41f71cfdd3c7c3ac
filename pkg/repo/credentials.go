package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veldtdb/veldt/pkg/graph"
)

const credentialColumns = "t.guid, t.tenant_guid, t.user_guid, t.name, t.bearer_token, t.active, t.created_utc, t.last_update_utc"

func scanCredential(rows *sql.Rows) (*graph.Credential, error) {
	var (
		cred             graph.Credential
		active           int
		created, updated int64
	)
	if err := rows.Scan(&cred.GUID, &cred.TenantGUID, &cred.UserGUID, &cred.Name,
		&cred.BearerToken, &active, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan credential: %v", graph.ErrStorage, err)
	}
	cred.Active = active != 0
	cred.CreatedUTC = fromNanos(created)
	cred.LastUpdateUTC = fromNanos(updated)
	return &cred, nil
}

// CreateCredential inserts a credential. The bearer token is unique
// across all tenants; a duplicate fails with ErrConflict.
func (c *Client) CreateCredential(ctx context.Context, cred *graph.Credential) (*graph.Credential, error) {
	if cred == nil || cred.TenantGUID == "" || cred.UserGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID and user GUID required", graph.ErrValidation)
	}
	if cred.BearerToken == "" {
		return nil, fmt.Errorf("%w: bearer token required", graph.ErrValidation)
	}
	if cred.GUID == "" {
		cred.GUID = graph.NewGUID()
	}
	ts := now()
	cred.CreatedUTC = ts
	cred.LastUpdateUTC = ts

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireTenantTx(ctx, tx, cred.TenantGUID); err != nil {
			return err
		}
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT tenant_guid FROM users WHERE guid = ?", cred.UserGUID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %s", graph.ErrNotFound, cred.UserGUID)
		}
		if err != nil {
			return fmt.Errorf("%w: read user %s: %v", graph.ErrStorage, cred.UserGUID, err)
		}
		if owner != cred.TenantGUID {
			return fmt.Errorf("%w: user %s belongs to tenant %s, not %s",
				graph.ErrScopeViolation, cred.UserGUID, owner, cred.TenantGUID)
		}

		taken, err := existsTx(ctx, tx, "credentials", "bearer_token = ?", cred.BearerToken)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: bearer token already in use", graph.ErrConflict)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO credentials (guid, tenant_guid, user_guid, name, bearer_token, active, created_utc, last_update_utc)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			cred.GUID, cred.TenantGUID, cred.UserGUID, cred.Name, cred.BearerToken,
			boolToInt(cred.Active), toNanos(ts), toNanos(ts))
		if err != nil {
			return fmt.Errorf("%w: insert credential: %v", graph.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// ReadCredential returns the credential or ErrNotFound.
func (c *Client) ReadCredential(ctx context.Context, tenantGUID, guid string) (*graph.Credential, error) {
	return c.readCredentialWhere(ctx, "t.tenant_guid = ? AND t.guid = ?", tenantGUID, guid)
}

// ReadCredentialByBearerToken resolves a bearer token across tenants.
// Consumed by the authentication collaborator.
func (c *Client) ReadCredentialByBearerToken(ctx context.Context, token string) (*graph.Credential, error) {
	return c.readCredentialWhere(ctx, "t.bearer_token = ?", token)
}

func (c *Client) readCredentialWhere(ctx context.Context, cond string, args ...any) (*graph.Credential, error) {
	var found *graph.Credential
	err := c.queryAll(ctx,
		"SELECT "+credentialColumns+" FROM credentials t WHERE "+cond+" LIMIT 1",
		args, func(rows *sql.Rows) error {
			cred, err := scanCredential(rows)
			if err != nil {
				return err
			}
			found = cred
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: credential", graph.ErrNotFound)
	}
	return found, nil
}

// UpdateCredential replaces the stored row keyed by GUID. The bearer
// token itself is immutable; issue a new credential to rotate.
func (c *Client) UpdateCredential(ctx context.Context, cred *graph.Credential) (*graph.Credential, error) {
	if cred == nil || cred.GUID == "" || cred.TenantGUID == "" {
		return nil, fmt.Errorf("%w: credential GUID and tenant GUID required", graph.ErrValidation)
	}
	ts := now()
	res, err := c.execute(ctx,
		"UPDATE credentials SET name = ?, active = ?, last_update_utc = ? WHERE tenant_guid = ? AND guid = ?",
		cred.Name, boolToInt(cred.Active), toNanos(ts), cred.TenantGUID, cred.GUID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: credential %s", graph.ErrNotFound, cred.GUID)
	}
	cred.LastUpdateUTC = ts
	return cred, nil
}

// DeleteCredential removes a credential. Idempotent.
func (c *Client) DeleteCredential(ctx context.Context, tenantGUID, guid string) error {
	_, err := c.execute(ctx,
		"DELETE FROM credentials WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid)
	return err
}

// DeleteCredentials removes many credentials in one transaction.
func (c *Client) DeleteCredentials(ctx context.Context, tenantGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM credentials WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete credential: %v", graph.ErrStorage, err)
			}
		}
		return nil
	})
}

func credentialSpec() tableSpec[*graph.Credential] {
	return tableSpec[*graph.Credential]{
		table:   "credentials",
		columns: credentialColumns,
		nameCol: "name",
		scan:    scanCredential,
		key: func(cred *graph.Credential) (string, int64, string) {
			return cred.GUID, toNanos(cred.CreatedUTC), cred.Name
		},
	}
}

// EnumerateCredentials pages the tenant's credentials.
func (c *Client) EnumerateCredentials(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.Credential], error) {
	return enumerate(ctx, c, credentialSpec(), req)
}
