package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veldtdb/veldt/pkg/graph"
)

const userColumns = "t.guid, t.tenant_guid, t.first_name, t.last_name, t.email, t.password, t.active, t.created_utc, t.last_update_utc"

func scanUser(rows *sql.Rows) (*graph.User, error) {
	var (
		u                graph.User
		active           int
		created, updated int64
	)
	if err := rows.Scan(&u.GUID, &u.TenantGUID, &u.FirstName, &u.LastName, &u.Email,
		&u.Password, &active, &created, &updated); err != nil {
		return nil, fmt.Errorf("%w: scan user: %v", graph.ErrStorage, err)
	}
	u.Active = active != 0
	u.CreatedUTC = fromNanos(created)
	u.LastUpdateUTC = fromNanos(updated)
	return &u, nil
}

// CreateUser inserts a user. Email is unique per tenant; a duplicate
// fails with ErrConflict.
func (c *Client) CreateUser(ctx context.Context, u *graph.User) (*graph.User, error) {
	if u == nil || u.TenantGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	if u.Email == "" || u.Password == "" {
		return nil, fmt.Errorf("%w: email and password required", graph.ErrValidation)
	}
	if u.GUID == "" {
		u.GUID = graph.NewGUID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	ts := now()
	u.CreatedUTC = ts
	u.LastUpdateUTC = ts

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireTenantTx(ctx, tx, u.TenantGUID); err != nil {
			return err
		}
		taken, err := existsTx(ctx, tx, "users", "tenant_guid = ? AND email = ?", u.TenantGUID, u.Email)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email %s already registered in tenant %s", graph.ErrConflict, u.Email, u.TenantGUID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (guid, tenant_guid, first_name, last_name, email, password, active, created_utc, last_update_utc)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.GUID, u.TenantGUID, u.FirstName, u.LastName, u.Email, u.Password,
			boolToInt(u.Active), toNanos(ts), toNanos(ts))
		if err != nil {
			return fmt.Errorf("%w: insert user: %v", graph.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ReadUser returns the user or ErrNotFound. The tenant GUID scopes the
// lookup.
func (c *Client) ReadUser(ctx context.Context, tenantGUID, guid string) (*graph.User, error) {
	return c.readUserWhere(ctx, "t.tenant_guid = ? AND t.guid = ?", tenantGUID, guid)
}

// ReadUserByEmail looks a user up by email within a tenant. Consumed by
// the authentication collaborator.
func (c *Client) ReadUserByEmail(ctx context.Context, tenantGUID, email string) (*graph.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return c.readUserWhere(ctx, "t.tenant_guid = ? AND t.email = ?", tenantGUID, email)
}

func (c *Client) readUserWhere(ctx context.Context, cond string, args ...any) (*graph.User, error) {
	var found *graph.User
	err := c.queryAll(ctx,
		"SELECT "+userColumns+" FROM users t WHERE "+cond+" LIMIT 1",
		args, func(rows *sql.Rows) error {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			found = u
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: user", graph.ErrNotFound)
	}
	return found, nil
}

// UpdateUser replaces the stored row keyed by GUID.
func (c *Client) UpdateUser(ctx context.Context, u *graph.User) (*graph.User, error) {
	if u == nil || u.GUID == "" || u.TenantGUID == "" {
		return nil, fmt.Errorf("%w: user GUID and tenant GUID required", graph.ErrValidation)
	}
	if u.Email == "" {
		return nil, fmt.Errorf("%w: email required", graph.ErrValidation)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	ts := now()

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := existsTx(ctx, tx, "users",
			"tenant_guid = ? AND email = ? AND guid != ?", u.TenantGUID, u.Email, u.GUID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email %s already registered in tenant %s", graph.ErrConflict, u.Email, u.TenantGUID)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET first_name = ?, last_name = ?, email = ?, password = ?, active = ?, last_update_utc = ?
			 WHERE tenant_guid = ? AND guid = ?`,
			u.FirstName, u.LastName, u.Email, u.Password, boolToInt(u.Active),
			toNanos(ts), u.TenantGUID, u.GUID)
		if err != nil {
			return fmt.Errorf("%w: update user: %v", graph.ErrStorage, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: user %s", graph.ErrNotFound, u.GUID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.LastUpdateUTC = ts
	return u, nil
}

// DeleteUser removes a user and their credentials. Idempotent.
func (c *Client) DeleteUser(ctx context.Context, tenantGUID, guid string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM credentials WHERE tenant_guid = ? AND user_guid = ?", tenantGUID, guid); err != nil {
			return fmt.Errorf("%w: delete credentials: %v", graph.ErrStorage, err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM users WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
			return fmt.Errorf("%w: delete user: %v", graph.ErrStorage, err)
		}
		return nil
	})
}

// DeleteUsers removes many users in one transaction. Idempotent per GUID.
func (c *Client) DeleteUsers(ctx context.Context, tenantGUID string, guids []string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, guid := range guids {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM credentials WHERE tenant_guid = ? AND user_guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete credentials: %v", graph.ErrStorage, err)
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM users WHERE tenant_guid = ? AND guid = ?", tenantGUID, guid); err != nil {
				return fmt.Errorf("%w: delete user: %v", graph.ErrStorage, err)
			}
		}
		return nil
	})
}

func userSpec() tableSpec[*graph.User] {
	return tableSpec[*graph.User]{
		table:   "users",
		columns: userColumns,
		nameCol: "email",
		scan:    scanUser,
		key: func(u *graph.User) (string, int64, string) {
			return u.GUID, toNanos(u.CreatedUTC), u.Email
		},
	}
}

// EnumerateUsers pages the tenant's users.
func (c *Client) EnumerateUsers(ctx context.Context, req graph.EnumerationRequest) (*graph.EnumerationResult[*graph.User], error) {
	return enumerate(ctx, c, userSpec(), req)
}
