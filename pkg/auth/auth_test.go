package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/veldt/pkg/graph"
)

// fakeRepo is an in-memory RepositoryReader for authenticator tests.
type fakeRepo struct {
	tenants     map[string]*graph.Tenant
	users       map[string]*graph.User // keyed tenantGUID + "/" + guid
	credentials map[string]*graph.Credential
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tenants:     map[string]*graph.Tenant{},
		users:       map[string]*graph.User{},
		credentials: map[string]*graph.Credential{},
	}
}

func (r *fakeRepo) ReadTenant(ctx context.Context, guid string) (*graph.Tenant, error) {
	t, ok := r.tenants[guid]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) ReadUser(ctx context.Context, tenantGUID, guid string) (*graph.User, error) {
	u, ok := r.users[tenantGUID+"/"+guid]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) ReadUserByEmail(ctx context.Context, tenantGUID, email string) (*graph.User, error) {
	for _, u := range r.users {
		if u.TenantGUID == tenantGUID && u.Email == email {
			return u, nil
		}
	}
	return nil, graph.ErrNotFound
}

func (r *fakeRepo) ReadCredentialByBearerToken(ctx context.Context, token string) (*graph.Credential, error) {
	c, ok := r.credentials[token]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return c, nil
}

func seedAccount(t *testing.T, repo *fakeRepo, a *Authenticator, password string) (*graph.Tenant, *graph.User, *graph.Credential) {
	t.Helper()

	hash, err := a.HashPassword(password)
	require.NoError(t, err)
	token, err := GenerateBearerToken()
	require.NoError(t, err)

	tenant := &graph.Tenant{GUID: "t1", Name: "acme", Active: true}
	user := &graph.User{GUID: "u1", TenantGUID: "t1", Email: "ada@acme.test", Password: hash, Active: true}
	cred := &graph.Credential{GUID: "c1", TenantGUID: "t1", UserGUID: "u1", BearerToken: token, Active: true}

	repo.tenants[tenant.GUID] = tenant
	repo.users[user.TenantGUID+"/"+user.GUID] = user
	repo.credentials[cred.BearerToken] = cred
	return tenant, user, cred
}

func TestAuthenticateBasic(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	a := NewAuthenticator(repo)
	tenant, user, _ := seedAccount(t, repo, a, "correct horse")

	gotTenant, gotUser, err := a.AuthenticateBasic(ctx, tenant.GUID, user.Email, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, tenant.GUID, gotTenant.GUID)
	assert.Equal(t, user.GUID, gotUser.GUID)

	_, _, err = a.AuthenticateBasic(ctx, tenant.GUID, user.Email, "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user and unknown tenant are indistinguishable from a bad
	// password.
	_, _, err = a.AuthenticateBasic(ctx, tenant.GUID, "nobody@acme.test", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.AuthenticateBasic(ctx, "ghost-tenant", user.Email, "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateBasic_InactiveAccounts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	a := NewAuthenticator(repo)
	tenant, user, _ := seedAccount(t, repo, a, "correct horse")

	tenant.Active = false
	_, _, err := a.AuthenticateBasic(ctx, tenant.GUID, user.Email, "correct horse")
	assert.ErrorIs(t, err, ErrTenantInactive)
	tenant.Active = true

	user.Active = false
	_, _, err = a.AuthenticateBasic(ctx, tenant.GUID, user.Email, "correct horse")
	assert.ErrorIs(t, err, ErrUserInactive)

	// The password is still checked first.
	_, _, err = a.AuthenticateBasic(ctx, tenant.GUID, user.Email, "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateBearer(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	a := NewAuthenticator(repo)
	tenant, user, cred := seedAccount(t, repo, a, "correct horse")

	gotTenant, gotUser, gotCred, err := a.AuthenticateBearer(ctx, cred.BearerToken)
	require.NoError(t, err)
	assert.Equal(t, tenant.GUID, gotTenant.GUID)
	assert.Equal(t, user.GUID, gotUser.GUID)
	assert.Equal(t, cred.GUID, gotCred.GUID)

	_, _, _, err = a.AuthenticateBearer(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = a.AuthenticateBearer(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateBearer_InactiveChain(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	a := NewAuthenticator(repo)
	tenant, user, cred := seedAccount(t, repo, a, "correct horse")

	cred.Active = false
	_, _, _, err := a.AuthenticateBearer(ctx, cred.BearerToken)
	assert.ErrorIs(t, err, ErrCredentialInactive)
	cred.Active = true

	tenant.Active = false
	_, _, _, err = a.AuthenticateBearer(ctx, cred.BearerToken)
	assert.ErrorIs(t, err, ErrTenantInactive)
	tenant.Active = true

	user.Active = false
	_, _, _, err = a.AuthenticateBearer(ctx, cred.BearerToken)
	assert.ErrorIs(t, err, ErrUserInactive)
	user.Active = true

	delete(repo.users, user.TenantGUID+"/"+user.GUID)
	_, _, _, err = a.AuthenticateBearer(ctx, cred.BearerToken)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHashPassword(t *testing.T) {
	a := NewAuthenticator(newFakeRepo())

	_, err := a.HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := a.HashPassword("long enough")
	require.NoError(t, err)
	assert.NotEqual(t, "long enough", hash)

	// Hashing is salted, two calls never collide.
	other, err := a.HashPassword("long enough")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestGenerateBearerToken(t *testing.T) {
	a, err := GenerateBearerToken()
	require.NoError(t, err)
	b, err := GenerateBearerToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
