// Package auth authenticates callers against the repository: basic
// (tenant + email + password) and bearer-token flows. It owns password
// hashing and token generation but no transport surface.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/veldtdb/veldt/pkg/graph"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrTenantInactive     = errors.New("tenant is inactive")
	ErrUserInactive       = errors.New("user is inactive")
	ErrCredentialInactive = errors.New("credential is inactive")
	ErrPasswordTooShort   = errors.New("password does not meet minimum length requirement")
)

// MinPasswordLength applies when hashing new passwords, not when
// verifying existing ones.
const MinPasswordLength = 8

const bearerTokenBytes = 32

// RepositoryReader is the slice of the repository the authenticator
// needs.
type RepositoryReader interface {
	ReadTenant(ctx context.Context, guid string) (*graph.Tenant, error)
	ReadUser(ctx context.Context, tenantGUID, guid string) (*graph.User, error)
	ReadUserByEmail(ctx context.Context, tenantGUID, email string) (*graph.User, error)
	ReadCredentialByBearerToken(ctx context.Context, token string) (*graph.Credential, error)
}

// Authenticator validates callers against repository state.
type Authenticator struct {
	repo RepositoryReader
	cost int
}

func NewAuthenticator(repo RepositoryReader) *Authenticator {
	return &Authenticator{repo: repo, cost: bcrypt.DefaultCost}
}

// HashPassword returns the bcrypt hash to store in User.Password.
func (a *Authenticator) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: minimum %d characters required", ErrPasswordTooShort, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// GenerateBearerToken returns a random token for a new credential.
func GenerateBearerToken() (string, error) {
	buf := make([]byte, bearerTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate bearer token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// dummyHash keeps the timing profile of unknown accounts close to the
// known-account path.
var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("veldt-timing-pad"), bcrypt.DefaultCost)
	return h
}()

// AuthenticateBasic resolves the tenant and user for an email/password
// pair. Unknown users and wrong passwords both come back as
// ErrInvalidCredentials so callers cannot probe for accounts; inactive
// tenants and users fail with their own sentinels after the password
// check.
func (a *Authenticator) AuthenticateBasic(ctx context.Context, tenantGUID, email, password string) (*graph.Tenant, *graph.User, error) {
	tenant, err := a.repo.ReadTenant(ctx, tenantGUID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	user, err := a.repo.ReadUserByEmail(ctx, tenantGUID, email)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !tenant.Active {
		return nil, nil, ErrTenantInactive
	}
	if !user.Active {
		return nil, nil, ErrUserInactive
	}
	return tenant, user, nil
}

// AuthenticateBearer resolves the tenant, user, and credential for a
// bearer token.
func (a *Authenticator) AuthenticateBearer(ctx context.Context, token string) (*graph.Tenant, *graph.User, *graph.Credential, error) {
	if token == "" {
		return nil, nil, nil, ErrInvalidCredentials
	}

	cred, err := a.repo.ReadCredentialByBearerToken(ctx, token)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil, nil, ErrInvalidCredentials
		}
		return nil, nil, nil, err
	}
	if !cred.Active {
		return nil, nil, nil, ErrCredentialInactive
	}

	tenant, err := a.repo.ReadTenant(ctx, cred.TenantGUID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil, nil, ErrInvalidCredentials
		}
		return nil, nil, nil, err
	}
	if !tenant.Active {
		return nil, nil, nil, ErrTenantInactive
	}

	user, err := a.repo.ReadUser(ctx, cred.TenantGUID, cred.UserGUID)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil, nil, ErrUserNotFound
		}
		return nil, nil, nil, err
	}
	if !user.Active {
		return nil, nil, nil, ErrUserInactive
	}
	return tenant, user, cred, nil
}
