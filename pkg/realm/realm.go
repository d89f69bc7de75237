// Package realm verifies credentials presented during an exchange against
// a credential store, and bridges those stores to sasl callbacks.
//
// Realms:
//   - FileRealm: YAML file of principals with hashed passwords, hot reloaded
//   - DirectoryRealm: LDAP (or any directory.Provider) credential lookups
//   - TokenRealm: HMAC-signed bearer tokens for OAUTHBEARER
//   - sqlrealm.Realm: principals stored in SQLite or PostgreSQL
//   - kerberos.Realm: passwords verified by an AS exchange with the KDC
package realm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the realm has no such principal.
	ErrNotFound = errors.New("realm: principal not found")

	// ErrInvalidToken means a bearer token failed verification.
	ErrInvalidToken = errors.New("realm: invalid token")
)

// Realm verifies passwords.
type Realm interface {
	// Name identifies the realm in logs and metrics.
	Name() string

	// VerifyPassword reports whether password is valid for principal. An
	// unknown principal is an error matching ErrNotFound. Other errors
	// mean the realm could not decide.
	VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error)
}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	// VerifyToken returns the subject the token was issued to. A token
	// that fails verification is an error matching ErrInvalidToken.
	VerifyToken(ctx context.Context, token string) (subject string, err error)
}

// Authorizer decides whether an authenticated principal may act as
// another identity.
type Authorizer interface {
	Authorize(ctx context.Context, authenticationID, authorizationID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, authenticationID, authorizationID string) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authn, authz string) (bool, error) {
	return f(ctx, authn, authz)
}

// Chain tries realms in order. The first realm that knows the principal
// decides; ErrNotFound is returned only when none does.
type Chain []Realm

func (c Chain) Name() string { return "chain" }

func (c Chain) VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error) {
	for _, r := range c {
		ok, err := r.VerifyPassword(ctx, principal, password)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return ok, err
	}
	return false, ErrNotFound
}

// WithTimeout bounds every VerifyPassword call on r by d. A zero or
// negative d returns r unchanged.
func WithTimeout(r Realm, d time.Duration) Realm {
	if d <= 0 {
		return r
	}
	return &timeoutRealm{Realm: r, timeout: d}
}

type timeoutRealm struct {
	Realm
	timeout time.Duration
}

func (t *timeoutRealm) VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Realm.VerifyPassword(ctx, principal, password)
}
