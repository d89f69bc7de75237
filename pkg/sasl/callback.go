package sasl

import (
	"context"
	"crypto/subtle"
	"errors"
)

// Callback is a request from a mechanism for credential or identity
// information. Resolvers fill in the callback's result fields.
type Callback interface {
	CallbackName() string
}

// NameCallback asks for the authentication identity to present.
type NameCallback struct {
	// Default is the identity the mechanism proposes, may be empty.
	Default string
	Name    string
}

// PasswordCallback asks for the password of Principal. Resolvers must hand
// out a fresh buffer each time; the mechanism wipes it after use.
type PasswordCallback struct {
	Principal string
	Password  []byte
}

// TokenCallback asks for a bearer token for Principal.
type TokenCallback struct {
	Principal string
	Token     string
}

// VerifyPasswordCallback asks the resolver to verify a password presented
// by a peer.
type VerifyPasswordCallback struct {
	Principal string
	Password  []byte
	Verified  bool
}

// VerifyTokenCallback asks the resolver to verify a bearer token. Subject
// is the principal the token was issued to, filled on success.
type VerifyTokenCallback struct {
	Principal string
	Token     string
	Verified  bool
	Subject   string
}

// AnonymousCallback asks whether an anonymous login with Trace is allowed.
type AnonymousCallback struct {
	Trace   string
	Allowed bool
}

// AuthorizeCallback asks whether AuthenticationID may act as
// AuthorizationID.
type AuthorizeCallback struct {
	AuthenticationID string
	AuthorizationID  string
	Authorized       bool
}

func (*NameCallback) CallbackName() string           { return "name" }
func (*PasswordCallback) CallbackName() string       { return "password" }
func (*TokenCallback) CallbackName() string          { return "token" }
func (*VerifyPasswordCallback) CallbackName() string { return "verify-password" }
func (*VerifyTokenCallback) CallbackName() string    { return "verify-token" }
func (*AnonymousCallback) CallbackName() string      { return "anonymous" }
func (*AuthorizeCallback) CallbackName() string      { return "authorize" }

// CallbackResolver satisfies callbacks on behalf of a mechanism.
//
// Resolve either fills every callback and returns nil, or returns an error.
// An error for a callback it does not handle should be built with
// Unresolvable. Resolve may block (a directory lookup, say) and must honor
// ctx.
type CallbackResolver interface {
	Resolve(ctx context.Context, callbacks ...Callback) error
}

// ResolverFunc adapts a function to CallbackResolver.
type ResolverFunc func(ctx context.Context, callbacks ...Callback) error

func (f ResolverFunc) Resolve(ctx context.Context, callbacks ...Callback) error {
	return f(ctx, callbacks...)
}

// refuseAll is used when a handle is created without a resolver.
var refuseAll = ResolverFunc(func(_ context.Context, callbacks ...Callback) error {
	if len(callbacks) == 0 {
		return nil
	}
	return Unresolvable(callbacks[0], errors.New("no callback resolver configured"))
})

// ChainResolvers resolves each callback with the first resolver that does
// not report it unresolvable. Other errors stop the chain.
func ChainResolvers(resolvers ...CallbackResolver) CallbackResolver {
	return ResolverFunc(func(ctx context.Context, callbacks ...Callback) error {
		for _, cb := range callbacks {
			if err := resolveOne(ctx, resolvers, cb); err != nil {
				return err
			}
		}
		return nil
	})
}

func resolveOne(ctx context.Context, resolvers []CallbackResolver, cb Callback) error {
	var last error
	for _, r := range resolvers {
		err := r.Resolve(ctx, cb)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnresolvableCallback) {
			return err
		}
		last = err
	}
	if last == nil {
		last = Unresolvable(cb, nil)
	}
	return last
}

// StaticCredentials is a client-side resolver that answers name, password
// and token callbacks with fixed values.
type StaticCredentials struct {
	Username string
	Password []byte
	Token    string
}

func (s StaticCredentials) Resolve(_ context.Context, callbacks ...Callback) error {
	for _, cb := range callbacks {
		switch c := cb.(type) {
		case *NameCallback:
			if s.Username == "" {
				c.Name = c.Default
			} else {
				c.Name = s.Username
			}
		case *PasswordCallback:
			if s.Password == nil {
				return Unresolvable(cb, nil)
			}
			c.Password = append([]byte(nil), s.Password...)
		case *TokenCallback:
			if s.Token == "" {
				return Unresolvable(cb, nil)
			}
			c.Token = s.Token
		default:
			return Unresolvable(cb, nil)
		}
	}
	return nil
}

// PasswordsEqual compares two passwords in constant time.
func PasswordsEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
