package sasl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCredentials(t *testing.T) {
	ctx := context.Background()
	creds := StaticCredentials{Username: "jdoe", Password: []byte("secret"), Token: "tok"}

	name := &NameCallback{Default: "ignored"}
	pass := &PasswordCallback{}
	token := &TokenCallback{}
	require.NoError(t, creds.Resolve(ctx, name, pass, token))
	assert.Equal(t, "jdoe", name.Name)
	assert.Equal(t, "secret", string(pass.Password))
	assert.Equal(t, "tok", token.Token)

	clear(pass.Password)
	again := &PasswordCallback{}
	require.NoError(t, creds.Resolve(ctx, again))
	assert.Equal(t, "secret", string(again.Password), "each resolution hands out a fresh buffer")
}

func TestStaticCredentials_Unresolvable(t *testing.T) {
	ctx := context.Background()
	creds := StaticCredentials{}

	name := &NameCallback{Default: "proposed"}
	require.NoError(t, creds.Resolve(ctx, name))
	assert.Equal(t, "proposed", name.Name)

	err := creds.Resolve(ctx, &PasswordCallback{})
	assert.ErrorIs(t, err, ErrUnresolvableCallback)

	err = creds.Resolve(ctx, &AuthorizeCallback{})
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "authorize", se.Callback)
}

func TestChainResolvers(t *testing.T) {
	ctx := context.Background()
	names := StaticCredentials{Username: "jdoe"}
	authorizer := ResolverFunc(func(_ context.Context, cbs ...Callback) error {
		for _, cb := range cbs {
			a, ok := cb.(*AuthorizeCallback)
			if !ok {
				return Unresolvable(cb, nil)
			}
			a.Authorized = a.AuthenticationID == a.AuthorizationID
		}
		return nil
	})
	chain := ChainResolvers(names, authorizer)

	name := &NameCallback{}
	authz := &AuthorizeCallback{AuthenticationID: "jdoe", AuthorizationID: "jdoe"}
	require.NoError(t, chain.Resolve(ctx, name, authz))
	assert.Equal(t, "jdoe", name.Name)
	assert.True(t, authz.Authorized)

	err := chain.Resolve(ctx, &AnonymousCallback{})
	assert.ErrorIs(t, err, ErrUnresolvableCallback)

	outage := errors.New("directory down")
	failing := ChainResolvers(ResolverFunc(func(context.Context, ...Callback) error { return outage }), names)
	assert.ErrorIs(t, failing.Resolve(ctx, &NameCallback{}), outage, "non-unresolvable errors stop the chain")

	assert.ErrorIs(t, ChainResolvers().Resolve(ctx, &NameCallback{}), ErrUnresolvableCallback)
}

func TestRefuseAll(t *testing.T) {
	assert.NoError(t, refuseAll.Resolve(context.Background()))
	assert.ErrorIs(t, refuseAll.Resolve(context.Background(), &TokenCallback{}), ErrUnresolvableCallback)
}

func TestCallbackNames(t *testing.T) {
	for cb, want := range map[Callback]string{
		&NameCallback{}:           "name",
		&PasswordCallback{}:       "password",
		&TokenCallback{}:          "token",
		&VerifyPasswordCallback{}: "verify-password",
		&VerifyTokenCallback{}:    "verify-token",
		&AnonymousCallback{}:      "anonymous",
		&AuthorizeCallback{}:      "authorize",
	} {
		assert.Equal(t, want, cb.CallbackName())
	}
}
