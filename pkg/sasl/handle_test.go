package sasl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlainServer(t *testing.T, pw passwords) Handle {
	t.Helper()
	h, err := NewServerFactory(plainMechanism()).CreateHandle([]string{"PLAIN"}, "", "ldap", "localhost", nil, pw)
	require.NoError(t, err)
	return h
}

func newPlainClient(t *testing.T, authz, user, pass string) Handle {
	t.Helper()
	creds := StaticCredentials{Username: user, Password: []byte(pass)}
	h, err := NewClientFactory(plainMechanism()).CreateHandle([]string{"PLAIN"}, authz, "ldap", "localhost", nil, creds)
	require.NoError(t, err)
	return h
}

func TestServerHandle_Success(t *testing.T) {
	ctx := context.Background()
	h := newPlainServer(t, passwords{"jdoe": "secret"})
	assert.Equal(t, StateInitial, h.State())
	assert.False(t, h.HasInitialResponse())

	_, err := h.NegotiatedProperty(PropAuthorizationID)
	assert.ErrorIs(t, err, ErrNotAuthorized, "before completion")

	ch, err := h.EvaluateResponse(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ch)
	assert.Equal(t, StateChallenged, h.State())

	_, err = h.AuthorizationID()
	assert.ErrorIs(t, err, ErrNotAuthorized, "mid exchange")

	ch, err = h.EvaluateResponse(ctx, []byte("\x00jdoe\x00secret"))
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.True(t, h.IsComplete())
	assert.True(t, h.Succeeded())

	for i := 0; i < 2; i++ {
		authz, err := h.AuthorizationID()
		require.NoError(t, err)
		assert.Equal(t, "jdoe", authz)
	}
	authn, err := h.NegotiatedProperty(PropAuthenticationID)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", authn)

	props, err := h.NegotiatedProperties()
	require.NoError(t, err)
	props[PropAuthorizationID] = "mallory"
	authz, _ := h.AuthorizationID()
	assert.Equal(t, "jdoe", authz, "NegotiatedProperties returns a copy")
}

func TestServerHandle_FailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newPlainServer(t, passwords{"jdoe": "secret"})

	_, err := h.EvaluateResponse(ctx, []byte("\x00jdoe\x00wrong"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, h.IsComplete())
	assert.False(t, h.Succeeded())

	_, err = h.NegotiatedProperty(PropAuthorizationID)
	assert.ErrorIs(t, err, ErrNotAuthorized, "after failure")
}

func TestServerHandle_MalformedInput(t *testing.T) {
	h := newPlainServer(t, passwords{})
	_, err := h.EvaluateResponse(context.Background(), []byte("no-separators"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.ErrorIs(t, err, errBadMessage)
	assert.Equal(t, StateComplete, h.State())
}

func TestHandle_StepsOnCompleteAreIllegal(t *testing.T) {
	ctx := context.Background()
	h := newPlainServer(t, passwords{"jdoe": "secret"})
	_, err := h.EvaluateResponse(ctx, []byte("\x00jdoe\x00secret"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = h.EvaluateResponse(ctx, []byte("\x00jdoe\x00secret"))
		assert.ErrorIs(t, err, ErrIllegalExchangeState)
		assert.NotErrorIs(t, err, ErrAuthenticationFailed)
		assert.True(t, h.Succeeded(), "illegal step leaves the outcome unchanged")
		assert.Equal(t, StateComplete, h.State())
	}

	authz, err := h.AuthorizationID()
	require.NoError(t, err)
	assert.Equal(t, "jdoe", authz)
}

func TestHandle_WrongSideIsIllegal(t *testing.T) {
	ctx := context.Background()
	server := newPlainServer(t, passwords{})
	_, err := server.EvaluateChallenge(ctx, nil)
	assert.ErrorIs(t, err, ErrIllegalExchangeState)
	_, err = server.InitialResponse(ctx)
	assert.ErrorIs(t, err, ErrIllegalExchangeState)
	assert.Equal(t, StateInitial, server.State())

	client := newPlainClient(t, "", "jdoe", "secret")
	_, err = client.EvaluateResponse(ctx, nil)
	assert.ErrorIs(t, err, ErrIllegalExchangeState)
	assert.Equal(t, StateInitial, client.State())
}

func TestClientHandle_InitialResponse(t *testing.T) {
	ctx := context.Background()
	h := newPlainClient(t, "admin", "jdoe", "secret")
	require.True(t, h.HasInitialResponse())

	ir, err := h.InitialResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin\x00jdoe\x00secret", string(ir))
	assert.True(t, h.Succeeded())

	authz, err := h.AuthorizationID()
	require.NoError(t, err)
	assert.Equal(t, "admin", authz)

	_, err = h.InitialResponse(ctx)
	assert.ErrorIs(t, err, ErrIllegalExchangeState)
	assert.Equal(t, "admin\x00jdoe\x00secret", string(ir), "returned buffer is never wiped")
}

func TestClientHandle_EmptyChallengeActsAsInitialResponse(t *testing.T) {
	h := newPlainClient(t, "", "jdoe", "secret")
	resp, err := h.EvaluateChallenge(context.Background(), []byte{})
	require.NoError(t, err)
	assert.Equal(t, "\x00jdoe\x00secret", string(resp))
	assert.True(t, h.IsComplete())
}

func TestClientHandle_ChallengeToCompletedStartFails(t *testing.T) {
	h := newPlainClient(t, "", "jdoe", "secret")
	resp, err := h.EvaluateChallenge(context.Background(), []byte("unexpected"))

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, h.IsComplete())
	assert.False(t, h.Succeeded())

	_, err = h.AuthorizationID()
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestClientHandle_ServerFirst(t *testing.T) {
	ctx := context.Background()
	h, err := NewClientFactory(digestMechanism()).CreateHandle([]string{"DIGEST-MD5"}, "", "ldap", "", nil, nil)
	require.NoError(t, err)
	assert.False(t, h.HasInitialResponse())

	_, err = h.InitialResponse(ctx)
	assert.ErrorIs(t, err, ErrIllegalExchangeState)
	assert.Equal(t, StateInitial, h.State())

	resp, err := h.EvaluateChallenge(ctx, []byte("nonce"))
	require.NoError(t, err)
	assert.Equal(t, "digest-response", string(resp))
	assert.Equal(t, StateResponded, h.State())

	_, err = h.EvaluateChallenge(ctx, []byte("rspauth"))
	require.NoError(t, err)
	assert.True(t, h.Succeeded())
}

func TestClientHandle_ResolverRefusalFails(t *testing.T) {
	h, err := NewClientFactory(plainMechanism()).CreateHandle([]string{"PLAIN"}, "", "", "", nil, nil)
	require.NoError(t, err)

	_, err = h.InitialResponse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, ErrUnresolvableCallback)
	assert.Contains(t, err.Error(), "credential callback name not satisfied")
	assert.True(t, h.IsComplete())
}

func TestHandle_UnresolvableCallbackIsTranslated(t *testing.T) {
	h := newPlainServer(t, passwords{"jdoe": "secret"})
	_, err := h.EvaluateResponse(context.Background(), []byte("\x00unknown\x00secret"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, ErrUnresolvableCallback)
	assert.NotContains(t, err.Error(), "principal not found")

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindAuthenticationFailed, se.Kind)
	assert.Equal(t, "PLAIN", se.Mechanism)
	assert.Equal(t, OpEvaluateResponse, se.Op)
}

func TestHandle_SecretsWipedOnCompletion(t *testing.T) {
	var params Params
	mech := plainMechanism()
	newClient := mech.NewClient
	mech.NewClient = func(p Params) (ClientMechanism, error) {
		params = p
		return newClient(p)
	}
	h, err := NewClientFactory(mech).CreateHandle([]string{"PLAIN"}, "", "", "", nil, StaticCredentials{Username: "u", Password: []byte("pw")})
	require.NoError(t, err)

	_, err = h.InitialResponse(context.Background())
	require.NoError(t, err)
	assert.Zero(t, params.Secrets.Len())
}

func TestHandle_DisposeBeforeCompletion(t *testing.T) {
	pw := passwords{"jdoe": "secret"}
	h := newPlainServer(t, pw)
	_, err := h.EvaluateResponse(context.Background(), nil)
	require.NoError(t, err)

	h.Dispose()
	assert.True(t, h.IsComplete())
	assert.False(t, h.Succeeded())
	_, err = h.EvaluateResponse(context.Background(), []byte("\x00jdoe\x00secret"))
	assert.ErrorIs(t, err, ErrIllegalExchangeState)

	h.Dispose()
}

func TestSecretBag(t *testing.T) {
	var bag SecretBag
	a := bag.Track([]byte("one"))
	b := bag.Track([]byte("two"))
	bag.Track(nil)
	assert.Equal(t, 2, bag.Len())

	bag.Wipe()
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0, 0}, b)
	assert.Zero(t, bag.Len())

	var nilBag *SecretBag
	nilBag.Track([]byte("x"))
	nilBag.Wipe()
	assert.Zero(t, nilBag.Len())
}

func TestStateAndSideStrings(t *testing.T) {
	assert.Equal(t, "HAS_INITIAL_RESPONSE", StateHasInitialResponse.String())
	assert.Equal(t, "COMPLETE", StateComplete.String())
	assert.Equal(t, "client", SideClient.String())

	side, ok := ParseSide("server")
	assert.True(t, ok)
	assert.Equal(t, SideServer, side)
	_, ok = ParseSide("both")
	assert.False(t, ok)
}
