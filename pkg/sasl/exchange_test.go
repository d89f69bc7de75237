package sasl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchange_PlainSuccess(t *testing.T) {
	ctx := context.Background()
	client := newPlainClient(t, "", "jdoe", "secret")
	server := newPlainServer(t, passwords{"jdoe": "secret"})

	require.NoError(t, Exchange(ctx, client, server))
	assert.True(t, client.Succeeded())
	assert.True(t, server.Succeeded())

	authz, err := server.AuthorizationID()
	require.NoError(t, err)
	assert.Equal(t, "jdoe", authz)
}

func TestExchange_PlainWrongPassword(t *testing.T) {
	client := newPlainClient(t, "", "jdoe", "nope")
	server := newPlainServer(t, passwords{"jdoe": "secret"})

	err := Exchange(context.Background(), client, server)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, server.IsComplete())
	assert.False(t, server.Succeeded())

	// The client finished after its initial response; only the exchange
	// error and the server handle carry the outcome.
	assert.True(t, client.IsComplete())
	assert.True(t, client.Succeeded())
}

func TestExchange_ServerFirstWithAdditionalData(t *testing.T) {
	client, err := NewClientFactory(digestMechanism()).CreateHandle([]string{"DIGEST-MD5"}, "", "ldap", "", nil, nil)
	require.NoError(t, err)
	server, err := NewServerFactory(digestMechanism()).CreateHandle([]string{"DIGEST-MD5"}, "", "ldap", "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, Exchange(context.Background(), client, server))
	assert.True(t, client.Succeeded())
	assert.True(t, server.Succeeded())
}

// chattyServer challenges forever.
type chattyServer struct{}

func (chattyServer) Next(context.Context, []byte) ([]byte, bool, error) {
	return []byte("more"), false, nil
}

func TestExchange_ServerChallengesCompletedClient(t *testing.T) {
	chatty := Mechanism{Name: "PLAIN", NewServer: func(Params) (ServerMechanism, error) { return chattyServer{}, nil }}
	server, err := NewServerFactory(chatty).CreateHandle([]string{"PLAIN"}, "", "", "", nil, nil)
	require.NoError(t, err)
	client := newPlainClient(t, "", "jdoe", "secret")

	err = Exchange(context.Background(), client, server)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "server challenged a completed client")
	assert.True(t, server.IsComplete())
	assert.False(t, server.Succeeded())
}

// echoClient never completes.
type echoClient struct{}

func (echoClient) Start(context.Context) ([]byte, bool, error) { return nil, false, nil }
func (echoClient) Next(_ context.Context, ch []byte) ([]byte, bool, error) {
	return ch, false, nil
}

func TestExchange_RoundLimit(t *testing.T) {
	server, err := NewServerFactory(Mechanism{Name: "X", NewServer: func(Params) (ServerMechanism, error) { return chattyServer{}, nil }}).
		CreateHandle([]string{"X"}, "", "", "", nil, nil)
	require.NoError(t, err)
	client, err := NewClientFactory(Mechanism{Name: "X", NewClient: func(Params) (ClientMechanism, error) { return echoClient{}, nil }}).
		CreateHandle([]string{"X"}, "", "", "", nil, nil)
	require.NoError(t, err)

	err = Exchange(context.Background(), client, server)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "exceeded")
	assert.True(t, client.IsComplete())
	assert.True(t, server.IsComplete())
}

func TestExchange_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	client := newPlainClient(t, "", "jdoe", "secret")
	server := newPlainServer(t, passwords{"jdoe": "secret"})

	err := Exchange(ctx, client, server)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, server.IsComplete())
}

func TestExchange_RequiresBothSides(t *testing.T) {
	a := newPlainServer(t, passwords{})
	b := newPlainServer(t, passwords{})
	assert.Error(t, Exchange(context.Background(), a, b))
}
