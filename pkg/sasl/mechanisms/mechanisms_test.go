package mechanisms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/saslgate/pkg/sasl"
)

// directory is a server-side resolver backed by maps.
type directory struct {
	passwords map[string]string
	tokens    map[string]string // token -> subject
	admins    map[string]bool
	anonymous bool
}

func (d *directory) Resolve(_ context.Context, callbacks ...sasl.Callback) error {
	for _, cb := range callbacks {
		switch c := cb.(type) {
		case *sasl.VerifyPasswordCallback:
			want, ok := d.passwords[c.Principal]
			if !ok {
				return sasl.Unresolvable(cb, nil)
			}
			c.Verified = sasl.PasswordsEqual([]byte(want), c.Password)
		case *sasl.VerifyTokenCallback:
			subject, ok := d.tokens[c.Token]
			c.Verified = ok
			c.Subject = subject
		case *sasl.AuthorizeCallback:
			c.Authorized = d.admins[c.AuthenticationID]
		case *sasl.AnonymousCallback:
			c.Allowed = d.anonymous
		default:
			return sasl.Unresolvable(cb, nil)
		}
	}
	return nil
}

func testDirectory() *directory {
	return &directory{
		passwords: map[string]string{"jdoe": "secret", "root": "toor"},
		tokens:    map[string]string{"tok-jdoe": "jdoe"},
		admins:    map[string]bool{"root": true},
		anonymous: true,
	}
}

type exchangeCase struct {
	mech      string
	authzID   string
	creds     sasl.StaticCredentials
	props     sasl.Properties
	wantErr   bool
	wantAuthz string
}

func runExchange(t *testing.T, tc exchangeCase, dir *directory) (sasl.Handle, error) {
	t.Helper()
	client, err := sasl.NewClientFactory(All()...).CreateHandle([]string{tc.mech}, tc.authzID, "imap", "mail.example.com", tc.props, tc.creds)
	require.NoError(t, err)
	server, err := sasl.NewServerFactory(All()...).CreateHandle([]string{tc.mech}, "", "imap", "mail.example.com", tc.props, dir)
	require.NoError(t, err)
	return server, sasl.Exchange(context.Background(), client, server)
}

func TestExchanges(t *testing.T) {
	tests := []struct {
		name string
		exchangeCase
	}{
		{"PlainSuccess", exchangeCase{mech: Plain, creds: sasl.StaticCredentials{Username: "jdoe", Password: []byte("secret")}, wantAuthz: "jdoe"}},
		{"PlainWrongPassword", exchangeCase{mech: Plain, creds: sasl.StaticCredentials{Username: "jdoe", Password: []byte("nope")}, wantErr: true}},
		{"PlainUnknownUser", exchangeCase{mech: Plain, creds: sasl.StaticCredentials{Username: "ghost", Password: []byte("x")}, wantErr: true}},
		{"PlainAuthorizedProxy", exchangeCase{mech: Plain, authzID: "jdoe", creds: sasl.StaticCredentials{Username: "root", Password: []byte("toor")}, wantAuthz: "jdoe"}},
		{"PlainUnauthorizedProxy", exchangeCase{mech: Plain, authzID: "root", creds: sasl.StaticCredentials{Username: "jdoe", Password: []byte("secret")}, wantErr: true}},
		{"LoginSuccess", exchangeCase{mech: Login, creds: sasl.StaticCredentials{Username: "jdoe", Password: []byte("secret")}, wantAuthz: "jdoe"}},
		{"LoginWrongPassword", exchangeCase{mech: Login, creds: sasl.StaticCredentials{Username: "jdoe", Password: []byte("bad")}, wantErr: true}},
		{"OAuthBearerSuccess", exchangeCase{mech: OAuthBearer, creds: sasl.StaticCredentials{Username: "jdoe", Token: "tok-jdoe"}, wantAuthz: "jdoe"}},
		{"OAuthBearerBadToken", exchangeCase{mech: OAuthBearer, creds: sasl.StaticCredentials{Username: "jdoe", Token: "forged"}, wantErr: true}},
		{"AnonymousSuccess", exchangeCase{mech: Anonymous, props: sasl.Properties{sasl.PropAnonymousTrace: "guest@example.com"}, wantAuthz: "anonymous"}},
		{"ExternalSuccess", exchangeCase{mech: External, props: sasl.Properties{sasl.PropExternalIdentity: "jdoe"}, wantAuthz: "jdoe"}},
		{"ExternalProxyRefused", exchangeCase{mech: External, authzID: "root", props: sasl.Properties{sasl.PropExternalIdentity: "jdoe"}, wantErr: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := runExchange(t, tt.exchangeCase, testDirectory())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, sasl.ErrAuthenticationFailed)
				assert.NotErrorIs(t, err, sasl.ErrUnresolvableCallback)
				assert.True(t, server.IsComplete())
				assert.False(t, server.Succeeded())
				return
			}
			require.NoError(t, err)
			authz, err := server.AuthorizationID()
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthz, authz)
		})
	}
}

func TestAnonymousRefused(t *testing.T) {
	dir := testDirectory()
	dir.anonymous = false
	_, err := runExchange(t, exchangeCase{mech: Anonymous}, dir)
	assert.ErrorIs(t, err, sasl.ErrAuthenticationFailed)
}

func TestAnonymousTraceNegotiated(t *testing.T) {
	server, err := runExchange(t, exchangeCase{mech: Anonymous, props: sasl.Properties{sasl.PropAnonymousTrace: "guest"}}, testDirectory())
	require.NoError(t, err)
	trace, err := server.NegotiatedProperty(sasl.PropAnonymousTrace)
	require.NoError(t, err)
	assert.Equal(t, "guest", trace)
}

func TestExternalWithoutIdentityFallsThrough(t *testing.T) {
	f := sasl.NewServerFactory(All()...)

	h, err := f.CreateHandle([]string{External, Plain}, "", "", "", nil, testDirectory())
	require.NoError(t, err)
	assert.Equal(t, Plain, h.Mechanism())

	_, err = f.CreateHandle([]string{External}, "", "", "", nil, testDirectory())
	assert.ErrorIs(t, err, sasl.ErrUnsupportedMechanism)
}

func TestLoginServer_WithoutInitialResponse(t *testing.T) {
	ctx := context.Background()
	h, err := sasl.NewServerFactory(NewLogin()).CreateHandle([]string{Login}, "", "", "", nil, testDirectory())
	require.NoError(t, err)

	ch, err := h.EvaluateResponse(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Username:", string(ch))

	ch, err = h.EvaluateResponse(ctx, []byte("jdoe"))
	require.NoError(t, err)
	assert.Equal(t, "Password:", string(ch))

	ch, err = h.EvaluateResponse(ctx, []byte("secret"))
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.True(t, h.Succeeded())
}

func TestLoginClient_States(t *testing.T) {
	ctx := context.Background()
	creds := sasl.StaticCredentials{Username: "jdoe", Password: []byte("secret")}
	h, err := sasl.NewClientFactory(NewLogin()).CreateHandle([]string{Login}, "", "", "", nil, creds)
	require.NoError(t, err)

	ir, err := h.InitialResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", string(ir))
	assert.Equal(t, sasl.StateHasInitialResponse, h.State())

	resp, err := h.EvaluateChallenge(ctx, []byte("Password:"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(resp))
	assert.True(t, h.Succeeded())
}

func TestPlainClient_InitialResponse(t *testing.T) {
	creds := sasl.StaticCredentials{Username: "jdoe", Password: []byte("secret")}
	h, err := sasl.NewClientFactory(NewPlain()).CreateHandle([]string{Plain}, "admin", "", "", nil, creds)
	require.NoError(t, err)

	ir, err := h.InitialResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin\x00jdoe\x00secret", string(ir))
	assert.True(t, h.IsComplete())
}

func TestPlainClient_MissingPassword(t *testing.T) {
	h, err := sasl.NewClientFactory(NewPlain()).CreateHandle([]string{Plain}, "", "", "", nil, sasl.StaticCredentials{Username: "jdoe"})
	require.NoError(t, err)

	_, err = h.InitialResponse(context.Background())
	assert.ErrorIs(t, err, sasl.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "password")
}

func TestPolicyFiltersMechanisms(t *testing.T) {
	f := sasl.NewServerFactory(All()...)
	assert.Equal(t, []string{External, OAuthBearer, Plain, Login, Anonymous}, f.ListMechanismNames(nil))
	assert.Equal(t, []string{External, Anonymous}, f.ListMechanismNames(sasl.Properties{sasl.PolicyNoPlaintext: true}))
	assert.Equal(t, []string{External, OAuthBearer, Plain, Login}, f.ListMechanismNames(sasl.Properties{sasl.PolicyNoAnonymous: "true"}))
}

func TestSelect(t *testing.T) {
	mechs, err := Select("plain", "EXTERNAL")
	require.NoError(t, err)
	require.Len(t, mechs, 2)
	assert.Equal(t, Plain, mechs[0].Name)
	assert.Equal(t, External, mechs[1].Name)

	_, err = Select("GSSAPI")
	assert.ErrorContains(t, err, "GSSAPI")
}
