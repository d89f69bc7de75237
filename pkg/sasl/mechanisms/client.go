package mechanisms

import (
	"context"
	"errors"

	gosasl "github.com/emersion/go-sasl"

	"github.com/marmos91/saslgate/pkg/sasl"
)

// openFunc resolves the credentials for one exchange and builds the
// go-sasl client carrying them.
type openFunc func(ctx context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error)

// client adapts a go-sasl client. go-sasl clients do not report
// completion, so rounds is the number of challenges the mechanism answers
// after its initial response before it is done.
type client struct {
	p          sasl.Params
	rounds     int
	open       openFunc
	inner      gosasl.Client
	negotiated sasl.Properties
	answered   int
}

func (c *client) Start(ctx context.Context) ([]byte, bool, error) {
	inner, negotiated, err := c.open(ctx, c.p)
	if err != nil {
		return nil, false, err
	}
	c.inner, c.negotiated = inner, negotiated
	_, ir, err := c.inner.Start()
	if err != nil {
		return nil, false, err
	}
	return ir, c.rounds == 0, nil
}

func (c *client) Next(_ context.Context, challenge []byte) ([]byte, bool, error) {
	if c.inner == nil {
		return nil, false, errors.New("mechanism not started")
	}
	resp, err := c.inner.Next(challenge)
	if err != nil {
		return nil, false, err
	}
	c.answered++
	return resp, c.answered >= c.rounds, nil
}

func (c *client) Negotiated() sasl.Properties { return c.negotiated }

func (c *client) Dispose() { c.inner = nil }

func newClient(p sasl.Params, rounds int, open openFunc) (sasl.ClientMechanism, error) {
	return &client{p: p, rounds: rounds, open: open}, nil
}

// credentials asks for the authentication identity and its password.
func credentials(ctx context.Context, p sasl.Params) (string, []byte, error) {
	name := &sasl.NameCallback{Default: p.AuthorizationID}
	if err := p.Resolver.Resolve(ctx, name); err != nil {
		return "", nil, err
	}
	pass := &sasl.PasswordCallback{Principal: name.Name}
	if err := p.Resolver.Resolve(ctx, pass); err != nil {
		return "", nil, err
	}
	return name.Name, p.Secrets.Track(pass.Password), nil
}

func authenticated(name string) sasl.Properties {
	return sasl.Properties{sasl.PropAuthenticationID: name}
}

func newPlainClient(p sasl.Params) (sasl.ClientMechanism, error) {
	return newClient(p, 0, func(ctx context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error) {
		name, pass, err := credentials(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		return gosasl.NewPlainClient(p.AuthorizationID, name, string(pass)), authenticated(name), nil
	})
}

// LOGIN sends the username as initial response and the password in
// answer to the server's "Password:" challenge.
func newLoginClient(p sasl.Params) (sasl.ClientMechanism, error) {
	return newClient(p, 1, func(ctx context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error) {
		name, pass, err := credentials(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		return gosasl.NewLoginClient(name, string(pass)), authenticated(name), nil
	})
}

func newExternalClient(p sasl.Params) (sasl.ClientMechanism, error) {
	return newClient(p, 0, func(_ context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error) {
		var props sasl.Properties
		if id, ok := p.Properties.String(sasl.PropExternalIdentity); ok && id != "" {
			props = authenticated(id)
		}
		return gosasl.NewExternalClient(p.AuthorizationID), props, nil
	})
}

func newAnonymousClient(p sasl.Params) (sasl.ClientMechanism, error) {
	return newClient(p, 0, func(_ context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error) {
		trace, _ := p.Properties.String(sasl.PropAnonymousTrace)
		return gosasl.NewAnonymousClient(trace), authenticated(anonymousID), nil
	})
}

func newOAuthBearerClient(p sasl.Params) (sasl.ClientMechanism, error) {
	return newClient(p, 0, func(ctx context.Context, p sasl.Params) (gosasl.Client, sasl.Properties, error) {
		name := &sasl.NameCallback{Default: p.AuthorizationID}
		if err := p.Resolver.Resolve(ctx, name); err != nil {
			return nil, nil, err
		}
		token := &sasl.TokenCallback{Principal: name.Name}
		if err := p.Resolver.Resolve(ctx, token); err != nil {
			return nil, nil, err
		}
		port, _ := p.Properties.Int(sasl.PropServerPort)
		opts := &gosasl.OAuthBearerOptions{
			Username: name.Name,
			Token:    token.Token,
			Host:     p.ServerName,
			Port:     port,
		}
		return gosasl.NewOAuthBearerClient(opts), authenticated(name.Name), nil
	})
}
