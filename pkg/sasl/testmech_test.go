package sasl

import (
	"bytes"
	"context"
	"errors"
)

// Test mechanisms. "PLAIN" is client-first and single step; "DIGEST-MD5"
// is server-first with a final server message the client must verify.

var errBadMessage = errors.New("malformed message")

type plainClient struct {
	p      Params
	buffer []byte
}

func (c *plainClient) Start(ctx context.Context) ([]byte, bool, error) {
	name := &NameCallback{}
	pass := &PasswordCallback{}
	if err := c.p.Resolver.Resolve(ctx, name, pass); err != nil {
		return nil, false, err
	}
	c.p.Secrets.Track(pass.Password)
	msg := append([]byte(c.p.AuthorizationID+"\x00"+name.Name+"\x00"), pass.Password...)
	c.buffer = c.p.Secrets.Track(append([]byte(nil), msg...))
	return msg, true, nil
}

func (c *plainClient) Next(context.Context, []byte) ([]byte, bool, error) {
	return nil, false, errors.New("unexpected challenge")
}

type plainServer struct {
	p          Params
	negotiated Properties
	disposed   bool
}

func (s *plainServer) Next(ctx context.Context, resp []byte) ([]byte, bool, error) {
	if resp == nil {
		return []byte{}, false, nil
	}
	parts := bytes.SplitN(resp, []byte{0}, 3)
	if len(parts) != 3 {
		return nil, false, errBadMessage
	}
	authn := string(parts[1])
	verify := &VerifyPasswordCallback{Principal: authn, Password: s.p.Secrets.Track(append([]byte(nil), parts[2]...))}
	if err := s.p.Resolver.Resolve(ctx, verify); err != nil {
		return nil, false, err
	}
	if !verify.Verified {
		return nil, false, errors.New("invalid credentials")
	}
	authz := string(parts[0])
	if authz == "" {
		authz = authn
	}
	s.negotiated = Properties{PropAuthenticationID: authn, PropAuthorizationID: authz}
	return nil, true, nil
}

func (s *plainServer) Negotiated() Properties { return s.negotiated }
func (s *plainServer) Dispose()               { s.disposed = true }

type digestClient struct{ step int }

func (c *digestClient) Start(context.Context) ([]byte, bool, error) { return nil, false, nil }

func (c *digestClient) Next(_ context.Context, ch []byte) ([]byte, bool, error) {
	c.step++
	switch {
	case c.step == 1 && string(ch) == "nonce":
		return []byte("digest-response"), false, nil
	case c.step == 2 && string(ch) == "rspauth":
		return nil, true, nil
	default:
		return nil, false, errBadMessage
	}
}

type digestServer struct{ step int }

func (s *digestServer) Next(_ context.Context, resp []byte) ([]byte, bool, error) {
	s.step++
	switch {
	case s.step == 1:
		return []byte("nonce"), false, nil
	case s.step == 2 && string(resp) == "digest-response":
		return []byte("rspauth"), true, nil
	default:
		return nil, false, errBadMessage
	}
}

func plainMechanism() Mechanism {
	return Mechanism{
		Name:      "PLAIN",
		Flags:     FlagPlaintext | FlagClientFirst,
		NewClient: func(p Params) (ClientMechanism, error) { return &plainClient{p: p}, nil },
		NewServer: func(p Params) (ServerMechanism, error) { return &plainServer{p: p}, nil },
	}
}

func digestMechanism() Mechanism {
	return Mechanism{
		Name:      "DIGEST-MD5",
		Flags:     FlagDictionary,
		NewClient: func(Params) (ClientMechanism, error) { return &digestClient{}, nil },
		NewServer: func(Params) (ServerMechanism, error) { return &digestServer{}, nil },
	}
}

// capturing returns a server mechanism that records the Params it was
// created with.
func capturing(name string, got *Params) Mechanism {
	return Mechanism{
		Name: name,
		NewServer: func(p Params) (ServerMechanism, error) {
			*got = p
			return &digestServer{}, nil
		},
	}
}

// passwords is a server-side resolver verifying against a fixed map.
type passwords map[string]string

func (pw passwords) Resolve(_ context.Context, callbacks ...Callback) error {
	for _, cb := range callbacks {
		switch c := cb.(type) {
		case *VerifyPasswordCallback:
			want, ok := pw[c.Principal]
			if !ok {
				return Unresolvable(cb, errors.New("principal not found"))
			}
			c.Verified = PasswordsEqual([]byte(want), c.Password)
		default:
			return Unresolvable(cb, nil)
		}
	}
	return nil
}
