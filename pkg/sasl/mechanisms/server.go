package mechanisms

import (
	"context"
	"errors"
	"fmt"

	gosasl "github.com/emersion/go-sasl"

	"github.com/marmos91/saslgate/pkg/sasl"
)

const anonymousID = "anonymous"

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAnonymousRefused   = errors.New("anonymous login refused")
	errNotAuthorized      = errors.New("authorization identity refused")
)

// server adapts a go-sasl server. go-sasl authenticators take no context,
// so ctx holds the context of the step in progress while inner runs.
type server struct {
	p          sasl.Params
	inner      gosasl.Server
	ctx        context.Context
	negotiated sasl.Properties
	failure    error
}

func (s *server) Next(ctx context.Context, response []byte) ([]byte, bool, error) {
	s.ctx = ctx
	defer func() { s.ctx = nil }()

	challenge, done, err := s.inner.Next(response)
	if s.failure != nil {
		return nil, false, s.failure
	}
	if err != nil {
		return nil, false, err
	}
	return challenge, done, nil
}

func (s *server) Negotiated() sasl.Properties { return s.negotiated }

func (s *server) Dispose() { s.inner = nil }

// reject records err as the outcome of the step and returns it.
func (s *server) reject(err error) error {
	s.failure = err
	return err
}

func (s *server) verifyPassword(principal string, password []byte) error {
	verify := &sasl.VerifyPasswordCallback{Principal: principal, Password: s.p.Secrets.Track(password)}
	if err := s.p.Resolver.Resolve(s.ctx, verify); err != nil {
		return err
	}
	if !verify.Verified {
		return errInvalidCredentials
	}
	return nil
}

// authorize settles the authorization identity for authn. An empty
// requested identity means authn acts as itself.
func (s *server) authorize(authn, requested string) error {
	if requested == "" || requested == authn {
		s.negotiated = sasl.Properties{sasl.PropAuthenticationID: authn, sasl.PropAuthorizationID: authn}
		return nil
	}
	cb := &sasl.AuthorizeCallback{AuthenticationID: authn, AuthorizationID: requested}
	if err := s.p.Resolver.Resolve(s.ctx, cb); err != nil {
		return err
	}
	if !cb.Authorized {
		return fmt.Errorf("%w: %s may not act as %s", errNotAuthorized, authn, requested)
	}
	s.negotiated = sasl.Properties{sasl.PropAuthenticationID: authn, sasl.PropAuthorizationID: requested}
	return nil
}

func newPlainServer(p sasl.Params) (sasl.ServerMechanism, error) {
	s := &server{p: p}
	s.inner = gosasl.NewPlainServer(func(identity, username, password string) error {
		if err := s.verifyPassword(username, []byte(password)); err != nil {
			return s.reject(err)
		}
		if err := s.authorize(username, identity); err != nil {
			return s.reject(err)
		}
		return nil
	})
	return s, nil
}

func newLoginServer(p sasl.Params) (sasl.ServerMechanism, error) {
	s := &server{p: p}
	s.inner = &loginServer{validate: func(username string, password []byte) error {
		if err := s.verifyPassword(username, password); err != nil {
			return s.reject(err)
		}
		return s.authorize(username, "")
	}}
	return s, nil
}

// EXTERNAL is unsupported when the transport established no identity, so
// the factory moves on to the next candidate.
func newExternalServer(p sasl.Params) (sasl.ServerMechanism, error) {
	external, ok := p.Properties.String(sasl.PropExternalIdentity)
	if !ok || external == "" {
		return nil, fmt.Errorf("%w: no external identity established", sasl.ErrUnsupportedMechanism)
	}
	s := &server{p: p}
	s.inner = gosasl.NewExternalServer(func(identity string) error {
		if err := s.authorize(external, identity); err != nil {
			return s.reject(err)
		}
		return nil
	})
	return s, nil
}

func newAnonymousServer(p sasl.Params) (sasl.ServerMechanism, error) {
	s := &server{p: p}
	s.inner = gosasl.NewAnonymousServer(func(trace string) error {
		cb := &sasl.AnonymousCallback{Trace: trace}
		if err := s.p.Resolver.Resolve(s.ctx, cb); err != nil {
			return s.reject(err)
		}
		if !cb.Allowed {
			return s.reject(errAnonymousRefused)
		}
		s.negotiated = sasl.Properties{
			sasl.PropAuthenticationID: anonymousID,
			sasl.PropAuthorizationID:  anonymousID,
			sasl.PropAnonymousTrace:   trace,
		}
		return nil
	})
	return s, nil
}

// OAUTHBEARER failures end the exchange immediately instead of sending the
// RFC 7628 error challenge, since a failed handle is terminal.
func newOAuthBearerServer(p sasl.Params) (sasl.ServerMechanism, error) {
	s := &server{p: p}
	s.inner = gosasl.NewOAuthBearerServer(func(opts gosasl.OAuthBearerOptions) *gosasl.OAuthBearerError {
		refused := &gosasl.OAuthBearerError{Status: "invalid_token", Schemes: "bearer"}
		verify := &sasl.VerifyTokenCallback{Principal: opts.Username, Token: opts.Token}
		if err := s.p.Resolver.Resolve(s.ctx, verify); err != nil {
			s.reject(err)
			return refused
		}
		if !verify.Verified {
			s.reject(errInvalidCredentials)
			return refused
		}
		subject := verify.Subject
		if subject == "" {
			subject = opts.Username
		}
		if err := s.authorize(subject, opts.Username); err != nil {
			s.reject(err)
			return &gosasl.OAuthBearerError{Status: "insufficient_scope", Schemes: "bearer"}
		}
		return nil
	})
	return s, nil
}
