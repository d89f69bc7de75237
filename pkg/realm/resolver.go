package realm

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/directory"
	"github.com/marmos91/saslgate/pkg/metrics"
	"github.com/marmos91/saslgate/pkg/sasl"
)

// Resolver answers server-side sasl callbacks from a realm.
//
// Unknown principals and refused tokens are reported as unresolvable
// callbacks, which handles turn into plain authentication failures.
// Directory outages pass through untouched so callers can still match
// directory.ErrDirectoryUnavailable on the failed exchange.
type Resolver struct {
	// Realm verifies passwords. Required for PLAIN and LOGIN.
	Realm Realm

	// Tokens verifies OAUTHBEARER tokens. Nil refuses every token.
	Tokens TokenVerifier

	// Authorizer decides proxy authorization. Nil refuses every request
	// to act as a different identity.
	Authorizer Authorizer

	// AllowAnonymous accepts ANONYMOUS logins.
	AllowAnonymous bool

	// Metrics records lookup outcomes. May be nil.
	Metrics metrics.ExchangeMetrics
}

var _ sasl.CallbackResolver = (*Resolver)(nil)

func (r *Resolver) Resolve(ctx context.Context, callbacks ...sasl.Callback) error {
	for _, cb := range callbacks {
		var err error
		switch c := cb.(type) {
		case *sasl.VerifyPasswordCallback:
			err = r.verifyPassword(ctx, c)
		case *sasl.VerifyTokenCallback:
			err = r.verifyToken(ctx, c)
		case *sasl.AuthorizeCallback:
			err = r.authorize(ctx, c)
		case *sasl.AnonymousCallback:
			c.Allowed = r.AllowAnonymous
		default:
			err = sasl.Unresolvable(cb, errors.New("not handled by realm resolver"))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) realmName() string {
	if r.Realm == nil {
		return "none"
	}
	return r.Realm.Name()
}

func (r *Resolver) verifyPassword(ctx context.Context, c *sasl.VerifyPasswordCallback) error {
	if r.Realm == nil {
		return sasl.Unresolvable(c, errors.New("no password realm configured"))
	}
	name := r.realmName()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRealmLookup)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Realm(name), telemetry.Principal(c.Principal))

	start := time.Now()
	ok, err := r.Realm.VerifyPassword(ctx, c.Principal, c.Password)
	r.record(name, lookupResult(err), time.Since(start))

	switch {
	case err == nil:
		c.Verified = ok
		return nil
	case errors.Is(err, ErrNotFound):
		logger.DebugCtx(ctx, "principal not found", logger.Realm(name), logger.Principal(c.Principal))
		return sasl.Unresolvable(c, err)
	default:
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "realm lookup failed", logger.Realm(name), logger.Principal(c.Principal), logger.Err(err))
		return err
	}
}

func (r *Resolver) verifyToken(ctx context.Context, c *sasl.VerifyTokenCallback) error {
	if r.Tokens == nil {
		return sasl.Unresolvable(c, errors.New("no token realm configured"))
	}
	subject, err := r.Tokens.VerifyToken(ctx, c.Token)
	switch {
	case err == nil:
		c.Verified = true
		c.Subject = subject
		return nil
	case errors.Is(err, ErrInvalidToken):
		logger.DebugCtx(ctx, "token refused", logger.Principal(c.Principal), logger.Err(err))
		c.Verified = false
		return nil
	default:
		return err
	}
}

func (r *Resolver) authorize(ctx context.Context, c *sasl.AuthorizeCallback) error {
	if c.AuthenticationID == c.AuthorizationID {
		c.Authorized = true
		return nil
	}
	if r.Authorizer == nil {
		c.Authorized = false
		return nil
	}
	ok, err := r.Authorizer.Authorize(ctx, c.AuthenticationID, c.AuthorizationID)
	if err != nil {
		return err
	}
	c.Authorized = ok
	return nil
}

func (r *Resolver) record(name, result string, d time.Duration) {
	if r.Metrics != nil {
		r.Metrics.RecordDirectoryLookup(name, result, d)
	}
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return metrics.LookupFound
	case errors.Is(err, ErrNotFound):
		return metrics.LookupNotFound
	case errors.Is(err, directory.ErrDirectoryUnavailable):
		return metrics.LookupUnavailable
	default:
		return metrics.LookupError
	}
}
