// Package mechanisms provides the standard SASL mechanisms on top of
// github.com/emersion/go-sasl, adapted to the sasl.Mechanism contract.
//
// Credentials never live in the mechanism: each exchange asks the handle's
// CallbackResolver for them when the first step runs.
package mechanisms

import (
	"fmt"
	"strings"

	gosasl "github.com/emersion/go-sasl"

	"github.com/marmos91/saslgate/pkg/sasl"
)

// Mechanism names.
const (
	Plain       = gosasl.Plain
	Login       = "LOGIN"
	External    = gosasl.External
	Anonymous   = gosasl.Anonymous
	OAuthBearer = gosasl.OAuthBearer
)

// All returns every mechanism in this package, strongest first.
func All() []sasl.Mechanism {
	return []sasl.Mechanism{
		NewExternal(),
		NewOAuthBearer(),
		NewPlain(),
		NewLogin(),
		NewAnonymous(),
	}
}

// Names returns the names of All in order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = m.Name
	}
	return names
}

// Select returns the named mechanisms in the order given. Names are
// matched case-insensitively; an unknown name is an error.
func Select(names ...string) ([]sasl.Mechanism, error) {
	byName := make(map[string]sasl.Mechanism)
	for _, m := range All() {
		byName[m.Name] = m
	}
	out := make([]sasl.Mechanism, 0, len(names))
	for _, n := range names {
		m, ok := byName[strings.ToUpper(n)]
		if !ok {
			return nil, fmt.Errorf("unknown mechanism %q (known: %s)", n, strings.Join(Names(), ", "))
		}
		out = append(out, m)
	}
	return out, nil
}

// NewPlain returns the PLAIN mechanism (RFC 4616).
func NewPlain() sasl.Mechanism {
	return sasl.Mechanism{
		Name:      Plain,
		Flags:     sasl.FlagPlaintext | sasl.FlagDictionary | sasl.FlagClientFirst,
		NewClient: newPlainClient,
		NewServer: newPlainServer,
	}
}

// NewLogin returns the obsolete LOGIN mechanism, still common with mail
// clients.
func NewLogin() sasl.Mechanism {
	return sasl.Mechanism{
		Name:      Login,
		Flags:     sasl.FlagPlaintext | sasl.FlagDictionary | sasl.FlagClientFirst,
		NewClient: newLoginClient,
		NewServer: newLoginServer,
	}
}

// NewExternal returns the EXTERNAL mechanism (RFC 4422 appendix A). The
// server side is only offered when sasl.PropExternalIdentity carries the
// identity established by the transport.
func NewExternal() sasl.Mechanism {
	return sasl.Mechanism{
		Name:      External,
		Flags:     sasl.FlagClientFirst,
		NewClient: newExternalClient,
		NewServer: newExternalServer,
	}
}

// NewAnonymous returns the ANONYMOUS mechanism (RFC 4505).
func NewAnonymous() sasl.Mechanism {
	return sasl.Mechanism{
		Name:      Anonymous,
		Flags:     sasl.FlagAnonymous | sasl.FlagClientFirst,
		NewClient: newAnonymousClient,
		NewServer: newAnonymousServer,
	}
}

// NewOAuthBearer returns the OAUTHBEARER mechanism (RFC 7628).
func NewOAuthBearer() sasl.Mechanism {
	return sasl.Mechanism{
		Name:      OAuthBearer,
		Flags:     sasl.FlagPlaintext | sasl.FlagClientFirst,
		NewClient: newOAuthBearerClient,
		NewServer: newOAuthBearerServer,
	}
}
