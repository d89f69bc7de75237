package sasl

import (
	"context"
	"strings"
)

// Flags describe security properties of a mechanism. The base factory
// matches them against the policy properties.
type Flags uint

const (
	// FlagPlaintext marks mechanisms that send reusable secrets in the clear.
	FlagPlaintext Flags = 1 << iota
	// FlagAnonymous marks mechanisms that accept unauthenticated peers.
	FlagAnonymous
	// FlagActive marks mechanisms open to active attacks.
	FlagActive
	// FlagDictionary marks mechanisms open to passive dictionary attacks.
	FlagDictionary
	// FlagClientFirst marks mechanisms whose client sends an initial
	// response before any challenge.
	FlagClientFirst
)

var policyFlags = []struct {
	key  string
	flag Flags
}{
	{PolicyNoPlaintext, FlagPlaintext},
	{PolicyNoAnonymous, FlagAnonymous},
	{PolicyNoActive, FlagActive},
	{PolicyNoDictionary, FlagDictionary},
}

// Has reports whether all bits of o are set in f.
func (f Flags) Has(o Flags) bool { return f&o == o }

func (f Flags) String() string {
	var names []string
	for _, n := range []struct {
		flag Flags
		name string
	}{
		{FlagPlaintext, "plaintext"},
		{FlagAnonymous, "anonymous"},
		{FlagActive, "active"},
		{FlagDictionary, "dictionary"},
		{FlagClientFirst, "client-first"},
	} {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// Permitted reports whether a mechanism with flags f passes the policy
// properties in props.
func (f Flags) Permitted(props Properties) bool {
	for _, p := range policyFlags {
		if props.Bool(p.key) && f.Has(p.flag) {
			return false
		}
	}
	return true
}

// Params are the inputs a mechanism constructor receives.
type Params struct {
	AuthorizationID string
	Service         string
	ServerName      string
	Properties      Properties
	Resolver        CallbackResolver

	// Secrets collects buffers the handle wipes once it completes or is
	// disposed.
	Secrets *SecretBag
}

// Mechanism describes one mechanism implementation. Either constructor may
// be nil when the side is not implemented.
type Mechanism struct {
	Name      string
	Flags     Flags
	NewClient func(Params) (ClientMechanism, error)
	NewServer func(Params) (ServerMechanism, error)
}

// Supports reports whether m can create a handle for side.
func (m Mechanism) Supports(side Side) bool {
	if side == SideClient {
		return m.NewClient != nil
	}
	return m.NewServer != nil
}

// ClientMechanism is the initiator half of a mechanism algorithm.
//
// Start is called once. A nil ir with a nil error means the mechanism has
// no initial response. done reports that the client expects nothing more
// from the server apart from the outcome.
type ClientMechanism interface {
	Start(ctx context.Context) (ir []byte, done bool, err error)
	Next(ctx context.Context, challenge []byte) (response []byte, done bool, err error)
}

// ServerMechanism is the responder half of a mechanism algorithm. A nil
// response on the first call means the client sent no initial response.
type ServerMechanism interface {
	Next(ctx context.Context, response []byte) (challenge []byte, done bool, err error)
}

// Negotiator is implemented by mechanisms that report negotiated
// properties after a successful exchange.
type Negotiator interface {
	Negotiated() Properties
}

// Disposer is implemented by mechanisms holding state to release.
type Disposer interface {
	Dispose()
}
