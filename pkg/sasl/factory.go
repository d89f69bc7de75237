package sasl

import (
	"errors"
	"strings"
)

// MechanismFactory lists mechanisms and creates handles for them.
//
// Factories are immutable after construction and safe for concurrent use.
// Implementations must not modify the props map they receive.
type MechanismFactory interface {
	// ListMechanismNames returns the mechanisms available under props,
	// most preferred first.
	ListMechanismNames(props Properties) []string

	// CreateHandle creates a handle for the first supported name in
	// names. It fails with ErrUnsupportedMechanism when none is supported.
	CreateHandle(names []string, authzID, service, serverName string, props Properties, resolver CallbackResolver) (Handle, error)
}

// BaseFactory creates handles from a fixed, ordered set of mechanisms for
// one side of the exchange.
type BaseFactory struct {
	side  Side
	mechs []Mechanism
}

// NewClientFactory returns a base factory creating initiator handles.
// Mechanisms without a client implementation are ignored.
func NewClientFactory(mechs ...Mechanism) *BaseFactory {
	return newBaseFactory(SideClient, mechs)
}

// NewServerFactory returns a base factory creating responder handles.
// Mechanisms without a server implementation are ignored.
func NewServerFactory(mechs ...Mechanism) *BaseFactory {
	return newBaseFactory(SideServer, mechs)
}

func newBaseFactory(side Side, mechs []Mechanism) *BaseFactory {
	f := &BaseFactory{side: side}
	seen := make(map[string]bool, len(mechs))
	for _, m := range mechs {
		m.Name = strings.ToUpper(m.Name)
		if m.Name == "" || seen[m.Name] || !m.Supports(side) {
			continue
		}
		seen[m.Name] = true
		f.mechs = append(f.mechs, m)
	}
	return f
}

// Side returns the side this factory creates handles for.
func (f *BaseFactory) Side() Side { return f.side }

func (f *BaseFactory) ListMechanismNames(props Properties) []string {
	names := make([]string, 0, len(f.mechs))
	for _, m := range f.mechs {
		if m.Flags.Permitted(props) {
			names = append(names, m.Name)
		}
	}
	return names
}

func (f *BaseFactory) lookup(name string) (Mechanism, bool) {
	name = strings.ToUpper(name)
	for _, m := range f.mechs {
		if m.Name == name {
			return m, true
		}
	}
	return Mechanism{}, false
}

func (f *BaseFactory) CreateHandle(names []string, authzID, service, serverName string, props Properties, resolver CallbackResolver) (Handle, error) {
	if resolver == nil {
		resolver = refuseAll
	}
	for _, name := range names {
		m, ok := f.lookup(name)
		if !ok || !m.Flags.Permitted(props) {
			continue
		}
		p := Params{
			AuthorizationID: authzID,
			Service:         service,
			ServerName:      serverName,
			Properties:      props,
			Resolver:        resolver,
			Secrets:         &SecretBag{},
		}
		h, err := f.create(m, p)
		if errors.Is(err, ErrUnsupportedMechanism) {
			continue
		}
		if err != nil {
			p.Secrets.Wipe()
			return nil, &Error{Kind: KindAuthenticationFailed, Mechanism: m.Name, Op: OpCreateHandle, Err: err}
		}
		return h, nil
	}
	return nil, unsupported(OpCreateHandle, names)
}

func (f *BaseFactory) create(m Mechanism, p Params) (Handle, error) {
	if f.side == SideClient {
		c, err := m.NewClient(p)
		if err != nil {
			return nil, err
		}
		return newClientHandle(m, c, p), nil
	}
	s, err := m.NewServer(p)
	if err != nil {
		return nil, err
	}
	return newServerHandle(m, s, p), nil
}

// Identity is determined by side and the ordered mechanisms with their
// policy flags, e.g. "PLAIN:plaintext,dictionary,client-first;EXTERNAL:client-first".
func (f *BaseFactory) Identity() Identity {
	entries := make([]string, len(f.mechs))
	for i, m := range f.mechs {
		entries[i] = m.Name + ":" + m.Flags.String()
	}
	return NewIdentity("base", Properties{
		"side":       f.side.String(),
		"mechanisms": strings.Join(entries, ";"),
	}, nil)
}
