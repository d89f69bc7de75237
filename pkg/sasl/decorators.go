package sasl

import (
	"slices"
	"strings"
)

// PropertiesFactory overlays fixed properties onto the caller's before
// delegating. Its values win over the caller's for the same key.
type PropertiesFactory struct {
	delegate MechanismFactory
	props    Properties
}

// WithProperties wraps delegate with a property overlay. props is copied.
func WithProperties(delegate MechanismFactory, props Properties) *PropertiesFactory {
	return &PropertiesFactory{delegate: delegate, props: props.Clone()}
}

func (f *PropertiesFactory) ListMechanismNames(props Properties) []string {
	return f.delegate.ListMechanismNames(Combine(props, f.props))
}

func (f *PropertiesFactory) CreateHandle(names []string, authzID, service, serverName string, props Properties, resolver CallbackResolver) (Handle, error) {
	return f.delegate.CreateHandle(names, authzID, service, serverName, Combine(props, f.props), resolver)
}

func (f *PropertiesFactory) Identity() Identity {
	return NewIdentity("properties", f.props, f.delegate)
}

// Predicate selects mechanism names. Its id takes part in the identity of
// the filter using it, so two predicates with the same id must select the
// same names.
type Predicate struct {
	id    string
	match func(name string) bool
}

// AllowOnly selects exactly the listed names.
func AllowOnly(names ...string) Predicate {
	set := upperSet(names)
	return Predicate{id: "allow:" + strings.Join(sortedUpper(names), ","), match: func(n string) bool { return set[strings.ToUpper(n)] }}
}

// Exclude selects every name except the listed ones.
func Exclude(names ...string) Predicate {
	set := upperSet(names)
	return Predicate{id: "exclude:" + strings.Join(sortedUpper(names), ","), match: func(n string) bool { return !set[strings.ToUpper(n)] }}
}

// MatchFunc builds a predicate from fn identified by id.
func MatchFunc(id string, fn func(name string) bool) Predicate {
	return Predicate{id: "func:" + id, match: fn}
}

// Match reports whether name is selected.
func (p Predicate) Match(name string) bool { return p.match(name) }

func (p Predicate) String() string { return p.id }

func upperSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToUpper(n)] = true
	}
	return set
}

func sortedUpper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// FilterFactory hides mechanisms not selected by its predicate.
type FilterFactory struct {
	delegate MechanismFactory
	pred     Predicate
}

// WithFilter wraps delegate with a mechanism filter.
func WithFilter(delegate MechanismFactory, pred Predicate) *FilterFactory {
	return &FilterFactory{delegate: delegate, pred: pred}
}

func (f *FilterFactory) filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if f.pred.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f *FilterFactory) ListMechanismNames(props Properties) []string {
	return f.filter(f.delegate.ListMechanismNames(props))
}

func (f *FilterFactory) CreateHandle(names []string, authzID, service, serverName string, props Properties, resolver CallbackResolver) (Handle, error) {
	allowed := f.filter(names)
	if len(allowed) == 0 {
		return nil, unsupported(OpCreateHandle, names)
	}
	return f.delegate.CreateHandle(allowed, authzID, service, serverName, props, resolver)
}

func (f *FilterFactory) Identity() Identity {
	return NewIdentity("filter", Properties{"predicate": f.pred.id}, f.delegate)
}

// ProtocolFactory forces the service (protocol) name passed to the
// delegate, e.g. "ldap" or "imap".
type ProtocolFactory struct {
	delegate MechanismFactory
	protocol string
}

func WithProtocol(delegate MechanismFactory, protocol string) *ProtocolFactory {
	return &ProtocolFactory{delegate: delegate, protocol: protocol}
}

func (f *ProtocolFactory) ListMechanismNames(props Properties) []string {
	return f.delegate.ListMechanismNames(props)
}

func (f *ProtocolFactory) CreateHandle(names []string, authzID, _, serverName string, props Properties, resolver CallbackResolver) (Handle, error) {
	return f.delegate.CreateHandle(names, authzID, f.protocol, serverName, props, resolver)
}

func (f *ProtocolFactory) Identity() Identity {
	return NewIdentity("protocol", Properties{"protocol": f.protocol}, f.delegate)
}

// ServerNameFactory forces the server name passed to the delegate.
type ServerNameFactory struct {
	delegate   MechanismFactory
	serverName string
}

func WithServerName(delegate MechanismFactory, serverName string) *ServerNameFactory {
	return &ServerNameFactory{delegate: delegate, serverName: serverName}
}

func (f *ServerNameFactory) ListMechanismNames(props Properties) []string {
	return f.delegate.ListMechanismNames(props)
}

func (f *ServerNameFactory) CreateHandle(names []string, authzID, service, _ string, props Properties, resolver CallbackResolver) (Handle, error) {
	return f.delegate.CreateHandle(names, authzID, service, f.serverName, props, resolver)
}

func (f *ServerNameFactory) Identity() Identity {
	return NewIdentity("server-name", Properties{"server_name": f.serverName}, f.delegate)
}
