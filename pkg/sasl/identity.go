package sasl

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Identifiable is implemented by factories with structural identity.
// Every factory in this package implements it.
type Identifiable interface {
	Identity() Identity
}

// Identity is the structural identity of a factory: a variant
// discriminator, the factory's own configuration and the identity of its
// delegate. It is computed on demand and never mutated.
type Identity struct {
	variant  string
	config   Properties
	ref      any
	delegate *Identity
}

// NewIdentity builds the identity of a decorator of the given variant
// wrapping delegate. A nil delegate marks a base factory.
func NewIdentity(variant string, config Properties, delegate MechanismFactory) Identity {
	id := Identity{variant: variant, config: config}
	if delegate != nil {
		d := IdentityOf(delegate)
		id.delegate = &d
	}
	return id
}

// RefIdentity builds an identity that compares ref with ==. It suits
// factories whose state is not a plain value, such as a live registry.
// ref must be comparable; pointers are the usual choice.
func RefIdentity(variant string, ref any) Identity {
	return Identity{variant: variant, ref: ref}
}

// IdentityOf returns f's identity. Factories that do not implement
// Identifiable get an identity that compares the factory value itself
// with == when its dynamic type is comparable, and is never equal to
// anything otherwise.
func IdentityOf(f MechanismFactory) Identity {
	if f == nil {
		return Identity{variant: "nil"}
	}
	if id, ok := f.(Identifiable); ok {
		return id.Identity()
	}
	return Identity{variant: fmt.Sprintf("opaque:%T", f), ref: opaqueRef{f}}
}

type opaqueRef struct{ f MechanismFactory }

// Variant returns the discriminator, e.g. "properties" or "filter".
func (id Identity) Variant() string { return id.variant }

// Delegate returns the delegate identity, if any.
func (id Identity) Delegate() (Identity, bool) {
	if id.delegate == nil {
		return Identity{}, false
	}
	return *id.delegate, true
}

// Base returns the innermost identity of the chain.
func (id Identity) Base() Identity {
	for id.delegate != nil {
		id = *id.delegate
	}
	return id
}

// Config returns a copy of this layer's configuration.
func (id Identity) Config() Properties { return id.config.Clone() }

// Equal reports whether id and o have the same variant, equal
// configuration and equal delegates, recursively.
func (id Identity) Equal(o Identity) bool {
	if id.variant != o.variant {
		return false
	}
	if !id.config.Equal(o.config) {
		return false
	}
	if !refEqual(id.ref, o.ref) {
		return false
	}
	switch {
	case id.delegate == nil && o.delegate == nil:
		return true
	case id.delegate == nil || o.delegate == nil:
		return false
	default:
		return id.delegate.Equal(*o.delegate)
	}
}

// Hash combines delegate hash, variant and configuration hash in that
// order. Equal identities hash equal.
func (id Identity) Hash() uint64 {
	var delegateHash uint64
	if id.delegate != nil {
		delegateHash = id.delegate.Hash()
	}
	var buf [8]byte
	d := xxhash.New()
	binary.LittleEndian.PutUint64(buf[:], delegateHash)
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(id.variant)
	binary.LittleEndian.PutUint64(buf[:], id.config.Hash())
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// String renders the chain outermost first, e.g.
// "filter{...} -> properties{...} -> base{...}".
func (id Identity) String() string {
	s := id.variant
	if len(id.config) > 0 {
		s += "{"
		for i, k := range id.config.sortedKeys() {
			if i > 0 {
				s += ","
			}
			s += fmt.Sprintf("%s=%v", k, id.config[k])
		}
		s += "}"
	}
	if id.delegate != nil {
		s += " -> " + id.delegate.String()
	}
	return s
}

// Equal reports whether two factories have equal structural identity.
func Equal(a, b MechanismFactory) bool {
	return IdentityOf(a).Equal(IdentityOf(b))
}

// Hash returns the structural hash of f.
func Hash(f MechanismFactory) uint64 {
	return IdentityOf(f).Hash()
}

func refEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ra, ok := a.(opaqueRef); ok {
		rb, ok := b.(opaqueRef)
		if !ok {
			return false
		}
		return comparableEqual(ra.f, rb.f)
	}
	return comparableEqual(a, b)
}

func comparableEqual(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
