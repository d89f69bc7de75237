// Package provider manages the set of installed mechanism providers and
// builds discovery factories over them.
//
// Installation is scoped: Install returns a Guard and the provider stays
// visible until the guard is released. There is no process-wide registry;
// callers own their Registry.
//
//	reg := provider.NewRegistry()
//	guard, err := reg.Install(provider.Builtin())
//	if err != nil { ... }
//	defer guard.Release()
//	factory := reg.ServerFactory()
package provider

import (
	"cmp"
	"slices"
	"sync"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/sasl"
	"github.com/marmos91/saslgate/pkg/sasl/mechanisms"
)

// BuiltinName names the provider of the bundled mechanisms.
const BuiltinName = "builtin"

// Provider is a named bundle of mechanisms. Lower Priority values are
// consulted first; a mechanism name already supplied by an earlier
// provider is ignored in later ones.
type Provider struct {
	Name       string
	Priority   int
	Mechanisms []sasl.Mechanism
}

// Builtin returns the provider of the mechanisms shipped in
// pkg/sasl/mechanisms, at priority 100.
func Builtin() Provider {
	return Provider{Name: BuiltinName, Priority: 100, Mechanisms: mechanisms.All()}
}

type installed struct {
	Provider
	seq uint64
}

// Registry holds installed providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]installed
	seq       uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]installed)}
}

// Install registers p until the returned guard is released.
//
// Returns a diag.ProviderAlreadyInstalled error if a provider with the
// same name is installed.
func (r *Registry) Install(p Provider) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name]; exists {
		return nil, diag.New(diag.ProviderAlreadyInstalled, p.Name)
	}
	r.seq++
	r.providers[p.Name] = installed{Provider: p, seq: r.seq}
	logger.Debug("provider installed", "provider", p.Name, logger.KeyCount, len(p.Mechanisms))
	return &Guard{registry: r, name: p.Name, seq: r.seq}, nil
}

func (r *Registry) remove(name string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A stale guard must not remove a provider reinstalled under its name.
	if cur, ok := r.providers[name]; ok && cur.seq == seq {
		delete(r.providers, name)
		logger.Debug("provider released", "provider", name)
	}
}

// Installed returns the names of installed providers in discovery order.
func (r *Registry) Installed() []string {
	ordered := r.ordered()
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the installed provider named name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p.Provider, ok
}

func (r *Registry) ordered() []installed {
	r.mu.RLock()
	out := make([]installed, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b installed) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

// Mechanisms returns every installed mechanism in discovery order.
// Duplicates are left for the factory to resolve.
func (r *Registry) Mechanisms() []sasl.Mechanism {
	var out []sasl.Mechanism
	for _, p := range r.ordered() {
		out = append(out, p.Mechanisms...)
	}
	return out
}

// ClientFactory snapshots the installed mechanisms into a client-side
// base factory. Later installs or releases do not affect it.
func (r *Registry) ClientFactory() *sasl.BaseFactory {
	return sasl.NewClientFactory(r.Mechanisms()...)
}

// ServerFactory snapshots the installed mechanisms into a server-side
// base factory.
func (r *Registry) ServerFactory() *sasl.BaseFactory {
	return sasl.NewServerFactory(r.Mechanisms()...)
}

// Factory returns ClientFactory or ServerFactory for side.
func (r *Registry) Factory(side sasl.Side) *sasl.BaseFactory {
	if side == sasl.SideClient {
		return r.ClientFactory()
	}
	return r.ServerFactory()
}

// Guard keeps a provider installed. Release is idempotent.
type Guard struct {
	registry *Registry
	name     string
	seq      uint64
	once     sync.Once
}

// Name returns the name of the guarded provider.
func (g *Guard) Name() string { return g.name }

// Release uninstalls the provider.
func (g *Guard) Release() {
	g.once.Do(func() { g.registry.remove(g.name, g.seq) })
}

// TB is the subset of testing.TB used by InstallForTest.
type TB interface {
	Helper()
	Cleanup(func())
	Fatalf(format string, args ...any)
}

// InstallForTest installs p for the duration of the test.
func InstallForTest(t TB, r *Registry, p Provider) {
	t.Helper()
	g, err := r.Install(p)
	if err != nil {
		t.Fatalf("install provider %s: %v", p.Name, err)
		return
	}
	t.Cleanup(g.Release)
}
