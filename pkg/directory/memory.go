package directory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/marmos91/saslgate/pkg/trust"
)

// MemoryProvider serves credentials from a map. It backs tests and
// development setups.
type MemoryProvider struct {
	mu      sync.RWMutex
	entries map[string]Credential

	// unavailable makes OpenSession fail, simulating an outage.
	unavailable bool

	opened, closed int
}

// NewMemoryProvider returns a provider holding passwords by principal.
func NewMemoryProvider(passwords map[string]string) *MemoryProvider {
	p := &MemoryProvider{entries: make(map[string]Credential, len(passwords))}
	for principal, password := range passwords {
		p.Put(Credential{Principal: principal, Password: []byte(password)})
	}
	return p
}

// Put stores or replaces a credential.
func (p *MemoryProvider) Put(c Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Password = append([]byte(nil), c.Password...)
	c.Attributes = maps.Clone(c.Attributes)
	if c.DN == "" {
		c.DN = fmt.Sprintf("%s=%s,%s", DefaultPrincipalAttribute, c.Principal, DefaultBaseDN)
	}
	p.entries[c.Principal] = c
}

// SetUnavailable toggles the simulated outage.
func (p *MemoryProvider) SetUnavailable(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = down
}

// OpenSessions returns the number of sessions opened and not yet closed.
func (p *MemoryProvider) OpenSessions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opened - p.closed
}

func (p *MemoryProvider) Name() string { return "memory" }

func (p *MemoryProvider) OpenSession(ctx context.Context, _ trust.Config) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory", "connect", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable {
		return nil, unavailable("memory", "connect", nil)
	}
	p.opened++
	return &memorySession{p: p}, nil
}

type memorySession struct {
	p      *MemoryProvider
	closed bool
}

func (s *memorySession) LookupCredential(ctx context.Context, principal string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory", "search", err)
	}
	if s.closed {
		return nil, unavailable("memory", "search", errors.New("session closed"))
	}
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	c, ok := s.p.entries[principal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, principal)
	}
	c.Password = append([]byte(nil), c.Password...)
	c.Attributes = maps.Clone(c.Attributes)
	return &c, nil
}

func (s *memorySession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.p.mu.Lock()
	s.p.closed++
	s.p.mu.Unlock()
	return nil
}
