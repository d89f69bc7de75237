package realm

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/saslgate/pkg/directory"
	"github.com/marmos91/saslgate/pkg/trust"
)

// DirectoryRealm verifies passwords against credentials stored in a
// directory. Every verification opens its own session and closes it
// before returning.
type DirectoryRealm struct {
	provider directory.Provider
	trust    trust.Config
}

// NewDirectoryRealm returns a realm reading credentials through p, using tc
// for the transport.
func NewDirectoryRealm(p directory.Provider, tc trust.Config) *DirectoryRealm {
	return &DirectoryRealm{provider: p, trust: tc}
}

func (r *DirectoryRealm) Name() string { return r.provider.Name() }

func (r *DirectoryRealm) VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error) {
	var verified bool
	err := directory.WithSession(ctx, r.provider, r.trust, func(s directory.Session) error {
		cred, err := s.LookupCredential(ctx, principal)
		if err != nil {
			return err
		}
		defer cred.Wipe()
		if len(cred.Password) == 0 {
			return fmt.Errorf("principal %s has no stored credential", principal)
		}
		verified = VerifyPassword(password, cred.Password)
		return nil
	})
	if errors.Is(err, directory.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return verified, err
}
