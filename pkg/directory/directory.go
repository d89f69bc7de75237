// Package directory opens sessions against a credential directory and looks
// up the stored credential of a principal.
//
// A session is acquired per exchange, used for a bounded number of lookups
// and closed on every exit path. Providers never validate certificates
// themselves: they consume trust material loaded by package trust.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/trust"
)

var (
	// ErrDirectoryUnavailable means the directory could not be reached, the
	// trust material was rejected or the operation timed out.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrNotFound means the principal has no entry in the directory.
	ErrNotFound = errors.New("principal not found")
)

// Credential is what the directory stores for a principal.
type Credential struct {
	Principal string
	DN        string

	// Password is the stored credential value: a plain password, a bcrypt
	// hash or an RFC 2307 "{SCHEME}" value.
	Password []byte

	Attributes map[string][]string
}

// Wipe zeroes the stored password.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	clear(c.Password)
	c.Password = nil
}

// Provider opens directory sessions.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// OpenSession connects and authenticates to the directory. Failures
	// to connect, validate trust or bind within the deadline of ctx return
	// an error matching ErrDirectoryUnavailable.
	OpenSession(ctx context.Context, tc trust.Config) (Session, error)
}

// Session is an authenticated directory connection.
type Session interface {
	// LookupCredential returns the credential stored for principal, or
	// an error matching ErrNotFound.
	LookupCredential(ctx context.Context, principal string) (*Credential, error)

	Close() error
}

// UnavailableError reports a directory failure with its target and the
// operation that failed.
type UnavailableError struct {
	Target string
	Op     string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := diag.New(diag.DirectoryUnavailable, e.Target, e.Op).Error()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDirectoryUnavailable}
	}
	return []error{ErrDirectoryUnavailable, e.Err}
}

// Code returns the diagnostic code of the error.
func (e *UnavailableError) Code() diag.Code { return diag.DirectoryUnavailable }

func unavailable(target, op string, err error) error {
	return &UnavailableError{Target: target, Op: op, Err: err}
}

// WithSession opens a session, runs fn and closes the session whatever fn
// returns.
func WithSession(ctx context.Context, p Provider, tc trust.Config, fn func(Session) error) (err error) {
	s, err := p.OpenSession(ctx, tc)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
