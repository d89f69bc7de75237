package sasl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/saslgate/pkg/diag"
)

// Sentinel errors, one per Kind. Match them with errors.Is.
var (
	// ErrUnsupportedMechanism means no candidate mechanism is supported by
	// the factory chain.
	ErrUnsupportedMechanism = errors.New("sasl: unsupported mechanism")

	// ErrIllegalExchangeState means a Handle step was called out of order
	// or after the exchange completed.
	ErrIllegalExchangeState = errors.New("sasl: illegal exchange state")

	// ErrAuthenticationFailed means an exchange step failed. The Handle is
	// complete and must not be reused.
	ErrAuthenticationFailed = errors.New("sasl: authentication mechanism failure")

	// ErrUnresolvableCallback means a CallbackResolver could not satisfy a
	// request. Handles never return it to their caller.
	ErrUnresolvableCallback = errors.New("sasl: unresolvable callback")

	// ErrNotAuthorized means negotiated properties were queried before a
	// successful completion.
	ErrNotAuthorized = errors.New("sasl: not authorized")
)

// Kind classifies an Error.
type Kind int

const (
	KindUnsupportedMechanism Kind = iota + 1
	KindIllegalExchangeState
	KindAuthenticationFailed
	KindUnresolvableCallback
	KindNotAuthorized
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedMechanism:
		return "unsupported-mechanism"
	case KindIllegalExchangeState:
		return "illegal-exchange-state"
	case KindAuthenticationFailed:
		return "authentication-failed"
	case KindUnresolvableCallback:
		return "unresolvable-callback"
	case KindNotAuthorized:
		return "not-authorized"
	default:
		return "unknown"
	}
}

// Code returns the diagnostic code reported for k.
func (k Kind) Code() diag.Code {
	switch k {
	case KindUnsupportedMechanism:
		return diag.UnsupportedMechanism
	case KindIllegalExchangeState:
		return diag.IllegalExchangeState
	case KindAuthenticationFailed:
		return diag.AuthenticationFailed
	case KindUnresolvableCallback:
		return diag.UnresolvableCallback
	case KindNotAuthorized:
		return diag.NotAuthorized
	default:
		return 0
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnsupportedMechanism:
		return ErrUnsupportedMechanism
	case KindIllegalExchangeState:
		return ErrIllegalExchangeState
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed
	case KindUnresolvableCallback:
		return ErrUnresolvableCallback
	case KindNotAuthorized:
		return ErrNotAuthorized
	default:
		return nil
	}
}

// Error is the error type returned by factories, handles and resolvers.
//
// errors.Is matches both the sentinel for Kind and anything in the Err
// chain, so a directory outage surfacing through a failed exchange still
// satisfies errors.Is(err, directory.ErrDirectoryUnavailable).
type Error struct {
	Kind Kind

	// Mechanism is the mechanism name, empty for factory-level errors.
	Mechanism string

	// Op is the operation that failed (create-handle, evaluate-response...).
	Op string

	// Callback names the unresolved callback for KindUnresolvableCallback.
	Callback string

	// Err is the originating cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("sasl: ")
	if e.Mechanism != "" {
		b.WriteString(e.Mechanism)
		b.WriteByte(' ')
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.TrimPrefix(e.Kind.sentinel().Error(), "sasl: "))
	if e.Callback != "" {
		b.WriteString(" (")
		b.WriteString(e.Callback)
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Unresolvable reports that a resolver cannot satisfy cb. cause may be nil.
func Unresolvable(cb Callback, cause error) error {
	return &Error{Kind: KindUnresolvableCallback, Op: "resolve", Callback: cb.CallbackName(), Err: cause}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

func unsupported(op string, names []string) error {
	return &Error{Kind: KindUnsupportedMechanism, Op: op, Err: fmt.Errorf("candidates %v", names)}
}

func illegalState(mech, op string, state State) error {
	return &Error{Kind: KindIllegalExchangeState, Mechanism: mech, Op: op, Err: fmt.Errorf("exchange is %s", state)}
}

// findKind walks err's tree looking for an *Error of kind k.
func findKind(err error, k Kind) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok && se.Kind == k {
		return se
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return findKind(u.Unwrap(), k)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if se := findKind(inner, k); se != nil {
				return se
			}
		}
	}
	return nil
}

// asMechanismFailure converts a step error into a terminal
// KindAuthenticationFailed error. Unresolved callbacks are reduced to the
// callback name so resolver internals (unknown principal versus wrong
// password) never reach the negotiation caller.
func asMechanismFailure(mech, op string, err error) error {
	if ue := findKind(err, KindUnresolvableCallback); ue != nil {
		return &Error{
			Kind:      KindAuthenticationFailed,
			Mechanism: mech,
			Op:        op,
			Err:       fmt.Errorf("credential callback %s not satisfied", ue.Callback),
		}
	}
	var se *Error
	if errors.As(err, &se) && se.Kind == KindAuthenticationFailed {
		if se.Mechanism == "" {
			clone := *se
			clone.Mechanism = mech
			return &clone
		}
		return se
	}
	return &Error{Kind: KindAuthenticationFailed, Mechanism: mech, Op: op, Err: err}
}
