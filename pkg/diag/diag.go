// Package diag builds coded, user-facing diagnostics.
//
// Every message has a stable numeric code in the project range
// 26000-26999 and a format string. Errors built here render as
// "SGW26000: value at path [x] is not an object" so operators can search
// for a code independently of the wording.
package diag

import (
	"errors"
	"fmt"
)

// Project is the prefix rendered in front of every message code.
const Project = "SGW"

// Code identifies one message in the catalog.
type Code int

// Message codes.
const (
	NotAnObject Code = 26000 + iota
	UnsupportedMechanism
	IllegalExchangeState
	AuthenticationFailed
	UnresolvableCallback
	NotAuthorized
	DirectoryUnavailable
	NoTrustedCertificates
	UnknownProtocolVersion
	ProviderAlreadyInstalled
	UnknownRealmType
	InvalidPropertyValue
)

var catalog = map[Code]string{
	NotAnObject:              "value at path [%s] is not an object",
	UnsupportedMechanism:     "no supported mechanism among candidates %v",
	IllegalExchangeState:     "%s step not permitted while exchange is %s",
	AuthenticationFailed:     "authentication mechanism %s failed",
	UnresolvableCallback:     "callback %s could not be resolved",
	NotAuthorized:            "negotiated properties unavailable while exchange is %s",
	DirectoryUnavailable:     "directory %s unavailable during %s",
	NoTrustedCertificates:    "trust material %s contains no certificates",
	UnknownProtocolVersion:   "unknown TLS protocol version %q",
	ProviderAlreadyInstalled: "provider %q is already installed",
	UnknownRealmType:         "unknown realm type %q",
	InvalidPropertyValue:     "property [%s] has unsupported value of type %T",
}

// ID returns the rendered code, e.g. "SGW26000".
func (c Code) ID() string {
	return fmt.Sprintf("%s%05d", Project, int(c))
}

// Format returns the catalog format string for c.
func (c Code) Format() string {
	if f, ok := catalog[c]; ok {
		return f
	}
	return "unknown diagnostic"
}

// Error is a diagnostic carrying its code, the arguments it was formatted
// with and an optional cause.
type Error struct {
	Code  Code
	Args  []any
	Cause error
}

// New builds a diagnostic error for code with the given format arguments.
func New(code Code, args ...any) *Error {
	return &Error{Code: code, Args: args}
}

// Wrap builds a diagnostic error that wraps cause.
func Wrap(cause error, code Code, args ...any) *Error {
	return &Error{Code: code, Args: args, Cause: cause}
}

// Message returns the formatted message without the code prefix.
func (e *Error) Message() string {
	return fmt.Sprintf(e.Code.Format(), e.Args...)
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code.ID(), e.Message(), e.Cause)
	}
	return e.Code.ID() + ": " + e.Message()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first diagnostic in err's chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return 0, false
}
