package logger

import (
	"log/slog"
	"strings"
)

// Standard field keys. Use them consistently so log aggregation can query
// exchanges across components.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Exchange
	KeyExchangeID = "exchange_id" // per-handle correlation id
	KeyMechanism  = "mechanism"   // PLAIN, OAUTHBEARER...
	KeySide       = "side"        // client or server
	KeyState      = "state"       // handle state after a step
	KeyOutcome    = "outcome"     // success, failure, disposed
	KeyStep       = "step"        // initial-response, evaluate-challenge...
	KeyCandidates = "candidates"  // mechanism names offered to a factory
	KeyService    = "service"
	KeyServerName = "server_name"

	// Identity
	KeyPrincipal = "principal"
	KeyAuthzID   = "authz_id"
	KeyRealm     = "realm"

	// Directory and transport
	KeyTarget    = "target" // ldap URL, KDC realm, database DSN host
	KeyOperation = "operation"
	KeyAttempt   = "attempt"

	// Configuration
	KeyPath      = "path"
	KeyComponent = "component"

	// Common
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyCount      = "count"
)

func Mechanism(name string) slog.Attr { return slog.String(KeyMechanism, name) }
func Side(side string) slog.Attr      { return slog.String(KeySide, side) }
func Principal(p string) slog.Attr    { return slog.String(KeyPrincipal, p) }
func Realm(name string) slog.Attr     { return slog.String(KeyRealm, name) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }

// Candidates renders a mechanism name list as one comma separated value.
func Candidates(names []string) slog.Attr {
	return slog.String(KeyCandidates, strings.Join(names, ","))
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an error attribute. A nil error yields an empty attribute,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a diagnostic code attribute, e.g. "SGW26006".
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}
