package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds exchange-scoped logging fields. Values are copied on
// every With* call so a context can be shared across goroutines.
type LogContext struct {
	TraceID    string
	SpanID     string
	ExchangeID string
	Mechanism  string
	Side       string
	Principal  string
	StartTime  time.Time
}

// WithContext returns a context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for one exchange.
func NewLogContext(exchangeID string) *LogContext {
	return &LogContext{ExchangeID: exchangeID, StartTime: time.Now()}
}

func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithExchange returns a copy carrying mechanism and side.
func (lc *LogContext) WithExchange(mechanism, side string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Mechanism = mechanism
		c.Side = side
	}
	return c
}

// WithPrincipal returns a copy carrying the authenticated principal.
func (lc *LogContext) WithPrincipal(principal string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Principal = principal
	}
	return c
}

// WithTrace returns a copy carrying trace and span ids.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns milliseconds since StartTime, or 0.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
