package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrMechanism  = "sasl.mechanism"
	AttrSide       = "sasl.side"
	AttrStep       = "sasl.step"
	AttrState      = "sasl.state"
	AttrOutcome    = "sasl.outcome"
	AttrExchangeID = "sasl.exchange_id"
	AttrCandidates = "sasl.candidates"
	AttrService    = "sasl.service"
	AttrServerName = "server.address"

	AttrRealm     = "realm.name"
	AttrRealmType = "realm.type"
	AttrPrincipal = "enduser.id"

	AttrDirectoryTarget = "directory.target"
	AttrDirectoryOp     = "directory.operation"
)

// Span names.
const (
	SpanCreateHandle    = "sasl.create_handle"
	SpanStep            = "sasl.step"
	SpanDirectoryOpen   = "directory.open_session"
	SpanDirectoryLookup = "directory.lookup"
	SpanRealmLookup     = "realm.lookup"
)

func Mechanism(name string) attribute.KeyValue { return attribute.String(AttrMechanism, name) }
func Side(side string) attribute.KeyValue      { return attribute.String(AttrSide, side) }
func Step(step string) attribute.KeyValue      { return attribute.String(AttrStep, step) }
func State(state string) attribute.KeyValue    { return attribute.String(AttrState, state) }
func Outcome(o string) attribute.KeyValue      { return attribute.String(AttrOutcome, o) }
func ExchangeID(id string) attribute.KeyValue  { return attribute.String(AttrExchangeID, id) }
func Realm(name string) attribute.KeyValue     { return attribute.String(AttrRealm, name) }
func Principal(p string) attribute.KeyValue    { return attribute.String(AttrPrincipal, p) }

func Candidates(names []string) attribute.KeyValue {
	return attribute.StringSlice(AttrCandidates, names)
}

// StartStepSpan starts a span for one exchange step.
func StartStepSpan(ctx context.Context, mechanism, side, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Mechanism(mechanism), Side(side), Step(step)}, attrs...)
	return StartSpan(ctx, SpanStep, trace.WithAttributes(all...))
}

// StartDirectorySpan starts a client span for a directory operation.
func StartDirectorySpan(ctx context.Context, name, target string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(AttrDirectoryTarget, target)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindClient))
}
