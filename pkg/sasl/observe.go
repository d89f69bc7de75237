package sasl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/metrics"
)

// ObservingFactory logs, traces and records metrics for every handle its
// delegate creates. It does not change negotiation inputs or outcomes.
//
// Two observing factories over equal delegates are equal whatever metrics
// they record into.
type ObservingFactory struct {
	delegate MechanismFactory
	metrics  metrics.ExchangeMetrics
	side     string
}

// WithObservation wraps delegate. m may be nil.
func WithObservation(delegate MechanismFactory, m metrics.ExchangeMetrics) *ObservingFactory {
	side, _ := IdentityOf(delegate).Base().config.String("side")
	if side == "" {
		side = "unknown"
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &ObservingFactory{delegate: delegate, metrics: m, side: side}
}

func (f *ObservingFactory) ListMechanismNames(props Properties) []string {
	names := f.delegate.ListMechanismNames(props)
	logger.Debug("mechanisms listed", logger.KeySide, f.side, logger.Candidates(names))
	return names
}

func (f *ObservingFactory) CreateHandle(names []string, authzID, service, serverName string, props Properties, resolver CallbackResolver) (Handle, error) {
	h, err := f.delegate.CreateHandle(names, authzID, service, serverName, props, resolver)
	if err != nil {
		if errors.Is(err, ErrUnsupportedMechanism) {
			f.metrics.RecordUnsupported(f.side)
		}
		logger.Warn("handle creation failed", logger.KeySide, f.side, logger.Candidates(names), logger.Err(err))
		return nil, err
	}

	id := uuid.NewString()
	f.metrics.RecordHandleCreated(h.Mechanism(), h.Side().String())
	logger.Debug("handle created",
		logger.KeyExchangeID, id,
		logger.KeyMechanism, h.Mechanism(),
		logger.KeySide, h.Side().String(),
		logger.KeyService, service,
		logger.KeyServerName, serverName,
	)
	return &observedHandle{Handle: h, id: id, metrics: f.metrics}, nil
}

func (f *ObservingFactory) Identity() Identity {
	return NewIdentity("observing", nil, f.delegate)
}

// observedHandle decorates each step of the wrapped handle.
type observedHandle struct {
	Handle
	id       string
	metrics  metrics.ExchangeMetrics
	reported bool
}

// ExchangeID returns the correlation id used in logs and spans.
func (h *observedHandle) ExchangeID() string { return h.id }

func (h *observedHandle) InitialResponse(ctx context.Context) ([]byte, error) {
	return h.step(ctx, OpInitialResponse, func(ctx context.Context) ([]byte, error) {
		return h.Handle.InitialResponse(ctx)
	})
}

func (h *observedHandle) EvaluateChallenge(ctx context.Context, challenge []byte) ([]byte, error) {
	return h.step(ctx, OpEvaluateChallenge, func(ctx context.Context) ([]byte, error) {
		return h.Handle.EvaluateChallenge(ctx, challenge)
	})
}

func (h *observedHandle) EvaluateResponse(ctx context.Context, response []byte) ([]byte, error) {
	return h.step(ctx, OpEvaluateResponse, func(ctx context.Context) ([]byte, error) {
		return h.Handle.EvaluateResponse(ctx, response)
	})
}

func (h *observedHandle) step(ctx context.Context, op string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	mech, side := h.Mechanism(), h.Side().String()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(h.id)
	} else {
		lc = lc.Clone()
		lc.ExchangeID = h.id
	}
	ctx, span := telemetry.StartStepSpan(ctx, mech, side, op, telemetry.ExchangeID(h.id))
	defer span.End()
	lc = lc.WithExchange(mech, side).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	start := time.Now()
	out, err := fn(ctx)
	h.metrics.RecordStep(mech, side, op, time.Since(start))

	state := h.State().String()
	telemetry.SetAttributes(ctx, telemetry.State(state))
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "exchange step failed", logger.KeyStep, op, logger.KeyState, state, logger.Err(err))
	} else {
		logger.DebugCtx(ctx, "exchange step", logger.KeyStep, op, logger.KeyState, state)
	}
	if h.IsComplete() {
		h.complete(ctx)
	}
	return out, err
}

func (h *observedHandle) complete(ctx context.Context) {
	if h.reported {
		return
	}
	h.reported = true

	outcome := metrics.OutcomeFailure
	if h.Succeeded() {
		outcome = metrics.OutcomeSuccess
	}
	h.metrics.RecordCompletion(h.Mechanism(), h.Side().String(), outcome)
	telemetry.SetAttributes(ctx, telemetry.Outcome(outcome))

	args := []any{logger.KeyOutcome, outcome}
	if authz, err := h.AuthorizationID(); err == nil && authz != "" {
		args = append(args, logger.KeyAuthzID, authz)
	}
	logger.InfoCtx(ctx, "exchange complete", args...)
}

func (h *observedHandle) Dispose() {
	wasComplete := h.IsComplete()
	h.Handle.Dispose()
	if wasComplete || h.reported {
		return
	}
	h.reported = true
	h.metrics.RecordCompletion(h.Mechanism(), h.Side().String(), metrics.OutcomeDisposed)
	logger.Debug("handle disposed", logger.KeyExchangeID, h.id, logger.KeyMechanism, h.Mechanism())
}

type nopMetrics struct{}

func (nopMetrics) RecordHandleCreated(string, string)                  {}
func (nopMetrics) RecordUnsupported(string)                            {}
func (nopMetrics) RecordStep(string, string, string, time.Duration)    {}
func (nopMetrics) RecordCompletion(string, string, string)             {}
func (nopMetrics) RecordDirectoryLookup(string, string, time.Duration) {}
