package sasl

import (
	"context"
	"errors"
)

// Side is the exchange role of a handle.
type Side int

const (
	SideClient Side = iota + 1
	SideServer
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	default:
		return "unknown"
	}
}

// ParseSide parses "client" or "server".
func ParseSide(s string) (Side, bool) {
	switch s {
	case "client":
		return SideClient, true
	case "server":
		return SideServer, true
	default:
		return 0, false
	}
}

// State is the exchange state of a handle.
type State int

const (
	StateInitial State = iota
	StateHasInitialResponse
	StateChallenged
	StateResponded
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateHasInitialResponse:
		return "HAS_INITIAL_RESPONSE"
	case StateChallenged:
		return "CHALLENGED"
	case StateResponded:
		return "RESPONDED"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Step operation names reported in errors.
const (
	OpCreateHandle       = "create-handle"
	OpInitialResponse    = "initial-response"
	OpEvaluateChallenge  = "evaluate-challenge"
	OpEvaluateResponse   = "evaluate-response"
	OpNegotiatedProperty = "negotiated-property"
)

// Handle is one in-progress exchange for one mechanism on one side.
//
// A handle is driven by a single exchange at a time and is not safe for
// concurrent use. Steps on a complete handle fail with
// ErrIllegalExchangeState and change nothing. A failed step completes the
// handle with failure.
//
// On the client side, success is local: a mechanism with nothing left to
// send (PLAIN, EXTERNAL, ANONYMOUS, OAUTHBEARER) completes right after its
// initial response, before the server has judged it. Callers learn the
// real outcome from the server handle or from the error Exchange returns,
// not from Succeeded or AuthorizationID on the client.
type Handle interface {
	Mechanism() string
	Side() Side
	State() State

	// HasInitialResponse reports whether the client sends data before
	// the first challenge.
	HasInitialResponse() bool

	// InitialResponse produces the client's initial response. Legal only
	// on a client handle in StateInitial with HasInitialResponse.
	InitialResponse(ctx context.Context) ([]byte, error)

	// EvaluateChallenge consumes a server challenge, or the additional
	// data sent with a successful outcome, and produces a response.
	EvaluateChallenge(ctx context.Context, challenge []byte) ([]byte, error)

	// EvaluateResponse consumes a client response and produces the next
	// challenge, or the additional data sent with a successful outcome
	// once IsComplete reports true.
	EvaluateResponse(ctx context.Context, response []byte) ([]byte, error)

	IsComplete() bool
	Succeeded() bool

	// AuthorizationID returns the negotiated authorization identity.
	AuthorizationID() (string, error)

	// NegotiatedProperty returns one negotiated property. It fails with
	// ErrNotAuthorized unless the exchange completed successfully.
	NegotiatedProperty(key string) (any, error)

	// NegotiatedProperties returns a copy of every negotiated property.
	NegotiatedProperties() (Properties, error)

	// Dispose releases the handle and wipes its secrets. A handle that
	// had not completed is completed with failure.
	Dispose()
}

type handle struct {
	name      string
	flags     Flags
	side      Side
	state     State
	succeeded bool

	client ClientMechanism
	server ServerMechanism

	authzID    string
	negotiated Properties
	secrets    *SecretBag
}

func newClientHandle(m Mechanism, mech ClientMechanism, p Params) *handle {
	return &handle{name: m.Name, flags: m.Flags, side: SideClient, client: mech, authzID: p.AuthorizationID, secrets: p.Secrets}
}

func newServerHandle(m Mechanism, mech ServerMechanism, p Params) *handle {
	return &handle{name: m.Name, flags: m.Flags, side: SideServer, server: mech, secrets: p.Secrets}
}

func (h *handle) Mechanism() string { return h.name }
func (h *handle) Side() Side        { return h.side }
func (h *handle) State() State      { return h.state }
func (h *handle) IsComplete() bool  { return h.state == StateComplete }
func (h *handle) Succeeded() bool   { return h.state == StateComplete && h.succeeded }

func (h *handle) HasInitialResponse() bool {
	return h.side == SideClient && h.flags.Has(FlagClientFirst)
}

func (h *handle) InitialResponse(ctx context.Context) ([]byte, error) {
	if h.side != SideClient || h.state != StateInitial || !h.flags.Has(FlagClientFirst) {
		return nil, illegalState(h.name, OpInitialResponse, h.state)
	}
	return h.start(ctx, OpInitialResponse)
}

func (h *handle) start(ctx context.Context, op string) ([]byte, error) {
	ir, done, err := h.client.Start(ctx)
	if err != nil {
		return nil, h.fail(op, err)
	}
	if done {
		h.succeed()
	} else {
		h.state = StateHasInitialResponse
	}
	return ir, nil
}

func (h *handle) EvaluateChallenge(ctx context.Context, challenge []byte) ([]byte, error) {
	if h.side != SideClient {
		return nil, illegalState(h.name, OpEvaluateChallenge, h.state)
	}
	switch h.state {
	case StateInitial:
		if len(challenge) == 0 && h.flags.Has(FlagClientFirst) {
			return h.start(ctx, OpEvaluateChallenge)
		}
		// The server spoke first: any initial response is dropped and the
		// challenge goes to Next. A mechanism done after Start has nothing
		// to answer it with.
		_, done, err := h.client.Start(ctx)
		if err != nil {
			return nil, h.fail(OpEvaluateChallenge, err)
		}
		if done {
			return nil, h.fail(OpEvaluateChallenge, errors.New("mechanism expects no server challenge"))
		}
	case StateHasInitialResponse, StateResponded:
	default:
		return nil, illegalState(h.name, OpEvaluateChallenge, h.state)
	}

	h.state = StateChallenged
	resp, done, err := h.client.Next(ctx, challenge)
	if err != nil {
		return nil, h.fail(OpEvaluateChallenge, err)
	}
	if done {
		h.succeed()
	} else {
		h.state = StateResponded
	}
	return resp, nil
}

func (h *handle) EvaluateResponse(ctx context.Context, response []byte) ([]byte, error) {
	if h.side != SideServer || (h.state != StateInitial && h.state != StateChallenged) {
		return nil, illegalState(h.name, OpEvaluateResponse, h.state)
	}

	h.state = StateResponded
	challenge, done, err := h.server.Next(ctx, response)
	if err != nil {
		return nil, h.fail(OpEvaluateResponse, err)
	}
	if done {
		h.succeed()
	} else {
		h.state = StateChallenged
	}
	return challenge, nil
}

func (h *handle) succeed() {
	props := Properties{}
	if n, ok := h.mechanism().(Negotiator); ok {
		props = n.Negotiated().Clone()
	}
	if _, ok := props[PropAuthorizationID]; !ok {
		if h.authzID != "" {
			props[PropAuthorizationID] = h.authzID
		} else if authn, ok := props.String(PropAuthenticationID); ok {
			props[PropAuthorizationID] = authn
		}
	}
	h.negotiated = props
	h.succeeded = true
	h.finish()
}

func (h *handle) fail(op string, err error) error {
	h.succeeded = false
	h.negotiated = nil
	h.finish()
	return asMechanismFailure(h.name, op, err)
}

func (h *handle) finish() {
	h.state = StateComplete
	h.secrets.Wipe()
	if d, ok := h.mechanism().(Disposer); ok {
		d.Dispose()
	}
	h.client, h.server = nil, nil
}

func (h *handle) mechanism() any {
	if h.client != nil {
		return h.client
	}
	if h.server != nil {
		return h.server
	}
	return nil
}

func (h *handle) notAuthorized() error {
	return &Error{Kind: KindNotAuthorized, Mechanism: h.name, Op: OpNegotiatedProperty, Err: errors.New("exchange is " + h.outcome())}
}

func (h *handle) outcome() string {
	switch {
	case h.state != StateComplete:
		return "in progress"
	case h.succeeded:
		return "complete"
	default:
		return "failed"
	}
}

func (h *handle) AuthorizationID() (string, error) {
	v, err := h.NegotiatedProperty(PropAuthorizationID)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (h *handle) NegotiatedProperty(key string) (any, error) {
	if !h.Succeeded() {
		return nil, h.notAuthorized()
	}
	return h.negotiated[key], nil
}

func (h *handle) NegotiatedProperties() (Properties, error) {
	if !h.Succeeded() {
		return nil, h.notAuthorized()
	}
	return h.negotiated.Clone(), nil
}

func (h *handle) Dispose() {
	if h.state == StateComplete {
		h.secrets.Wipe()
		return
	}
	h.succeeded = false
	h.finish()
}
