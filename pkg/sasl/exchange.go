package sasl

import (
	"context"
	"errors"
	"fmt"
)

// MaxExchangeRounds bounds the number of challenge/response rounds
// Exchange drives before giving up.
const MaxExchangeRounds = 16

// Exchange drives a client and a server handle against each other in
// process until the server completes. It returns the first error from
// either side; both handles are complete when it returns.
func Exchange(ctx context.Context, client, server Handle) error {
	if client.Side() != SideClient || server.Side() != SideServer {
		return fmt.Errorf("sasl: exchange requires a client and a server handle, got %s and %s", client.Side(), server.Side())
	}
	defer func() {
		if !client.IsComplete() {
			client.Dispose()
		}
		if !server.IsComplete() {
			server.Dispose()
		}
	}()

	var response []byte
	if client.HasInitialResponse() {
		ir, err := client.InitialResponse(ctx)
		if err != nil {
			return err
		}
		response = ir
		if response == nil {
			response = []byte{}
		}
	}

	for round := 0; round < MaxExchangeRounds; round++ {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindAuthenticationFailed, Mechanism: server.Mechanism(), Op: OpEvaluateResponse, Err: err}
		}

		challenge, err := server.EvaluateResponse(ctx, response)
		if err != nil {
			return err
		}

		if server.IsComplete() {
			return deliverOutcome(ctx, client, challenge)
		}

		if client.IsComplete() {
			server.Dispose()
			return &Error{Kind: KindAuthenticationFailed, Mechanism: client.Mechanism(), Op: OpEvaluateChallenge,
				Err: errors.New("server challenged a completed client")}
		}

		response, err = client.EvaluateChallenge(ctx, challenge)
		if err != nil {
			return err
		}
		if response == nil {
			response = []byte{}
		}
	}

	return &Error{Kind: KindAuthenticationFailed, Mechanism: server.Mechanism(), Op: OpEvaluateResponse,
		Err: fmt.Errorf("exchange exceeded %d rounds", MaxExchangeRounds)}
}

// deliverOutcome hands the server's success data to the client.
func deliverOutcome(ctx context.Context, client Handle, data []byte) error {
	if client.IsComplete() {
		if len(data) > 0 {
			return &Error{Kind: KindAuthenticationFailed, Mechanism: client.Mechanism(), Op: OpEvaluateChallenge,
				Err: errors.New("additional data sent to a completed client")}
		}
		return nil
	}
	if _, err := client.EvaluateChallenge(ctx, data); err != nil {
		return err
	}
	if !client.IsComplete() {
		client.Dispose()
		return &Error{Kind: KindAuthenticationFailed, Mechanism: client.Mechanism(), Op: OpEvaluateChallenge,
			Err: errors.New("client did not complete after server success")}
	}
	return nil
}
