package metrics

import "time"

// ExchangeMetrics records negotiation activity.
//
// Pass nil to disable collection. Implementations must accept calls on a
// nil receiver.
type ExchangeMetrics interface {
	// RecordHandleCreated counts a handle created for mechanism on side.
	RecordHandleCreated(mechanism, side string)

	// RecordUnsupported counts a CreateHandle call where no candidate was
	// supported.
	RecordUnsupported(side string)

	// RecordStep records one exchange step and its duration.
	//   - step: initial-response, evaluate-challenge or evaluate-response
	RecordStep(mechanism, side, step string, duration time.Duration)

	// RecordCompletion counts a handle reaching a terminal state.
	//   - outcome: success, failure or disposed
	RecordCompletion(mechanism, side, outcome string)

	// RecordDirectoryLookup counts a credential lookup against a realm.
	//   - result: found, not_found, unavailable or error
	RecordDirectoryLookup(realm, result string, duration time.Duration)
}

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDisposed = "disposed"
)

// Lookup result labels.
const (
	LookupFound       = "found"
	LookupNotFound    = "not_found"
	LookupUnavailable = "unavailable"
	LookupError       = "error"
)
