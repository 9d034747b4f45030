package models

// OutcomeKind classifies how one dispatch attempt ended. The queue is the
// only component that turns an outcome into a status transition.
type OutcomeKind string

const (
	// OutcomeConfirmed: the pump settled against a round.
	OutcomeConfirmed OutcomeKind = "confirmed"
	// OutcomeRetryable: a transient failure before any round mutation
	// committed; safe to re-queue up to the retry budget.
	OutcomeRetryable OutcomeKind = "retryable"
	// OutcomeRejected: a deterministic validation failure; retrying the
	// same input can never succeed.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeFatal: a broken invariant was observed; the request fails
	// terminally and the condition is alerted, never retried.
	OutcomeFatal OutcomeKind = "fatal"
)

// ProcessOutcome is the dispatcher's verdict for one drained request.
type ProcessOutcome struct {
	Kind            OutcomeKind
	Err             string // human-readable, surfaced only for terminal statuses
	BackendRef      string
	DeliveryWarning bool
	Pump            *PumpOutcome
}
