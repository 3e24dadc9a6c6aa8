package admission

import "autopublish/internal/queue"

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// Eligible means the candidate passed every gate and has not been
	// attempted yet.
	Eligible OutcomeKind = iota
	// Blocked means a gate held the candidate back.
	Blocked
	// Attempted means the publisher was called.
	Attempted
)

func (k OutcomeKind) String() string {
	switch k {
	case Eligible:
		return "eligible"
	case Blocked:
		return "blocked"
	case Attempted:
		return "attempted"
	default:
		return "unknown"
	}
}

// AttemptResult is the result carried by an Attempted outcome.
type AttemptResult string

const (
	ResultPublished AttemptResult = "published"
	ResultDrafted   AttemptResult = "drafted"
	ResultFailed    AttemptResult = "failed"
	ResultReverted  AttemptResult = "reverted"
)

// Outcome is the per-candidate result of one cycle. Only the fields that
// belong to Kind are set: Blocked carries Decision and Reason, Attempted
// carries Result and, on success, Ref.
type Outcome struct {
	Kind     OutcomeKind
	Decision queue.Decision
	Reason   string
	Result   AttemptResult
	Ref      string
}

// EligibleOutcome is the zero-gate result.
func EligibleOutcome() Outcome {
	return Outcome{Kind: Eligible}
}

// BlockedOutcome records a gate rejection.
func BlockedOutcome(decision queue.Decision, reason string) Outcome {
	return Outcome{Kind: Blocked, Decision: decision, Reason: reason}
}

// AttemptedOutcome records a publisher call and its result.
func AttemptedOutcome(result AttemptResult, ref, reason string) Outcome {
	return Outcome{Kind: Attempted, Result: result, Ref: ref, Reason: reason}
}
