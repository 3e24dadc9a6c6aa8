package admission

import (
	"fmt"

	"autopublish/internal/queue"
)

// SafetyGate applies the source-trust policy.
type SafetyGate struct{}

// IsSafeToPublish reports whether c may go live. With requireSafe off the
// gate never blocks; with it on only unsafe sources are blocked and review
// sources pass.
func (SafetyGate) IsSafeToPublish(c *queue.Candidate, requireSafe bool) bool {
	if !requireSafe {
		return true
	}
	return c.Trust.Label != queue.TrustUnsafe
}

// BlockReason explains a rejection for the decision record.
func (SafetyGate) BlockReason(c *queue.Candidate) string {
	return fmt.Sprintf("source trust %q is not publishable (%s)", c.Trust.Label, c.SourceKind)
}
