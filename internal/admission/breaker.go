package admission

import (
	"context"
	"time"

	"autopublish/internal/queue"
)

// DefaultBackoff is used when the settings record carries no schedule.
var DefaultBackoff = []time.Duration{30 * time.Minute, 2 * time.Hour}

// BackoffFor returns the wait after the given number of failed attempts.
// Attempts beyond the schedule reuse its last step.
func BackoffFor(schedule []time.Duration, attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	if attempts > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempts-1]
}

// CircuitBreaker tracks failed publish attempts per candidate.
type CircuitBreaker struct {
	store    CandidateStore
	schedule []time.Duration
}

// NewCircuitBreaker binds a breaker to a store and a backoff schedule.
func NewCircuitBreaker(store CandidateStore, schedule []time.Duration) *CircuitBreaker {
	return &CircuitBreaker{store: store, schedule: schedule}
}

// Schedule is the effective backoff schedule.
func (b *CircuitBreaker) Schedule() []time.Duration {
	if len(b.schedule) == 0 {
		return DefaultBackoff
	}
	return b.schedule
}

// NextAttemptAt is the earliest time c may be retried. The zero time means
// immediately.
func (b *CircuitBreaker) NextAttemptAt(c *queue.Candidate) time.Time {
	if c.AttemptCount == 0 || c.LastAttemptAt == nil {
		return time.Time{}
	}
	return c.LastAttemptAt.Add(BackoffFor(b.schedule, c.AttemptCount))
}

// IsBackedOff reports whether c is still inside its backoff window.
func (b *CircuitBreaker) IsBackedOff(c *queue.Candidate, now time.Time) bool {
	next := b.NextAttemptAt(c)
	if next.IsZero() {
		return false
	}
	return now.Before(next)
}

// RecordFailure counts one failed attempt. The store flips the candidate to
// auto_failed when the count reaches maxAttempts.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, c *queue.Candidate, cause error, maxAttempts int, now time.Time) (int, queue.Status, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	attempts, status, err := b.store.RecordFailure(ctx, c.ID, message, maxAttempts, now)
	if err != nil {
		return 0, "", err
	}
	c.AttemptCount = attempts
	c.Status = status
	c.LastError = message
	at := now
	c.LastAttemptAt = &at
	return attempts, status, nil
}

// RecordSuccess moves c to its terminal status.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, c *queue.Candidate, status queue.Status, ref string) error {
	if err := b.store.RecordSuccess(ctx, c.ID, status, ref); err != nil {
		return err
	}
	c.Status = status
	c.PublishedRef = ref
	c.LastError = ""
	return nil
}
