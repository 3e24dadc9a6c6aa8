package admission

import (
	"cmp"
	"slices"
	"time"

	"autopublish/internal/queue"
)

// Orderer filters and ranks candidates for one cycle.
type Orderer struct {
	breaker *CircuitBreaker
}

// NewOrderer builds an orderer that consults breaker for backoff.
func NewOrderer(breaker *CircuitBreaker) *Orderer {
	return &Orderer{breaker: breaker}
}

// SelectEligible returns at most quota candidates that pass the prefilter,
// ordered by attempts ascending, quality descending, then age.
func (o *Orderer) SelectEligible(candidates []*queue.Candidate, settings queue.Settings, quota int, now time.Time) []*queue.Candidate {
	if quota <= 0 {
		return nil
	}
	ranked := o.Rank(candidates, settings, now)
	if len(ranked) > quota {
		ranked = ranked[:quota]
	}
	return ranked
}

// Rank returns every candidate that passes the prefilter in selection
// order. A cycle walks this list so that candidates a gate blocks do not
// use up quota ahead of ones behind them.
func (o *Orderer) Rank(candidates []*queue.Candidate, settings queue.Settings, now time.Time) []*queue.Candidate {
	ranked := make([]*queue.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if o.passesBase(c, settings, now) && imageSatisfied(c, settings) {
			ranked = append(ranked, c)
		}
	}
	slices.SortStableFunc(ranked, compareCandidates)
	return ranked
}

// MissingImage returns the candidates held back only because they lack an
// image that nothing will attach, in selection order.
func (o *Orderer) MissingImage(candidates []*queue.Candidate, settings queue.Settings, now time.Time) []*queue.Candidate {
	var blocked []*queue.Candidate
	for _, c := range candidates {
		if o.passesBase(c, settings, now) && !imageSatisfied(c, settings) {
			blocked = append(blocked, c)
		}
	}
	slices.SortStableFunc(blocked, compareCandidates)
	return blocked
}

func (o *Orderer) passesBase(c *queue.Candidate, settings queue.Settings, now time.Time) bool {
	if c == nil || c.Status != queue.StatusPending || c.NeedsReview {
		return false
	}
	if c.QualityScore < settings.MinQuality {
		return false
	}
	if settings.MaxAttempts > 0 && c.AttemptCount >= settings.MaxAttempts {
		return false
	}
	return !o.breaker.IsBackedOff(c, now)
}

func imageSatisfied(c *queue.Candidate, settings queue.Settings) bool {
	return c.HasImage() || !settings.RequiresExistingImage()
}

func compareCandidates(a, b *queue.Candidate) int {
	if n := cmp.Compare(a.AttemptCount, b.AttemptCount); n != 0 {
		return n
	}
	if n := cmp.Compare(b.QualityScore, a.QualityScore); n != 0 {
		return n
	}
	if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
		return n
	}
	return cmp.Compare(a.ID, b.ID)
}
