package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autopublish/internal/logging"
	"autopublish/internal/queue"
	"autopublish/internal/textutil"
)

// Lookup is the read side of the store the detector consults.
type Lookup interface {
	PublishedBySourceRef(ctx context.Context, sourceRef string) (*queue.PublishedRef, error)
	PublishedEntitySince(ctx context.Context, makeName, model, trim string, since time.Time) (*queue.PublishedRef, error)
	PendingEntityConflict(ctx context.Context, c *queue.Candidate, filter queue.RivalFilter) (bool, error)
}

// Kind names the check that matched.
type Kind string

const (
	KindNone        Kind = ""
	KindExactSource Kind = "exact_source"
	KindCooldown    Kind = "entity_cooldown"
	KindQueue       Kind = "queue_collision"
)

// Verdict is the detector's answer for one candidate.
type Verdict struct {
	Kind   Kind
	Reason string
	// ExistingRef is the published item that matched, when there is one.
	ExistingRef string
}

// Duplicate reports whether any check matched.
func (v Verdict) Duplicate() bool {
	return v.Kind != KindNone
}

// Policy carries the per-cycle inputs of the checks. Rivals limits the queue
// collision check to pending candidates that could actually be promoted.
type Policy struct {
	Cooldown time.Duration
	Now      time.Time
	Rivals   queue.RivalFilter
}

// Detector runs the duplicate checks against a Lookup.
type Detector struct {
	lookup Lookup
	logger *slog.Logger
}

// NewDetector builds a detector. A nil logger discards output.
func NewDetector(lookup Lookup, logger *slog.Logger) *Detector {
	return &Detector{
		lookup: lookup,
		logger: logging.NewComponentLogger(logger, "dedup"),
	}
}

// IsDuplicate reports whether c should be held back and why.
func (d *Detector) IsDuplicate(ctx context.Context, c *queue.Candidate, cooldown time.Duration, now time.Time) (bool, string) {
	v := d.Check(ctx, c, Policy{Cooldown: cooldown, Now: now})
	return v.Duplicate(), v.Reason
}

// Check runs the three checks in order and returns the first match.
func (d *Detector) Check(ctx context.Context, c *queue.Candidate, p Policy) Verdict {
	cooldown, now := p.Cooldown, p.Now
	if c == nil {
		return Verdict{}
	}
	logger := logging.WithContext(ctx, d.logger).With(logging.Int64(logging.FieldCandidateID, c.ID))

	if textutil.IsUnresolved(c.Make) || textutil.IsUnresolved(c.Model) {
		logger.Debug("duplicate checks skipped",
			logging.Args(logging.DecisionAttrs("duplicate", "skipped", "vehicle unresolved")...)...)
		return Verdict{}
	}

	existing, err := d.lookup.PublishedBySourceRef(ctx, c.SourceRef)
	if err != nil {
		d.failOpen(logger, "exact source", err)
	} else if existing != nil {
		return d.matched(logger, Verdict{
			Kind:        KindExactSource,
			Reason:      "already published from this source",
			ExistingRef: existing.ID,
		})
	}

	if cooldown > 0 {
		recent, err := d.lookup.PublishedEntitySince(ctx, c.Make, c.Model, c.Trim, now.Add(-cooldown))
		if err != nil {
			d.failOpen(logger, "entity cooldown", err)
		} else if recent != nil {
			return d.matched(logger, Verdict{
				Kind: KindCooldown,
				Reason: fmt.Sprintf("%s published %s ago, within %s cooldown",
					vehicleLabel(c), now.Sub(recent.CreatedAt).Round(time.Minute), cooldown),
				ExistingRef: recent.ID,
			})
		}
	}

	rivals := p.Rivals
	if rivals.Now.IsZero() {
		rivals.Now = now
	}
	conflict, err := d.lookup.PendingEntityConflict(ctx, c, rivals)
	if err != nil {
		d.failOpen(logger, "queue collision", err)
	} else if conflict {
		return d.matched(logger, Verdict{
			Kind:   KindQueue,
			Reason: fmt.Sprintf("another pending candidate for %s is ahead in the queue", vehicleLabel(c)),
		})
	}

	return Verdict{}
}

func (d *Detector) matched(logger *slog.Logger, v Verdict) Verdict {
	attrs := logging.DecisionAttrs("duplicate", string(v.Kind), v.Reason)
	if v.ExistingRef != "" {
		attrs = append(attrs, logging.String("existing_ref", v.ExistingRef))
	}
	logger.Info("duplicate detected", logging.Args(attrs...)...)
	return v
}

func (d *Detector) failOpen(logger *slog.Logger, check string, err error) {
	logging.WarnWithContext(logger, "duplicate lookup failed; not blocking", "dedup_lookup_failed",
		logging.String("check", check),
		logging.Error(err),
		logging.String(logging.FieldImpact, "candidate may be published despite a possible duplicate"),
		logging.String(logging.FieldErrorHint, "check database health with 'autopublish queue health'"),
	)
}

func vehicleLabel(c *queue.Candidate) string {
	label := textutil.DisplayName(c.Make) + " " + textutil.DisplayName(c.Model)
	if !textutil.IsUnresolved(c.Trim) {
		label += " " + textutil.DisplayName(c.Trim)
	}
	return label
}
