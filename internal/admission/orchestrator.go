package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autopublish/internal/dedup"
	"autopublish/internal/logging"
	"autopublish/internal/queue"
	"autopublish/internal/services"
)

// Reasons returned for cycles that stop before evaluating candidates.
const (
	ReasonDisabled       = "auto-publish disabled"
	ReasonAlreadyRunning = "cycle already running"
	ReasonNoCandidates   = "no eligible candidates"
)

// Dependencies are the ports a cycle runs against. Images, Hooks and
// Observer are optional.
type Dependencies struct {
	Candidates CandidateStore
	Settings   SettingsStore
	Published  PublishedStore
	Duplicates DuplicateChecker
	Publisher  Publisher
	Images     ImageAttacher
	Decisions  DecisionSink
	Hooks      []PostPublishHook
	Observer   CycleObserver
}

// Options tune time handling. Zero values use the local zone, time.Now and
// random UUIDs.
type Options struct {
	Location   *time.Location
	Now        func() time.Time
	NewCycleID func() string
}

// Orchestrator runs publish cycles. Cycles on one Orchestrator never
// overlap; a second call while one is running returns immediately.
type Orchestrator struct {
	deps      Dependencies
	loc       *time.Location
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	decisions *DecisionLogger
	limiter   *RateLimiter
	gate      SafetyGate

	mu sync.Mutex
}

// NewOrchestrator validates deps and builds an orchestrator.
func NewOrchestrator(deps Dependencies, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	var missing []string
	if deps.Candidates == nil {
		missing = append(missing, "candidates")
	}
	if deps.Settings == nil {
		missing = append(missing, "settings")
	}
	if deps.Published == nil {
		missing = append(missing, "published")
	}
	if deps.Duplicates == nil {
		missing = append(missing, "duplicates")
	}
	if deps.Publisher == nil {
		missing = append(missing, "publisher")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("orchestrator missing dependencies: %s", strings.Join(missing, ", "))
	}

	o := &Orchestrator{
		deps:   deps,
		loc:    opts.Location,
		now:    opts.Now,
		newID:  opts.NewCycleID,
		logger: logging.NewComponentLogger(logger, "orchestrator"),
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	o.decisions = NewDecisionLogger(deps.Decisions, logger, o.now)
	o.limiter = NewRateLimiter(deps.Published)
	return o, nil
}

// RunCycle evaluates the queue once and publishes up to the remaining quota.
func (o *Orchestrator) RunCycle(ctx context.Context) (summary Summary) {
	if !o.mu.TryLock() {
		return Summary{Reason: ReasonAlreadyRunning}
	}
	defer o.mu.Unlock()

	start := o.now()
	summary = Summary{CycleID: o.newID(), StartedAt: start}
	ctx = services.WithCycleID(ctx, summary.CycleID)
	logger := logging.WithContext(ctx, o.logger)

	defer func() {
		summary.Duration = o.now().Sub(start)
		logger.Info("cycle finished",
			logging.String(logging.FieldEventType, "cycle_complete"),
			logging.String("reason", summary.Reason),
			logging.Int("published", summary.Published),
			logging.Int("drafted", summary.Drafted),
			logging.Int("skipped", summary.Skipped),
			logging.Int("failed", summary.Failed),
			logging.Duration("cycle_duration", summary.Duration),
		)
		if o.deps.Observer != nil {
			o.deps.Observer.CycleFinished(ctx, summary)
		}
	}()

	settings, err := o.loadSettings(ctx, start)
	if err != nil {
		logging.ErrorWithContext(logger, "settings unavailable", "config_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database path and run 'autopublish settings show'"),
		)
		summary.Reason = "config load failed: " + err.Error()
		summary.Err = err.Error()
		return summary
	}
	if !settings.Enabled {
		summary.Reason = ReasonDisabled
		return summary
	}

	quota, reason, err := o.limiter.RemainingQuota(ctx, settings, start)
	if err != nil {
		logging.ErrorWithContext(logger, "quota check failed", "quota_check_failed", logging.Error(err))
		summary.Reason = "quota check failed: " + err.Error()
		summary.Err = err.Error()
		return summary
	}
	summary.Quota = quota
	if quota == 0 {
		logger.Info("no publish quota left",
			logging.Args(logging.DecisionAttrs("quota", "exhausted", reason)...)...)
		summary.Reason = reason
		return summary
	}

	candidates, err := o.deps.Candidates.EligibleCandidates(ctx, settings.MinQuality, settings.MaxAttempts)
	if err != nil {
		logging.ErrorWithContext(logger, "candidate query failed", "candidate_query_failed", logging.Error(err))
		summary.Reason = "candidate query failed: " + err.Error()
		summary.Err = err.Error()
		return summary
	}

	breaker := NewCircuitBreaker(o.deps.Candidates, settings.BackoffSchedule())
	orderer := NewOrderer(breaker)
	for _, c := range orderer.MissingImage(candidates, settings, start) {
		o.decisions.Log(ctx, summary.CycleID, c, queue.DecisionSkippedNoImage, "image required and auto-attach disabled", "")
		summary.Skipped++
	}

	ranked := orderer.Rank(candidates, settings, start)
	if len(ranked) == 0 && summary.Skipped == 0 {
		summary.Reason = ReasonNoCandidates
		return summary
	}
	logger.Info("cycle ranked candidates",
		logging.Int("quota", quota),
		logging.Int("pending", len(candidates)),
		logging.Int("ranked", len(ranked)),
	)

	run := &cycleRun{
		o:        o,
		settings: settings,
		breaker:  breaker,
		cycleID:  summary.CycleID,
		rivals: queue.RivalFilter{
			MinQuality:        settings.MinQuality,
			MaxAttempts:       settings.MaxAttempts,
			Backoff:           breaker.Schedule(),
			RequireSafeSource: settings.RequireSafeSource,
			RequireImage:      settings.RequiresExistingImage(),
			Now:               start,
		},
	}
	// Blocked candidates do not use quota; keep walking until quota
	// candidates reached the publisher.
	for _, c := range ranked {
		if summary.Selected >= quota {
			break
		}
		if ctx.Err() != nil {
			logger.Info("cycle interrupted", logging.Error(ctx.Err()))
			break
		}
		outcome, stop := run.process(ctx, c)
		summary.tally(outcome)
		if outcome.Kind == Attempted {
			summary.Selected++
		}
		if stop {
			summary.DailyCapReached = true
			break
		}
	}

	summary.finish()
	return summary
}

func (o *Orchestrator) loadSettings(ctx context.Context, now time.Time) (queue.Settings, error) {
	day := now.In(o.loc).Format("2006-01-02")
	if _, err := o.deps.Settings.RollDailyCounter(ctx, day); err != nil {
		return queue.Settings{}, err
	}
	return o.deps.Settings.LoadSettings(ctx)
}

// cycleRun holds the state shared by every candidate of one cycle.
type cycleRun struct {
	o        *Orchestrator
	settings queue.Settings
	breaker  *CircuitBreaker
	cycleID  string
	rivals   queue.RivalFilter
}

// attemptState tracks how far one candidate got, so a panic can be
// attributed correctly.
type attemptState struct {
	ref      *queue.PublishedRef
	saved    bool
	recorded bool
	result   AttemptResult
	decision queue.Decision
}

// process handles one candidate. stop is true when the shared daily
// counter reached the cap and the cycle must end.
func (r *cycleRun) process(ctx context.Context, c *queue.Candidate) (outcome Outcome, stop bool) {
	ctx = services.WithCandidateID(ctx, c.ID)
	logger := logging.WithContext(ctx, r.o.logger).With(logging.String("title", c.Title))

	state := &attemptState{}
	defer func() {
		if rec := recover(); rec != nil {
			outcome, stop = r.recovered(ctx, logger, c, state, rec), false
		}
	}()

	if outcome, blocked := r.gate(ctx, logger, c); blocked {
		r.o.decisions.Log(ctx, r.cycleID, c, outcome.Decision, outcome.Reason, "")
		return outcome, false
	}

	return r.attempt(ctx, logger, c, state)
}

// recovered handles a panic in process. Before the publisher returned the
// candidate is simply failed. After it returned the item may be live, so
// the ref is recorded (the exact-source check then holds the candidate
// back) and the attempt counts against the breaker. Once the status change
// is stored the publish stands.
func (r *cycleRun) recovered(ctx context.Context, logger *slog.Logger, c *queue.Candidate, state *attemptState, rec any) Outcome {
	reason := fmt.Sprintf("internal error: %v", rec)
	logging.ErrorWithContext(logger, "candidate handling panicked", "candidate_panic",
		logging.String("panic", fmt.Sprint(rec)),
		logging.Bool("publisher_returned", state.ref != nil),
		logging.Alert("panic"),
	)
	if state.ref == nil {
		r.o.decisions.Log(ctx, r.cycleID, c, queue.DecisionFailed, reason, "")
		return AttemptedOutcome(ResultFailed, "", reason)
	}

	ref := *state.ref
	if state.recorded {
		r.o.decisions.Log(ctx, r.cycleID, c, state.decision, reason, ref.ID)
		return AttemptedOutcome(state.result, ref.ID, reason)
	}
	if !state.saved {
		if err := r.o.deps.Published.SavePublishedRef(ctx, ref); err != nil {
			logger.Error("could not record item published before panic",
				logging.String("published_ref", ref.ID), logging.Error(err))
		}
	}
	attempts, status, err := r.breaker.RecordFailure(ctx, c, errors.New(reason), r.settings.MaxAttempts, r.o.now())
	if err != nil {
		logger.Error("could not count attempt after panic", logging.Error(err))
	} else if status == queue.StatusAutoFailed && r.o.deps.Observer != nil {
		r.o.deps.Observer.CandidateAutoFailed(ctx, c, attempts, reason)
	}
	r.o.decisions.Log(ctx, r.cycleID, c, queue.DecisionFailed, reason, ref.ID)
	return AttemptedOutcome(ResultFailed, ref.ID, reason)
}

func (r *cycleRun) gate(ctx context.Context, logger *slog.Logger, c *queue.Candidate) (Outcome, bool) {
	gate := r.o.gate
	if !gate.IsSafeToPublish(c, r.settings.RequireSafeSource) {
		reason := gate.BlockReason(c)
		logger.Info("candidate blocked", logging.Args(logging.DecisionAttrs("safety", "blocked", reason)...)...)
		return BlockedOutcome(queue.DecisionSkippedSafety, reason), true
	}

	verdict := r.o.deps.Duplicates.Check(ctx, c, dedup.Policy{
		Cooldown: r.settings.Cooldown(),
		Now:      r.o.now(),
		Rivals:   r.rivals,
	})
	if verdict.Duplicate() {
		logger.Info("candidate blocked", logging.Args(logging.DecisionAttrs("duplicate", string(verdict.Kind), verdict.Reason)...)...)
		if verdict.Kind == dedup.KindExactSource && r.settings.FlagExactDuplicates {
			if err := r.o.deps.Candidates.FlagForReview(ctx, c.ID, verdict.Reason); err != nil {
				logging.WarnWithContext(logger, "could not flag duplicate for review", "review_flag_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "duplicate will be re-evaluated next cycle"),
				)
			}
		}
		return BlockedOutcome(queue.DecisionSkippedDuplicate, verdict.Reason), true
	}

	return EligibleOutcome(), false
}

func (r *cycleRun) attempt(ctx context.Context, logger *slog.Logger, c *queue.Candidate, state *attemptState) (Outcome, bool) {
	draft := r.settings.DraftMode
	ref, err := r.o.deps.Publisher.Publish(ctx, c, draft)
	if err == nil && strings.TrimSpace(ref.ID) == "" {
		err = services.Wrap(services.ErrEmptyResult, "publisher", "publish", "publisher returned no reference", nil)
	}
	if err != nil {
		return r.fail(ctx, logger, c, err), false
	}

	ref = r.completeRef(ref, c, draft)
	state.ref = &ref
	if err := r.o.deps.Published.SavePublishedRef(ctx, ref); err != nil {
		logging.ErrorWithContext(logger, "published item not recorded", "published_ref_save_failed",
			logging.String("published_ref", ref.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "hourly quota and duplicate checks will miss this item"),
		)
	} else {
		state.saved = true
	}

	if reverted, outcome := r.enrich(ctx, logger, c, ref); reverted {
		state.ref = nil
		return outcome, false
	}

	status, result, decision := queue.StatusPublished, ResultPublished, queue.DecisionPublished
	if draft {
		status, result, decision = queue.StatusDrafted, ResultDrafted, queue.DecisionDrafted
	}
	if err := r.breaker.RecordSuccess(ctx, c, status, ref.ID); err != nil {
		logging.ErrorWithContext(logger, "candidate status not updated after publish", "record_success_failed",
			logging.String("published_ref", ref.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the exact-source duplicate check will hold it back next cycle"),
		)
	} else {
		state.recorded, state.result, state.decision = true, result, decision
	}

	stop := false
	if !draft {
		count, err := r.o.deps.Settings.IncrementPublishedToday(ctx)
		if err != nil {
			logging.ErrorWithContext(logger, "daily counter not incremented", "counter_increment_failed", logging.Error(err))
		} else if r.settings.DailyCap > 0 && count >= r.settings.DailyCap {
			logger.Info("daily cap reached",
				logging.Args(logging.DecisionAttrs("quota", "exhausted", fmt.Sprintf("daily limit reached (%d/%d)", count, r.settings.DailyCap))...)...)
			stop = true
		}
	}

	r.runHooks(ctx, logger, c, ref)

	logger.Info("candidate published",
		logging.String(logging.FieldEventType, "candidate_"+string(result)),
		logging.String("published_ref", ref.ID),
		logging.String("url", ref.URL),
		logging.Bool("draft", draft),
	)
	r.o.decisions.Log(ctx, r.cycleID, c, decision, "", ref.ID)
	return AttemptedOutcome(result, ref.ID, ""), stop
}

func (r *cycleRun) fail(ctx context.Context, logger *slog.Logger, c *queue.Candidate, cause error) Outcome {
	now := r.o.now()
	reason := cause.Error()
	attempts, status, err := r.breaker.RecordFailure(ctx, c, cause, r.settings.MaxAttempts, now)
	attrs := []logging.Attr{
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.ErrorHint(cause)),
		logging.Bool("retryable", services.IsRetryable(cause)),
	}
	if err != nil {
		attrs = append(attrs, logging.String("record_failure_error", err.Error()))
	} else {
		attrs = append(attrs,
			logging.Int("attempts", attempts),
			logging.String("status", string(status)),
			logging.Duration("retry_after", BackoffFor(r.settings.BackoffSchedule(), attempts)),
		)
	}
	logging.ErrorWithContext(logger, "publish failed", "publish_failed", attrs...)

	if err == nil && status == queue.StatusAutoFailed && r.o.deps.Observer != nil {
		r.o.deps.Observer.CandidateAutoFailed(ctx, c, attempts, reason)
	}
	r.o.decisions.Log(ctx, r.cycleID, c, queue.DecisionFailed, reason, "")
	return AttemptedOutcome(ResultFailed, "", reason)
}

func (r *cycleRun) completeRef(ref queue.PublishedRef, c *queue.Candidate, draft bool) queue.PublishedRef {
	ref.CandidateID = c.ID
	if ref.SourceRef == "" {
		ref.SourceRef = c.SourceRef
	}
	if ref.Make == "" && ref.Model == "" {
		ref.Make, ref.Model, ref.Trim = c.Make, c.Model, c.Trim
	}
	if ref.Title == "" {
		ref.Title = c.Title
	}
	ref.Draft = draft
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = r.o.now()
	}
	return ref
}

// enrich attaches an image when one is missing. It reports reverted when
// the failure policy withdrew the item.
func (r *cycleRun) enrich(ctx context.Context, logger *slog.Logger, c *queue.Candidate, ref queue.PublishedRef) (bool, Outcome) {
	if c.HasImage() || !r.settings.AutoAttachImage || r.o.deps.Images == nil {
		return false, Outcome{}
	}

	attached, method, err := r.o.deps.Images.AttachImage(ctx, ref, HintFor(c))
	if err == nil && attached {
		logger.Info("image attached", logging.String("published_ref", ref.ID), logging.String("method", method))
		return false, Outcome{}
	}
	if err == nil {
		err = errors.New("no usable image found")
	}

	if !r.settings.RequireImage || !r.settings.UnpublishOnImageFailure {
		logging.WarnWithContext(logger, "image enrichment failed; keeping item live", "image_attach_failed",
			logging.String("published_ref", ref.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "item is live without an image"),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
		return false, Outcome{}
	}

	reason := "image enrichment failed: " + err.Error()
	logging.WarnWithContext(logger, "image enrichment failed; withdrawing item", "image_attach_failed",
		logging.String("published_ref", ref.ID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "item unpublished and candidate returned to the queue"),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
	)
	if uerr := r.o.deps.Publisher.Unpublish(ctx, ref); uerr != nil {
		logging.ErrorWithContext(logger, "unpublish failed", "unpublish_failed",
			logging.String("published_ref", ref.ID),
			logging.Error(uerr),
			logging.String(logging.FieldErrorHint, "withdraw the item manually on the site"),
		)
	}
	if merr := r.o.deps.Published.MarkUnpublished(ctx, ref.ID, r.o.now()); merr != nil {
		logger.Error("could not mark item unpublished", logging.String("published_ref", ref.ID), logging.Error(merr))
	}
	if rerr := r.o.deps.Candidates.RevertToPending(ctx, c.ID, reason); rerr != nil {
		logger.Error("could not revert candidate", logging.Error(rerr))
	}
	// Not a publish failure: attempt_count and last_attempt_at stay as they were.
	r.o.decisions.Log(ctx, r.cycleID, c, queue.DecisionSkippedNoImage, reason, ref.ID)
	return true, AttemptedOutcome(ResultReverted, "", reason)
}

func (r *cycleRun) runHooks(ctx context.Context, logger *slog.Logger, c *queue.Candidate, ref queue.PublishedRef) {
	for _, hook := range r.o.deps.Hooks {
		if hook == nil {
			continue
		}
		if err := safeHook(ctx, hook, c, ref); err != nil {
			logging.WarnWithContext(logger, "post-publish hook failed", "post_publish_hook_failed",
				logging.String("hook", fmt.Sprintf("%T", hook)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "publish kept; follow-up action skipped"),
			)
		}
	}
}

func safeHook(ctx context.Context, hook PostPublishHook, c *queue.Candidate, ref queue.PublishedRef) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panicked: %v", rec)
		}
	}()
	return hook.AfterPublish(ctx, c, ref)
}
