package admission

import (
	"context"
	"time"

	"autopublish/internal/dedup"
	"autopublish/internal/queue"
)

// CandidateStore reads and transitions queued candidates.
type CandidateStore interface {
	EligibleCandidates(ctx context.Context, minQuality float64, maxAttempts int) ([]*queue.Candidate, error)
	RecordSuccess(ctx context.Context, id int64, status queue.Status, ref string) error
	RecordFailure(ctx context.Context, id int64, message string, maxAttempts int, at time.Time) (int, queue.Status, error)
	RevertToPending(ctx context.Context, id int64, note string) error
	FlagForReview(ctx context.Context, id int64, reason string) error
}

// SettingsStore owns the versioned settings record and the daily counter.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (queue.Settings, error)
	// IncrementPublishedToday must increment and read back in one atomic
	// statement.
	IncrementPublishedToday(ctx context.Context) (int, error)
	RollDailyCounter(ctx context.Context, day string) (bool, error)
}

// PublishedStore tracks items the publisher created.
type PublishedStore interface {
	PublishedCountSince(ctx context.Context, since time.Time) (int, error)
	SavePublishedRef(ctx context.Context, ref queue.PublishedRef) error
	MarkUnpublished(ctx context.Context, refID string, at time.Time) error
}

// DuplicateChecker is satisfied by *dedup.Detector.
type DuplicateChecker interface {
	Check(ctx context.Context, c *queue.Candidate, p dedup.Policy) dedup.Verdict
}

// Publisher creates and withdraws items on the live site.
type Publisher interface {
	Publish(ctx context.Context, c *queue.Candidate, draft bool) (queue.PublishedRef, error)
	Unpublish(ctx context.Context, ref queue.PublishedRef) error
}

// ImageHint describes the vehicle an image is wanted for.
type ImageHint struct {
	Title       string
	Make        string
	Model       string
	Trim        string
	ImagePolicy string
}

// HintFor builds the enrichment hint for c.
func HintFor(c *queue.Candidate) ImageHint {
	return ImageHint{
		Title:       c.Title,
		Make:        c.Make,
		Model:       c.Model,
		Trim:        c.Trim,
		ImagePolicy: c.Trust.ImagePolicy,
	}
}

// ImageAttacher adds an image to a published item. attached is false when
// the service ran but found nothing usable.
type ImageAttacher interface {
	AttachImage(ctx context.Context, ref queue.PublishedRef, hint ImageHint) (attached bool, method string, err error)
}

// DecisionSink receives append-only decision records.
type DecisionSink interface {
	AppendDecision(ctx context.Context, rec queue.DecisionRecord) error
}

// PostPublishHook runs after a candidate is published or drafted. Errors are
// logged and never undo the publish.
type PostPublishHook interface {
	AfterPublish(ctx context.Context, c *queue.Candidate, ref queue.PublishedRef) error
}

// CycleObserver is told about cycle-level events worth surfacing to an
// operator.
type CycleObserver interface {
	CandidateAutoFailed(ctx context.Context, c *queue.Candidate, attempts int, lastError string)
	CycleFinished(ctx context.Context, summary Summary)
}
