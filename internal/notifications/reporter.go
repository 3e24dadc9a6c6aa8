package notifications

import (
	"context"
	"log/slog"

	"autopublish/internal/admission"
	"autopublish/internal/logging"
	"autopublish/internal/queue"
)

// Reporter turns orchestrator callbacks into notifications. Delivery
// failures are logged and never reach the cycle.
type Reporter struct {
	svc    Service
	logger *slog.Logger
}

// NewReporter wraps svc. A nil svc behaves like the no-op service.
func NewReporter(svc Service, logger *slog.Logger) *Reporter {
	if svc == nil {
		svc = noopService{}
	}
	return &Reporter{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

// AfterPublish announces a published or drafted item.
func (r *Reporter) AfterPublish(ctx context.Context, c *queue.Candidate, ref queue.PublishedRef) error {
	event := EventPublished
	if ref.Draft {
		event = EventDrafted
	}
	return r.svc.Publish(ctx, event, Payload{
		"title":       c.Label(),
		"url":         ref.URL,
		"candidateID": c.ID,
		"ref":         ref.ID,
	})
}

// CandidateAutoFailed reports a candidate the breaker has given up on.
func (r *Reporter) CandidateAutoFailed(ctx context.Context, c *queue.Candidate, attempts int, lastError string) {
	r.deliver(ctx, EventAutoFailed, Payload{
		"title":       c.Label(),
		"candidateID": c.ID,
		"attempts":    attempts,
		"error":       lastError,
	})
}

// CycleFinished sends an error for aborted cycles and a summary for cycles
// that changed something. Idle cycles stay quiet.
func (r *Reporter) CycleFinished(ctx context.Context, summary admission.Summary) {
	if summary.Err != "" {
		r.deliver(ctx, EventError, Payload{"context": "admission cycle", "error": summary.Err})
		return
	}
	if summary.Published+summary.Drafted+summary.Failed == 0 && !summary.DailyCapReached {
		return
	}
	r.deliver(ctx, EventCycleSummary, Payload{
		"cycleID":         summary.CycleID,
		"published":       summary.Published,
		"drafted":         summary.Drafted,
		"skipped":         summary.Skipped,
		"failed":          summary.Failed,
		"dailyCapReached": summary.DailyCapReached,
	})
}

func (r *Reporter) deliver(ctx context.Context, event Event, payload Payload) {
	if err := r.svc.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
