package admission

import (
	"context"
	"log/slog"
	"time"

	"autopublish/internal/logging"
	"autopublish/internal/queue"
)

// DecisionLogger appends decision records and never fails the caller.
type DecisionLogger struct {
	sink   DecisionSink
	logger *slog.Logger
	now    func() time.Time
}

// NewDecisionLogger wraps sink. A nil clock uses time.Now.
func NewDecisionLogger(sink DecisionSink, logger *slog.Logger, now func() time.Time) *DecisionLogger {
	if now == nil {
		now = time.Now
	}
	return &DecisionLogger{
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "decision-log"),
		now:    now,
	}
}

// Log appends one record for c. Sink errors are logged at warn and dropped.
func (l *DecisionLogger) Log(ctx context.Context, cycleID string, c *queue.Candidate, decision queue.Decision, reason, ref string) {
	rec := queue.DecisionRecord{
		CycleID:      cycleID,
		CandidateID:  c.ID,
		Decision:     decision,
		Reason:       reason,
		PublishedRef: ref,
		Snapshot:     c.Snapshot(),
		CreatedAt:    l.now(),
	}
	logger := logging.WithContext(ctx, l.logger)
	if l.sink == nil {
		return
	}
	if err := l.sink.AppendDecision(ctx, rec); err != nil {
		logging.WarnWithContext(logger, "decision record dropped", "decision_log_failed",
			logging.Int64(logging.FieldCandidateID, c.ID),
			logging.String("decision", string(decision)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "decision missing from training export"),
			logging.String(logging.FieldErrorHint, "check database health with 'autopublish queue health'"),
		)
		return
	}
	logger.Debug("decision recorded",
		logging.Int64(logging.FieldCandidateID, c.ID),
		logging.String("decision", string(decision)),
		logging.String("reason", reason),
	)
}
