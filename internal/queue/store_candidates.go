package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"autopublish/internal/textutil"
)

// ErrNotPending is returned when a state change targets a candidate that has
// already left the pending state.
var ErrNotPending = errors.New("candidate is not pending")

// CandidateFilter narrows ListCandidates.
type CandidateFilter struct {
	Statuses    []Status
	NeedsReview *bool
	SourceRef   string
	Limit       int
}

// NewCandidate inserts a pending candidate. CreatedAt defaults to now.
func (s *Store) NewCandidate(ctx context.Context, c *Candidate) (*Candidate, error) {
	if c == nil {
		return nil, errors.New("candidate is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return nil, errors.New("candidate title is required")
	}
	if strings.TrimSpace(c.SourceRef) == "" {
		return nil, errors.New("candidate source reference is required")
	}
	if c.QualityScore < 0 || c.QualityScore > 10 {
		return nil, fmt.Errorf("quality score %.2f outside 0-10", c.QualityScore)
	}

	now := time.Now().UTC()
	created := c.CreatedAt
	if created.IsZero() {
		created = now
	}
	kind := c.SourceKind
	if kind == "" {
		kind = SourceVideo
	}
	label := c.Trust.Label
	if label == "" {
		label = TrustReview
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO candidates (
            title, source_kind, source_ref, make, model, trim_level, make_key, model_key,
            quality_score, specs_json, tags_json, category, image_url, trust_label, image_policy,
            status, attempt_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		strings.TrimSpace(c.Title),
		string(kind),
		strings.TrimSpace(c.SourceRef),
		nullableString(strings.TrimSpace(c.Make)),
		nullableString(strings.TrimSpace(c.Model)),
		nullableString(strings.TrimSpace(c.Trim)),
		textutil.EntityKey(c.Make),
		textutil.EntityKey(c.Model),
		c.QualityScore,
		nullableString(c.SpecsJSON),
		encodeTags(c.Tags),
		nullableString(c.Category),
		nullableString(strings.TrimSpace(c.ImageURL)),
		string(label),
		nullableString(c.Trust.ImagePolicy),
		StatusPending,
		formatTime(created),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("candidate id: %w", err)
	}
	return s.GetCandidate(ctx, id)
}

// GetCandidate fetches a candidate by ID. It returns nil, nil when absent.
func (s *Store) GetCandidate(ctx context.Context, id int64) (*Candidate, error) {
	query, args, err := sq.Select(candidateColumns...).From("candidates").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var c *Candidate
	err = s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		c, scanErr = scanCandidate(row)
		return scanErr
	}, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}
	return c, nil
}

// ListCandidates returns candidates matching filter, newest first.
func (s *Store) ListCandidates(ctx context.Context, filter CandidateFilter) ([]*Candidate, error) {
	builder := sq.Select(candidateColumns...).From("candidates").OrderBy("created_at DESC", "id DESC")
	if len(filter.Statuses) > 0 {
		values := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			values = append(values, string(status))
		}
		builder = builder.Where(sq.Eq{"status": values})
	}
	if filter.NeedsReview != nil {
		builder = builder.Where(sq.Eq{"needs_review": boolToInt(*filter.NeedsReview)})
	}
	if ref := strings.TrimSpace(filter.SourceRef); ref != "" {
		builder = builder.Where(sq.Eq{"source_ref": ref})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	return s.queryCandidates(ctx, builder)
}

// EligibleCandidates returns pending, unflagged candidates at or above
// minQuality that are still below the attempt cap. Ordering is left to the
// caller.
func (s *Store) EligibleCandidates(ctx context.Context, minQuality float64, maxAttempts int) ([]*Candidate, error) {
	builder := sq.Select(candidateColumns...).From("candidates").
		Where(sq.Eq{"status": string(StatusPending), "needs_review": 0}).
		Where(sq.GtOrEq{"quality_score": minQuality}).
		Where(sq.Lt{"attempt_count": maxAttempts}).
		OrderBy("id")
	return s.queryCandidates(ctx, builder)
}

func (s *Store) queryCandidates(ctx context.Context, builder sq.SelectBuilder) ([]*Candidate, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	rows, err := s.queryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordSuccess moves a pending candidate to published or drafted and
// clears its last error.
func (s *Store) RecordSuccess(ctx context.Context, id int64, status Status, ref string) error {
	if status != StatusPublished && status != StatusDrafted {
		return fmt.Errorf("record success: invalid status %q", status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE candidates SET status = ?, published_ref = ?, last_error = NULL, note = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		status, nullableString(ref), formatTime(time.Now()), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("record success for candidate %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

// RecordFailure counts one failed publish attempt in a single statement and
// flips the candidate to auto_failed when the count reaches maxAttempts. It
// returns the new attempt count and status.
func (s *Store) RecordFailure(ctx context.Context, id int64, message string, maxAttempts int, at time.Time) (int, Status, error) {
	var (
		attempts int
		status   string
	)
	stamp := formatTime(at)
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&attempts, &status)
	},
		`UPDATE candidates SET
            attempt_count = attempt_count + 1,
            last_attempt_at = ?,
            last_error = ?,
            status = CASE WHEN attempt_count + 1 >= ? THEN ? ELSE status END,
            updated_at = ?
         WHERE id = ? AND status = ?
         RETURNING attempt_count, status`,
		stamp, nullableString(message), maxAttempts, StatusAutoFailed, stamp, id, StatusPending,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("record failure for candidate %d: %w", id, ErrNotPending)
	}
	if err != nil {
		return 0, "", fmt.Errorf("record failure for candidate %d: %w", id, err)
	}
	return attempts, Status(status), nil
}

// RevertToPending undoes a publish whose enrichment failed. The attempt
// count is left untouched.
func (s *Store) RevertToPending(ctx context.Context, id int64, note string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE candidates SET status = ?, published_ref = NULL, note = ?, updated_at = ?
         WHERE id = ?`,
		StatusPending, nullableString(note), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("revert candidate %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

// FlagForReview removes a pending candidate from automatic selection until
// an operator clears the flag.
func (s *Store) FlagForReview(ctx context.Context, id int64, reason string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE candidates SET needs_review = 1, review_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nullableString(reason), formatTime(time.Now()), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("flag candidate %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

// ClearReview clears the review flag on the given candidates, or on all
// flagged candidates when ids is empty.
func (s *Store) ClearReview(ctx context.Context, ids ...int64) (int64, error) {
	builder := sq.Update("candidates").
		Set("needs_review", 0).
		Set("review_reason", nil).
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"needs_review": 1})
	if len(ids) > 0 {
		builder = builder.Where(sq.Eq{"id": ids})
	}
	return s.execUpdate(ctx, builder)
}

// RetryAutoFailed returns auto_failed candidates to pending with a fresh
// attempt budget. This is the manual override for the circuit breaker.
func (s *Store) RetryAutoFailed(ctx context.Context, ids ...int64) (int64, error) {
	builder := sq.Update("candidates").
		Set("status", string(StatusPending)).
		Set("attempt_count", 0).
		Set("last_attempt_at", nil).
		Set("last_error", nil).
		Set("note", "manually retried").
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"status": string(StatusAutoFailed)})
	if len(ids) > 0 {
		builder = builder.Where(sq.Eq{"id": ids})
	}
	return s.execUpdate(ctx, builder)
}

// RivalFilter describes which pending candidates a cycle could actually
// promote. Only those can hold another candidate back as a queue collision.
type RivalFilter struct {
	MinQuality  float64
	MaxAttempts int
	// Backoff is the retry schedule; attempts past its end reuse the last
	// step. A rival still inside its window is not a rival.
	Backoff           []time.Duration
	RequireSafeSource bool
	RequireImage      bool
	Now               time.Time
}

// PendingEntityConflict reports whether another promotable pending
// candidate for the same make and model ranks ahead of c. Rank follows
// selection order: fewer attempts, then higher quality, then older, then
// lower id.
func (s *Store) PendingEntityConflict(ctx context.Context, c *Candidate, filter RivalFilter) (bool, error) {
	if c == nil {
		return false, nil
	}
	makeKey, modelKey := textutil.EntityKey(c.Make), textutil.EntityKey(c.Model)
	if makeKey == "" || modelKey == "" {
		return false, nil
	}
	created := formatTime(c.CreatedAt)
	builder := sq.Select("1").From("candidates").
		Where(sq.Eq{"status": string(StatusPending), "make_key": makeKey, "model_key": modelKey, "needs_review": 0}).
		Where(sq.NotEq{"id": c.ID}).
		Where(sq.GtOrEq{"quality_score": filter.MinQuality}).
		Where(sq.Or{
			sq.Lt{"attempt_count": c.AttemptCount},
			sq.And{sq.Eq{"attempt_count": c.AttemptCount}, sq.Gt{"quality_score": c.QualityScore}},
			sq.And{sq.Eq{"attempt_count": c.AttemptCount}, sq.Eq{"quality_score": c.QualityScore}, sq.Lt{"created_at": created}},
			sq.And{sq.Eq{"attempt_count": c.AttemptCount}, sq.Eq{"quality_score": c.QualityScore}, sq.Eq{"created_at": created}, sq.Lt{"id": c.ID}},
		}).
		Where(`NOT EXISTS (SELECT 1 FROM published_items p
            WHERE p.source_ref = candidates.source_ref AND p.unpublished_at IS NULL)`).
		Limit(1)
	if filter.MaxAttempts > 0 {
		builder = builder.Where(sq.Lt{"attempt_count": filter.MaxAttempts})
	}
	if filter.RequireSafeSource {
		builder = builder.Where(sq.NotEq{"trust_label": string(TrustUnsafe)})
	}
	if filter.RequireImage {
		builder = builder.Where("COALESCE(image_url, '') <> ''")
	}
	if ready, ok := backoffElapsed(filter); ok {
		builder = builder.Where(ready)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.queryRowWithRetry(ctx, func(row *sql.Row) error { return row.Scan(&one) }, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pending entity lookup: %w", err)
	}
	return true, nil
}

// backoffElapsed matches rows whose last failure is older than the backoff
// step for their attempt count.
func backoffElapsed(filter RivalFilter) (sq.Sqlizer, bool) {
	if len(filter.Backoff) == 0 || filter.Now.IsZero() {
		return nil, false
	}
	last := len(filter.Backoff) - 1
	lastCutoff := formatTime(filter.Now.Add(-filter.Backoff[last]))
	var elapsed sq.Sqlizer = sq.LtOrEq{"last_attempt_at": lastCutoff}
	if last > 0 {
		var (
			expr strings.Builder
			args []any
		)
		expr.WriteString("last_attempt_at <= CASE attempt_count")
		for i, step := range filter.Backoff[:last] {
			expr.WriteString(" WHEN ? THEN ?")
			args = append(args, i+1, formatTime(filter.Now.Add(-step)))
		}
		expr.WriteString(" ELSE ? END")
		elapsed = sq.Expr(expr.String(), append(args, lastCutoff)...)
	}
	return sq.Or{
		sq.Eq{"attempt_count": 0},
		sq.Eq{"last_attempt_at": nil},
		elapsed,
	}, true
}

func (s *Store) execUpdate(ctx context.Context, builder sq.UpdateBuilder) (int64, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("candidate %d: %w", id, ErrNotPending)
	}
	return nil
}
