package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var decisionColumns = []string{
	"id", "cycle_id", "candidate_id", "decision", "reason", "published_ref",
	"title", "source_kind", "quality_score", "trust_label", "has_image",
	"attempt_count", "tags_json", "category", "created_at",
}

// DecisionFilter narrows ListDecisions.
type DecisionFilter struct {
	CandidateID int64
	CycleID     string
	Decisions   []Decision
	Since       time.Time
	Limit       int
	// Ascending returns oldest first, which export uses.
	Ascending bool
}

// AppendDecision stores an immutable decision record. An empty ID is filled
// with a random UUID. Updates and deletes are rejected by schema triggers.
func (s *Store) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	if rec.Decision == "" {
		return errors.New("decision tag is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	snap := rec.Snapshot
	_, err := s.execWithRetry(ctx,
		`INSERT INTO decisions (
            id, cycle_id, candidate_id, decision, reason, published_ref, title, source_kind,
            quality_score, trust_label, has_image, attempt_count, tags_json, category, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CycleID,
		rec.CandidateID,
		string(rec.Decision),
		nullableString(rec.Reason),
		nullableString(rec.PublishedRef),
		nullableString(snap.Title),
		nullableString(string(snap.SourceKind)),
		snap.QualityScore,
		nullableString(string(snap.TrustLabel)),
		boolToInt(snap.HasImage),
		snap.AttemptCount,
		encodeTags(snap.Tags),
		nullableString(snap.Category),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// ListDecisions returns decision records matching filter, newest first
// unless filter.Ascending is set.
func (s *Store) ListDecisions(ctx context.Context, filter DecisionFilter) ([]DecisionRecord, error) {
	builder := sq.Select(decisionColumns...).From("decisions")
	if filter.Ascending {
		builder = builder.OrderBy("created_at ASC", "id ASC")
	} else {
		builder = builder.OrderBy("created_at DESC", "id DESC")
	}
	if filter.CandidateID > 0 {
		builder = builder.Where(sq.Eq{"candidate_id": filter.CandidateID})
	}
	if filter.CycleID != "" {
		builder = builder.Where(sq.Eq{"cycle_id": filter.CycleID})
	}
	if len(filter.Decisions) > 0 {
		tags := make([]string, 0, len(filter.Decisions))
		for _, d := range filter.Decisions {
			tags = append(tags, string(d))
		}
		builder = builder.Where(sq.Eq{"decision": tags})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": formatTime(filter.Since)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build decision query: %w", err)
	}
	rows, err := s.queryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDecision(scanner rowScanner) (DecisionRecord, error) {
	var (
		rec        DecisionRecord
		decision   string
		reason     sql.NullString
		ref        sql.NullString
		title      sql.NullString
		kind       sql.NullString
		quality    sql.NullFloat64
		trust      sql.NullString
		hasImage   int64
		tags       sql.NullString
		category   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&rec.ID, &rec.CycleID, &rec.CandidateID, &decision, &reason, &ref,
		&title, &kind, &quality, &trust, &hasImage,
		&rec.Snapshot.AttemptCount, &tags, &category, &createdRaw,
	); err != nil {
		return DecisionRecord{}, err
	}
	rec.Decision = Decision(decision)
	rec.Reason = reason.String
	rec.PublishedRef = ref.String
	rec.Snapshot.Title = title.String
	rec.Snapshot.SourceKind = SourceKind(kind.String)
	rec.Snapshot.QualityScore = quality.Float64
	rec.Snapshot.TrustLabel = TrustLabel(trust.String)
	rec.Snapshot.HasImage = hasImage != 0
	rec.Snapshot.Tags = decodeTags(tags.String)
	rec.Snapshot.Category = category.String
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}
