package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var candidateColumns = []string{
	"id", "title", "source_kind", "source_ref", "make", "model", "trim_level",
	"quality_score", "specs_json", "tags_json", "category", "image_url",
	"trust_label", "image_policy", "status", "attempt_count", "last_attempt_at",
	"last_error", "note", "needs_review", "review_reason", "published_ref",
	"created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(scanner rowScanner) (*Candidate, error) {
	var (
		c            Candidate
		sourceKind   string
		makeName     sql.NullString
		model        sql.NullString
		trim         sql.NullString
		specs        sql.NullString
		tags         sql.NullString
		category     sql.NullString
		imageURL     sql.NullString
		trustLabel   string
		imagePolicy  sql.NullString
		status       string
		lastAttempt  sql.NullString
		lastError    sql.NullString
		note         sql.NullString
		needsReview  int64
		reviewReason sql.NullString
		publishedRef sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&c.ID, &c.Title, &sourceKind, &c.SourceRef, &makeName, &model, &trim,
		&c.QualityScore, &specs, &tags, &category, &imageURL,
		&trustLabel, &imagePolicy, &status, &c.AttemptCount, &lastAttempt,
		&lastError, &note, &needsReview, &reviewReason, &publishedRef,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	c.SourceKind = SourceKind(sourceKind)
	c.Make = makeName.String
	c.Model = model.String
	c.Trim = trim.String
	c.SpecsJSON = specs.String
	c.Tags = decodeTags(tags.String)
	c.Category = category.String
	c.ImageURL = imageURL.String
	c.Trust = SourceTrust{Label: TrustLabel(trustLabel), ImagePolicy: imagePolicy.String}
	c.Status = Status(status)
	c.LastError = lastError.String
	c.Note = note.String
	c.NeedsReview = needsReview != 0
	c.ReviewReason = reviewReason.String
	c.PublishedRef = publishedRef.String
	c.LastAttemptAt = parseNullableTime(lastAttempt)
	if created, err := parseTimeString(createdRaw); err == nil {
		c.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		c.UpdatedAt = updated
	}
	return &c, nil
}

var publishedColumns = []string{
	"id", "candidate_id", "source_ref", "make", "model", "trim_level", "title",
	"url", "is_draft", "created_at", "unpublished_at",
}

func scanPublished(scanner rowScanner) (*PublishedRef, error) {
	var (
		ref         PublishedRef
		makeName    sql.NullString
		model       sql.NullString
		trim        sql.NullString
		url         sql.NullString
		isDraft     int64
		createdRaw  string
		unpublished sql.NullString
	)
	if err := scanner.Scan(
		&ref.ID, &ref.CandidateID, &ref.SourceRef, &makeName, &model, &trim,
		&ref.Title, &url, &isDraft, &createdRaw, &unpublished,
	); err != nil {
		return nil, err
	}
	ref.Make = makeName.String
	ref.Model = model.String
	ref.Trim = trim.String
	ref.URL = url.String
	ref.Draft = isDraft != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		ref.CreatedAt = created
	}
	ref.UnpublishedAt = parseNullableTime(unpublished)
	return &ref, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
