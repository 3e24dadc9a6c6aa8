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

// SavePublishedRef records an item the publisher created.
func (s *Store) SavePublishedRef(ctx context.Context, ref PublishedRef) error {
	if strings.TrimSpace(ref.ID) == "" {
		return errors.New("published ref id is required")
	}
	created := ref.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO published_items (
            id, candidate_id, source_ref, make, model, trim_level, make_key, model_key, trim_key,
            title, url, is_draft, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID,
		ref.CandidateID,
		ref.SourceRef,
		nullableString(ref.Make),
		nullableString(ref.Model),
		nullableString(ref.Trim),
		textutil.EntityKey(ref.Make),
		textutil.EntityKey(ref.Model),
		textutil.EntityKey(ref.Trim),
		ref.Title,
		nullableString(ref.URL),
		boolToInt(ref.Draft),
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("save published ref %s: %w", ref.ID, err)
	}
	return nil
}

// MarkUnpublished stamps a published item as withdrawn. Withdrawn items no
// longer count toward quotas or duplicate checks.
func (s *Store) MarkUnpublished(ctx context.Context, refID string, at time.Time) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE published_items SET unpublished_at = ? WHERE id = ? AND unpublished_at IS NULL`,
		formatTime(at), refID,
	)
	if err != nil {
		return fmt.Errorf("mark %s unpublished: %w", refID, err)
	}
	return nil
}

// PublishedCountSince counts live, non-draft items created at or after since.
func (s *Store) PublishedCountSince(ctx context.Context, since time.Time) (int, error) {
	query, args, err := sq.Select("COUNT(1)").From("published_items").
		Where(sq.Eq{"is_draft": 0, "unpublished_at": nil}).
		Where(sq.GtOrEq{"created_at": formatTime(since)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.queryRowWithRetry(ctx, func(row *sql.Row) error { return row.Scan(&count) }, query, args...); err != nil {
		return 0, fmt.Errorf("count published since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

// PublishedBySourceRef returns the live item created from sourceRef, drafts
// included, or nil when none exists.
func (s *Store) PublishedBySourceRef(ctx context.Context, sourceRef string) (*PublishedRef, error) {
	builder := sq.Select(publishedColumns...).From("published_items").
		Where(sq.Eq{"source_ref": strings.TrimSpace(sourceRef), "unpublished_at": nil}).
		OrderBy("created_at DESC").Limit(1)
	return s.queryOnePublished(ctx, builder)
}

// PublishedEntitySince returns the newest live item for the same make and
// model created at or after since. A non-empty trim narrows the match.
func (s *Store) PublishedEntitySince(ctx context.Context, makeName, model, trim string, since time.Time) (*PublishedRef, error) {
	makeKey, modelKey := textutil.EntityKey(makeName), textutil.EntityKey(model)
	if makeKey == "" || modelKey == "" {
		return nil, nil
	}
	builder := sq.Select(publishedColumns...).From("published_items").
		Where(sq.Eq{"make_key": makeKey, "model_key": modelKey, "unpublished_at": nil}).
		Where(sq.GtOrEq{"created_at": formatTime(since)}).
		OrderBy("created_at DESC").Limit(1)
	if trimKey := textutil.EntityKey(trim); trimKey != "" {
		builder = builder.Where(sq.Eq{"trim_key": trimKey})
	}
	return s.queryOnePublished(ctx, builder)
}

// ListPublished returns the most recent published items.
func (s *Store) ListPublished(ctx context.Context, limit int) ([]*PublishedRef, error) {
	builder := sq.Select(publishedColumns...).From("published_items").OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.queryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()
	var out []*PublishedRef
	for rows.Next() {
		ref, err := scanPublished(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *Store) queryOnePublished(ctx context.Context, builder sq.SelectBuilder) (*PublishedRef, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var ref *PublishedRef
	err = s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		ref, scanErr = scanPublished(row)
		return scanErr
	}, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("published lookup: %w", err)
	}
	return ref, nil
}
