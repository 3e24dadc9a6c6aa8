package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"autopublish/internal/fileutil"
	"autopublish/internal/queue"
)

// Local writes articles as JSON files. It is safe for use by one process at
// a time; the daemon lock guarantees that.
type Local struct {
	dir     string
	siteURL string
	now     func() time.Time
}

// NewLocal stores articles under dir and builds URLs from siteURL.
func NewLocal(dir, siteURL string) *Local {
	return &Local{
		dir:     dir,
		siteURL: strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		now:     time.Now,
	}
}

type localRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Article     Article   `json:"article"`
}

// Publish writes one article file and returns its reference.
func (l *Local) Publish(ctx context.Context, c *queue.Candidate, draft bool) (queue.PublishedRef, error) {
	if err := ctx.Err(); err != nil {
		return queue.PublishedRef{}, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return queue.PublishedRef{}, fmt.Errorf("create publish directory: %w", err)
	}

	id := uuid.NewString()
	article := NewArticle(c, draft)
	url := ""
	if l.siteURL != "" {
		url = fmt.Sprintf("%s/%s-%s", l.siteURL, article.Slug, id[:8])
	}
	rec := localRecord{ID: id, URL: url, PublishedAt: l.now().UTC(), Article: article}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return queue.PublishedRef{}, fmt.Errorf("encode article: %w", err)
	}
	if err := fileutil.WriteFileAtomic(l.path(id), data, 0o644); err != nil {
		return queue.PublishedRef{}, fmt.Errorf("write article: %w", err)
	}

	return queue.PublishedRef{
		ID:        id,
		URL:       url,
		Title:     article.Title,
		Draft:     draft,
		CreatedAt: rec.PublishedAt,
	}, nil
}

// Unpublish removes the article file. A missing file is not an error.
func (l *Local) Unpublish(_ context.Context, ref queue.PublishedRef) error {
	if strings.TrimSpace(ref.ID) == "" {
		return errors.New("unpublish: empty reference")
	}
	if err := os.Remove(l.path(ref.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove article %s: %w", ref.ID, err)
	}
	return nil
}

func (l *Local) path(id string) string {
	return filepath.Join(l.dir, filepath.Base(id)+".json")
}
