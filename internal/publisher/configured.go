package publisher

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"autopublish/internal/config"
	"autopublish/internal/queue"
)

// Service is the surface the admission cycle needs.
type Service interface {
	Publish(ctx context.Context, c *queue.Candidate, draft bool) (queue.PublishedRef, error)
	Unpublish(ctx context.Context, ref queue.PublishedRef) error
}

// NewConfigured returns the backend selected by cfg.Publisher.Mode.
func NewConfigured(cfg *config.Config) (Service, error) {
	switch cfg.Publisher.Mode {
	case config.PublisherModeHTTP:
		timeout := time.Duration(cfg.Publisher.TimeoutSeconds) * time.Second
		return NewHTTP(cfg.Publisher.Endpoint, cfg.Publisher.APIKey, &http.Client{Timeout: timeout}), nil
	case config.PublisherModeLocal, "":
		return NewLocal(LocalDir(cfg), cfg.Publisher.SiteURL), nil
	default:
		return nil, fmt.Errorf("unknown publisher mode %q", cfg.Publisher.Mode)
	}
}

// LocalDir is where the local backend writes articles.
func LocalDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "published")
}
