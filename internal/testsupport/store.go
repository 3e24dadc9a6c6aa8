package testsupport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"autopublish/internal/config"
	"autopublish/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var sourceSeq atomic.Int64

// CandidateOption adjusts a candidate before NewCandidate inserts it.
type CandidateOption func(*queue.Candidate)

// WithEntity sets make, model and trim.
func WithEntity(makeName, model, trim string) CandidateOption {
	return func(c *queue.Candidate) {
		c.Make, c.Model, c.Trim = makeName, model, trim
	}
}

// WithTrust sets the trust label.
func WithTrust(label queue.TrustLabel) CandidateOption {
	return func(c *queue.Candidate) {
		c.Trust.Label = label
	}
}

// WithImage sets the candidate image URL.
func WithImage(url string) CandidateOption {
	return func(c *queue.Candidate) {
		c.ImageURL = url
	}
}

// WithSourceRef overrides the generated source reference.
func WithSourceRef(ref string) CandidateOption {
	return func(c *queue.Candidate) {
		c.SourceRef = ref
	}
}

// WithCreatedAt pins the creation timestamp.
func WithCreatedAt(at time.Time) CandidateOption {
	return func(c *queue.Candidate) {
		c.CreatedAt = at
	}
}

// NewCandidate inserts a safe pending candidate with a unique source
// reference and the given quality.
func NewCandidate(t testing.TB, store *queue.Store, title string, quality float64, opts ...CandidateOption) *queue.Candidate {
	t.Helper()

	c := &queue.Candidate{
		Title:        title,
		SourceKind:   queue.SourceVideo,
		SourceRef:    fmt.Sprintf("video-%d", sourceSeq.Add(1)),
		QualityScore: quality,
		Trust:        queue.SourceTrust{Label: queue.TrustSafe},
	}
	for _, opt := range opts {
		opt(c)
	}
	created, err := store.NewCandidate(context.Background(), c)
	if err != nil {
		t.Fatalf("store.NewCandidate: %v", err)
	}
	return created
}
