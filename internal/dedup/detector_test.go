package dedup_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autopublish/internal/dedup"
	"autopublish/internal/queue"
	"autopublish/internal/testsupport"
)

type stubLookup struct {
	bySource      *queue.PublishedRef
	byEntity      *queue.PublishedRef
	conflict      bool
	sourceErr     error
	entityErr     error
	conflictErr   error
	entityCalls   int
	sourceCalls   int
	conflictCalls int
	lastSince     time.Time
}

func (s *stubLookup) PublishedBySourceRef(context.Context, string) (*queue.PublishedRef, error) {
	s.sourceCalls++
	return s.bySource, s.sourceErr
}

func (s *stubLookup) PublishedEntitySince(_ context.Context, _, _, _ string, since time.Time) (*queue.PublishedRef, error) {
	s.entityCalls++
	s.lastSince = since
	return s.byEntity, s.entityErr
}

func (s *stubLookup) PendingEntityConflict(context.Context, *queue.Candidate, queue.RivalFilter) (bool, error) {
	s.conflictCalls++
	return s.conflict, s.conflictErr
}

var now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func candidate(makeName, model string) *queue.Candidate {
	return &queue.Candidate{ID: 7, Title: "t", SourceRef: "video-7", Make: makeName, Model: model, CreatedAt: now.Add(-time.Hour)}
}

func TestExactSourceBlocks(t *testing.T) {
	lookup := &stubLookup{bySource: &queue.PublishedRef{ID: "ref-1"}}
	d := dedup.NewDetector(lookup, nil)

	v := d.Check(context.Background(), candidate("Toyota", "Supra"), dedup.Policy{Cooldown: 72 * time.Hour, Now: now})
	if v.Kind != dedup.KindExactSource || v.ExistingRef != "ref-1" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if lookup.entityCalls != 0 || lookup.conflictCalls != 0 {
		t.Fatal("later checks must not run after an exact match")
	}
}

func TestCooldownWindowUsesNowMinusCooldown(t *testing.T) {
	lookup := &stubLookup{byEntity: &queue.PublishedRef{ID: "ref-2", CreatedAt: now.Add(-24 * time.Hour)}}
	d := dedup.NewDetector(lookup, nil)

	dup, reason := d.IsDuplicate(context.Background(), candidate("Toyota", "Supra"), 72*time.Hour, now)
	if !dup || !strings.Contains(reason, "cooldown") {
		t.Fatalf("expected cooldown block, got %v %q", dup, reason)
	}
	if !lookup.lastSince.Equal(now.Add(-72 * time.Hour)) {
		t.Fatalf("unexpected since %v", lookup.lastSince)
	}
}

func TestQueueCollisionBlocks(t *testing.T) {
	d := dedup.NewDetector(&stubLookup{conflict: true}, nil)
	v := d.Check(context.Background(), candidate("Toyota", "Supra"), dedup.Policy{Cooldown: 72 * time.Hour, Now: now})
	if v.Kind != dedup.KindQueue {
		t.Fatalf("expected queue collision, got %+v", v)
	}
}

func TestUnresolvedVehicleSkipsAllChecks(t *testing.T) {
	for _, tc := range []struct{ makeName, model string }{
		{"", "Supra"},
		{"Toyota", "  "},
		{"UNKNOWN", "Supra"},
		{"Toyota", "Not Specified"},
		{"n/a", "none"},
	} {
		lookup := &stubLookup{bySource: &queue.PublishedRef{ID: "ref"}, conflict: true}
		d := dedup.NewDetector(lookup, nil)
		if v := d.Check(context.Background(), candidate(tc.makeName, tc.model), dedup.Policy{Cooldown: 72 * time.Hour, Now: now}); v.Duplicate() {
			t.Errorf("%q/%q: expected no block, got %+v", tc.makeName, tc.model, v)
		}
		if lookup.sourceCalls+lookup.entityCalls+lookup.conflictCalls != 0 {
			t.Errorf("%q/%q: expected no lookups", tc.makeName, tc.model)
		}
	}
}

func TestLookupErrorsFailOpen(t *testing.T) {
	boom := errors.New("database is locked")
	lookup := &stubLookup{sourceErr: boom, entityErr: boom, conflictErr: boom}
	d := dedup.NewDetector(lookup, nil)

	if dup, _ := d.IsDuplicate(context.Background(), candidate("Toyota", "Supra"), 72*time.Hour, now); dup {
		t.Fatal("lookup failures must not block")
	}
	if lookup.sourceCalls != 1 || lookup.entityCalls != 1 || lookup.conflictCalls != 1 {
		t.Fatalf("every check should still be attempted: %+v", lookup)
	}
}

func TestDetectorAgainstStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	d := dedup.NewDetector(store, nil)

	published := testsupport.NewCandidate(t, store, "Supra first drive", 9,
		testsupport.WithEntity("Toyota", "GR Supra", "3.0"),
		testsupport.WithCreatedAt(now.Add(-4*24*time.Hour)))
	if err := store.SavePublishedRef(ctx, queue.PublishedRef{
		ID: "live-supra", CandidateID: published.ID, SourceRef: published.SourceRef,
		Make: "Toyota", Model: "GR Supra", Trim: "3.0", Title: published.Title,
		CreatedAt: now.Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("SavePublishedRef: %v", err)
	}
	if err := store.RecordSuccess(ctx, published.ID, queue.StatusPublished, "live-supra"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	sameTrim := testsupport.NewCandidate(t, store, "Supra again", 9,
		testsupport.WithEntity("toyota", "gr supra", "3.0"))
	if v := d.Check(ctx, sameTrim, dedup.Policy{Cooldown: 72 * time.Hour, Now: now}); v.Kind != dedup.KindCooldown {
		t.Fatalf("expected cooldown for same trim, got %+v", v)
	}
	if v := d.Check(ctx, sameTrim, dedup.Policy{Cooldown: 24 * time.Hour, Now: now}); v.Duplicate() {
		t.Fatalf("expected clear outside a 24h cooldown, got %+v", v)
	}

	otherTrim := testsupport.NewCandidate(t, store, "Supra 2.0", 9,
		testsupport.WithEntity("Toyota", "GR Supra", "2.0"))
	if v := d.Check(ctx, otherTrim, dedup.Policy{Cooldown: 72 * time.Hour, Now: now}); v.Kind != dedup.KindQueue {
		t.Fatalf("different trim should pass cooldown but collide with older pending, got %+v", v)
	}

	resent := testsupport.NewCandidate(t, store, "Supra repost", 9,
		testsupport.WithEntity("Toyota", "GR Supra", ""),
		testsupport.WithSourceRef(published.SourceRef))
	if v := d.Check(ctx, resent, dedup.Policy{Cooldown: 72 * time.Hour, Now: now}); v.Kind != dedup.KindExactSource {
		t.Fatalf("expected exact source match, got %+v", v)
	}
}

func TestQueueCollisionOnlyCountsPromotableRivals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := dedup.NewDetector(store, nil)
	ctx := context.Background()

	teaser := testsupport.NewCandidate(t, store, "Civic teaser", 4,
		testsupport.WithEntity("Honda", "Civic", ""), testsupport.WithCreatedAt(now.Add(-72*time.Hour)))
	review := testsupport.NewCandidate(t, store, "Civic review", 9,
		testsupport.WithEntity("Honda", "Civic", ""), testsupport.WithCreatedAt(now.Add(-time.Hour)))

	policy := dedup.Policy{Cooldown: 72 * time.Hour, Now: now, Rivals: queue.RivalFilter{MinQuality: 7, MaxAttempts: 3}}
	if v := d.Check(ctx, review, policy); v.Duplicate() {
		t.Fatalf("rival below the quality floor must not block, got %+v", v)
	}

	// Without a floor both are promotable and the higher quality one goes
	// first regardless of age.
	policy.Rivals.MinQuality = 0
	if v := d.Check(ctx, review, policy); v.Duplicate() {
		t.Fatalf("higher quality candidate should not yield, got %+v", v)
	}
	if v := d.Check(ctx, teaser, policy); v.Kind != dedup.KindQueue {
		t.Fatalf("teaser should yield to the review, got %+v", v)
	}
}
