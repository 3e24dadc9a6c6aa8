package admission_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autopublish/internal/admission"
	"autopublish/internal/queue"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestSafetyGate(t *testing.T) {
	var gate admission.SafetyGate
	cases := []struct {
		label       queue.TrustLabel
		requireSafe bool
		want        bool
	}{
		{queue.TrustSafe, true, true},
		{queue.TrustReview, true, true},
		{queue.TrustUnsafe, true, false},
		{queue.TrustUnsafe, false, true},
		{queue.TrustReview, false, true},
	}
	for _, tc := range cases {
		c := &queue.Candidate{Trust: queue.SourceTrust{Label: tc.label}}
		if got := gate.IsSafeToPublish(c, tc.requireSafe); got != tc.want {
			t.Errorf("label=%s requireSafe=%v: got %v want %v", tc.label, tc.requireSafe, got, tc.want)
		}
	}
	reason := gate.BlockReason(&queue.Candidate{SourceKind: queue.SourceVideo, Trust: queue.SourceTrust{Label: queue.TrustUnsafe}})
	if !strings.Contains(reason, "unsafe") {
		t.Fatalf("block reason should name the label, got %q", reason)
	}
}

func TestBackoffFor(t *testing.T) {
	schedule := []time.Duration{30 * time.Minute, 2 * time.Hour}
	cases := map[int]time.Duration{0: 0, 1: 30 * time.Minute, 2: 2 * time.Hour, 3: 2 * time.Hour, 9: 2 * time.Hour}
	for attempts, want := range cases {
		if got := admission.BackoffFor(schedule, attempts); got != want {
			t.Errorf("attempts=%d: got %v want %v", attempts, got, want)
		}
	}
	if got := admission.BackoffFor(nil, 2); got != 2*time.Hour {
		t.Errorf("empty schedule should use defaults, got %v", got)
	}
}

func TestCircuitBreakerBackoffWindow(t *testing.T) {
	breaker := admission.NewCircuitBreaker(nil, []time.Duration{30 * time.Minute, 2 * time.Hour})
	last := fixedNow

	fresh := &queue.Candidate{}
	if breaker.IsBackedOff(fresh, fixedNow) {
		t.Fatal("candidate with no attempts must not be backed off")
	}

	once := &queue.Candidate{AttemptCount: 1, LastAttemptAt: &last}
	if !breaker.IsBackedOff(once, last.Add(29*time.Minute)) {
		t.Fatal("expected backoff 29 minutes after first failure")
	}
	if breaker.IsBackedOff(once, last.Add(30*time.Minute)) {
		t.Fatal("backoff must end exactly at last attempt + 30m")
	}

	twice := &queue.Candidate{AttemptCount: 2, LastAttemptAt: &last}
	if !breaker.IsBackedOff(twice, last.Add(119*time.Minute)) {
		t.Fatal("expected backoff inside the 2h window")
	}
	if breaker.IsBackedOff(twice, last.Add(2*time.Hour)) {
		t.Fatal("backoff must end at last attempt + 2h")
	}
}

type countStore struct {
	count int
	err   error
	since time.Time
}

func (s *countStore) PublishedCountSince(_ context.Context, since time.Time) (int, error) {
	s.since = since
	return s.count, s.err
}

func (s *countStore) SavePublishedRef(context.Context, queue.PublishedRef) error { return nil }

func (s *countStore) MarkUnpublished(context.Context, string, time.Time) error { return nil }

func TestRemainingQuota(t *testing.T) {
	cases := []struct {
		name       string
		hourly     int
		daily      int
		today      int
		recent     int
		want       int
		wantReason string
	}{
		{"hourly smaller", 2, 10, 0, 1, 1, ""},
		{"daily smaller", 5, 10, 8, 0, 2, ""},
		{"daily exhausted", 5, 10, 10, 0, 0, "daily limit"},
		{"daily checked first", 5, 10, 12, 9, 0, "daily limit"},
		{"hourly exhausted", 2, 10, 3, 2, 0, "hourly limit"},
		{"hourly over", 2, 10, 3, 4, 0, "hourly limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &countStore{count: tc.recent}
			limiter := admission.NewRateLimiter(store)
			settings := queue.Settings{HourlyCap: tc.hourly, DailyCap: tc.daily, PublishedToday: tc.today}
			got, reason, err := limiter.RemainingQuota(context.Background(), settings, fixedNow)
			if err != nil {
				t.Fatalf("RemainingQuota: %v", err)
			}
			if got != tc.want {
				t.Fatalf("quota = %d, want %d", got, tc.want)
			}
			if tc.wantReason == "" && reason != "" {
				t.Fatalf("unexpected reason %q", reason)
			}
			if !strings.Contains(reason, tc.wantReason) {
				t.Fatalf("reason %q does not contain %q", reason, tc.wantReason)
			}
		})
	}
}

func TestRemainingQuotaUsesTrailingHour(t *testing.T) {
	store := &countStore{}
	limiter := admission.NewRateLimiter(store)
	if _, _, err := limiter.RemainingQuota(context.Background(), queue.Settings{HourlyCap: 1, DailyCap: 1}, fixedNow); err != nil {
		t.Fatalf("RemainingQuota: %v", err)
	}
	if !store.since.Equal(fixedNow.Add(-time.Hour)) {
		t.Fatalf("window start = %v", store.since)
	}

	store.err = errors.New("disk I/O error")
	if _, _, err := limiter.RemainingQuota(context.Background(), queue.Settings{HourlyCap: 1, DailyCap: 1}, fixedNow); err == nil {
		t.Fatal("expected count error to surface")
	}
}

func TestSelectEligibleOrdering(t *testing.T) {
	breaker := admission.NewCircuitBreaker(nil, []time.Duration{30 * time.Minute})
	orderer := admission.NewOrderer(breaker)
	longAgo := fixedNow.Add(-5 * time.Hour)
	recentFail := fixedNow.Add(-10 * time.Minute)

	mk := func(id int64, quality float64, attempts int, created time.Duration) *queue.Candidate {
		c := &queue.Candidate{ID: id, Status: queue.StatusPending, QualityScore: quality, AttemptCount: attempts, CreatedAt: fixedNow.Add(-created)}
		if attempts > 0 {
			c.LastAttemptAt = &longAgo
		}
		return c
	}
	candidates := []*queue.Candidate{
		mk(1, 8, 1, 10*time.Hour),
		mk(2, 9, 0, 1*time.Hour),
		mk(3, 8, 0, 3*time.Hour),
		mk(4, 8, 0, 2*time.Hour),
		mk(5, 6, 0, 9*time.Hour),
		mk(6, 10, 3, 9*time.Hour),
		{ID: 7, Status: queue.StatusPending, QualityScore: 10, AttemptCount: 1, LastAttemptAt: &recentFail},
		mk(8, 8, 0, 3*time.Hour),
	}
	settings := queue.Settings{MinQuality: 7, MaxAttempts: 3}

	got := orderer.SelectEligible(candidates, settings, 10, fixedNow)
	want := []int64{2, 3, 8, 4, 1}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %d want %d", i, got[i].ID, id)
		}
	}

	truncated := orderer.SelectEligible(candidates, settings, 2, fixedNow)
	if len(truncated) != 2 || truncated[0].ID != 2 || truncated[1].ID != 3 {
		t.Fatalf("unexpected truncation: %v", truncated)
	}
	if none := orderer.SelectEligible(candidates, settings, 0, fixedNow); len(none) != 0 {
		t.Fatalf("zero quota must select nothing, got %d", len(none))
	}
}

func TestImageRequirementPartitions(t *testing.T) {
	orderer := admission.NewOrderer(admission.NewCircuitBreaker(nil, nil))
	with := &queue.Candidate{ID: 1, Status: queue.StatusPending, QualityScore: 9, ImageURL: "https://img/1.jpg"}
	without := &queue.Candidate{ID: 2, Status: queue.StatusPending, QualityScore: 9}
	low := &queue.Candidate{ID: 3, Status: queue.StatusPending, QualityScore: 2}
	all := []*queue.Candidate{with, without, low}

	strict := queue.Settings{MinQuality: 7, MaxAttempts: 3, RequireImage: true}
	if got := orderer.SelectEligible(all, strict, 5, fixedNow); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("require_image should exclude imageless candidates, got %v", got)
	}
	if missing := orderer.MissingImage(all, strict, fixedNow); len(missing) != 1 || missing[0].ID != 2 {
		t.Fatalf("expected only the imageless candidate above threshold, got %v", missing)
	}

	attach := strict
	attach.AutoAttachImage = true
	if got := orderer.SelectEligible(all, attach, 5, fixedNow); len(got) != 2 {
		t.Fatalf("auto-attach should admit imageless candidates, got %v", got)
	}
	if missing := orderer.MissingImage(all, attach, fixedNow); len(missing) != 0 {
		t.Fatalf("nothing is missing an image when auto-attach is on, got %v", missing)
	}
}

type recordingSink struct {
	records []queue.DecisionRecord
	err     error
}

func (s *recordingSink) AppendDecision(_ context.Context, rec queue.DecisionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestDecisionLoggerSnapshotsCandidate(t *testing.T) {
	sink := &recordingSink{}
	log := admission.NewDecisionLogger(sink, nil, func() time.Time { return fixedNow })
	c := &queue.Candidate{ID: 4, Title: "Ioniq 5 N", QualityScore: 8.2, Tags: []string{"ev"}, Trust: queue.SourceTrust{Label: queue.TrustReview}}

	log.Log(context.Background(), "cycle-a", c, queue.DecisionPublished, "", "ref-4")
	c.Title = "changed later"

	if len(sink.records) != 1 {
		t.Fatalf("expected one record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.CycleID != "cycle-a" || rec.PublishedRef != "ref-4" || !rec.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Snapshot.Title != "Ioniq 5 N" || rec.Snapshot.TrustLabel != queue.TrustReview {
		t.Fatalf("snapshot not frozen: %+v", rec.Snapshot)
	}
}

func TestDecisionLoggerSwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("database is locked")}
	log := admission.NewDecisionLogger(sink, nil, nil)
	// Must not panic or propagate.
	log.Log(context.Background(), "cycle-b", &queue.Candidate{ID: 1}, queue.DecisionFailed, "boom", "")
}
