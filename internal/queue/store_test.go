package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autopublish/internal/config"
	"autopublish/internal/queue"
	"autopublish/internal/testsupport"
)

func TestOpenSeedsSettingsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAdmission(func(a *config.Admission) {
		a.MinQuality = 8
		a.DailyCap = 4
		a.BackoffMinutes = []int{15, 45, 90}
	}))
	store := testsupport.MustOpenStore(t, cfg)

	settings, err := store.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Version != 1 {
		t.Fatalf("expected version 1, got %d", settings.Version)
	}
	if settings.MinQuality != 8 || settings.DailyCap != 4 || !settings.Enabled {
		t.Fatalf("unexpected seeded settings: %+v", settings)
	}
	if len(settings.BackoffMinutes) != 3 || settings.BackoffMinutes[2] != 90 {
		t.Fatalf("unexpected backoff schedule: %v", settings.BackoffMinutes)
	}
}

func TestReopenKeepsStoredSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.UpdateSettings(ctx, func(s *queue.Settings) error {
		s.HourlyCap = 9
		return nil
	}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	store.Close()

	cfg.Admission.HourlyCap = 1
	reopened := testsupport.MustOpenStore(t, cfg)
	settings, err := reopened.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.HourlyCap != 9 {
		t.Fatalf("expected stored hourly cap 9 to survive reopen, got %d", settings.HourlyCap)
	}
}

func TestNewCandidateRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created, err := store.NewCandidate(ctx, &queue.Candidate{
		Title:        "2025 Honda Civic Type R review",
		SourceKind:   queue.SourcePressRelease,
		SourceRef:    "press-42",
		Make:         "Honda",
		Model:        "Civic",
		Trim:         "Type R",
		QualityScore: 8.5,
		Tags:         []string{"hatchback", "performance"},
		Trust:        queue.SourceTrust{Label: queue.TrustSafe, ImagePolicy: "licensed"},
	})
	if err != nil {
		t.Fatalf("NewCandidate: %v", err)
	}
	if created.ID == 0 || created.Status != queue.StatusPending {
		t.Fatalf("unexpected created candidate: %+v", created)
	}

	fetched, err := store.GetCandidate(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if fetched.Trim != "Type R" || fetched.Trust.Label != queue.TrustSafe || len(fetched.Tags) != 2 {
		t.Fatalf("unexpected fetched candidate: %+v", fetched)
	}

	missing, err := store.GetCandidate(ctx, created.ID+100)
	if err != nil {
		t.Fatalf("GetCandidate missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing candidate, got %+v", missing)
	}
}

func TestNewCandidateValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := map[string]*queue.Candidate{
		"no title":      {SourceRef: "x", QualityScore: 5},
		"no source":     {Title: "t", QualityScore: 5},
		"quality range": {Title: "t", SourceRef: "x", QualityScore: 11},
	}
	for name, c := range cases {
		if _, err := store.NewCandidate(ctx, c); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEligibleCandidatesFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	good := testsupport.NewCandidate(t, store, "good", 8)
	testsupport.NewCandidate(t, store, "low", 5)
	flagged := testsupport.NewCandidate(t, store, "flagged", 9)
	exhausted := testsupport.NewCandidate(t, store, "exhausted", 9)

	if err := store.FlagForReview(ctx, flagged.ID, "exact duplicate"); err != nil {
		t.Fatalf("FlagForReview: %v", err)
	}
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, _, err := store.RecordFailure(ctx, exhausted.ID, "boom", 3, now); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	eligible, err := store.EligibleCandidates(ctx, 7, 3)
	if err != nil {
		t.Fatalf("EligibleCandidates: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != good.ID {
		t.Fatalf("expected only %d eligible, got %+v", good.ID, eligible)
	}
}

func TestRecordFailureFlipsToAutoFailedAtCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	c := testsupport.NewCandidate(t, store, "flaky", 9)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	wantStatus := []queue.Status{queue.StatusPending, queue.StatusPending, queue.StatusAutoFailed}
	for i, want := range wantStatus {
		attempts, status, err := store.RecordFailure(ctx, c.ID, "publisher timeout", 3, now.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i+1, err)
		}
		if attempts != i+1 || status != want {
			t.Fatalf("failure #%d: got attempts=%d status=%s", i+1, attempts, status)
		}
	}

	if _, _, err := store.RecordFailure(ctx, c.ID, "again", 3, now); !errors.Is(err, queue.ErrNotPending) {
		t.Fatalf("expected ErrNotPending after auto_failed, got %v", err)
	}

	fetched, err := store.GetCandidate(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if fetched.LastAttemptAt == nil || !fetched.LastAttemptAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("unexpected last attempt: %v", fetched.LastAttemptAt)
	}
	if fetched.LastError != "publisher timeout" {
		t.Fatalf("unexpected last error %q", fetched.LastError)
	}
}

func TestRetryAutoFailedResetsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	c := testsupport.NewCandidate(t, store, "stuck", 9)
	if _, _, err := store.RecordFailure(ctx, c.ID, "x", 1, time.Now()); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	n, err := store.RetryAutoFailed(ctx)
	if err != nil {
		t.Fatalf("RetryAutoFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	fetched, _ := store.GetCandidate(ctx, c.ID)
	if fetched.Status != queue.StatusPending || fetched.AttemptCount != 0 || fetched.LastAttemptAt != nil {
		t.Fatalf("unexpected candidate after retry: %+v", fetched)
	}
}

func TestRecordSuccessAndRevert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	c := testsupport.NewCandidate(t, store, "ok", 9)

	if err := store.RecordSuccess(ctx, c.ID, queue.StatusPending, "ref"); err == nil {
		t.Fatal("expected error for non-terminal success status")
	}
	if err := store.RevertToPending(ctx, c.ID, "image attach failed"); err != nil {
		t.Fatalf("RevertToPending: %v", err)
	}
	if err := store.RecordSuccess(ctx, c.ID, queue.StatusPublished, "ref-1"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	fetched, _ := store.GetCandidate(ctx, c.ID)
	if fetched.Status != queue.StatusPublished || fetched.PublishedRef != "ref-1" || fetched.Note != "" {
		t.Fatalf("unexpected candidate: %+v", fetched)
	}
	if err := store.RecordSuccess(ctx, c.ID, queue.StatusPublished, "ref-2"); !errors.Is(err, queue.ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second success, got %v", err)
	}
}

func TestClearReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	a := testsupport.NewCandidate(t, store, "a", 9)
	b := testsupport.NewCandidate(t, store, "b", 9)
	for _, c := range []*queue.Candidate{a, b} {
		if err := store.FlagForReview(ctx, c.ID, "dup"); err != nil {
			t.Fatalf("FlagForReview: %v", err)
		}
	}

	n, err := store.ClearReview(ctx, a.ID)
	if err != nil || n != 1 {
		t.Fatalf("ClearReview(a) = %d, %v", n, err)
	}
	flagged := true
	remaining, err := store.ListCandidates(ctx, queue.CandidateFilter{NeedsReview: &flagged})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Fatalf("expected only b flagged, got %+v", remaining)
	}
}

func TestIncrementPublishedTodayIsAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementPublishedToday(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementPublishedToday: %v", err)
	}

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.PublishedToday != workers {
		t.Fatalf("expected counter %d, got %d", workers, settings.PublishedToday)
	}
}

func TestRollDailyCounter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rolled, err := store.RollDailyCounter(ctx, "2026-03-01")
	if err != nil || !rolled {
		t.Fatalf("first roll = %v, %v", rolled, err)
	}
	if _, err := store.IncrementPublishedToday(ctx); err != nil {
		t.Fatalf("IncrementPublishedToday: %v", err)
	}

	rolled, err = store.RollDailyCounter(ctx, "2026-03-01")
	if err != nil || rolled {
		t.Fatalf("same-day roll = %v, %v", rolled, err)
	}
	settings, _ := store.LoadSettings(ctx)
	if settings.PublishedToday != 1 {
		t.Fatalf("same-day roll must keep counter, got %d", settings.PublishedToday)
	}

	rolled, err = store.RollDailyCounter(ctx, "2026-03-02")
	if err != nil || !rolled {
		t.Fatalf("next-day roll = %v, %v", rolled, err)
	}
	settings, _ = store.LoadSettings(ctx)
	if settings.PublishedToday != 0 || settings.CounterDay != "2026-03-02" {
		t.Fatalf("unexpected settings after roll: %+v", settings)
	}
}

func TestUpdateSettingsBumpsVersionAndValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	updated, err := store.UpdateSettings(ctx, func(s *queue.Settings) error {
		s.DraftMode = true
		s.PublishedToday = 99
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Version != 2 || !updated.DraftMode {
		t.Fatalf("unexpected updated settings: %+v", updated)
	}
	loaded, _ := store.LoadSettings(ctx)
	if loaded.PublishedToday != 0 {
		t.Fatalf("counter must not be writable through UpdateSettings, got %d", loaded.PublishedToday)
	}

	_, err = store.UpdateSettings(ctx, func(s *queue.Settings) error {
		s.MinQuality = 12
		return nil
	})
	if err == nil {
		t.Fatal("expected validation error for min_quality 12")
	}
	loaded, _ = store.LoadSettings(ctx)
	if loaded.Version != 2 {
		t.Fatalf("rejected update must not bump version, got %d", loaded.Version)
	}
}

func TestPublishedQueries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := testsupport.NewCandidate(t, store, "civic", 9,
		testsupport.WithEntity("Honda", "Civic", "Si"),
		testsupport.WithSourceRef("video-civic"))
	draftCand := testsupport.NewCandidate(t, store, "draft", 9)

	refs := []queue.PublishedRef{
		{ID: "live-1", CandidateID: c.ID, SourceRef: "video-civic", Make: "Honda", Model: "Civic", Trim: "Si", Title: "civic", CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "draft-1", CandidateID: draftCand.ID, SourceRef: draftCand.SourceRef, Title: "draft", Draft: true, CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "old-1", CandidateID: c.ID, SourceRef: "video-old", Title: "old", CreatedAt: now.Add(-2 * time.Hour)},
	}
	for _, ref := range refs {
		if err := store.SavePublishedRef(ctx, ref); err != nil {
			t.Fatalf("SavePublishedRef %s: %v", ref.ID, err)
		}
	}

	count, err := store.PublishedCountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PublishedCountSince: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 live non-draft item in the last hour, got %d", count)
	}

	bySource, err := store.PublishedBySourceRef(ctx, draftCand.SourceRef)
	if err != nil || bySource == nil || bySource.ID != "draft-1" {
		t.Fatalf("PublishedBySourceRef(draft) = %+v, %v", bySource, err)
	}

	entity, err := store.PublishedEntitySince(ctx, "HONDA", "civic", "", now.Add(-time.Hour))
	if err != nil || entity == nil || entity.ID != "live-1" {
		t.Fatalf("PublishedEntitySince = %+v, %v", entity, err)
	}
	otherTrim, err := store.PublishedEntitySince(ctx, "Honda", "Civic", "Type R", now.Add(-time.Hour))
	if err != nil || otherTrim != nil {
		t.Fatalf("different trim should not match, got %+v, %v", otherTrim, err)
	}
	unknown, err := store.PublishedEntitySince(ctx, "unknown", "Civic", "", now.Add(-time.Hour))
	if err != nil || unknown != nil {
		t.Fatalf("unresolved make should not match, got %+v, %v", unknown, err)
	}

	if err := store.MarkUnpublished(ctx, "live-1", now); err != nil {
		t.Fatalf("MarkUnpublished: %v", err)
	}
	count, _ = store.PublishedCountSince(ctx, now.Add(-time.Hour))
	if count != 0 {
		t.Fatalf("withdrawn item must not count, got %d", count)
	}
	entity, _ = store.PublishedEntitySince(ctx, "Honda", "Civic", "", now.Add(-time.Hour))
	if entity != nil {
		t.Fatalf("withdrawn item must not match entity lookup, got %+v", entity)
	}
}

func TestPendingEntityConflictFollowsSelectionRank(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	filter := queue.RivalFilter{MinQuality: 7, MaxAttempts: 3}

	older := testsupport.NewCandidate(t, store, "older", 8,
		testsupport.WithEntity("Mazda", "MX-5", ""), testsupport.WithCreatedAt(base))
	newer := testsupport.NewCandidate(t, store, "newer", 8,
		testsupport.WithEntity("mazda", "mx-5", ""), testsupport.WithCreatedAt(base.Add(time.Hour)))

	conflict, err := store.PendingEntityConflict(ctx, newer, filter)
	if err != nil || !conflict {
		t.Fatalf("equal quality: newer should yield to older: %v, %v", conflict, err)
	}
	conflict, err = store.PendingEntityConflict(ctx, older, filter)
	if err != nil || conflict {
		t.Fatalf("equal quality: older should not conflict: %v, %v", conflict, err)
	}

	better := testsupport.NewCandidate(t, store, "better", 9.5,
		testsupport.WithEntity("Mazda", "MX-5", ""), testsupport.WithCreatedAt(base.Add(2*time.Hour)))
	if conflict, err := store.PendingEntityConflict(ctx, better, filter); err != nil || conflict {
		t.Fatalf("higher quality ranks first regardless of age: %v, %v", conflict, err)
	}
	if conflict, err := store.PendingEntityConflict(ctx, older, filter); err != nil || !conflict {
		t.Fatalf("older should now yield to the higher quality rival: %v, %v", conflict, err)
	}
}

func TestPendingEntityConflictIgnoresUnpromotableRivals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	filter := queue.RivalFilter{
		MinQuality:        7,
		MaxAttempts:       3,
		Backoff:           []time.Duration{30 * time.Minute, 2 * time.Hour},
		RequireSafeSource: true,
		RequireImage:      true,
		Now:               now,
	}
	camry := testsupport.WithEntity("Toyota", "Camry", "")
	aged := func(d time.Duration) testsupport.CandidateOption { return testsupport.WithCreatedAt(now.Add(-d)) }
	img := testsupport.WithImage("https://img.test/camry.jpg")

	testsupport.NewCandidate(t, store, "low quality", 3, camry, img, aged(10*time.Hour))
	testsupport.NewCandidate(t, store, "unsafe", 9.9, camry, img, aged(9*time.Hour), testsupport.WithTrust(queue.TrustUnsafe))
	testsupport.NewCandidate(t, store, "no image", 9.9, camry, aged(8*time.Hour))
	flagged := testsupport.NewCandidate(t, store, "flagged", 9.9, camry, img, aged(7*time.Hour))
	if err := store.FlagForReview(ctx, flagged.ID, "manual"); err != nil {
		t.Fatalf("FlagForReview: %v", err)
	}
	resent := testsupport.NewCandidate(t, store, "already live", 9.9, camry, img, aged(6*time.Hour))
	if err := store.SavePublishedRef(ctx, queue.PublishedRef{
		ID: "live-camry", CandidateID: resent.ID, SourceRef: resent.SourceRef, Make: "Toyota", Model: "Camry", Title: "live",
		CreatedAt: now.Add(-200 * time.Hour),
	}); err != nil {
		t.Fatalf("SavePublishedRef: %v", err)
	}

	good := testsupport.NewCandidate(t, store, "good", 8, camry, img, aged(time.Hour))
	if conflict, err := store.PendingEntityConflict(ctx, good, filter); err != nil || conflict {
		t.Fatalf("unpromotable rivals must not block: %v, %v", conflict, err)
	}

	// A rival with one failure waits 30 minutes and, while waiting, does not
	// block a candidate with the same attempt count.
	backedOff := testsupport.NewCandidate(t, store, "backed off", 9.9, camry, img, aged(5*time.Hour))
	if _, _, err := store.RecordFailure(ctx, backedOff.ID, "502", 3, now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if _, _, err := store.RecordFailure(ctx, good.ID, "502", 3, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	good, _ = store.GetCandidate(ctx, good.ID)
	if conflict, err := store.PendingEntityConflict(ctx, good, filter); err != nil || conflict {
		t.Fatalf("backed-off rival must not block: %v, %v", conflict, err)
	}
	filter.Now = now.Add(time.Hour)
	if conflict, err := store.PendingEntityConflict(ctx, good, filter); err != nil || !conflict {
		t.Fatalf("rival out of backoff should rank ahead again: %v, %v", conflict, err)
	}
}

func TestDecisionsAppendAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	c := testsupport.NewCandidate(t, store, "audit", 9)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	records := []queue.DecisionRecord{
		{CycleID: "cycle-1", CandidateID: c.ID, Decision: queue.DecisionFailed, Reason: "timeout", Snapshot: c.Snapshot(), CreatedAt: base},
		{CycleID: "cycle-2", CandidateID: c.ID, Decision: queue.DecisionPublished, PublishedRef: "ref-9", Snapshot: c.Snapshot(), CreatedAt: base.Add(time.Hour)},
	}
	for _, rec := range records {
		if err := store.AppendDecision(ctx, rec); err != nil {
			t.Fatalf("AppendDecision: %v", err)
		}
	}
	if err := store.AppendDecision(ctx, queue.DecisionRecord{CandidateID: c.ID}); err == nil {
		t.Fatal("expected error for missing decision tag")
	}

	all, err := store.ListDecisions(ctx, queue.DecisionFilter{})
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(all) != 2 || all[0].Decision != queue.DecisionPublished {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[0].ID == "" || all[0].Snapshot.Title != "audit" || all[0].Snapshot.TrustLabel != queue.TrustSafe {
		t.Fatalf("unexpected record: %+v", all[0])
	}

	failed, err := store.ListDecisions(ctx, queue.DecisionFilter{Decisions: []queue.Decision{queue.DecisionFailed}})
	if err != nil || len(failed) != 1 || failed[0].Reason != "timeout" {
		t.Fatalf("filtered decisions = %+v, %v", failed, err)
	}
	asc, _ := store.ListDecisions(ctx, queue.DecisionFilter{Ascending: true, Since: base.Add(30 * time.Minute)})
	if len(asc) != 1 || asc[0].CycleID != "cycle-2" {
		t.Fatalf("since filter = %+v", asc)
	}
}

func TestHealthSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewCandidate(t, store, "a", 9)
	b := testsupport.NewCandidate(t, store, "b", 9)
	c := testsupport.NewCandidate(t, store, "c", 9)
	testsupport.NewCandidate(t, store, "d", 9)
	if err := store.RecordSuccess(ctx, a.ID, queue.StatusPublished, "r"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if _, _, err := store.RecordFailure(ctx, b.ID, "x", 3, time.Now()); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := store.FlagForReview(ctx, c.ID, "dup"); err != nil {
		t.Fatalf("FlagForReview: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	want := queue.HealthSummary{Total: 4, Pending: 3, Published: 1, Retrying: 1, NeedsReview: 1}
	if health != want {
		t.Fatalf("health = %+v, want %+v", health, want)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !db.DatabaseExists || !db.DatabaseReadable || !db.IntegrityCheck || db.TotalCandidates != 4 {
		t.Fatalf("unexpected database health: %+v", db)
	}
}
