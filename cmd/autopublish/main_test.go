package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autopublish/internal/admission"
	"autopublish/internal/daemon"
	"autopublish/internal/queue"
	"autopublish/internal/testsupport"
)

func TestCycleCommandPublishesEligibleCandidate(t *testing.T) {
	env := setupCLITestEnv(t)
	c := testsupport.NewCandidate(t, env.store, "2026 Kia EV4 review", 8.2,
		testsupport.WithEntity("Kia", "EV4", ""))

	out, _, err := runCLI(t, []string{"--json", "cycle"}, env.configPath)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	var summary admission.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if summary.Published != 1 || summary.CycleID == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	got, err := env.store.GetCandidate(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != queue.StatusPublished {
		t.Fatalf("expected published, got %s", got.Status)
	}
}

func TestCycleCommandRefusesWhenDaemonHoldsLockWithoutAPI(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := daemon.AcquireLock(env.cfg.Paths.LockPath)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Unlock() //nolint:errcheck

	_, _, err = runCLI(t, []string{"cycle"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "API is disabled") {
		t.Fatalf("expected API disabled error, got %v", err)
	}
}

func TestQueueImportListAndDecisions(t *testing.T) {
	env := setupCLITestEnv(t)
	file := filepath.Join(t.TempDir(), "batch.yaml")
	content := `candidates:
  - title: 2026 Honda Prelude first drive
    source_ref: yt-prelude
    make: Honda
    model: Prelude
    quality_score: 8.8
    trust:
      label: safe
  - title: Leaked pricing sheet
    source_ref: yt-leak
    quality_score: 9.1
    trust:
      label: unsafe
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "import", file}, env.configPath)
	if err != nil {
		t.Fatalf("queue import: %v", err)
	}
	requireContains(t, out, "Imported 2 candidate(s)")

	out, _, err = runCLI(t, []string{"queue", "import", file}, env.configPath)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	requireContains(t, out, "Skipped 2 already known")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "pending"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Honda Prelude")

	if _, _, err := runCLI(t, []string{"cycle"}, env.configPath); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	out, _, err = runCLI(t, []string{"decisions", "list", "--decision", "skipped_safety"}, env.configPath)
	if err != nil {
		t.Fatalf("decisions list: %v", err)
	}
	requireContains(t, out, "Leaked pricing")

	out, _, err = runCLI(t, []string{"decisions", "export"}, env.configPath)
	if err != nil {
		t.Fatalf("decisions export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 exported decisions, got %d: %q", len(lines), out)
	}
	var first queue.DecisionRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode exported line: %v", err)
	}
	if first.CycleID == "" {
		t.Fatalf("exported record missing cycle id: %+v", first)
	}
}

func TestQueueRetryAndClearReview(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	c := testsupport.NewCandidate(t, env.store, "Mazda CX-70 towing test", 7.5)
	for i := 0; i < env.cfg.Admission.MaxAttempts; i++ {
		if _, _, err := env.store.RecordFailure(ctx, c.ID, "cms down", env.cfg.Admission.MaxAttempts, time.Now()); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	flagged := testsupport.NewCandidate(t, env.store, "Subaru Forester hybrid", 7.5)
	if err := env.store.FlagForReview(ctx, flagged.ID, "duplicate"); err != nil {
		t.Fatalf("FlagForReview: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "1 candidate(s) returned to pending")

	got, err := env.store.GetCandidate(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Status != queue.StatusPending || got.AttemptCount != 0 {
		t.Fatalf("expected fresh pending candidate, got %+v", got)
	}

	out, _, err = runCLI(t, []string{"queue", "clear-review", "abc"}, env.configPath)
	if err == nil {
		t.Fatalf("expected invalid id error, got output %q", out)
	}
	out, _, err = runCLI(t, []string{"queue", "clear-review", "1", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear-review: %v", err)
	}
	requireContains(t, out, "1 candidate(s) cleared")
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewCandidate(t, env.store, "BMW iX3 range test", 9)

	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.Queue.Pending != 1 || status.Settings == nil || !status.Settings.Enabled {
		t.Fatalf("unexpected status %+v", status)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status text: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "1 pending")
}

func TestStatusThroughRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.API.Enabled = true
	env.cfg.API.APIKey = "secret"

	d, err := daemon.New(env.cfg, env.store, stubCycler{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	// Point the CLI at the bound port.
	env.cfg.API.Bind = d.Addr()
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("expected running daemon status, got %+v", status)
	}

	out, _, err = runCLI(t, []string{"--json", "cycle"}, env.configPath)
	if err != nil {
		t.Fatalf("cycle via daemon: %v", err)
	}
	requireContains(t, out, `"reason": "stub"`)
}

type stubCycler struct{}

func (stubCycler) RunCycle(context.Context) admission.Summary {
	return admission.Summary{CycleID: "stub-cycle", Reason: "stub"}
}
