package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"autopublish/internal/admission"
	"autopublish/internal/config"
	"autopublish/internal/logging"
	"autopublish/internal/queue"
)

// ErrLocked is returned when another process holds the daemon lock.
var ErrLocked = errors.New("another autopublish daemon instance is already running")

// Cycler runs one admission cycle. *admission.Orchestrator satisfies it.
type Cycler interface {
	RunCycle(ctx context.Context) admission.Summary
}

// Store is the read side the daemon reports from.
type Store interface {
	Health(ctx context.Context) (queue.HealthSummary, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
	LoadSettings(ctx context.Context) (queue.Settings, error)
	ListCandidates(ctx context.Context, filter queue.CandidateFilter) ([]*queue.Candidate, error)
	ListDecisions(ctx context.Context, filter queue.DecisionFilter) ([]queue.DecisionRecord, error)
}

// Daemon schedules cycles and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    Store
	cycler   Cycler
	interval time.Duration

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	last      *admission.Summary
	lastAt    time.Time
	cyclesRun int64
}

// Status is the daemon snapshot served by the API and printed by the CLI.
type Status struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	DatabasePath string              `json:"database_path"`
	LockPath     string              `json:"lock_path"`
	Interval     string              `json:"interval"`
	CyclesRun    int64               `json:"cycles_run"`
	LastCycleAt  *time.Time          `json:"last_cycle_at,omitempty"`
	LastCycle    *admission.Summary  `json:"last_cycle,omitempty"`
	Queue        queue.HealthSummary `json:"queue"`
	Settings     *SettingsView       `json:"settings,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// New constructs a daemon. The API server is built only when enabled.
func New(cfg *config.Config, store Store, cycler Cycler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || cycler == nil {
		return nil, errors.New("daemon requires config, store, and cycler")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		cycler:   cycler,
		interval: cfg.CycleInterval(),
		lockPath: cfg.Paths.LockPath,
	}
	if d.interval <= 0 {
		d.interval = 5 * time.Minute
	}
	if cfg.API.Enabled {
		d.api = newAPIServer(cfg.API.Bind, cfg.API.APIKey, d, logger)
	}
	return d, nil
}

// Start acquires the lock and launches the cycle loop and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.lockPath)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = lock.Unlock()
		return err
	}
	d.lock = lock
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(runCtx)

	d.logger.Info("autopublish daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.interval),
	)
	return nil
}

// Stop cancels the loop, waits for an in-flight cycle and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("autopublish daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Wait blocks until the loop exits.
func (d *Daemon) Wait() {
	if d.done != nil {
		<-d.done
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle runs one cycle now and records its summary. Overlapping calls
// are rejected by the orchestrator and are not recorded.
func (d *Daemon) RunCycle(ctx context.Context) admission.Summary {
	summary := d.cycler.RunCycle(ctx)
	if summary.Reason == admission.ReasonAlreadyRunning {
		return summary
	}
	d.mu.Lock()
	d.last = &summary
	d.lastAt = time.Now()
	d.cyclesRun++
	d.mu.Unlock()
	return summary
}

// Status reports the daemon snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.Paths.DatabasePath,
		LockPath:     d.lockPath,
		Interval:     d.interval.String(),
	}
	d.mu.Lock()
	status.CyclesRun = d.cyclesRun
	if d.last != nil {
		last := *d.last
		at := d.lastAt
		status.LastCycle = &last
		status.LastCycleAt = &at
	}
	d.mu.Unlock()

	health, err := d.store.Health(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Queue = health
	settings, err := d.store.LoadSettings(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	view := NewSettingsView(settings)
	status.Settings = &view
	return status
}

// Addr returns the API listen address once started, or "".
func (d *Daemon) Addr() string {
	return d.api.addr()
}
