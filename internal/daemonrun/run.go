// Package daemonrun wires configuration into a running admission daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autopublish/internal/admission"
	"autopublish/internal/config"
	"autopublish/internal/daemon"
	"autopublish/internal/daemonctl"
	"autopublish/internal/dedup"
	"autopublish/internal/imagery"
	"autopublish/internal/logging"
	"autopublish/internal/notifications"
	"autopublish/internal/preflight"
	"autopublish/internal/publisher"
	"autopublish/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Runtime holds the assembled admission stack. The CLI uses it for
// one-shot cycles and the daemon for scheduled ones.
type Runtime struct {
	Store        *queue.Store
	Orchestrator *admission.Orchestrator
	Notifier     notifications.Service
}

// Build opens the store and assembles the orchestrator from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	pub, err := publisher.NewConfigured(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	reporter := notifications.NewReporter(notifier, logger)
	deps := admission.Dependencies{
		Candidates: store,
		Settings:   store,
		Published:  store,
		Duplicates: dedup.NewDetector(store, logger),
		Publisher:  pub,
		Decisions:  store,
		Hooks:      []admission.PostPublishHook{reporter},
		Observer:   reporter,
	}
	// A nil *imagery.Client must not become a non-nil interface.
	if attacher := imagery.NewConfigured(cfg); attacher != nil {
		deps.Images = attacher
	}

	orch, err := admission.NewOrchestrator(deps, admission.Options{Location: cfg.Location()}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Runtime{Store: store, Orchestrator: orch, Notifier: notifier}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	return r.Store.Close()
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	logPreflight(signalCtx, logger, cfg)

	d, err := daemon.New(cfg, rt.Store, rt.Orchestrator, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	pidPath := daemonctl.PIDPath(cfg)
	if err := daemonctl.WritePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("autopublish daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run 'autopublish config validate' for details"),
			logging.String(logging.FieldImpact, "publish attempts may fail and count toward the attempt cap"),
		)
	}
}
