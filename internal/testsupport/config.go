package testsupport

import (
	"path/filepath"
	"testing"

	"autopublish/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Admission is enabled with the default caps; options adjust the rest.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "state", "autopublish.db")
	cfgVal.Paths.LockPath = filepath.Join(base, "state", "autopublish.lock")
	cfgVal.Admission.Enabled = true
	cfgVal.Scheduler.Timezone = "UTC"
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAdmission lets a test adjust the bootstrap admission settings.
func WithAdmission(fn func(*config.Admission)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Admission)
	}
}

// WithPublisherEndpoint switches the config to the HTTP publisher.
func WithPublisherEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publisher.Mode = config.PublisherModeHTTP
		b.cfg.Publisher.Endpoint = endpoint
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
