package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"autopublish/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations used by the daemon and CLI.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	DatabasePath string `toml:"database_path"`
	LockPath     string `toml:"lock_path"`
}

// Admission holds the bootstrap values seeded into the settings record the
// first time a store is opened. After that the store copy is authoritative
// and operators change it with `autopublish settings set`.
type Admission struct {
	Enabled                 bool    `toml:"enabled"`
	DraftMode               bool    `toml:"draft_mode"`
	MinQuality              float64 `toml:"min_quality"`
	HourlyCap               int     `toml:"hourly_cap"`
	DailyCap                int     `toml:"daily_cap"`
	RequireSafeSource       bool    `toml:"require_safe_source"`
	RequireImage            bool    `toml:"require_image"`
	AutoAttachImage         bool    `toml:"auto_attach_image"`
	UnpublishOnImageFailure bool    `toml:"unpublish_on_image_failure"`
	CooldownDays            int     `toml:"cooldown_days"`
	MaxAttempts             int     `toml:"max_attempts"`
	BackoffMinutes          []int   `toml:"backoff_minutes"`
	FlagExactDuplicates     bool    `toml:"flag_exact_duplicates"`
}

// Scheduler controls how often the daemon runs a cycle and which local day
// the daily counter follows.
type Scheduler struct {
	CycleIntervalSeconds int    `toml:"cycle_interval_seconds"`
	Timezone             string `toml:"timezone"`
}

// Publisher selects and configures the publication backend.
type Publisher struct {
	Mode           string `toml:"mode"`
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	SiteURL        string `toml:"site_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Imagery configures the image enrichment service.
type Imagery struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publications   bool   `toml:"publications"`
	CycleSummary   bool   `toml:"cycle_summary"`
	AutoFailed     bool   `toml:"auto_failed"`
	Errors         bool   `toml:"errors"`
}

// API configures the daemon status API.
type API struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	APIKey  string `toml:"api_key"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for autopublish.
//
// Configuration sections by subsystem:
//   - Paths: state directory, database and lock file
//   - Admission: bootstrap values for the persisted settings record
//   - Scheduler: cycle interval and counter timezone
//   - Publisher: local or HTTP publication backend
//   - Imagery: image enrichment endpoint
//   - Notifications: ntfy push notification settings
//   - API: daemon status API
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Admission     Admission     `toml:"admission"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Publisher     Publisher     `toml:"publisher"`
	Imagery       Imagery       `toml:"imagery"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("autopublish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and the parents of the
// database and lock files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StateDir,
		filepath.Dir(c.Paths.DatabasePath),
		filepath.Dir(c.Paths.LockPath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Location returns the timezone that defines the local day for the daily
// publish counter. Validate guarantees the name resolves.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Scheduler.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// CycleInterval returns the daemon's delay between cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Scheduler.CycleIntervalSeconds) * time.Second
}

// BackoffSchedule converts the configured minute steps to durations.
func (c *Config) BackoffSchedule() []time.Duration {
	steps := make([]time.Duration, 0, len(c.Admission.BackoffMinutes))
	for _, minutes := range c.Admission.BackoffMinutes {
		steps = append(steps, time.Duration(minutes)*time.Minute)
	}
	return steps
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
