package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAdmission()
	c.normalizePublisher()
	c.normalizeImagery()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.StateDir, defaultDatabaseName)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockPath) == "" {
		c.Paths.LockPath = filepath.Join(c.Paths.StateDir, defaultLockName)
	}
	if c.Paths.LockPath, err = expandPath(c.Paths.LockPath); err != nil {
		return fmt.Errorf("paths.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAdmission() {
	if len(c.Admission.BackoffMinutes) == 0 {
		c.Admission.BackoffMinutes = append([]int(nil), defaultBackoffMinutes...)
	}
	if c.Admission.CooldownDays == 0 {
		c.Admission.CooldownDays = defaultCooldownDays
	}
	if c.Admission.MaxAttempts == 0 {
		c.Admission.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizePublisher() {
	c.Publisher.Mode = strings.ToLower(strings.TrimSpace(c.Publisher.Mode))
	if c.Publisher.Mode == "" {
		c.Publisher.Mode = defaultPublisherMode
	}
	c.Publisher.Endpoint = strings.TrimRight(strings.TrimSpace(c.Publisher.Endpoint), "/")
	c.Publisher.SiteURL = strings.TrimRight(strings.TrimSpace(c.Publisher.SiteURL), "/")
	if c.Publisher.APIKey == "" {
		if value, ok := os.LookupEnv(defaultPublisherAPIKeyEnvVar); ok {
			c.Publisher.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeImagery() {
	c.Imagery.Endpoint = strings.TrimRight(strings.TrimSpace(c.Imagery.Endpoint), "/")
	if c.Imagery.APIKey == "" {
		if value, ok := os.LookupEnv(defaultImageryAPIKeyEnvVar); ok {
			c.Imagery.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.APIKey == "" {
		if value, ok := os.LookupEnv(defaultAPIKeyEnvVar); ok {
			c.API.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
