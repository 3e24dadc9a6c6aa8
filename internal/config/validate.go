package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validatePublisher(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAdmission() error {
	a := c.Admission
	if a.MinQuality < 0 || a.MinQuality > 10 {
		return errors.New("admission.min_quality must be between 0 and 10")
	}
	if a.HourlyCap < 0 {
		return errors.New("admission.hourly_cap must not be negative")
	}
	if a.DailyCap < 0 {
		return errors.New("admission.daily_cap must not be negative")
	}
	if err := ensurePositiveMap(map[string]int{
		"admission.cooldown_days": a.CooldownDays,
		"admission.max_attempts":  a.MaxAttempts,
	}); err != nil {
		return err
	}
	for i, minutes := range a.BackoffMinutes {
		if minutes <= 0 {
			return fmt.Errorf("admission.backoff_minutes[%d] must be positive", i)
		}
		if i > 0 && minutes < a.BackoffMinutes[i-1] {
			return errors.New("admission.backoff_minutes must not decrease")
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.CycleIntervalSeconds <= 0 {
		return errors.New("scheduler.cycle_interval_seconds must be positive")
	}
	name := strings.TrimSpace(c.Scheduler.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("scheduler.timezone %q: %w", name, err)
	}
	return nil
}

func (c *Config) validatePublisher() error {
	switch c.Publisher.Mode {
	case PublisherModeLocal:
		return nil
	case PublisherModeHTTP:
		if c.Publisher.Endpoint == "" {
			return errors.New("publisher.endpoint must be set when publisher.mode is \"http\"")
		}
		if c.Publisher.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("publisher.api_key is required in http mode. Set %s or edit %s (create with 'autopublish config init')", defaultPublisherAPIKeyEnvVar, defaultPath)
		}
		return nil
	default:
		return fmt.Errorf("publisher.mode %q is not supported (use %q or %q)", c.Publisher.Mode, PublisherModeLocal, PublisherModeHTTP)
	}
}

func (c *Config) validateTimeouts() error {
	values := map[string]int{
		"publisher.timeout_seconds":     c.Publisher.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}
	if c.Imagery.Endpoint != "" {
		values["imagery.timeout_seconds"] = c.Imagery.TimeoutSeconds
	}
	return ensurePositiveMap(values)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
