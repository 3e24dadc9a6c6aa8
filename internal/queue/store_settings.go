package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autopublish/internal/config"
)

const settingsColumns = `version, enabled, draft_mode, min_quality, hourly_cap, daily_cap,
    published_today, counter_day, require_safe_source, require_image, auto_attach_image,
    unpublish_on_image_failure, cooldown_days, max_attempts, backoff_minutes_json,
    flag_exact_duplicates, updated_at`

// seedSettings creates the singleton settings row from the bootstrap config
// when the database has none.
func (s *Store) seedSettings(ctx context.Context, a config.Admission) error {
	backoff, err := json.Marshal(a.BackoffMinutes)
	if err != nil {
		return fmt.Errorf("encode backoff schedule: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO settings (
            id, version, enabled, draft_mode, min_quality, hourly_cap, daily_cap,
            published_today, counter_day, require_safe_source, require_image, auto_attach_image,
            unpublish_on_image_failure, cooldown_days, max_attempts, backoff_minutes_json,
            flag_exact_duplicates, updated_at
        ) VALUES (1, 1, ?, ?, ?, ?, ?, 0, '', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		boolToInt(a.Enabled),
		boolToInt(a.DraftMode),
		a.MinQuality,
		a.HourlyCap,
		a.DailyCap,
		boolToInt(a.RequireSafeSource),
		boolToInt(a.RequireImage),
		boolToInt(a.AutoAttachImage),
		boolToInt(a.UnpublishOnImageFailure),
		a.CooldownDays,
		a.MaxAttempts,
		string(backoff),
		boolToInt(a.FlagExactDuplicates),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// LoadSettings reads the current settings snapshot.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	var settings Settings
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		settings, scanErr = scanSettings(row)
		return scanErr
	}, `SELECT `+settingsColumns+` FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, errors.New("settings record missing")
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings applies mutate to the current snapshot and writes it back
// with the version bumped. The published-today counter and its day are not
// writable through this path.
func (s *Store) UpdateSettings(ctx context.Context, mutate func(*Settings) error) (Settings, error) {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Settings{}, fmt.Errorf("begin settings tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanSettings(tx.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE id = 1`))
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	next := current
	next.BackoffMinutes = append([]int(nil), current.BackoffMinutes...)
	if err := mutate(&next); err != nil {
		return Settings{}, err
	}
	if err := validateSettings(next); err != nil {
		return Settings{}, err
	}
	backoff, err := json.Marshal(next.BackoffMinutes)
	if err != nil {
		return Settings{}, fmt.Errorf("encode backoff schedule: %w", err)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE settings SET
            version = version + 1, enabled = ?, draft_mode = ?, min_quality = ?, hourly_cap = ?,
            daily_cap = ?, require_safe_source = ?, require_image = ?, auto_attach_image = ?,
            unpublish_on_image_failure = ?, cooldown_days = ?, max_attempts = ?,
            backoff_minutes_json = ?, flag_exact_duplicates = ?, updated_at = ?
         WHERE id = 1 AND version = ?`,
		boolToInt(next.Enabled), boolToInt(next.DraftMode), next.MinQuality, next.HourlyCap,
		next.DailyCap, boolToInt(next.RequireSafeSource), boolToInt(next.RequireImage),
		boolToInt(next.AutoAttachImage), boolToInt(next.UnpublishOnImageFailure),
		next.CooldownDays, next.MaxAttempts, string(backoff), boolToInt(next.FlagExactDuplicates),
		formatTime(now), current.Version,
	)
	if err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected != 1 {
		return Settings{}, errors.New("settings changed concurrently; retry")
	}
	if err := tx.Commit(); err != nil {
		return Settings{}, fmt.Errorf("commit settings: %w", err)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now.UTC()
	return next, nil
}

// IncrementPublishedToday bumps the daily counter and returns the new value
// in one statement, so overlapping cycles and replicas never lose an update.
func (s *Store) IncrementPublishedToday(ctx context.Context) (int, error) {
	var count int
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error { return row.Scan(&count) },
		`UPDATE settings SET published_today = published_today + 1 WHERE id = 1 RETURNING published_today`)
	if err != nil {
		return 0, fmt.Errorf("increment published today: %w", err)
	}
	return count, nil
}

// RollDailyCounter zeroes the daily counter when day differs from the stored
// counter day. It reports whether a reset happened. The comparison and write
// are one statement so concurrent callers reset at most once.
func (s *Store) RollDailyCounter(ctx context.Context, day string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE settings SET published_today = 0, counter_day = ? WHERE id = 1 AND counter_day <> ?`,
		day, day,
	)
	if err != nil {
		return false, fmt.Errorf("roll daily counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanSettings(row rowScanner) (Settings, error) {
	var (
		st          Settings
		enabled     int64
		draft       int64
		requireSafe int64
		requireImg  int64
		autoAttach  int64
		unpublish   int64
		flagDupes   int64
		backoffRaw  string
		updatedRaw  string
	)
	if err := row.Scan(
		&st.Version, &enabled, &draft, &st.MinQuality, &st.HourlyCap, &st.DailyCap,
		&st.PublishedToday, &st.CounterDay, &requireSafe, &requireImg, &autoAttach,
		&unpublish, &st.CooldownDays, &st.MaxAttempts, &backoffRaw,
		&flagDupes, &updatedRaw,
	); err != nil {
		return Settings{}, err
	}
	st.Enabled = enabled != 0
	st.DraftMode = draft != 0
	st.RequireSafeSource = requireSafe != 0
	st.RequireImage = requireImg != 0
	st.AutoAttachImage = autoAttach != 0
	st.UnpublishOnImageFailure = unpublish != 0
	st.FlagExactDuplicates = flagDupes != 0
	if err := json.Unmarshal([]byte(backoffRaw), &st.BackoffMinutes); err != nil {
		return Settings{}, fmt.Errorf("decode backoff schedule: %w", err)
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		st.UpdatedAt = updated
	}
	return st, nil
}

func validateSettings(st Settings) error {
	switch {
	case st.MinQuality < 0 || st.MinQuality > 10:
		return errors.New("min_quality must be between 0 and 10")
	case st.HourlyCap < 0 || st.DailyCap < 0:
		return errors.New("caps must not be negative")
	case st.CooldownDays <= 0:
		return errors.New("cooldown_days must be positive")
	case st.MaxAttempts <= 0:
		return errors.New("max_attempts must be positive")
	}
	for _, minutes := range st.BackoffMinutes {
		if minutes <= 0 {
			return errors.New("backoff_minutes entries must be positive")
		}
	}
	return nil
}
