package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"autopublish/internal/daemon"
	"autopublish/internal/queue"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted admission settings",
	}
	settingsCmd.AddCommand(newSettingsShowCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	return settingsCmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				settings, err := store.LoadSettings(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, daemon.NewSettingsView(settings))
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSettings(settings))
				return nil
			})
		},
	}
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long: "Change one setting. Keys: " + strings.Join(settingKeys(), ", ") + ".\n" +
			"backoff_minutes takes a comma separated list, e.g. 15,60,240.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.UpdateSettings(cmd.Context(), func(s *queue.Settings) error {
					return applySetting(s, key, value)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (version %d)\n", key, value, updated.Version)
				return nil
			})
		},
	}
}

func renderSettings(s queue.Settings) string {
	rows := [][]string{
		{"enabled", yesNo(s.Enabled)},
		{"draft_mode", yesNo(s.DraftMode)},
		{"min_quality", strconv.FormatFloat(s.MinQuality, 'f', -1, 64)},
		{"hourly_cap", strconv.Itoa(s.HourlyCap)},
		{"daily_cap", strconv.Itoa(s.DailyCap)},
		{"published_today", fmt.Sprintf("%d (%s)", s.PublishedToday, s.CounterDay)},
		{"require_safe_source", yesNo(s.RequireSafeSource)},
		{"require_image", yesNo(s.RequireImage)},
		{"auto_attach_image", yesNo(s.AutoAttachImage)},
		{"unpublish_on_image_failure", yesNo(s.UnpublishOnImageFailure)},
		{"cooldown_days", strconv.Itoa(s.CooldownDays)},
		{"max_attempts", strconv.Itoa(s.MaxAttempts)},
		{"backoff_minutes", joinInts(s.BackoffMinutes)},
		{"flag_exact_duplicates", yesNo(s.FlagExactDuplicates)},
		{"version", strconv.FormatInt(s.Version, 10)},
	}
	return renderTable([]string{"Setting", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}

type settingSetter func(*queue.Settings, string) error

var settingSetters = map[string]settingSetter{
	"enabled":                    boolSetting(func(s *queue.Settings, v bool) { s.Enabled = v }),
	"draft_mode":                 boolSetting(func(s *queue.Settings, v bool) { s.DraftMode = v }),
	"require_safe_source":        boolSetting(func(s *queue.Settings, v bool) { s.RequireSafeSource = v }),
	"require_image":              boolSetting(func(s *queue.Settings, v bool) { s.RequireImage = v }),
	"auto_attach_image":          boolSetting(func(s *queue.Settings, v bool) { s.AutoAttachImage = v }),
	"unpublish_on_image_failure": boolSetting(func(s *queue.Settings, v bool) { s.UnpublishOnImageFailure = v }),
	"flag_exact_duplicates":      boolSetting(func(s *queue.Settings, v bool) { s.FlagExactDuplicates = v }),
	"hourly_cap":                 intSetting(func(s *queue.Settings, v int) { s.HourlyCap = v }),
	"daily_cap":                  intSetting(func(s *queue.Settings, v int) { s.DailyCap = v }),
	"cooldown_days":              intSetting(func(s *queue.Settings, v int) { s.CooldownDays = v }),
	"max_attempts":               intSetting(func(s *queue.Settings, v int) { s.MaxAttempts = v }),
	"min_quality": func(s *queue.Settings, raw string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("min_quality: %w", err)
		}
		s.MinQuality = v
		return nil
	},
	"backoff_minutes": func(s *queue.Settings, raw string) error {
		var steps []int
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("backoff_minutes: %w", err)
			}
			steps = append(steps, v)
		}
		if len(steps) == 0 {
			return fmt.Errorf("backoff_minutes: at least one step is required")
		}
		s.BackoffMinutes = steps
		return nil
	},
}

// applySetting parses value and assigns it to the named field. Range checks
// happen in the store when the update is written.
func applySetting(s *queue.Settings, key, value string) error {
	setter, ok := settingSetters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(settingKeys(), ", "))
	}
	return setter(s, value)
}

func settingKeys() []string {
	keys := make([]string, 0, len(settingSetters))
	for key := range settingSetters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func boolSetting(assign func(*queue.Settings, bool)) settingSetter {
	return func(s *queue.Settings, raw string) error {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", raw)
		}
		assign(s, v)
		return nil
	}
}

func intSetting(assign func(*queue.Settings, int)) settingSetter {
	return func(s *queue.Settings, raw string) error {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", raw)
		}
		assign(s, v)
		return nil
	}
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}
