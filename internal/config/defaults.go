package config

const (
	defaultConfigPath            = "~/.config/autopublish/config.toml"
	defaultStateDir              = "~/.local/share/autopublish"
	defaultDatabaseName          = "autopublish.db"
	defaultLockName              = "autopublish.lock"
	defaultMinQuality            = 7.0
	defaultHourlyCap             = 2
	defaultDailyCap              = 10
	defaultCooldownDays          = 3
	defaultMaxAttempts           = 3
	defaultCycleIntervalSeconds  = 300
	defaultPublisherMode         = PublisherModeLocal
	defaultPublisherTimeout      = 30
	defaultImageryTimeout        = 60
	defaultNotifyRequestTimeout  = 10
	defaultAPIBind               = "127.0.0.1:7488"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultPublisherAPIKeyEnvVar = "AUTOPUBLISH_PUBLISHER_API_KEY"
	defaultImageryAPIKeyEnvVar   = "AUTOPUBLISH_IMAGERY_API_KEY"
	defaultAPIKeyEnvVar          = "AUTOPUBLISH_API_KEY"
)

// Publisher modes.
const (
	PublisherModeLocal = "local"
	PublisherModeHTTP  = "http"
)

// defaultBackoffMinutes is 30 minutes after the first failure and two hours
// after the second.
var defaultBackoffMinutes = []int{30, 120}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Admission: Admission{
			Enabled:                 false,
			MinQuality:              defaultMinQuality,
			HourlyCap:               defaultHourlyCap,
			DailyCap:                defaultDailyCap,
			RequireSafeSource:       true,
			RequireImage:            false,
			AutoAttachImage:         false,
			UnpublishOnImageFailure: true,
			CooldownDays:            defaultCooldownDays,
			MaxAttempts:             defaultMaxAttempts,
			BackoffMinutes:          append([]int(nil), defaultBackoffMinutes...),
		},
		Scheduler: Scheduler{
			CycleIntervalSeconds: defaultCycleIntervalSeconds,
			Timezone:             "Local",
		},
		Publisher: Publisher{
			Mode:           defaultPublisherMode,
			TimeoutSeconds: defaultPublisherTimeout,
		},
		Imagery: Imagery{
			TimeoutSeconds: defaultImageryTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Publications:   true,
			CycleSummary:   false,
			AutoFailed:     true,
			Errors:         true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
