package config

const (
	defaultStagingDir            = "~/.local/share/docdrop/staging"
	defaultLogDir                = "~/.local/share/docdrop/logs"
	defaultSocketPath            = "~/.local/share/docdrop/docdropd.sock"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultHealthTimeoutSeconds  = 5
	defaultUploadTimeoutSeconds  = 60
	defaultMaxAttempts           = 5
	defaultConcurrency           = 1
	defaultBackoffBaseSeconds    = 5
	defaultBackoffCapSeconds     = 600
	defaultSweepIntervalMinutes  = 15
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 120
	defaultBatteryMinPercent     = 10
	defaultCompletedRetention    = 7
	defaultProbeAddress          = "1.1.1.1:53"
	defaultProbeTimeoutSeconds   = 3
	defaultProbeIntervalSeconds  = 60
	defaultNotifyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Server: Server{
			HealthTimeoutSeconds: defaultHealthTimeoutSeconds,
			UploadTimeoutSeconds: defaultUploadTimeoutSeconds,
		},
		Uploader: Uploader{
			MaxAttempts:        defaultMaxAttempts,
			Concurrency:        defaultConcurrency,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffCapSeconds:  defaultBackoffCapSeconds,
		},
		Scheduler: Scheduler{
			SweepIntervalMinutes:   defaultSweepIntervalMinutes,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			BatteryGateEnabled:     true,
			BatteryMinPercent:      defaultBatteryMinPercent,
			CompletedRetentionDays: defaultCompletedRetention,
		},
		Connectivity: Connectivity{
			ProbeAddress:         defaultProbeAddress,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Delivered:      true,
			Failed:         true,
			Queue:          true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
