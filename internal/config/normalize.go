package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("socket_path: %w", err)
	}

	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)

	if c.Server.HealthTimeoutSeconds <= 0 {
		c.Server.HealthTimeoutSeconds = defaultHealthTimeoutSeconds
	}
	if c.Server.UploadTimeoutSeconds <= 0 {
		c.Server.UploadTimeoutSeconds = defaultUploadTimeoutSeconds
	}
	if c.Uploader.MaxAttempts <= 0 {
		c.Uploader.MaxAttempts = defaultMaxAttempts
	}
	if c.Uploader.Concurrency <= 0 {
		c.Uploader.Concurrency = defaultConcurrency
	}
	if c.Uploader.BackoffBaseSeconds <= 0 {
		c.Uploader.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Uploader.BackoffCapSeconds <= 0 {
		c.Uploader.BackoffCapSeconds = defaultBackoffCapSeconds
	}
	if c.Scheduler.SweepIntervalMinutes <= 0 {
		c.Scheduler.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
	if c.Scheduler.HeartbeatInterval <= 0 {
		c.Scheduler.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Scheduler.HeartbeatTimeout <= 0 {
		c.Scheduler.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Scheduler.BatteryMinPercent <= 0 {
		c.Scheduler.BatteryMinPercent = defaultBatteryMinPercent
	}
	if c.Connectivity.ProbeAddress == "" {
		c.Connectivity.ProbeAddress = defaultProbeAddress
	}
	if c.Connectivity.ProbeTimeoutSeconds <= 0 {
		c.Connectivity.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Connectivity.ProbeIntervalSeconds <= 0 {
		c.Connectivity.ProbeIntervalSeconds = defaultProbeIntervalSeconds
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}

	return nil
}
