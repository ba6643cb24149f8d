package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration consistency. It does not touch the filesystem.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		problems = append(problems, "paths.socket_path must be set")
	}

	if c.Server.BaseURL != "" {
		parsed, err := url.Parse(c.Server.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("server.base_url %q is not a valid URL", c.Server.BaseURL))
		}
	}

	if c.Uploader.BackoffCapSeconds < c.Uploader.BackoffBaseSeconds {
		problems = append(problems, "uploader.backoff_cap_seconds must be >= uploader.backoff_base_seconds")
	}
	if c.Scheduler.BatteryMinPercent > 100 {
		problems = append(problems, "scheduler.battery_min_percent must be <= 100")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// RequireServer returns an error when no server endpoint is configured.
// The queue accepts items without one, but delivery cannot proceed.
func (c *Config) RequireServer() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return errors.New("server.base_url is not configured")
	}
	if strings.TrimSpace(c.Server.Token) == "" {
		return errors.New("server.token is not configured")
	}
	return nil
}
