package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Server contains connection settings for the document management server.
type Server struct {
	BaseURL              string `toml:"base_url"`
	Token                string `toml:"token"`
	HealthTimeoutSeconds int    `toml:"health_timeout_seconds"`
	UploadTimeoutSeconds int    `toml:"upload_timeout_seconds"`
}

// Uploader contains delivery worker tuning.
type Uploader struct {
	MaxAttempts        int `toml:"max_attempts"`
	Concurrency        int `toml:"concurrency"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffCapSeconds  int `toml:"backoff_cap_seconds"`
}

// Scheduler contains drain trigger timing and power constraints.
type Scheduler struct {
	SweepIntervalMinutes   int  `toml:"sweep_interval_minutes"`
	HeartbeatInterval      int  `toml:"heartbeat_interval"`
	HeartbeatTimeout       int  `toml:"heartbeat_timeout"`
	BatteryGateEnabled     bool `toml:"battery_gate_enabled"`
	BatteryMinPercent      int  `toml:"battery_min_percent"`
	CompletedRetentionDays int  `toml:"completed_retention_days"`
}

// Connectivity contains network reachability probe settings.
type Connectivity struct {
	ProbeAddress         string `toml:"probe_address"`
	ProbeTimeoutSeconds  int    `toml:"probe_timeout_seconds"`
	ProbeIntervalSeconds int    `toml:"probe_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Delivered      bool   `toml:"delivered"`
	Failed         bool   `toml:"failed"`
	Queue          bool   `toml:"queue"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Uploader      Uploader      `toml:"uploader"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docdrop/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("docdrop.toml")
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(projectPath); err == nil {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
// It refuses to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

// EnsureDirectories creates the staging and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath expands a leading ~ and normalizes the path to absolute form.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
