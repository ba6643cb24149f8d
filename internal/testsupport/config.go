package testsupport

import (
	"path/filepath"
	"testing"

	"docdrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "docdropd.sock")
	cfgVal.Server.BaseURL = "http://127.0.0.1:1"
	cfgVal.Server.Token = "test-token"
	cfgVal.Scheduler.BatteryGateEnabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServer points the test config at a live test server URL.
func WithServer(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.BaseURL = baseURL
	}
}

// WithMaxAttempts overrides the upload attempt bound on the test config.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Uploader.MaxAttempts = n
	}
}

// WithImmediateRetry zeroes the retry backoff so retried items are due
// again as soon as they return to the queue.
func WithImmediateRetry() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Uploader.BackoffBaseSeconds = 0
		b.cfg.Uploader.BackoffCapSeconds = 0
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
