// Package testutil provides test utilities and helpers for wbctl tests.
//
// This package contains shared test infrastructure including a fake extension
// backend, configuration builders, logger helpers, and Docker environment
// management for the SQL preference stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/systmms/wbctl/internal/config"
	"github.com/systmms/wbctl/internal/logging"
)

// TestConfigBuilder provides a fluent API for building test configurations.
//
// The builder writes a wbctl.yaml into a temporary directory and loads it
// through config.Config, so tests exercise the same parsing and defaults as
// the CLI.
//
// Example usage:
//
//	cfg := NewTestConfig(t).
//	    WithBackend(fb.URL()).
//	    WithPersist(false).
//	    Build()
type TestConfigBuilder struct {
	def            *config.Definition
	tempDir        string
	nonInteractive bool
	logger         *logging.Logger
	t              *testing.T
}

// NewTestConfig creates a builder whose configuration never touches the OS
// keyring and never prompts.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	persist := false
	return &TestConfigBuilder{
		def: &config.Definition{
			Credentials: config.CredentialsConfig{Persist: &persist},
		},
		tempDir:        t.TempDir(),
		nonInteractive: true,
		logger:         logging.NewNop(),
		t:              t,
	}
}

// WithBackend points the configuration at url.
func (b *TestConfigBuilder) WithBackend(url string) *TestConfigBuilder {
	b.def.Backend.URL = url
	return b
}

// WithPersist toggles credential persistence in the OS keyring.
func (b *TestConfigBuilder) WithPersist(persist bool) *TestConfigBuilder {
	b.def.Credentials.Persist = &persist
	return b
}

// WithStore selects the preference store and its DSN.
func (b *TestConfigBuilder) WithStore(store, dsn string) *TestConfigBuilder {
	b.def.Preferences.Store = store
	b.def.Preferences.DSN = dsn
	return b
}

// WithStaleness sets the manifest staleness threshold.
func (b *TestConfigBuilder) WithStaleness(d time.Duration) *TestConfigBuilder {
	b.def.Manifests.Staleness = d
	return b
}

// WithInteractive allows dialogs to be presented.
func (b *TestConfigBuilder) WithInteractive() *TestConfigBuilder {
	b.nonInteractive = false
	return b
}

// WithLogger sets the logger attached to the built config.
func (b *TestConfigBuilder) WithLogger(logger *logging.Logger) *TestConfigBuilder {
	b.logger = logger
	return b
}

// Write marshals the definition to wbctl.yaml and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	path := filepath.Join(b.tempDir, "wbctl.yaml")
	data, err := yaml.Marshal(b.def)
	require.NoError(b.t, err, "Failed to marshal test config")
	require.NoError(b.t, os.WriteFile(path, data, 0o600), "Failed to write test config")
	return path
}

// Build writes the configuration and returns a Config ready to be loaded by
// the command under test.
func (b *TestConfigBuilder) Build() *config.Config {
	b.t.Helper()

	return &config.Config{
		Path:           b.Write(),
		Explicit:       true,
		Logger:         b.logger,
		NonInteractive: b.nonInteractive,
	}
}

// Load builds the configuration and loads it, failing the test on error.
func (b *TestConfigBuilder) Load() *config.Definition {
	b.t.Helper()

	cfg := b.Build()
	require.NoError(b.t, cfg.Load(), "Failed to load test config")
	return cfg.Get()
}
