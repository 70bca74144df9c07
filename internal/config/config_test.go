// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 30*time.Second, cfg.DefaultPointTimeout)
	assert.Equal(t, 3, cfg.RepoRetryMax)
	// Derived paths follow DataDir
	assert.Equal(t, cfg.DataDir+"/webpdtool.db", cfg.StorePath)
	assert.Equal(t, cfg.DataDir+"/reports", cfg.ReportDir)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen: ":9090"
storeBackend: memory
reportDir: /tmp/reports
acquireTimeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "/tmp/reports", cfg.ReportDir)
	assert.Equal(t, 2*time.Second, cfg.AcquireTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600))

	t.Setenv("PDT_LISTEN", ":7070")
	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.StoreBackend = "etcd"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsBadSampling(t *testing.T) {
	cfg := Defaults()
	cfg.TelemetryEnabled = true
	cfg.TelemetryExporter = "grpc"
	cfg.TelemetrySampling = 1.5
	assert.Error(t, cfg.Validate())
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("PDT_TEST_INT", "42")
	t.Setenv("PDT_TEST_BAD_INT", "nope")
	t.Setenv("PDT_TEST_DUR", "250ms")
	t.Setenv("PDT_TEST_BOOL", "true")

	assert.Equal(t, 42, ParseInt("PDT_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("PDT_TEST_BAD_INT", 1))
	assert.Equal(t, 250*time.Millisecond, ParseDuration("PDT_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("PDT_TEST_MISSING", time.Second))
	assert.True(t, ParseBool("PDT_TEST_BOOL", false))
}
