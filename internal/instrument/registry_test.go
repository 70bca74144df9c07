// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package instrument

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
instruments:
  - id: dmm-1
    driver: scpi
    model: KEYSIGHT-34465A
    address: 10.0.0.20:5025
  - id: psu-1
    driver: scpi
    address: 10.0.0.21:5025
  - id: dut-console
    driver: serial
    port: /dev/ttyUSB0
    baud: 115200
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func passthroughFactory(cfg InstrumentConfig) (Driver, error) {
	return &stubDriver{}, nil
}

func TestFileRegistryLoad(t *testing.T) {
	reg, err := NewFileRegistry(writeRegistry(t, registryYAML), passthroughFactory)
	require.NoError(t, err)

	assert.Equal(t, []string{"dmm-1", "dut-console", "psu-1"}, reg.IDs())

	cfg, ok := reg.Lookup("dut-console")
	require.True(t, ok)
	assert.Equal(t, "serial", cfg.Driver)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 115200, cfg.Baud)

	drv, err := reg.New("dmm-1")
	require.NoError(t, err)
	require.NotNil(t, drv)

	_, err = reg.New("missing")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFileRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewFileRegistry(writeRegistry(t, `
instruments:
  - id: dmm-1
    driver: scpi
  - id: dmm-1
    driver: scpi
`), passthroughFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestFileRegistryRejectsMissingID(t *testing.T) {
	_, err := NewFileRegistry(writeRegistry(t, `
instruments:
  - driver: scpi
`), passthroughFactory)
	require.Error(t, err)
}

func TestFileRegistryWatchReloads(t *testing.T) {
	path := writeRegistry(t, registryYAML)
	reg, err := NewFileRegistry(path, passthroughFactory)
	require.NoError(t, err)

	done := make(chan struct{})
	defer close(done)
	require.NoError(t, reg.Watch(done))

	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  - id: relay-1
    driver: serial
    port: /dev/ttyUSB1
`), 0o644))

	require.Eventually(t, func() bool {
		_, ok := reg.Lookup("relay-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileRegistryKeepsOldOnBrokenEdit(t *testing.T) {
	path := writeRegistry(t, registryYAML)
	reg, err := NewFileRegistry(path, passthroughFactory)
	require.NoError(t, err)

	done := make(chan struct{})
	defer close(done)
	require.NoError(t, reg.Watch(done))

	require.NoError(t, os.WriteFile(path, []byte(": not yaml ["), 0o644))
	time.Sleep(100 * time.Millisecond)

	_, ok := reg.Lookup("dmm-1")
	assert.True(t, ok, "broken edit must keep previous registry")
}
