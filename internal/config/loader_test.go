package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapedeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Proxy.Port, cfg.Proxy.Port)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
proxy:
  port: 8080
  readTimeout: 10s
tapes:
  store: memory
  default: regression
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Proxy.Port)
	assert.Equal(t, 10*time.Second, cfg.Proxy.ReadTimeout.Duration())
	assert.Equal(t, StoreMemory, cfg.Tapes.Store)
	assert.Equal(t, "regression", cfg.Tapes.Default)

	// Settings absent from the file keep their defaults.
	assert.Equal(t, 5556, cfg.Control.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "proxy: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
proxy:
  port: -1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestWatcherReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "proxy:\n  port: 8080\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NotNil(t, w.LastConfig())
	assert.Equal(t, 8080, w.LastConfig().Proxy.Port)

	require.NoError(t, os.WriteFile(path, []byte("proxy:\n  port: 9090\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9090, cfg.Proxy.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	assert.Equal(t, 9090, w.LastConfig().Proxy.Port)
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "proxy:\n  port: 8080\n")

	w, err := NewWatcher(path, nil, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("proxy:\n  port: -5\n"), 0o644))

	// The bad file is rejected and the last good config survives.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 8080, w.LastConfig().Proxy.Port)
}
