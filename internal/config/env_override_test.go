package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Sandbox(t *testing.T) {
	t.Setenv("AUTOENG_PODMAN_PATH", "/usr/local/bin/podman")
	t.Setenv("AUTOENG_SANDBOX_IMAGE", "quay.io/fedora/fedora:40")
	t.Setenv("AUTOENG_SANDBOX_NETWORK", "pasta")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/usr/local/bin/podman", cfg.Sandbox.PodmanPath)
	assert.Equal(t, "quay.io/fedora/fedora:40", cfg.Sandbox.Image)
	assert.Equal(t, "pasta", cfg.Sandbox.Network)
}

func TestEnvOverrides_DB(t *testing.T) {
	t.Setenv("AUTOENG_DB", "/tmp/test.db")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
}

func TestEnvOverrides_Debug(t *testing.T) {
	tests := []struct {
		value     string
		startWith bool
		want      bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"false", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("AUTOENG_DEBUG", tt.value)

			cfg := DefaultConfig()
			cfg.Logging.DebugMode = tt.startWith
			cfg.applyEnvOverrides()

			assert.Equal(t, tt.want, cfg.Logging.DebugMode)
		})
	}
}

func TestEnvOverrides_AppliedByLoad(t *testing.T) {
	t.Setenv("AUTOENG_SANDBOX_IMAGE", "env-image")

	cfg, err := Load(DefaultPath(t.TempDir()))
	assert.NoError(t, err)
	assert.Equal(t, "env-image", cfg.Sandbox.Image)
}
