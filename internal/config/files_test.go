package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoengineer/internal/tools/files"
)

func TestFilesOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Files = FilesConfig{
		MaxReadSize:    "2KiB",
		MaxWriteSize:   "1 MB",
		AllowHidden:    false,
		MaxListEntries: 50,
	}

	ws, err := files.NewWorkspace(t.TempDir(), cfg.FilesOptions()...)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), ws.MaxReadBytes())
	assert.Equal(t, int64(1000000), ws.MaxWriteBytes())
	assert.False(t, ws.AllowHidden())
	assert.Equal(t, 50, ws.MaxListEntries())
}

func TestFilesOptions_BadSizesKeepDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Files.MaxReadSize = "lots"
	cfg.Files.MaxWriteSize = ""

	ws, err := files.NewWorkspace(t.TempDir(), cfg.FilesOptions()...)
	require.NoError(t, err)
	assert.Equal(t, files.DefaultMaxReadBytes, ws.MaxReadBytes())
	assert.Equal(t, files.DefaultMaxWriteBytes, ws.MaxWriteBytes())
}

func TestToCleanupConfig(t *testing.T) {
	cfg := DefaultConfig()
	cc := cfg.ToCleanupConfig()
	assert.Equal(t, 720*time.Hour, cc.Retention)
	assert.Equal(t, 10000, cc.MaxRows)

	cfg.Store.Retention = ""
	cfg.Store.MaxRows = 0
	cc = cfg.ToCleanupConfig()
	assert.Zero(t, cc.Retention)
	assert.Zero(t, cc.MaxRows)
}
