package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.File = filepath.Join(t.TempDir(), "nav.log")
	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("tile built")
	_ = log.Sync()

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tile built")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}
