package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-contacts/internal/config"
)

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "contacts.log")
	logger, err := New(config.Log{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("contacts loaded")
	logger.Debug("hidden below info")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "contacts loaded")
	assert.False(t, strings.Contains(string(data), "hidden below info"))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.Log{Level: "loud", Format: "console"})
	assert.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(config.Log{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
