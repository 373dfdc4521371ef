package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbtrade/mdstore/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	log, err = New(config.LoggingConfig{})
	require.NoError(t, err, "empty config falls back to info/json/stdout")
	assert.NotNil(t, log)

	_, err = New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = New(config.LoggingConfig{Format: "xml"})
	assert.Error(t, err)
	_, err = New(config.LoggingConfig{Output: "file"})
	assert.Error(t, err, "file output requires a path")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdstore.log")
	log, err := New(config.LoggingConfig{Output: "file", FilePath: path})
	require.NoError(t, err)

	log.Info("hello")
	assert.FileExists(t, path)
}

func TestForComponent(t *testing.T) {
	assert.NotNil(t, ForComponent(nil, "storage"))
	base, err := New(config.LoggingConfig{Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, ForComponent(base, "storage"))
}
