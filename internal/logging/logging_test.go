package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Format: FormatJSON, Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Str("session", "abc").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"session":"abc"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestNew_FileCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meffec_server.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{Format: FormatConsole, File: path, Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("relay started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"relay started"`)
	assert.Contains(t, buf.String(), "relay started")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)

	_, _, err = New(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
