package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "goalflow.log")

	log, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	defer log.Close()

	zl := log.GetZerolog()
	zl.Info().Str("key", "value").Msg("hello from test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goalflow.log")

	log, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	defer log.Close()

	zl := log.GetZerolog()
	zl.Info().Msg("too quiet")
	zl.Warn().Msg("loud enough")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "too quiet")
	assert.Contains(t, string(data), "loud enough")
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goalflow.log")

	log, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	defer log.Close()

	log.SetLevel("error")
	zl := log.GetZerolog()
	zl.Warn().Msg("filtered after reload")

	log.SetLevel("not-a-level")
	zl = log.GetZerolog()
	zl.Error().Msg("still at error")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered after reload")
	assert.Contains(t, string(data), "still at error")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	log, err := New(Config{Level: "bogus", Console: false})
	require.NoError(t, err)
	defer log.Close()

	assert.Equal(t, "info", log.GetZerolog().GetLevel().String())
}
