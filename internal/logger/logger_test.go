package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	log, closer, err := New(config.LogConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("provider failed", "provider", "openai")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "provider failed", entry["msg"])
	assert.Equal(t, "openai", entry["provider"])
}

func TestNewTextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	log, closer, err := New(config.LogConfig{Format: "text", Output: path})
	require.NoError(t, err)
	log.Info("listening", "addr", ":3000")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=listening")
	assert.Contains(t, string(data), "addr=:3000")
}

func TestNewStandardStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		_, closer, err := New(config.LogConfig{Output: output})
		require.NoError(t, err)
		assert.NoError(t, closer())
	}
}

func TestNewFailsOnUnwritablePath(t *testing.T) {
	_, _, err := New(config.LogConfig{Output: filepath.Join(t.TempDir(), "missing", "relay.log")})
	assert.Error(t, err)
}
