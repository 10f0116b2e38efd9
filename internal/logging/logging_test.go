package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config
	path := filepath.Join(t.TempDir(), "logs", "iiifstore.log")
	cfg := Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging an event
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("resource_saved", slog.String("id", "abc"))
	cleanup()

	// Then: the file holds one JSON line with the attributes
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "resource_saved", entry["msg"])
	assert.Equal(t, "abc", entry["id"])
}

func TestSetup_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iiifstore.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestSetup_NoOutputsDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()
	logger.Info("nowhere")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestServerConfig_NeverWritesStderr(t *testing.T) {
	cfg := ServerConfig("debug")
	assert.False(t, cfg.WriteToStderr)
	assert.Equal(t, "debug", cfg.Level)
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer with a tiny size limit
	path := filepath.Join(t.TempDir(), "iiifstore.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.maxSize = 64
	defer func() { _ = w.Close() }()

	// When: writing more than three files' worth
	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 8; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: backups exist up to maxFiles and no further
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestTail_LastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iiifstore.log")
	var sb strings.Builder
	for i := 1; i <= 5; i++ {
		sb.WriteString(fmt.Sprintf("line %d\n", i))
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	var out bytes.Buffer
	require.NoError(t, Tail(context.Background(), path, 2, false, &out))

	assert.Equal(t, "line 4\nline 5\n", out.String())
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	_, err := FindLogFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}
