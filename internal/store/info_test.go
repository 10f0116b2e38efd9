package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048575, "1024.0 KB"},
		{1048576, "1.0 MB"},
		{104857600, "100.0 MB"},
		{1073741824, "1.0 GB"},
		{107374182400, "100.0 GB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatBytes(tc.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "2026-01-15 10:30:45", FormatTime(time.Date(2026, 1, 15, 10, 30, 45, 0, time.UTC)))
	assert.Equal(t, "never", FormatTime(time.Time{}))
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	assert.Equal(t, int64(0), getDirSize(tmpDir))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.txt"), make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "nested.txt"), make([]byte, 512), 0o644))

	assert.Equal(t, int64(1536), getDirSize(tmpDir))
	assert.Equal(t, int64(0), getDirSize("/nonexistent/path/that/does/not/exist"))
}

func TestDiskInfo_MeasuresDatabaseAndIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatabaseFile), make([]byte, 2048), 0o644))
	indexDir := filepath.Join(dir, "fulltext.bleve")
	require.NoError(t, os.MkdirAll(indexDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "seg"), make([]byte, 100), 0o644))

	info := DiskInfo(dir, indexDir)

	assert.Equal(t, int64(2048), info.DatabaseBytes)
	assert.Equal(t, int64(100), info.IndexBytes)
	assert.False(t, info.UpdatedAt.IsZero())
}
