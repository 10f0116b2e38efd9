package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	newCLIEnv(t)
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: every command is listed
	require.NoError(t, err)
	output := buf.String()
	for _, name := range []string{"init", "ingest", "search", "show", "list", "delete", "reindex", "contexts", "check", "stats", "doctor", "serve", "watch", "logs", "version"} {
		assert.Contains(t, output, name)
	}
	assert.Contains(t, output, "--data-dir")
	assert.Contains(t, output, "--config-dir")
	assert.Contains(t, output, "--profile-cpu")
}

func TestRootCmd_GlobalFlagsResetPerCommand(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "--debug", "version", "--short")
	require.NoError(t, err)
	assert.True(t, debugMode)

	_, err = env.run(t, "version", "--short")
	require.NoError(t, err)
	assert.False(t, debugMode)
}

func TestRootCmd_UnknownCommandFails(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "frobnicate")

	assert.Error(t, err)
}

func TestRootCmd_WritesRequestedProfiles(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	heap := filepath.Join(dir, "heap.prof")
	cpu := filepath.Join(dir, "cpu.prof")

	env.mustRun(t, "--profile-cpu", cpu, "--profile-mem", heap, "version", "--short")

	for _, path := range []string{cpu, heap} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
	assert.Nil(t, profiler)
}
