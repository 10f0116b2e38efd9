package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/iiifstore/internal/iiif/iiiftest"
)

// cliEnv is an isolated home, config directory and data directory.
type cliEnv struct {
	configDir string
	dataDir   string
	stdin     io.Reader
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return &cliEnv{
		configDir: t.TempDir(),
		dataDir:   filepath.Join(t.TempDir(), "data"),
	}
}

// run executes the root command with the environment's global flags.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if e.stdin != nil {
		cmd.SetIn(e.stdin)
		e.stdin = nil
	}
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.Execute()
	_ = stopProfilingAndLogging(nil, nil)
	return buf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (e *cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := e.mustRun(t, append(args, "--json")...)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

// writeManifest writes the simple manifest fixture and returns its path.
func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "simple.json")
	require.NoError(t, os.WriteFile(path, []byte(iiiftest.SimpleManifest), 0o644))
	return path
}

func stdinManifest() io.Reader {
	return strings.NewReader(iiiftest.SimpleManifest)
}
