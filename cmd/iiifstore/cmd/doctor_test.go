package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

func TestDoctorCmd_FreshDataDir(t *testing.T) {
	env := newCLIEnv(t)

	var res struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	env.runJSON(t, &res, "doctor")

	assert.Equal(t, "ready_with_warnings", res.Status)
	statuses := make(map[string]string)
	for _, c := range res.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, "PASS", statuses["config"])
	assert.Equal(t, "PASS", statuses["database"])
	assert.Equal(t, "WARN", statuses["canonical_hostname"])
}

func TestDoctorCmd_InvalidConfigFails(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, projectConfigFile),
		[]byte("search:\n  backend: elastic\n"), 0o644))

	out, err := env.run(t, "doctor")

	require.Error(t, err)
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeConfigInvalid))
	assert.Contains(t, out, "[FAIL] config")
	assert.NotContains(t, out, "database")
}
