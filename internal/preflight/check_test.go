package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/iiifstore/internal/config"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{
			name:     "required pass is not critical",
			result:   CheckResult{Status: StatusPass, Required: true},
			expected: false,
		},
		{
			name:     "required fail is critical",
			result:   CheckResult{Status: StatusFail, Required: true},
			expected: true,
		},
		{
			name:     "optional fail is not critical",
			result:   CheckResult{Status: StatusFail, Required: false},
			expected: false,
		},
		{
			name:     "required warn is not critical",
			result:   CheckResult{Status: StatusWarn, Required: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_NewWithOptions(t *testing.T) {
	buf := &bytes.Buffer{}
	checker := New(WithVerbose(true), WithOutput(buf))

	assert.True(t, checker.verbose)
	assert.Equal(t, buf, checker.output)
}

func TestCheckStatus_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"WARN"`)
}

func TestChecker_HasCriticalFailures(t *testing.T) {
	checker := New()

	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{
			name:     "no results",
			results:  []CheckResult{},
			expected: false,
		},
		{
			name: "all pass",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusPass, Required: true},
			},
			expected: false,
		},
		{
			name: "warning only",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusWarn, Required: false},
			},
			expected: false,
		},
		{
			name: "optional failure",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusFail, Required: false},
			},
			expected: false,
		},
		{
			name: "required failure",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusFail, Required: true},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckWritePermissions_Writable(t *testing.T) {
	// Given: a writable directory
	tmpDir := t.TempDir()

	// When: checking write permissions
	checker := New()
	result := checker.CheckWritePermissions(tmpDir)

	// Then: passes
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "data_dir", result.Name)
	assert.True(t, result.Required)
}

func TestChecker_CheckWritePermissions_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	result := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusPass, result.Status)
	assert.DirExists(t, dir)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	// Given: a read-only directory (skip on CI/root)
	if os.Getuid() == 0 {
		t.Skip("Skipping read-only test when running as root")
	}

	tmpDir := t.TempDir()
	readOnlyDir := filepath.Join(tmpDir, "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0555))
	defer func() { _ = os.Chmod(readOnlyDir, 0755) }() // Restore for cleanup

	// When: checking write permissions
	checker := New()
	result := checker.CheckWritePermissions(readOnlyDir)

	// Then: fails
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "permission denied")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Server.CanonicalHostname = "https://iiif.example.org"
	return cfg
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	// Given: a configuration with a fresh data directory
	cfg := testConfig(t)
	checker := New()

	// When: running all checks
	results := checker.RunAll(context.Background(), cfg)

	// Then: every check ran and nothing critical failed
	byName := make(map[string]CheckResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"canonical_hostname", "data_dir", "disk_space", "file_descriptors", "database", "text_index"} {
		assert.Contains(t, byName, name)
	}
	assert.Equal(t, StatusPass, byName["canonical_hostname"].Status)
	assert.Equal(t, StatusPass, byName["database"].Status)
	assert.Contains(t, byName["database"].Message, "0 resources")
	assert.Equal(t, StatusWarn, byName["text_index"].Status)
}

func TestChecker_CheckCanonicalHostname_WarnsOnDefault(t *testing.T) {
	cfg := config.NewConfig()

	result := New().CheckCanonicalHostname(cfg)

	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
}

func TestChecker_CheckTextIndex_BackendMismatch(t *testing.T) {
	// Given: a sqlite index file while bleve is configured
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.DataDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.IndexBasePath()+".db", []byte{}, 0o644))

	// When: checking the text index
	result := New().CheckTextIndex(cfg)

	// Then: the mismatch is a warning
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "found a sqlite index")
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: some check results
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "50 GB free"},
		{Name: "text_index", Status: StatusWarn, Message: "not created yet"},
		{Name: "database", Status: StatusFail, Message: "cannot open", Required: true},
	}

	buf := &bytes.Buffer{}
	checker := New(WithOutput(buf))

	// When: printing results
	checker.PrintResults(results)

	// Then: output contains formatted results
	output := buf.String()
	assert.Contains(t, output, "[PASS]")
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "disk_space")
	assert.Contains(t, output, "Status: FAILED")
	assert.Contains(t, output, "1 error(s)")
	assert.Contains(t, output, "1 warning(s)")
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New()

	tests := []struct {
		name     string
		results  []CheckResult
		expected string
	}{
		{
			name: "all pass",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusPass},
			},
			expected: "ready",
		},
		{
			name: "with warnings",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusWarn},
			},
			expected: "ready_with_warnings",
		},
		{
			name: "with critical failure",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusFail, Required: true},
			},
			expected: "failed",
		},
		{
			name: "with optional failure",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusFail, Required: false},
			},
			expected: "ready_with_warnings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.SummaryStatus(tt.results))
		})
	}
}

func TestFileLimitResult_Tiers(t *testing.T) {
	tests := []struct {
		soft uint64
		want CheckStatus
	}{
		{256, StatusFail},
		{MinFileDescriptors - 1, StatusFail},
		{MinFileDescriptors, StatusWarn},
		{RecommendedFileDescriptors - 1, StatusWarn},
		{RecommendedFileDescriptors, StatusPass},
		{1 << 20, StatusPass},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.soft), func(t *testing.T) {
			result := fileLimitResult(CheckResult{Name: "file_descriptors", Required: true}, tt.soft)

			assert.Equal(t, tt.want, result.Status)
			assert.Contains(t, result.Message, fmt.Sprint(tt.soft))
			assert.Equal(t, tt.want != StatusPass, result.Details != "")
		})
	}
}

func TestDiskSpaceResult_FailsBelowMinimum(t *testing.T) {
	low := diskSpaceResult(CheckResult{Name: "disk_space", Required: true}, MinDiskSpaceBytes-1)
	assert.True(t, low.IsCritical())
	assert.NotEmpty(t, low.Details)

	ok := diskSpaceResult(CheckResult{Name: "disk_space", Required: true}, MinDiskSpaceBytes)
	assert.Equal(t, StatusPass, ok.Status)
	assert.Contains(t, ok.Message, "free")
}

func TestChecker_RunAll_SkipsDiskChecksWithoutDataDir(t *testing.T) {
	// Given: a data directory path that is a regular file
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Paths.DataDir, []byte("x"), 0o644))

	// When: running all checks
	results := New().RunAll(context.Background(), cfg)

	// Then: the data directory fails and nothing reads it
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"data_dir", "canonical_hostname", "file_descriptors"}, names)
	assert.True(t, results[0].IsCritical())
	assert.Contains(t, results[0].Message, "cannot create")
	assert.Equal(t, "failed", New().SummaryStatus(results))
}

func TestChecker_PrintResults_ListsOptionalFailureAsWarning(t *testing.T) {
	buf := &bytes.Buffer{}
	New(WithOutput(buf)).PrintResults([]CheckResult{
		{Name: "text_index", Status: StatusFail, Message: "unreadable", Details: "/data/fulltext"},
	})

	out := buf.String()
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
	assert.Contains(t, out, "1 warning(s):\n  - text_index: unreadable")
	assert.Contains(t, out, "/data/fulltext")
	assert.NotContains(t, out, "error(s)")
}
