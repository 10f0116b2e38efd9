package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

const simpleManifestID = "https://iiif.example.org/simple/manifest.json"

type ingestJSON struct {
	RootID      string         `json:"root_id"`
	RootType    string         `json:"root_type"`
	RootCreated bool           `json:"root_created"`
	Resource    map[string]any `json:"resource"`
	ResourceIDs []string       `json:"resource_ids"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Indexables  int            `json:"indexables"`
}

type searchJSON struct {
	Count   int              `json:"count"`
	Page    int              `json:"page"`
	Results []map[string]any `json:"results"`
}

// ingestSimple ingests the simple manifest into project:demo.
func ingestSimple(t *testing.T, env *cliEnv) ingestJSON {
	t.Helper()
	var reports []ingestJSON
	env.runJSON(t, &reports, "ingest", writeManifest(t, t.TempDir()), "--context", "project:demo")
	require.Len(t, reports, 1)
	return reports[0]
}

func TestInitCmd_WritesConfigOnce(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "init")
	assert.Contains(t, out, ".iiifstore.yaml")
	data, err := os.ReadFile(filepath.Join(env.configDir, projectConfigFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "canonical_hostname")
	assert.Contains(t, string(data), env.dataDir)

	_, err = env.run(t, "init")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeConfigInvalid))

	env.mustRun(t, "init", "--force")
}

func TestIngestCmd_FileAndStdin(t *testing.T) {
	// Given: an empty store
	env := newCLIEnv(t)

	// When: the manifest is ingested from a file, then again from stdin
	first := ingestSimple(t, env)
	env.stdin = stdinManifest()
	var again []ingestJSON
	env.runJSON(t, &again, "ingest", "-")

	// Then: the second ingest updates the same resources in place
	assert.Equal(t, "manifest", first.RootType)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 3, first.Indexables)
	require.Len(t, again, 1)
	assert.Equal(t, first.RootID, again[0].RootID)
	assert.Equal(t, 0, again[0].Created)
	assert.Equal(t, 2, again[0].Updated)
}

func TestIngestCmd_RendersRootAsCreatedThenUpdated(t *testing.T) {
	// Given: an empty store
	env := newCLIEnv(t)

	// When: the same manifest is ingested twice
	first := ingestSimple(t, env)
	second := ingestSimple(t, env)

	// Then: each report carries the root in the detail view
	assert.True(t, first.RootCreated)
	assert.False(t, second.RootCreated)
	for _, report := range []ingestJSON{first, second} {
		require.NotNil(t, report.Resource)
		assert.Equal(t, report.RootID, report.Resource["id"])
		assert.Equal(t, simpleManifestID, report.Resource["original_id"])
		assert.Equal(t, "manifest", report.Resource["iiif_type"])
		assert.Equal(t, "http://localhost:8000/iiif/manifest/"+report.RootID, report.Resource["canonical_id"])
		assert.Contains(t, report.Resource, "contexts")
	}

	// And: the text output names the outcome
	out := env.mustRun(t, "ingest", writeManifest(t, t.TempDir()))
	assert.Contains(t, out, "Updated")
	assert.Contains(t, out, "Manifest label")
}

func TestIngestCmd_NoCascadeStoresRootOnly(t *testing.T) {
	env := newCLIEnv(t)

	var reports []ingestJSON
	env.runJSON(t, &reports, "ingest", writeManifest(t, t.TempDir()), "--no-cascade")

	require.Len(t, reports, 1)
	assert.Equal(t, []string{reports[0].RootID}, reports[0].ResourceIDs)
}

func TestIngestCmd_Errors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "ingest", filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeFileNotFound))

	_, err = env.run(t, "ingest", writeManifest(t, t.TempDir()), "--context", "project:")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidInput))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "Manifest",`), 0o644))
	_, err = env.run(t, "ingest", bad)
	assert.Error(t, err)
}

func TestSearchCmd(t *testing.T) {
	env := newCLIEnv(t)
	report := ingestSimple(t, env)

	t.Run("fulltext", func(t *testing.T) {
		var res searchJSON
		env.runJSON(t, &res, "search", "author")
		assert.Equal(t, 1, res.Count)
		require.Len(t, res.Results, 1)
		assert.Equal(t, report.RootID, res.Results[0]["id"])
		assert.Contains(t, res.Results[0]["snippet"], "<b>author</b>")
	})

	t.Run("everything", func(t *testing.T) {
		var res searchJSON
		env.runJSON(t, &res, "search")
		assert.Equal(t, 2, res.Count)
		assert.Equal(t, 1, res.Page)
	})

	t.Run("facet and type", func(t *testing.T) {
		var res searchJSON
		env.runJSON(t, &res, "search", "--facet", "metadata:author=manifest author", "--type", "manifest")
		assert.Equal(t, 1, res.Count)
	})

	t.Run("facet on wrong subtype", func(t *testing.T) {
		var res searchJSON
		env.runJSON(t, &res, "search", "--facet", "metadata:title=manifest author")
		assert.Equal(t, 0, res.Count)
	})

	t.Run("context scope", func(t *testing.T) {
		var res searchJSON
		env.runJSON(t, &res, "search", "--context", "demo", "--type", "canvas")
		assert.Equal(t, 1, res.Count)
		env.runJSON(t, &res, "search", "--context", "other")
		assert.Equal(t, 0, res.Count)
	})

	t.Run("text output", func(t *testing.T) {
		out := env.mustRun(t, "search", "label")
		assert.Contains(t, out, `Found 2 results for "label"`)
		assert.Contains(t, out, "Manifest label (manifest")
		assert.Contains(t, out, "**label**")
	})

	t.Run("no results", func(t *testing.T) {
		out := env.mustRun(t, "search", "zebra")
		assert.Contains(t, out, `No results found for "zebra"`)
	})

	t.Run("unknown resource class", func(t *testing.T) {
		_, err := env.run(t, "search", "--filter", "nonsense.label exact x")
		assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidResourceClass))
	})
}

func TestShowCmd(t *testing.T) {
	env := newCLIEnv(t)
	report := ingestSimple(t, env)

	out := env.mustRun(t, "show", simpleManifestID)
	assert.Contains(t, out, "Manifest label")
	assert.Contains(t, out, report.RootID)

	iiifOut := env.mustRun(t, "show", report.RootID, "--iiif")
	assert.Contains(t, iiifOut, `"id": "http://localhost:8000/iiif/manifest/`+report.RootID+`"`)
	assert.Contains(t, iiifOut, "http://localhost:8000/iiif/canvas/")

	var doc map[string]any
	env.runJSON(t, &doc, "show", report.RootID)
	assert.Equal(t, simpleManifestID, doc["original_id"])
	assert.Equal(t, "http://localhost:8000/iiif/manifest/"+report.RootID, doc["canonical_id"])

	var raw map[string]any
	env.runJSON(t, &raw, "show", report.RootID, "--iiif")
	assert.Equal(t, "Manifest", raw["type"])
	assert.NotContains(t, raw, "canonical_id")

	_, err := env.run(t, "show", "missing")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound))
}

func TestListAndContextsCmd(t *testing.T) {
	env := newCLIEnv(t)
	ingestSimple(t, env)

	var listed struct {
		Count   int              `json:"count"`
		Results []map[string]any `json:"results"`
	}
	env.runJSON(t, &listed, "list")
	assert.Equal(t, 2, listed.Count)
	assert.Len(t, listed.Results, 2)

	env.runJSON(t, &listed, "list", "--type", "canvas")
	assert.Equal(t, 1, listed.Count)

	out := env.mustRun(t, "list")
	assert.Contains(t, out, "Canvas label")

	var contexts []map[string]any
	env.runJSON(t, &contexts, "contexts")
	require.Len(t, contexts, 1)
	assert.Equal(t, "project:demo", contexts[0]["id"])
	assert.EqualValues(t, 2, contexts[0]["resources"])
}

func TestReindexAndCheckCmd(t *testing.T) {
	env := newCLIEnv(t)
	ingestSimple(t, env)

	var reindex struct {
		Resources  int `json:"resources"`
		Indexables int `json:"indexables"`
	}
	env.runJSON(t, &reindex, "reindex")
	assert.Equal(t, 2, reindex.Resources)
	assert.Equal(t, 3, reindex.Indexables)

	env.runJSON(t, &reindex, "reindex", simpleManifestID)
	assert.Equal(t, 1, reindex.Resources)
	assert.Equal(t, 2, reindex.Indexables)

	var check CheckOutput
	env.runJSON(t, &check, "check")
	assert.True(t, check.Consistent)
	assert.Equal(t, 3, check.Documents)
	assert.EqualValues(t, 2, check.Store.Resources)

	out := env.mustRun(t, "check", "--repair")
	assert.Contains(t, out, "Text index is consistent")
}

func TestDeleteCmd_Cascades(t *testing.T) {
	// Given: a stored manifest with one canvas
	env := newCLIEnv(t)
	report := ingestSimple(t, env)

	// When: the manifest is deleted by its original id
	out := env.mustRun(t, "delete", simpleManifestID)

	// Then: the canvas and every indexable are gone too
	assert.Contains(t, out, "Deleted manifest "+report.RootID)
	var res searchJSON
	env.runJSON(t, &res, "search")
	assert.Equal(t, 0, res.Count)
	var check CheckOutput
	env.runJSON(t, &check, "check")
	assert.True(t, check.Consistent)
	assert.EqualValues(t, 0, check.Store.Indexables)
	assert.Equal(t, 0, check.Documents)
}

func TestDeleteCmd_JSONCarriesDeletedResource(t *testing.T) {
	env := newCLIEnv(t)
	report := ingestSimple(t, env)

	var deleted struct {
		ResourceIDs []string       `json:"resource_ids"`
		Indexables  int            `json:"indexables"`
		Resource    map[string]any `json:"resource"`
	}
	env.runJSON(t, &deleted, "delete", report.RootID)

	assert.Len(t, deleted.ResourceIDs, 2)
	assert.Equal(t, 3, deleted.Indexables)
	assert.Equal(t, map[string]any{
		"id":          report.RootID,
		"original_id": simpleManifestID,
		"iiif_type":   "manifest",
	}, deleted.Resource)
}

func TestAsyncIndexing_DrainsBeforeExit(t *testing.T) {
	// Given: deferred indexing enabled in the project config
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, projectConfigFile),
		[]byte("worker:\n  async: true\n  workers: 2\n  queue_size: 8\n"), 0o644))

	// When: a manifest is ingested
	var reports []ingestJSON
	env.runJSON(t, &reports, "ingest", writeManifest(t, t.TempDir()))

	// Then: indexing was deferred but finished before the command returned
	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].Indexables)
	var res searchJSON
	env.runJSON(t, &res, "search", "author")
	assert.Equal(t, 1, res.Count)
}

func TestLogsCmd(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "iiifstore.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	out := env.mustRun(t, "logs", "--file", path, "-n", "2")
	assert.Equal(t, "two\nthree\n", out)

	_, err := env.run(t, "logs", "--file", filepath.Join(t.TempDir(), "none.log"))
	assert.Error(t, err)
}

func TestServeCmd_RejectsUnknownTransport(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "serve", "--transport", "carrier-pigeon")

	require.Error(t, err)
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeConfigInvalid))
	assert.True(t, strings.Contains(err.Error(), "carrier-pigeon"))
}

func TestStatsCmd_ReportsRecordedQueries(t *testing.T) {
	// Given: query metrics enabled and two searches, one without results
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, projectConfigFile),
		[]byte("search:\n  query_metrics: true\n"), 0o644))
	ingestSimple(t, env)
	env.mustRun(t, "search", "author")
	env.mustRun(t, "search", "zebra")

	// When: reading the statistics
	var snap struct {
		TotalQueries      int64            `json:"total_queries"`
		ZeroResultCount   int64            `json:"zero_result_count"`
		TypeCounts        map[string]int64 `json:"type_counts"`
		ZeroResultQueries []string         `json:"zero_result_queries"`
	}
	env.runJSON(t, &snap, "stats")

	// Then: both searches were saved when their commands exited
	assert.EqualValues(t, 2, snap.TotalQueries)
	assert.EqualValues(t, 1, snap.ZeroResultCount)
	assert.EqualValues(t, 2, snap.TypeCounts["fulltext"])
	assert.Equal(t, []string{"zebra"}, snap.ZeroResultQueries)

	out := env.mustRun(t, "stats")
	assert.Contains(t, out, "Top terms")
	assert.Contains(t, out, "zebra")
}

func TestStatsCmd_NothingRecorded(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "stats")

	assert.Contains(t, out, "No queries recorded")
	assert.Contains(t, out, "search.query_metrics")
}
