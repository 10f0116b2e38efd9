package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/iiifstore/internal/async"
	"github.com/Aman-CERP/iiifstore/internal/config"
	"github.com/Aman-CERP/iiifstore/internal/iiif/iiiftest"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

type testEnv struct {
	server  *Server
	service *ingest.Service
	session *mcp.ClientSession
	rootID  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(store.Options{CanonicalHostname: "https://store.example.org", ResourcePath: "iiif"})
	require.NoError(t, err)
	idx, err := index.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
		_ = s.Close()
	})

	svc, err := ingest.NewService(s, idx, ingest.DefaultConfig())
	require.NoError(t, err)
	report, err := svc.Ingest(ctx, []byte(iiiftest.SimpleManifest), ingest.IngestOptions{
		Cascade:  true,
		Contexts: []store.Context{{Type: "project", Slug: "demo"}},
	})
	require.NoError(t, err)

	engine, err := search.NewEngine(s, idx, search.DefaultEngineConfig())
	require.NoError(t, err)
	srv, err := NewServer(engine, svc, config.NewConfig(), nil)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return &testEnv{server: srv, service: svc, session: cs, rootID: report.RootID}
}

func (e *testEnv) call(t *testing.T, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	return e.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
}

func structured(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func wireCode(t *testing.T, err error) int64 {
	t.Helper()
	var wire *jsonrpc.Error
	require.True(t, errors.As(err, &wire), "expected a JSON-RPC error, got %v", err)
	return wire.Code
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestServer_ListsTools(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "get_resource", "list_contexts", "index_status"}, names)
}

func TestSearchTool_FulltextFindsManifest(t *testing.T) {
	// Given: the simple manifest is stored
	env := newTestEnv(t)

	// When: searching for a word of its metadata
	res, err := env.call(t, "search", map[string]any{"fulltext": "author"})

	// Then: the manifest is the single result, with a highlighted snippet
	require.NoError(t, err)
	require.False(t, res.IsError)
	out := structured(t, res)
	assert.EqualValues(t, 1, out["count"])
	results := out["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, env.rootID, first["id"])
	assert.Contains(t, first["snippet"], "<b>author</b>")

	require.NotEmpty(t, res.Content)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, `## Search Results for "author"`)
	assert.Contains(t, text, "Manifest label")
}

func TestSearchTool_EmptyRequestListsEverything(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.call(t, "search", map[string]any{})

	require.NoError(t, err)
	assert.EqualValues(t, 2, structured(t, res)["count"])
}

func TestSearchTool_InvalidResourceClassIsInvalidParams(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.call(t, "search", map[string]any{
		"resource_filters": []any{
			map[string]any{"resource_class": "nonsense", "field": "label", "operator": "exact", "value": "x"},
		},
	})

	require.Error(t, err)
	assert.EqualValues(t, jsonrpc.CodeInvalidParams, wireCode(t, err))
}

func TestGetResourceTool(t *testing.T) {
	env := newTestEnv(t)

	t.Run("by original id", func(t *testing.T) {
		res, err := env.call(t, "get_resource", map[string]any{"id": "https://iiif.example.org/simple/manifest.json"})
		require.NoError(t, err)
		out := structured(t, res)
		assert.Equal(t, env.rootID, out["id"])
		assert.Equal(t, "manifest", out["iiif_type"])
	})

	t.Run("iiif json", func(t *testing.T) {
		res, err := env.call(t, "get_resource", map[string]any{"id": env.rootID, "iiif": true})
		require.NoError(t, err)
		out := structured(t, res)
		assert.Equal(t, "https://store.example.org/iiif/manifest/"+env.rootID, out["id"])
		assert.Equal(t, "Manifest", out["type"])
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := env.call(t, "get_resource", map[string]any{"id": "missing"})
		require.Error(t, err)
		assert.EqualValues(t, ErrCodeResourceNotFound, wireCode(t, err))
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := env.call(t, "get_resource", map[string]any{"id": " "})
		require.Error(t, err)
		assert.EqualValues(t, jsonrpc.CodeInvalidParams, wireCode(t, err))
	})
}

func TestListContextsTool(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.call(t, "list_contexts", nil)

	require.NoError(t, err)
	contexts := structured(t, res)["contexts"].([]any)
	require.Len(t, contexts, 1)
	c := contexts[0].(map[string]any)
	assert.Equal(t, "project:demo", c["id"])
	assert.EqualValues(t, 2, c["resources"])
}

func TestIndexStatusTool(t *testing.T) {
	// Given: a server reporting worker progress
	env := newTestEnv(t)
	env.server.SetIndexProgress(async.NewIndexProgress())

	// When: index_status is called with a consistency check
	res, err := env.call(t, "index_status", map[string]any{"check": true})

	// Then: counts, consistency and worker state are reported
	require.NoError(t, err)
	out := structured(t, res)
	st := out["store"].(map[string]any)
	assert.EqualValues(t, 2, st["resources"])
	assert.EqualValues(t, 3, st["indexables"])
	ti := out["text_index"].(map[string]any)
	assert.Equal(t, "bleve", ti["backend"])
	assert.EqualValues(t, 3, ti["documents"])
	cons := out["consistency"].(map[string]any)
	assert.Equal(t, true, cons["consistent"])
	worker := out["worker"].(map[string]any)
	assert.Equal(t, "idle", worker["status"])
}

func TestReadResource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: resourceURIPrefix + env.rootID})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].MIMEType, "presentation/3")
	assert.Contains(t, res.Contents[0].Text, env.rootID)

	_, err = env.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: resourceURIPrefix + "nope"})
	require.Error(t, err)
	assert.EqualValues(t, mcp.CodeResourceNotFound, wireCode(t, err))
}
