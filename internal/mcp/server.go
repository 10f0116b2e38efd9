package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/iiifstore/internal/async"
	"github.com/Aman-CERP/iiifstore/internal/config"
	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/view"
	"github.com/Aman-CERP/iiifstore/pkg/version"
)

const serverName = "iiifstore"

// Server is the MCP server for iiifstore. It exposes search and read
// access to the store over stdio.
type Server struct {
	mcp     *mcp.Server
	engine  *search.Engine
	service *ingest.Service
	config  *config.Config
	logger  *slog.Logger

	// Deferred indexing progress (nil when indexing is synchronous)
	progress *async.IndexProgress

	mu sync.RWMutex
}

// NewServer creates a new MCP server and registers its tools and resource
// templates.
func NewServer(engine *search.Engine, service *ingest.Service, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if service == nil {
		return nil, errors.New("ingest service is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:  engine,
		service: service,
		config:  cfg,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetIndexProgress sets the deferred indexing progress tracker reported by
// index_status.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = progress
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Search stored IIIF resources. Combines full-text search over labels, summaries and metadata " +
			"with facets on indexable type/subtype/value, resource and context filters, sort order and paging. " +
			"An empty request lists every resource.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_resource",
		Description: "Fetch one stored IIIF resource by internal id or original IIIF id. Set iiif=true for the stored IIIF JSON.",
	}, s.mcpGetResourceHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_contexts",
		Description: "List the contexts (type:slug) resources are grouped under, with resource counts.",
	}, s.mcpListContextsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report store and text index counts, deferred indexing progress and, on request, index consistency.",
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

// mcpSearchHandler is the MCP SDK handler for the search tool. The
// structured content is the search view of each result; the text content
// is markdown.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input search.Request) (
	*mcp.CallToolResult,
	any,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.Fulltext != "" && strings.TrimSpace(input.Fulltext) == "" {
		return nil, nil, NewInvalidParamsError("fulltext cannot be whitespace only")
	}

	resp, err := s.engine.Query(ctx, &input)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}

	v := view.For(view.OpSearch)
	v.ThumbnailWidth = s.config.Images.ThumbnailWidth
	results := make([]view.Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		doc, err := v.Result(r)
		if err != nil {
			return nil, nil, MapError(ierrors.InternalError("failed to render result", err))
		}
		results = append(results, doc)
	}

	s.logger.Info("mcp_search",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("count", resp.Count))

	out := map[string]any{
		"count":     resp.Count,
		"page":      resp.Page,
		"page_size": resp.PageSize,
		"results":   results,
	}
	return textResult(FormatSearchResults(&input, resp)), out, nil
}

// mcpGetResourceHandler is the MCP SDK handler for the get_resource tool.
func (s *Server) mcpGetResourceHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetResourceInput) (
	*mcp.CallToolResult,
	any,
	error,
) {
	ref := strings.TrimSpace(input.ID)
	if ref == "" {
		return nil, nil, NewInvalidParamsError("id parameter is required")
	}

	r, err := s.service.Lookup(ctx, ref)
	if err != nil {
		if ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound) {
			return nil, nil, NewResourceNotFoundError(ref)
		}
		return nil, nil, MapError(err)
	}

	op := view.OpRetrieve
	if input.IIIF {
		op = view.OpIIIF
	}
	v := view.For(op)
	v.ThumbnailWidth = s.config.Images.ThumbnailWidth
	return nil, v.Resource(r), nil
}

// mcpListContextsHandler is the MCP SDK handler for the list_contexts tool.
func (s *Server) mcpListContextsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListContextsInput) (
	*mcp.CallToolResult,
	any,
	error,
) {
	contexts, err := s.service.Store().ListContexts(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	v := view.For(view.OpContext)
	docs := make([]view.Document, 0, len(contexts))
	for _, c := range contexts {
		docs = append(docs, v.Context(c))
	}
	return textResult(FormatContexts(contexts)), map[string]any{"contexts": docs}, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.indexStatus(ctx, input.Check)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

func (s *Server) indexStatus(ctx context.Context, check bool) (*IndexStatusOutput, error) {
	st := s.service.Store()
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, err
	}

	backend := s.config.Search.Backend
	if backend == "" {
		backend = "bleve"
	}
	output := &IndexStatusOutput{
		DataDir: st.DataDir(),
		Store:   *stats,
		TextIndex: TextIndexInfo{
			Backend:   backend,
			Documents: s.service.Index().Stats().DocumentCount,
		},
	}

	if check {
		result, err := s.service.Check(ctx)
		if err != nil {
			return nil, err
		}
		orphans, missing := result.Counts()
		output.Consistency = &ConsistencyInfo{
			Checked:    result.Checked,
			Orphans:    orphans,
			Missing:    missing,
			Consistent: orphans == 0 && missing == 0,
		}
	}

	s.mu.RLock()
	progress := s.progress
	s.mu.RUnlock()
	if progress != nil {
		snap := progress.Snapshot()
		output.Worker = &snap
	}
	return output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return ierrors.New(ierrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown transport: %s", transport), nil).
			WithSuggestion("Use server.transport: stdio")
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
