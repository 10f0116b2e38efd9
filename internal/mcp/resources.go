package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
)

const (
	resourceURIPrefix   = "iiif://resource/"
	resourceURITemplate = resourceURIPrefix + "{id}"
)

// registerResources exposes every stored resource's IIIF JSON through a
// URI template.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "iiif_resource",
		URITemplate: resourceURITemplate,
		Description: "Stored IIIF JSON of a resource, with canonical ids, by internal id",
		MIMEType:    "application/ld+json",
	}, s.handleReadResource)
}

// handleReadResource returns the stored IIIF JSON for an iiif://resource/{id}
// URI.
func (s *Server) handleReadResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, resourceURIPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	r, err := s.service.Get(ctx, id)
	if err != nil {
		if ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: mediaType(r.IIIFJSON),
				Text:     string(r.IIIFJSON),
			},
		},
	}, nil
}

// mediaType returns the JSON-LD media type with the presentation profile
// matching the document's version.
func mediaType(data []byte) string {
	n, err := iiif.Parse(data)
	if err != nil {
		return "application/ld+json"
	}
	switch n.Version {
	case iiif.V2:
		return `application/ld+json;profile="` + iiif.ContextV2 + `"`
	case iiif.V3:
		return `application/ld+json;profile="` + iiif.ContextV3 + `"`
	default:
		return "application/ld+json"
	}
}
