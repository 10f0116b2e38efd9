// Package decompose walks a IIIF tree into flat resource requests and
// "isPartOf" relationships.
package decompose

import (
	"fmt"
	"strings"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
)

// RelIsPartOf is the only relationship type produced: child isPartOf ancestor.
const RelIsPartOf = "isPartOf"

// DefaultMaxDepth bounds recursion when Options.MaxDepth is unset.
const DefaultMaxDepth = 64

// Options configures a decomposition.
type Options struct {
	// ResourceTypes lists the IIIF type names stored as resources,
	// compared case-insensitively. Empty means DefaultResourceTypes.
	ResourceTypes []string

	MaxDepth int
}

// DefaultResourceTypes are stored when Options.ResourceTypes is empty.
var DefaultResourceTypes = []string{"Manifest", "Canvas", "Range", "AnnotationPage", "Annotation"}

// ResourceRequest asks for one resource to be created or updated.
type ResourceRequest struct {
	OriginalID string
	Kind       iiif.Kind

	// IIIFType is the lowercased type name, e.g. "manifest".
	IIIFType string

	// Node is the resource's subtree. It shares memory with the input tree.
	Node *iiif.Node

	// Parent is the original id of the closest stored ancestor, "" for roots.
	Parent string
	Depth  int
}

// Edge is a directed relationship from Source to Target.
type Edge struct {
	Source string
	Target string
	Type   string
}

// Result is the output of Decompose, both lists in depth-first order.
type Result struct {
	Resources     []ResourceRequest
	Relationships []Edge
}

// Root returns the first resource request, or nil.
func (r *Result) Root() *ResourceRequest {
	if len(r.Resources) == 0 {
		return nil
	}
	return &r.Resources[0]
}

// Decompose parses raw IIIF JSON and decomposes it.
func Decompose(raw []byte, opts Options) (*Result, error) {
	root, err := iiif.Parse(raw)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeInvalidResource, "cannot parse IIIF resource", err)
	}
	return DecomposeNode(root, opts)
}

// DecomposeNode decomposes an already parsed tree.
//
// Every stored node gets one edge to each stored ancestor on its path, not
// only to its parent. Nodes of other types are transparent: their children
// are visited with the ancestor path unchanged. "structures" is followed on
// the root only. A stored node without an id fails the whole call.
//
// A node whose id was already emitted (a range pointing at a manifest's
// canvas) is not emitted again, but still gains edges to its current
// ancestors.
func DecomposeNode(root *iiif.Node, opts Options) (*Result, error) {
	d := newWalker(opts)
	if err := d.visit(root, nil, 0); err != nil {
		return nil, err
	}
	return &Result{Resources: d.resources, Relationships: d.edges}, nil
}

type walker struct {
	types     map[string]bool
	maxDepth  int
	resources []ResourceRequest
	edges     []Edge
	emitted   map[string]bool
	linked    map[Edge]bool
}

func newWalker(opts Options) *walker {
	names := opts.ResourceTypes
	if len(names) == 0 {
		names = DefaultResourceTypes
	}
	types := make(map[string]bool, len(names))
	for _, n := range names {
		types[strings.ToLower(n)] = true
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &walker{
		types:    types,
		maxDepth: maxDepth,
		emitted:  make(map[string]bool),
		linked:   make(map[Edge]bool),
	}
}

func (w *walker) visit(n *iiif.Node, ancestors []string, depth int) error {
	if depth > w.maxDepth {
		return ierrors.InvalidResource(fmt.Sprintf("IIIF tree exceeds maximum depth %d", w.maxDepth)).
			WithDetail("id", n.ID)
	}

	path := ancestors
	if w.stored(n) {
		if n.ID == "" {
			return ierrors.InvalidResource(fmt.Sprintf("%s at depth %d has no id", TypeName(n), depth)).
				WithDetail("type", TypeName(n))
		}
		if !w.emitted[n.ID] {
			w.emitted[n.ID] = true
			parent := ""
			if len(ancestors) > 0 {
				parent = ancestors[len(ancestors)-1]
			}
			w.resources = append(w.resources, ResourceRequest{
				OriginalID: n.ID,
				Kind:       n.Kind,
				IIIFType:   TypeName(n),
				Node:       n,
				Parent:     parent,
				Depth:      depth,
			})
		}
		for _, a := range ancestors {
			w.link(n.ID, a)
		}
		path = append(append([]string(nil), ancestors...), n.ID)
	}

	for _, child := range n.Items() {
		if err := w.visit(child, path, depth+1); err != nil {
			return err
		}
	}
	if depth == 0 {
		for _, rng := range n.Structures() {
			if err := w.visit(rng, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) link(source, target string) {
	if source == target {
		return
	}
	e := Edge{Source: source, Target: target, Type: RelIsPartOf}
	if w.linked[e] {
		return
	}
	w.linked[e] = true
	w.edges = append(w.edges, e)
}

func (w *walker) stored(n *iiif.Node) bool {
	return w.types[TypeName(n)]
}

// TypeName returns the lowercased type name of n: the kind's v3 name when
// the kind is known, otherwise the raw type without namespace.
func TypeName(n *iiif.Node) string {
	if n.Kind != iiif.KindUnknown {
		return strings.ToLower(n.Kind.String())
	}
	t := n.Type
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	return strings.ToLower(t)
}
