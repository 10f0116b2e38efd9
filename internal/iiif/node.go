package iiif

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the IIIF Presentation API version of a node.
type Version int

const (
	VersionUnknown Version = iota
	V2
	V3
)

// String returns a human-readable representation of the version.
func (v Version) String() string {
	switch v {
	case V2:
		return "2"
	case V3:
		return "3"
	default:
		return "unknown"
	}
}

// Context URIs of the Presentation API versions.
const (
	ContextV2 = "http://iiif.io/api/presentation/2/context.json"
	ContextV3 = "http://iiif.io/api/presentation/3/context.json"
)

// Kind is the resource variant of a node.
type Kind int

const (
	KindUnknown Kind = iota
	KindCollection
	KindManifest
	KindSequence
	KindCanvas
	KindRange
	KindAnnotationPage
	KindAnnotation
	KindSpecificResource
	KindImage
)

var kindNames = map[Kind]string{
	KindCollection:       "Collection",
	KindManifest:         "Manifest",
	KindSequence:         "Sequence",
	KindCanvas:           "Canvas",
	KindRange:            "Range",
	KindAnnotationPage:   "AnnotationPage",
	KindAnnotation:       "Annotation",
	KindSpecificResource: "SpecificResource",
	KindImage:            "Image",
}

// String returns the IIIF v3 type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ParseKind maps a v2 or v3 type name to a Kind. Namespace prefixes such as
// "sc:" and "oa:" are ignored, and v2 aliases map to their v3 kind.
func ParseKind(typeName string) Kind {
	name := typeName
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	switch strings.ToLower(name) {
	case "collection":
		return KindCollection
	case "manifest":
		return KindManifest
	case "sequence":
		return KindSequence
	case "canvas":
		return KindCanvas
	case "range":
		return KindRange
	case "annotationpage", "annotationlist":
		return KindAnnotationPage
	case "annotation":
		return KindAnnotation
	case "specificresource":
		return KindSpecificResource
	case "image":
		return KindImage
	default:
		return KindUnknown
	}
}

// Node is one IIIF resource with its detected kind and version.
// Raw holds the decoded JSON object and is shared, not copied.
type Node struct {
	Kind    Kind
	Version Version
	ID      string
	Type    string
	Raw     map[string]any
}

// Parse decodes raw JSON into a Node. Numbers keep their textual form.
func Parse(raw []byte) (*Node, error) {
	m, err := DecodeObject(raw)
	if err != nil {
		return nil, err
	}
	return FromMap(m, VersionUnknown), nil
}

// DecodeObject decodes a JSON object, keeping numbers as json.Number.
func DecodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid IIIF JSON: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid IIIF JSON: expected an object, got %T", v)
	}
	return m, nil
}

// FromMap wraps a decoded object. parent is the version of the enclosing
// node and is used when the object itself carries no version markers.
func FromMap(m map[string]any, parent Version) *Node {
	n := &Node{Raw: m}
	n.Version = detectVersion(m, parent)

	if s, ok := m["type"].(string); ok && s != "" {
		n.Type = s
	} else if s, ok := m["@type"].(string); ok {
		n.Type = s
	}
	n.Kind = ParseKind(n.Type)
	n.ID = idOf(m)
	return n
}

func detectVersion(m map[string]any, parent Version) Version {
	for _, c := range contexts(m["@context"]) {
		switch {
		case strings.Contains(c, "presentation/3"):
			return V3
		case strings.Contains(c, "presentation/2"):
			return V2
		}
	}
	if _, ok := m["@id"]; ok {
		if _, ok := m["@type"]; ok {
			return V2
		}
	}
	if _, ok := m["id"]; ok {
		if _, ok := m["type"]; ok {
			return V3
		}
	}
	if parent != VersionUnknown {
		return parent
	}
	return VersionUnknown
}

func contexts(v any) []string {
	switch c := v.(type) {
	case string:
		return []string{c}
	case []any:
		out := make([]string, 0, len(c))
		for _, item := range c {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func idOf(m map[string]any) string {
	if s, ok := m["id"].(string); ok && s != "" {
		return s
	}
	if s, ok := m["@id"].(string); ok {
		return s
	}
	return ""
}

// IDKey returns "id" or "@id", whichever the node uses. Nodes without either
// use the key of their version.
func (n *Node) IDKey() string {
	if _, ok := n.Raw["id"]; ok {
		return "id"
	}
	if _, ok := n.Raw["@id"]; ok {
		return "@id"
	}
	if n.Version == V2 {
		return "@id"
	}
	return "id"
}

// SetID rewrites the node's identifier in place.
func (n *Node) SetID(id string) {
	n.Raw[n.IDKey()] = id
	n.ID = id
}

// Get returns a raw property.
func (n *Node) Get(key string) any {
	return n.Raw[key]
}

// Has reports whether a property is present and non-null.
func (n *Node) Has(key string) bool {
	v, ok := n.Raw[key]
	return ok && v != nil
}

// MarshalJSON encodes the underlying object.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Raw)
}

// Items returns the node's child nodes. For v3 that is the items list, with
// nested lists flattened one level. For v2 the equivalent containers are
// used: a manifest's sequences' canvases, a sequence's canvases, a canvas's
// images and a range's canvases and ranges.
func (n *Node) Items() []*Node {
	if n.Has("items") {
		return n.objects(flattenOnce(n.Raw["items"]))
	}
	if n.Version != V2 {
		return nil
	}

	switch n.Kind {
	case KindManifest:
		var out []*Node
		for _, seq := range n.objects(asList(n.Raw["sequences"])) {
			out = append(out, seq.objects(asList(seq.Raw["canvases"]))...)
		}
		return out
	case KindSequence:
		return n.objects(asList(n.Raw["canvases"]))
	case KindCanvas:
		return n.objects(asList(n.Raw["images"]))
	case KindRange:
		var out []*Node
		out = append(out, n.refs(n.Raw["canvases"], "sc:Canvas")...)
		out = append(out, n.refs(n.Raw["ranges"], "sc:Range")...)
		return out
	default:
		return nil
	}
}

// Structures returns the ranges listed under "structures".
func (n *Node) Structures() []*Node {
	return n.objects(flattenOnce(n.Raw["structures"]))
}

// Canvases returns a manifest's canvases in order.
func (n *Node) Canvases() []*Node {
	var out []*Node
	for _, child := range n.Items() {
		if child.Kind == KindCanvas {
			out = append(out, child)
		}
	}
	return out
}

// objects wraps the object elements of a list as child nodes.
func (n *Node) objects(list []any) []*Node {
	out := make([]*Node, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, FromMap(m, n.Version))
		}
	}
	return out
}

// refs turns v2 id-only references into nodes of the given type.
func (n *Node) refs(v any, typeName string) []*Node {
	var out []*Node
	for _, item := range asList(v) {
		switch ref := item.(type) {
		case string:
			out = append(out, FromMap(map[string]any{"@id": ref, "@type": typeName}, V2))
		case map[string]any:
			out = append(out, FromMap(ref, n.Version))
		}
	}
	return out
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case nil:
		return nil
	default:
		return []any{l}
	}
}

// flattenOnce turns [[a, b], c] into [a, b, c].
func flattenOnce(v any) []any {
	list := asList(v)
	var out []any
	for _, item := range list {
		if inner, ok := item.([]any); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, item)
	}
	return out
}

// Walk visits n and its descendants depth-first until fn returns false.
func Walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Items() {
		if !Walk(child, fn) {
			return false
		}
	}
	return true
}

// Find returns the first descendant of n (excluding n) with one of kinds.
func Find(n *Node, kinds ...Kind) *Node {
	var found *Node
	for _, child := range n.Items() {
		Walk(child, func(c *Node) bool {
			for _, k := range kinds {
				if c.Kind == k {
					found = c
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}
