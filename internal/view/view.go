// Package view selects how resources, search results and contexts are
// represented for each operation. Every surface (CLI, MCP) resolves its
// representation through For.
package view

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/iiifstore/internal/iiif"
	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// Operation is a kind of request against the store.
type Operation int

// Operations.
const (
	OpList Operation = iota
	OpRetrieve
	OpCreate
	OpUpdate
	OpDelete
	OpSearch
	OpIIIF
	OpContext
)

var opNames = [...]string{"list", "retrieve", "create", "update", "delete", "search", "iiif", "context"}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("operation(%d)", int(o))
	}
	return opNames[o]
}

// ParseOperation parses an operation name.
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range opNames {
		if name == s {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// DefaultThumbnailWidth is the width of thumbnail URLs in views.
const DefaultThumbnailWidth = 400

// View is the representation used by one operation.
type View struct {
	Op Operation

	// Fields lists the keys of a rendered document, in order. Raw views
	// have none.
	Fields []string

	// Raw views render the stored IIIF JSON itself.
	Raw bool

	ThumbnailWidth int
}

var (
	summaryFields = []string{"id", "original_id", "iiif_type", "label", "thumbnail_url", "first_canvas_id", "contexts"}
	detailFields  = []string{
		"id", "canonical_id", "original_id", "iiif_type", "label", "thumbnail", "thumbnail_url",
		"metadata", "rights", "provider", "required_statement", "first_canvas_id", "contexts",
		"created_at", "updated_at",
	}
	deleteFields = []string{"id", "original_id", "iiif_type"}
	searchFields = []string{
		"id", "original_id", "iiif_type", "label", "thumbnail_url", "contexts", "rank", "snippet",
		"hits", "sortk", "metadata", "first_canvas_id", "rights", "provider", "required_statement",
		"matching_parts",
	}
	contextFields = []string{"id", "type", "slug", "resources"}
)

// For returns the view of op. Operations without their own representation
// use the summary view.
func For(op Operation) View {
	v := View{Op: op, ThumbnailWidth: DefaultThumbnailWidth}
	switch op {
	case OpList:
		v.Fields = summaryFields
	case OpRetrieve, OpCreate, OpUpdate:
		v.Fields = detailFields
	case OpDelete:
		v.Fields = deleteFields
	case OpSearch:
		v.Fields = searchFields
	case OpIIIF:
		v.Raw = true
	case OpContext:
		v.Fields = contextFields
	default:
		v.Fields = summaryFields
	}
	return v
}

// Resource renders a stored resource. Raw views return its IIIF JSON.
func (v View) Resource(r *store.Resource) any {
	if v.Raw {
		return json.RawMessage(r.IIIFJSON)
	}
	contexts := make([]map[string]string, 0, len(r.Contexts))
	for _, c := range r.Contexts {
		contexts = append(contexts, map[string]string{"id": c.ID, "type": c.Type, "slug": c.Slug})
	}
	values := map[string]any{
		"id":                 r.ID,
		"canonical_id":       canonicalID(r),
		"original_id":        r.OriginalID,
		"iiif_type":          r.IIIFType,
		"label":              r.LabelMap(),
		"thumbnail":          rawOrNil(r.Thumbnail),
		"thumbnail_url":      iiif.FormatThumbnailURL(r.ThumbnailList(), v.width()),
		"metadata":           rawOrNil(r.Metadata),
		"rights":             r.Rights,
		"provider":           rawOrNil(r.Provider),
		"required_statement": rawOrNil(r.RequiredStatement),
		"first_canvas_id":    r.FirstCanvasID,
		"contexts":           contexts,
		"created_at":         r.CreatedAt,
		"updated_at":         r.UpdatedAt,
	}
	return pick(values, v.Fields)
}

// Result renders a search result.
func (v View) Result(r *search.Result) (Document, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	out := make(Document, 0, len(v.Fields))
	for _, f := range v.Fields {
		if val, ok := values[f]; ok {
			out = append(out, Field{Key: f, Value: val})
		}
	}
	return out, nil
}

// Context renders a context with its resource count.
func (v View) Context(c store.ContextSummary) Document {
	return pick(map[string]any{
		"id":        c.ID,
		"type":      c.Type,
		"slug":      c.Slug,
		"resources": c.Resources,
	}, v.Fields)
}

func (v View) width() int {
	if v.ThumbnailWidth > 0 {
		return v.ThumbnailWidth
	}
	return DefaultThumbnailWidth
}

func canonicalID(r *store.Resource) string {
	obj, err := iiif.DecodeObject(r.IIIFJSON)
	if err != nil {
		return ""
	}
	return iiif.FromMap(obj, iiif.VersionUnknown).ID
}

func rawOrNil(data []byte) any {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.RawMessage(data)
}

func pick(values map[string]any, fields []string) Document {
	out := make(Document, 0, len(fields))
	for _, f := range fields {
		out = append(out, Field{Key: f, Value: values[f]})
	}
	return out
}

// Field is one key of a Document.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered JSON object.
type Document []Field

// MarshalJSON writes the fields in order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of key.
func (d Document) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// DisplayLabel picks one label value, preferring English, then "none",
// then the first language in sorted order.
func DisplayLabel(label map[string][]string, fallback string) string {
	for _, lang := range []string{"en", "none"} {
		if vs := label[lang]; len(vs) > 0 {
			return vs[0]
		}
	}
	langs := make([]string, 0, len(label))
	for lang := range label {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if vs := label[lang]; len(vs) > 0 {
			return vs[0]
		}
	}
	return fallback
}
