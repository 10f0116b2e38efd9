package iiif

import (
	"fmt"
	"strings"
)

// FirstCanvas returns the canvas that represents n.
//
// A canvas is its own first canvas. For a range the first canvas or
// specific resource among its items is looked up by id (without fragment)
// in manifest; when manifest is nil only an embedded canvas that carries
// its own content can be returned. Anything else yields its first canvas
// descendant.
func FirstCanvas(n, manifest *Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindCanvas:
		return n
	case KindRange:
		ref := Find(n, KindCanvas, KindSpecificResource)
		if ref == nil {
			return nil
		}
		canvasID := stripFragment(canvasRef(ref))
		if canvasID == "" {
			return nil
		}
		if manifest == nil {
			if ref.Kind == KindCanvas && len(ref.Items()) > 0 {
				return ref
			}
			return nil
		}
		for _, c := range manifest.Canvases() {
			if c.ID == canvasID {
				return c
			}
		}
		return nil
	default:
		return Find(n, KindCanvas)
	}
}

// canvasRef returns the id a canvas reference points at. Specific resources
// point through "source", which may be a string or an object.
func canvasRef(ref *Node) string {
	if ref.Kind == KindSpecificResource {
		switch src := ref.Raw["source"].(type) {
		case string:
			return src
		case map[string]any:
			return idOf(src)
		}
	}
	return ref.ID
}

func stripFragment(id string) string {
	if i := strings.IndexByte(id, '#'); i >= 0 {
		return id[:i]
	}
	return id
}

// ThumbnailCandidates returns n's own thumbnail list or, when absent, the
// first painting image body on firstCanvas. It returns nil when neither
// exists.
func ThumbnailCandidates(n, firstCanvas *Node) []map[string]any {
	if n != nil {
		if thumbs := objectList(n.Raw["thumbnail"]); len(thumbs) > 0 {
			return thumbs
		}
	}
	if firstCanvas == nil {
		return nil
	}
	var body map[string]any
	Walk(firstCanvas, func(c *Node) bool {
		if c.Kind != KindAnnotation || !isPainting(c) {
			return true
		}
		if b := annotationBody(c); b != nil && ParseKind(typeOf(b)) == KindImage {
			body = b
			return false
		}
		return true
	})
	if body == nil {
		return nil
	}
	return []map[string]any{body}
}

func isPainting(a *Node) bool {
	m, _ := a.Raw["motivation"].(string)
	return m == "painting" || m == "sc:painting"
}

// annotationBody returns a v3 body or a v2 resource.
func annotationBody(a *Node) map[string]any {
	for _, key := range []string{"body", "resource"} {
		switch b := a.Raw[key].(type) {
		case map[string]any:
			return b
		case []any:
			if len(b) > 0 {
				if m, ok := b[0].(map[string]any); ok {
					return m
				}
			}
		}
	}
	return nil
}

// PrimaryImage returns the first image resource of n.
//
// For v3 the first node exposing a body wins, depth-first through items.
// For v2 the sequences are searched: the sequence's startCanvas first, then
// the first canvas with an image. A bare v2 canvas yields its first image.
func PrimaryImage(n *Node) map[string]any {
	if n == nil {
		return nil
	}
	if n.Has("items") {
		return firstBody(n)
	}
	if n.Has("sequences") {
		for _, seq := range n.objects(asList(n.Raw["sequences"])) {
			if img := imageFromSequence(seq); img != nil {
				return img
			}
		}
		return nil
	}
	if n.Has("images") {
		return imageFromCanvas(n)
	}
	return nil
}

func firstBody(n *Node) map[string]any {
	if b, ok := n.Raw["body"].(map[string]any); ok {
		return b
	}
	for _, child := range n.objects(flattenOnce(n.Raw["items"])) {
		if b := firstBody(child); b != nil {
			return b
		}
	}
	return nil
}

func imageFromSequence(seq *Node) map[string]any {
	canvases := seq.objects(asList(seq.Raw["canvases"]))
	if start := startCanvasID(seq.Raw["startCanvas"]); start != "" {
		for _, c := range canvases {
			if c.ID == start {
				if img := imageFromCanvas(c); img != nil {
					return img
				}
			}
		}
	}
	for _, c := range canvases {
		if img := imageFromCanvas(c); img != nil {
			return img
		}
	}
	return nil
}

func startCanvasID(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		return idOf(s)
	}
	return ""
}

func imageFromCanvas(c *Node) map[string]any {
	for _, img := range c.objects(asList(c.Raw["images"])) {
		if res, ok := img.Raw["resource"].(map[string]any); ok {
			return res
		}
	}
	return nil
}

// ImageServices returns the IIIF image services of a content resource,
// ImageService3 first, then ImageService2 (by type or by a level profile).
func ImageServices(resource map[string]any) []map[string]any {
	var v3, v2 []map[string]any
	for _, svc := range objectList(resource["service"]) {
		t := typeOf(svc)
		profile := profileOf(svc)
		switch {
		case t == "ImageService3":
			v3 = append(v3, svc)
		case t == "ImageService2", strings.Contains(profile, "iiif.io/api/image/2"):
			v2 = append(v2, svc)
		case t == "ImageService1", strings.Contains(profile, "iiif.io/api/image/1"):
			v2 = append(v2, svc)
		}
	}
	return append(v3, v2...)
}

func profileOf(svc map[string]any) string {
	switch p := svc["profile"].(type) {
	case string:
		return p
	case []any:
		for _, item := range p {
			if s, ok := item.(string); ok {
				return s
			}
		}
	}
	return ""
}

// FormatThumbnailURL builds a fixed-width image URL from the first thumbnail:
// {service}/full/{width},/0/default.jpg. The service id is read from a
// dereferenced info.json when present, then from the service itself, and
// finally the thumbnail's own id is used.
func FormatThumbnailURL(thumbnails []map[string]any, width int) string {
	if len(thumbnails) == 0 {
		return ""
	}
	if width <= 0 {
		width = 400
	}
	thumb := thumbnails[0]
	base := ""
	if services := objectList(thumb["service"]); len(services) > 0 {
		if info, ok := services[0]["info"].(map[string]any); ok && idOf(info) != "" {
			base = idOf(info)
		} else {
			base = idOf(services[0])
		}
	}
	if base == "" {
		base = idOf(thumb)
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/full/%d,/0/default.jpg", strings.TrimSuffix(base, "/"), width)
}

func typeOf(m map[string]any) string {
	if s, ok := m["type"].(string); ok && s != "" {
		return s
	}
	s, _ := m["@type"].(string)
	return s
}

// objectList normalises a property that may be an object or a list of
// objects.
func objectList(v any) []map[string]any {
	var out []map[string]any
	for _, item := range asList(v) {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
