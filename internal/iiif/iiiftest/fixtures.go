// Package iiiftest provides IIIF documents for tests.
package iiiftest

import (
	"encoding/json"
	"fmt"
)

// MultilingualManifest is a v3 manifest with a three-language label and
// metadata pair, one canvas, one annotation page and one painting
// annotation.
const MultilingualManifest = `{
  "@context": "http://iiif.io/api/presentation/3/context.json",
  "id": "https://iiif.example.org/multilingual/manifest.json",
  "type": "Manifest",
  "label": {
    "en": ["Manifest label"],
    "de": ["Manifestetikett"],
    "fr": ["Libellé du manifeste"]
  },
  "metadata": [
    {
      "label": {"en": ["Author"], "de": ["Urheber"], "fr": ["Auteur"]},
      "value": {"en": ["Manifest author"], "de": ["Manifester urheber"], "fr": ["Auteur du manifeste"]}
    }
  ],
  "items": [
    {
      "id": "https://iiif.example.org/multilingual/canvas/p1",
      "type": "Canvas",
      "label": {
        "en": ["Canvas label"],
        "de": ["Canvas-Etikett"],
        "fr": ["Libellé du toile"]
      },
      "height": 1800,
      "width": 1200,
      "items": [
        {
          "id": "https://iiif.example.org/multilingual/page/p1/1",
          "type": "AnnotationPage",
          "items": [
            {
              "id": "https://iiif.example.org/multilingual/annotation/p0001-image",
              "type": "Annotation",
              "motivation": "painting",
              "body": {
                "id": "https://iiif.example.org/images/p1/full/max/0/default.jpg",
                "type": "Image",
                "format": "image/jpeg",
                "service": [{"id": "https://iiif.example.org/images/p1", "type": "ImageService3", "profile": "level1"}]
              },
              "target": "https://iiif.example.org/multilingual/canvas/p1"
            }
          ]
        }
      ]
    }
  ]
}`

// SimpleManifest is the three-indexable manifest: an English label, one
// canvas label and an Author metadata pair.
const SimpleManifest = `{
  "@context": "http://iiif.io/api/presentation/3/context.json",
  "id": "https://iiif.example.org/simple/manifest.json",
  "type": "Manifest",
  "label": {"en": ["Manifest label"]},
  "metadata": [
    {"label": {"en": ["Author"]}, "value": {"en": ["Manifest author"]}}
  ],
  "items": [
    {
      "id": "https://iiif.example.org/simple/canvas/p1",
      "type": "Canvas",
      "label": {"en": ["Canvas label"]},
      "height": 1000,
      "width": 750
    }
  ]
}`

// ManifestWithCanvases builds a v3 manifest with n label-less canvases
// directly under items.
func ManifestWithCanvases(id string, n int) []byte {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"id":   fmt.Sprintf("%s/canvas/%d", id, i+1),
			"type": "Canvas",
		}
	}
	return mustJSON(map[string]any{
		"@context": "http://iiif.io/api/presentation/3/context.json",
		"id":       id,
		"type":     "Manifest",
		"label":    map[string]any{"en": []string{"Manifest " + id}},
		"items":    items,
	})
}

// Manifest builds a v3 manifest with the given label, summary and metadata
// pairs (label text to value text, English). Canvas labels become one canvas
// each.
func Manifest(id, label, summary string, metadata map[string]string, canvasLabels ...string) []byte {
	m := map[string]any{
		"@context": "http://iiif.io/api/presentation/3/context.json",
		"id":       id,
		"type":     "Manifest",
		"label":    map[string]any{"en": []string{label}},
	}
	if summary != "" {
		m["summary"] = map[string]any{"en": []string{summary}}
	}
	var md []map[string]any
	for k, v := range metadata {
		md = append(md, map[string]any{
			"label": map[string]any{"en": []string{k}},
			"value": map[string]any{"en": []string{v}},
		})
	}
	if len(md) > 0 {
		m["metadata"] = md
	}
	var items []map[string]any
	for i, cl := range canvasLabels {
		items = append(items, map[string]any{
			"id":    fmt.Sprintf("%s/canvas/%d", id, i+1),
			"type":  "Canvas",
			"label": map[string]any{"en": []string{cl}},
		})
	}
	if len(items) > 0 {
		m["items"] = items
	}
	return mustJSON(m)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
