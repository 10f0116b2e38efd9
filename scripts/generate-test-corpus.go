//go:build ignore

// Package main generates a synthetic corpus of IIIF manifests for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -manifests 500 -output testdata/bench
//
// Roughly a third of the manifests use the Presentation 2 layout, the rest
// Presentation 3. Ingest them with: iiifstore ingest testdata/bench/*.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numManifests = flag.Int("manifests", 500, "Number of manifests to generate")
	maxCanvases  = flag.Int("canvases", 20, "Maximum canvases per manifest")
	outputDir    = flag.String("output", "testdata/bench", "Output directory")
	baseURL      = flag.String("base", "https://example.org/iiif", "Base URL for generated ids")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for generating plausible catalogue records
var (
	subjects = []string{
		"Herons", "Orchids", "Harbours", "Cathedrals", "Comets",
		"Lighthouses", "Ferns", "Mountains", "Rivers", "Glaciers",
		"Beetles", "Mosses", "Windmills", "Bridges", "Islands",
	}
	forms = []string{
		"Atlas", "Herbarium", "Sketchbook", "Ledger", "Album",
		"Survey", "Journal", "Portfolio", "Catalogue", "Chronicle",
	}
	authors = []string{
		"Audubon", "Merian", "Humboldt", "Darwin", "Banks",
		"Linnaeus", "Lear", "Gould", "Hooker", "Bauer",
	}
	places = []string{
		"Edinburgh", "Leiden", "Uppsala", "Kew", "Dublin",
		"Philadelphia", "Amsterdam", "Berlin", "Paris", "Vienna",
	}
	words = []string{
		"plate", "folio", "drawing", "engraving", "study", "specimen",
		"coastline", "nest", "flower", "survey", "margin", "inscription",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d manifests in %s...\n", *numManifests, *outputDir)

	generated := 0
	for i := 0; i < *numManifests; i++ {
		var doc map[string]any
		if i%3 == 0 {
			doc = presentation2(rng, i)
		} else {
			doc = presentation3(rng, i)
		}
		if err := writeJSON(filepath.Join(*outputDir, fmt.Sprintf("manifest_%05d.json", i)), doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing manifest %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d manifests successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func sentence(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = pick(rng, words)
	}
	return strings.Join(parts, " ")
}

type record struct {
	id, label, summary, author, place string
	year                              int
	canvases                          int
}

func newRecord(rng *rand.Rand, index int) record {
	return record{
		id:       fmt.Sprintf("%s/book%d/manifest", *baseURL, index),
		label:    fmt.Sprintf("%s of %s", pick(rng, forms), pick(rng, subjects)),
		summary:  sentence(rng, 12),
		author:   pick(rng, authors),
		place:    pick(rng, places),
		year:     1700 + rng.Intn(200),
		canvases: 1 + rng.Intn(*maxCanvases),
	}
}

func presentation3(rng *rand.Rand, index int) map[string]any {
	r := newRecord(rng, index)
	lang := func(s string) map[string][]string { return map[string][]string{"en": {s}} }

	items := make([]any, 0, r.canvases)
	for c := 1; c <= r.canvases; c++ {
		canvasID := fmt.Sprintf("%s/book%d/canvas/p%d", *baseURL, index, c)
		image := fmt.Sprintf("%s/image/book%d-p%d", *baseURL, index, c)
		items = append(items, map[string]any{
			"id":     canvasID,
			"type":   "Canvas",
			"label":  lang(fmt.Sprintf("Plate %d", c)),
			"width":  3000,
			"height": 4000,
			"items": []any{map[string]any{
				"id":   canvasID + "/page",
				"type": "AnnotationPage",
				"items": []any{map[string]any{
					"id":         canvasID + "/annotation",
					"type":       "Annotation",
					"motivation": "painting",
					"target":     canvasID,
					"body": map[string]any{
						"id":     image + "/full/max/0/default.jpg",
						"type":   "Image",
						"format": "image/jpeg",
						"service": []any{map[string]any{
							"id":      image,
							"type":    "ImageService3",
							"profile": "level1",
						}},
					},
				}},
			}},
		})
	}

	return map[string]any{
		"@context": "http://iiif.io/api/presentation/3/context.json",
		"id":       r.id,
		"type":     "Manifest",
		"label":    lang(r.label),
		"summary":  lang(r.summary),
		"navDate":  fmt.Sprintf("%d-01-01T00:00:00Z", r.year),
		"metadata": []any{
			map[string]any{"label": lang("Author"), "value": lang(r.author)},
			map[string]any{"label": lang("Place"), "value": lang(r.place)},
			map[string]any{"label": lang("Date"), "value": lang(fmt.Sprint(r.year))},
		},
		"items": items,
	}
}

func presentation2(rng *rand.Rand, index int) map[string]any {
	r := newRecord(rng, index)

	canvases := make([]any, 0, r.canvases)
	for c := 1; c <= r.canvases; c++ {
		canvasID := fmt.Sprintf("%s/book%d/canvas/p%d", *baseURL, index, c)
		image := fmt.Sprintf("%s/image/book%d-p%d", *baseURL, index, c)
		canvases = append(canvases, map[string]any{
			"@id":    canvasID,
			"@type":  "sc:Canvas",
			"label":  fmt.Sprintf("Plate %d", c),
			"width":  3000,
			"height": 4000,
			"images": []any{map[string]any{
				"@id":        canvasID + "/annotation",
				"@type":      "oa:Annotation",
				"motivation": "sc:painting",
				"on":         canvasID,
				"resource": map[string]any{
					"@id":    image + "/full/full/0/default.jpg",
					"@type":  "dctypes:Image",
					"format": "image/jpeg",
					"service": map[string]any{
						"@context": "http://iiif.io/api/image/2/context.json",
						"@id":      image,
						"profile":  "http://iiif.io/api/image/2/level1.json",
					},
				},
			}},
		})
	}

	return map[string]any{
		"@context":    "http://iiif.io/api/presentation/2/context.json",
		"@id":         r.id,
		"@type":       "sc:Manifest",
		"label":       r.label,
		"description": r.summary,
		"navDate":     fmt.Sprintf("%d-01-01T00:00:00Z", r.year),
		"metadata": []any{
			map[string]any{"label": "Author", "value": r.author},
			map[string]any{"label": "Place", "value": r.place},
		},
		"sequences": []any{map[string]any{
			"@type":    "sc:Sequence",
			"canvases": canvases,
		}},
	}
}

func writeJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
