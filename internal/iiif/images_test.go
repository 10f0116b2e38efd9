package iiif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Node {
	t.Helper()
	n, err := Parse([]byte(raw))
	require.NoError(t, err)
	return n
}

func TestFirstCanvas(t *testing.T) {
	manifest := mustParse(t, v3Manifest)
	rng := manifest.Structures()[0]
	canvas := manifest.Items()[0]

	t.Run("manifest yields first canvas", func(t *testing.T) {
		fc := FirstCanvas(manifest, nil)
		require.NotNil(t, fc)
		assert.Equal(t, "https://example.org/iiif/book1/canvas/p1", fc.ID)
	})

	t.Run("canvas yields itself", func(t *testing.T) {
		assert.Same(t, canvas, FirstCanvas(canvas, nil))
	})

	t.Run("range resolves fragment against manifest", func(t *testing.T) {
		fc := FirstCanvas(rng, manifest)
		require.NotNil(t, fc)
		assert.Equal(t, "https://example.org/iiif/book1/canvas/p2", fc.ID)
	})

	t.Run("range without manifest cannot resolve a reference", func(t *testing.T) {
		assert.Nil(t, FirstCanvas(rng, nil))
	})
}

func TestThumbnailCandidates(t *testing.T) {
	manifest := mustParse(t, v3Manifest)

	t.Run("falls back to painting body of first canvas", func(t *testing.T) {
		thumbs := ThumbnailCandidates(manifest, FirstCanvas(manifest, nil))
		require.Len(t, thumbs, 1)
		assert.Equal(t, "https://example.org/iiif/book1/page1/full/max/0/default.jpg", thumbs[0]["id"])
	})

	t.Run("prefers own thumbnail", func(t *testing.T) {
		n := mustParse(t, `{"id": "m", "type": "Manifest", "thumbnail": [{"id": "https://x.org/t.jpg", "type": "Image"}]}`)
		thumbs := ThumbnailCandidates(n, nil)
		require.Len(t, thumbs, 1)
		assert.Equal(t, "https://x.org/t.jpg", thumbs[0]["id"])
	})

	t.Run("v2 painting resource", func(t *testing.T) {
		n := mustParse(t, v2Manifest)
		thumbs := ThumbnailCandidates(n, FirstCanvas(n, nil))
		require.Len(t, thumbs, 1)
		assert.Equal(t, "https://example.org/v2/img1.jpg", thumbs[0]["@id"])
	})

	t.Run("nothing to offer", func(t *testing.T) {
		n := mustParse(t, `{"id": "c", "type": "Canvas"}`)
		assert.Nil(t, ThumbnailCandidates(n, n))
	})
}

func TestPrimaryImage(t *testing.T) {
	t.Run("v3 first body", func(t *testing.T) {
		img := PrimaryImage(mustParse(t, v3Manifest))
		require.NotNil(t, img)
		assert.Equal(t, "Image", img["type"])
	})

	t.Run("v2 honours startCanvas", func(t *testing.T) {
		img := PrimaryImage(mustParse(t, v2Manifest))
		require.NotNil(t, img)
		assert.Equal(t, "https://example.org/v2/img2.jpg", img["@id"])
	})

	t.Run("v2 falls back to first image", func(t *testing.T) {
		n := mustParse(t, v2Manifest)
		seq := n.Raw["sequences"].([]any)[0].(map[string]any)
		seq["startCanvas"] = "https://example.org/v2/canvas/missing"
		img := PrimaryImage(n)
		require.NotNil(t, img)
		assert.Equal(t, "https://example.org/v2/img1.jpg", img["@id"])
	})

	t.Run("v2 bare canvas", func(t *testing.T) {
		n := mustParse(t, v2Manifest)
		img := PrimaryImage(n.Items()[1])
		require.NotNil(t, img)
		assert.Equal(t, "https://example.org/v2/img2.jpg", img["@id"])
	})
}

func TestFormatThumbnailURL(t *testing.T) {
	tests := []struct {
		name   string
		thumbs []map[string]any
		want   string
	}{
		{
			name:   "service id",
			thumbs: []map[string]any{{"id": "https://x.org/t.jpg", "service": []any{map[string]any{"id": "https://x.org/svc/"}}}},
			want:   "https://x.org/svc/full/400,/0/default.jpg",
		},
		{
			name: "dereferenced info wins",
			thumbs: []map[string]any{{"service": []any{map[string]any{
				"id":   "https://x.org/svc",
				"info": map[string]any{"@id": "https://images.x.org/svc"},
			}}}},
			want: "https://images.x.org/svc/full/400,/0/default.jpg",
		},
		{
			name:   "no service uses thumbnail id",
			thumbs: []map[string]any{{"@id": "https://x.org/t"}},
			want:   "https://x.org/t/full/400,/0/default.jpg",
		},
		{name: "empty", thumbs: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatThumbnailURL(tt.thumbs, 400))
		})
	}
}

func TestImageServices_OrdersV3First(t *testing.T) {
	res := map[string]any{"service": []any{
		map[string]any{"@id": "a", "profile": "http://iiif.io/api/image/2/level1.json"},
		map[string]any{"id": "b", "type": "ImageService3"},
		map[string]any{"id": "c", "type": "AuthService"},
	}}

	services := ImageServices(res)

	require.Len(t, services, 2)
	assert.Equal(t, "b", services[0]["id"])
	assert.Equal(t, "a", services[1]["@id"])
}
