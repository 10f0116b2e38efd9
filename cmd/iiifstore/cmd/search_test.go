package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/search"
)

func TestParseFacet(t *testing.T) {
	f, err := parseFacet("metadata:author=Manifest author", "")
	require.NoError(t, err)
	assert.Equal(t, search.Facet{Type: "metadata", Subtype: "author", Value: "Manifest author"}, f)

	f, err = parseFacet("metadata:date=a=b", "icontains")
	require.NoError(t, err)
	assert.Equal(t, "a=b", f.Value)
	assert.Equal(t, "icontains", f.Operator)

	for _, bad := range []string{"metadata=author", "metadata:author", ":author=x", "metadata:=x"} {
		_, err := parseFacet(bad, "")
		assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidQuery), bad)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want search.ResourceFilter
	}{
		{
			"iiifresource.label icontains grey heron",
			search.ResourceFilter{ResourceClass: "iiifresource", Field: "label", Operator: "icontains", Value: "grey heron"},
		},
		{
			"context.slug IN books, birds",
			search.ResourceFilter{ResourceClass: "context", Field: "slug", Operator: "in", Value: []string{"books", "birds"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFilter(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"label exact x", "iiifresource.label exact", ".label exact x"} {
		_, err := parseFilter(bad)
		assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidQuery), bad)
	}
}

func TestParseSort(t *testing.T) {
	order, err := parseSort("descriptive:navdate:indexable_date_range_start")
	require.NoError(t, err)
	assert.Equal(t, &search.SortOrder{Type: "descriptive", Subtype: "navdate", ValueForSort: "indexable_date_range_start"}, order)

	order, err = parseSort("metadata:author")
	require.NoError(t, err)
	assert.Empty(t, order.ValueForSort)

	_, err = parseSort("metadata")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidQuery))
}

func TestBuildSearchRequest_FlagsOverrideRequestFile(t *testing.T) {
	// Given: a request file with a query and a page
	path := filepath.Join(t.TempDir(), "query.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"fulltext": "heron",
		"facets": [{"type": "metadata", "subtype": "author", "value": "Audubon"}],
		"page": 3
	}`), 0o644))

	// When: flags name another query and extra scopes
	req, err := buildSearchRequest(searchOptions{
		request:  path,
		query:    "egret",
		types:    []string{"manifest"},
		contexts: []string{"birds"},
		facetOn:  "Manifest",
	})

	// Then: the flags win, the rest of the file is kept
	require.NoError(t, err)
	assert.Equal(t, "egret", req.Fulltext)
	assert.Equal(t, 3, req.Page)
	assert.Len(t, req.Facets, 1)
	assert.Equal(t, []string{"manifest"}, req.Types)
	assert.Equal(t, []string{"birds"}, req.Contexts)
	assert.Equal(t, "Manifest", req.FacetOn.ResourceType)
}

func TestBuildSearchRequest_BadRequestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fulltext":`), 0o644))

	_, err := buildSearchRequest(searchOptions{request: path})
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidQuery))

	_, err = buildSearchRequest(searchOptions{request: filepath.Join(t.TempDir(), "missing.json")})
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeFileNotFound))
}
