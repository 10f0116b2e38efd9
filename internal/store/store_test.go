package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/flatten"
)

const testHost = "https://store.example.org"

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := Open(Options{
		DataDir:           t.TempDir(),
		Driver:            DriverSQLite,
		CanonicalHostname: testHost,
		ResourcePath:      "iiif",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testResource(originalID, iiifType string) *Resource {
	raw := `{"id":"` + originalID + `","type":"` + iiifType + `","label":{"en":["` + originalID + `"]}}`
	return &Resource{
		OriginalID: originalID,
		IIIFType:   iiifType,
		Label:      datatypes.JSON(`{"en":["` + originalID + `"]}`),
		IIIFJSON:   datatypes.JSON(raw),
	}
}

func storedID(t *testing.T, r *Resource) string {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal(r.IIIFJSON, &obj))
	if id, ok := obj["id"].(string); ok {
		return id
	}
	id, _ := obj["@id"].(string)
	return id
}

func TestOpen_CreatesSchema(t *testing.T) {
	dir := t.TempDir()

	// Given: an empty data directory
	_, err := os.Stat(filepath.Join(dir, DatabaseFile))
	require.True(t, os.IsNotExist(err))

	// When: opening the store
	s, err := Open(Options{DataDir: dir, CanonicalHostname: testHost})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the database exists and the tables are usable
	_, err = os.Stat(filepath.Join(dir, DatabaseFile))
	assert.NoError(t, err)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Resources)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "postgres"})
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeConfigInvalid))
}

func TestCanonicalID(t *testing.T) {
	s := &GormStore{opts: Options{CanonicalHostname: "https://x.org", ResourcePath: "/iiif/"}}
	assert.Equal(t, "https://x.org/iiif/manifest/abc", s.CanonicalID("Manifest", "abc"))

	s.opts.ResourcePath = ""
	assert.Equal(t, "https://x.org/canvas/abc", s.CanonicalID("canvas", "abc"))
}

func TestSaveResource_CanonicalIDIsStableAcrossSaves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a new resource
	r := testResource("https://src.org/m1", "manifest")

	// When: it is saved
	created, err := s.SaveResource(ctx, r)
	require.NoError(t, err)

	// Then: an id is assigned and the JSON id is canonical
	assert.True(t, created)
	require.NotEmpty(t, r.ID)
	canonical := testHost + "/iiif/manifest/" + r.ID
	assert.Equal(t, canonical, storedID(t, r))

	// When: the same original id is saved again
	again := testResource("https://src.org/m1", "manifest")
	created, err = s.SaveResource(ctx, again)
	require.NoError(t, err)

	// Then: it updates in place with the same canonical id
	assert.False(t, created)
	assert.Equal(t, r.ID, again.ID)
	stored, err := s.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, canonical, storedID(t, stored))
	assert.Equal(t, "https://src.org/m1", stored.OriginalID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Resources)
}

func TestSaveResource_RewritesV2AtID(t *testing.T) {
	s := newTestStore(t)
	r := &Resource{
		OriginalID: "https://src.org/v2",
		IIIFType:   "manifest",
		IIIFJSON:   datatypes.JSON(`{"@id":"https://src.org/v2","@type":"sc:Manifest"}`),
	}

	_, err := s.SaveResource(context.Background(), r)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(r.IIIFJSON, &obj))
	assert.Equal(t, testHost+"/iiif/manifest/"+r.ID, obj["@id"])
	assert.NotContains(t, obj, "id")
}

func TestSaveResource_RequiresOriginalID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveResource(context.Background(), &Resource{IIIFType: "canvas", IIIFJSON: datatypes.JSON(`{}`)})
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidResource))
}

func TestCreateResource_DuplicateIsFatal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateResource(ctx, testResource("https://src.org/dup", "manifest")))

	err := s.CreateResource(ctx, testResource("https://src.org/dup", "manifest"))

	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeDuplicateResource))
}

func TestReserveIDs_ReusesStoredIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := testResource("https://src.org/known", "canvas")
	_, err := s.SaveResource(ctx, r)
	require.NoError(t, err)

	ids, err := s.ReserveIDs(ctx, []string{"https://src.org/known", "https://src.org/new"})

	require.NoError(t, err)
	assert.Equal(t, r.ID, ids["https://src.org/known"])
	assert.Len(t, ids["https://src.org/new"], 36)
}

func TestGetResource_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetResource(context.Background(), "missing")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound))

	_, err = s.GetResourceByOriginalID(context.Background(), "https://nowhere")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound))
}

// saveTree stores a manifest with two canvases and one annotation below the
// first canvas, with edges to every ancestor.
func saveTree(t *testing.T, s *GormStore) (m, c1, c2, a1 *Resource) {
	t.Helper()
	ctx := context.Background()
	m = testResource("https://src.org/m", "manifest")
	c1 = testResource("https://src.org/c1", "canvas")
	c2 = testResource("https://src.org/c2", "canvas")
	a1 = testResource("https://src.org/a1", "annotation")
	for _, r := range []*Resource{m, c1, c2, a1} {
		_, err := s.SaveResource(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, s.CreateRelationships(ctx, []Relationship{
		{SourceID: c1.ID, TargetID: m.ID, Type: RelIsPartOf},
		{SourceID: c2.ID, TargetID: m.ID, Type: RelIsPartOf},
		{SourceID: a1.ID, TargetID: m.ID, Type: RelIsPartOf},
		{SourceID: a1.ID, TargetID: c1.ID, Type: RelIsPartOf},
	}))
	return m, c1, c2, a1
}

func TestCreateRelationships_IgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, c1, _, _ := saveTree(t, s)

	// When: an existing edge is created again
	err := s.CreateRelationships(ctx, []Relationship{{SourceID: c1.ID, TargetID: m.ID, Type: RelIsPartOf}})

	// Then: nothing fails and the count is unchanged
	require.NoError(t, err)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Relationships)
}

func TestAncestorsAndDescendants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, c1, c2, a1 := saveTree(t, s)

	anc, err := s.Ancestors(ctx, a1.ID, RelIsPartOf, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m.ID, c1.ID}, ids(anc))

	manifests, err := s.Ancestors(ctx, a1.ID, RelIsPartOf, "Manifest")
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, ids(manifests))

	desc, err := s.Descendants(ctx, m.ID, "", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c1.ID, c2.ID, a1.ID}, ids(desc))

	none, err := s.Ancestors(ctx, m.ID, RelIsPartOf, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func ids(rs []Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestReplaceIndexables_ReplacesAndEnriches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := testResource("https://src.org/m", "manifest")
	_, err := s.SaveResource(ctx, r)
	require.NoError(t, err)

	// Given: two entries
	first, err := s.ReplaceIndexables(ctx, r.ID, []flatten.Entry{
		{Type: "descriptive", Subtype: "label", Language: "en", Text: "Grey heron", GroupID: "label/0"},
		{Type: "metadata", Subtype: "urheber", Language: "de", Text: "Fischer", GroupID: "metadata/0"},
	})
	require.NoError(t, err)
	assert.Len(t, first.Added, 2)
	assert.Empty(t, first.RemovedIDs)

	// When: replaced by one entry
	second, err := s.ReplaceIndexables(ctx, r.ID, []flatten.Entry{
		{Type: "descriptive", Subtype: "label", Language: "en", Text: "Little egret", GroupID: "label/0"},
	})
	require.NoError(t, err)

	// Then: the old rows are reported removed and only the new one remains
	assert.ElementsMatch(t, []string{first.Added[0].ID, first.Added[1].ID}, second.RemovedIDs)
	rows, err := s.IndexablesFor(ctx, []string{r.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Little egret", rows[0].Text)
	assert.Equal(t, "eng", rows[0].LanguageISO639_2)
	assert.Equal(t, "en", rows[0].LanguageISO639_1)
	assert.Equal(t, "English", rows[0].LanguageDisplay)
	assert.Equal(t, "en", rows[0].LanguageAnalyzer)

	got, err := s.GetIndexables(ctx, []string{rows[0].ID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDeleteResource_ManifestCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, c1, c2, a1 := saveTree(t, s)
	for _, r := range []*Resource{m, c1, c2, a1} {
		_, err := s.ReplaceIndexables(ctx, r.ID, []flatten.Entry{{Type: "descriptive", Subtype: "label", Language: "en", Text: r.OriginalID}})
		require.NoError(t, err)
	}
	require.NoError(t, s.SetContexts(ctx, c1.ID, []Context{{Type: "site", Slug: "birds"}}))

	// When: deleting the manifest
	res, err := s.DeleteResource(ctx, m.ID)
	require.NoError(t, err)

	// Then: every descendant and every indexable is gone
	assert.ElementsMatch(t, []string{m.ID, c1.ID, c2.ID, a1.ID}, res.ResourceIDs)
	assert.Len(t, res.IndexableIDs, 4)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Resources)
	assert.Equal(t, int64(0), st.Indexables)
	assert.Equal(t, int64(0), st.Relationships)

	contexts, err := s.ListContexts(ctx)
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	assert.Equal(t, int64(0), contexts[0].Resources)
}

func TestDeleteResource_CanvasRemovesOnlyItself(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, c1, c2, a1 := saveTree(t, s)

	res, err := s.DeleteResource(ctx, c1.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{c1.ID}, res.ResourceIDs)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Resources)
	// c1->m and a1->c1 are gone, c2->m and a1->m remain.
	assert.Equal(t, int64(2), st.Relationships)

	_, err = s.GetResource(ctx, a1.ID)
	assert.NoError(t, err)
	_, err = s.GetResource(ctx, c2.ID)
	assert.NoError(t, err)
	_, err = s.GetResource(ctx, m.ID)
	assert.NoError(t, err)
}

func TestDeleteResource_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DeleteResource(context.Background(), "nope")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound))
}

func TestSetContexts_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := testResource("https://src.org/m", "manifest")
	_, err := s.SaveResource(ctx, r)
	require.NoError(t, err)
	contexts := []Context{{Type: "site", Slug: "birds"}, {Type: "project", Slug: "herons"}}

	// When: setting the same contexts twice
	require.NoError(t, s.SetContexts(ctx, r.ID, contexts))
	require.NoError(t, s.SetContexts(ctx, r.ID, contexts))

	// Then: each context exists once with one resource
	summaries, err := s.ListContexts(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, c := range summaries {
		assert.Equal(t, int64(1), c.Resources)
	}

	got, err := s.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, got.Contexts, 2)

	// When: replacing with one context
	require.NoError(t, s.SetContexts(ctx, r.ID, contexts[:1]))
	got, err = s.GetResource(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Contexts, 1)
	assert.Equal(t, "birds", got.Contexts[0].Slug)
}

func TestGetOrCreateContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateContext(ctx, Context{Type: "site", Slug: "birds"})
	require.NoError(t, err)
	assert.Equal(t, "site:birds", a.ID)

	b, err := s.GetOrCreateContext(ctx, Context{Type: "site", Slug: "birds"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	byID, err := s.GetOrCreateContext(ctx, Context{ID: "urn:site:7", Type: "site", Slug: "seven"})
	require.NoError(t, err)
	assert.Equal(t, "urn:site:7", byID.ID)

	_, err = s.GetOrCreateContext(ctx, Context{Type: "site"})
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeInvalidInput))
}

func TestParseContext(t *testing.T) {
	c, err := ParseContext("project:herons")
	require.NoError(t, err)
	assert.Equal(t, Context{Type: "project", Slug: "herons"}, c)

	c, err = ParseContext("birds")
	require.NoError(t, err)
	assert.Equal(t, "site", c.Type)

	_, err = ParseContext("project:")
	assert.Error(t, err)
	_, err = ParseContext("  ")
	assert.Error(t, err)
}

func TestListResources_FiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, c1, _, _ := saveTree(t, s)
	require.NoError(t, s.SetContexts(ctx, m.ID, []Context{{Type: "site", Slug: "birds"}}))
	require.NoError(t, s.SetContexts(ctx, c1.ID, []Context{{Type: "site", Slug: "birds"}}))

	canvases, total, err := s.ListResources(ctx, ListOptions{Types: []string{"Canvas"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, canvases, 2)

	inSite, total, err := s.ListResources(ctx, ListOptions{Contexts: []string{"birds"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.ElementsMatch(t, []string{m.ID, c1.ID}, ids(inSite))

	page, total, err := s.ListResources(ctx, ListOptions{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 1)
}

func TestUpdateIIIFJSON_KeepsCanonicalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := testResource("https://src.org/m", "manifest")
	_, err := s.SaveResource(ctx, r)
	require.NoError(t, err)

	require.NoError(t, s.UpdateIIIFJSON(ctx, r.ID, []byte(`{"id":"https://src.org/m","type":"Manifest","items":[]}`)))

	got, err := s.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, testHost+"/iiif/manifest/"+r.ID, storedID(t, got))
	assert.Contains(t, string(got.IIIFJSON), `"items":[]`)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx *GormStore) error {
		_, err := tx.SaveResource(ctx, testResource("https://src.org/rolled", "manifest"))
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetResourceByOriginalID(ctx, "https://src.org/rolled")
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound))
}

func TestState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, "watch:/a.json")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, "watch:/a.json", "https://src.org/a"))
	require.NoError(t, s.SetState(ctx, "watch:/a.json", "https://src.org/b"))
	v, err = s.GetState(ctx, "watch:/a.json")
	require.NoError(t, err)
	assert.Equal(t, "https://src.org/b", v)

	require.NoError(t, s.DeleteState(ctx, "watch:/a.json"))
	v, err = s.GetState(ctx, "watch:/a.json")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestStore_ConcurrentWritesAreSerialised(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SaveResource(ctx, testResource("https://src.org/c"+string(rune('a'+i)), "canvas"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.Resources)
	assert.Equal(t, int64(10), st.ByType["canvas"])
}

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	second := NewFileLock(dir)

	require.NoError(t, first.Lock(context.Background()))
	ok, err := second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
	assert.NoError(t, second.Unlock())
}
