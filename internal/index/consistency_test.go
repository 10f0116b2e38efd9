package index

import (
	"context"
	"testing"
)

// mockSource serves documents from a map.
type mockSource struct {
	docs map[string]string
}

func (m *mockSource) DocumentIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockSource) Documents(ctx context.Context, ids []string) ([]*Document, error) {
	var out []*Document
	for _, id := range ids {
		if content, ok := m.docs[id]; ok {
			out = append(out, &Document{ID: id, Content: content, Analyzer: "en"})
		}
	}
	return out, nil
}

func newCheckerFixture(t *testing.T, stored map[string]string, indexed ...string) (*ConsistencyChecker, *BleveIndex) {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex() error: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	var docs []*Document
	for _, id := range indexed {
		docs = append(docs, &Document{ID: id, Content: "grey heron", Analyzer: "en"})
	}
	if err := idx.Index(context.Background(), docs); err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	return NewConsistencyChecker(&mockSource{docs: stored}, idx), idx
}

func TestConsistencyChecker_AllConsistent(t *testing.T) {
	checker, _ := newCheckerFixture(t, map[string]string{"i1": "a", "i2": "b"}, "i1", "i2")

	result, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if len(result.Inconsistencies) != 0 {
		t.Errorf("Expected 0 inconsistencies, got %d: %+v", len(result.Inconsistencies), result.Inconsistencies)
	}
	if result.Checked != 2 {
		t.Errorf("Expected 2 checked, got %d", result.Checked)
	}
}

func TestConsistencyChecker_Orphan(t *testing.T) {
	checker, _ := newCheckerFixture(t, map[string]string{"i1": "a"}, "i1", "stale")

	result, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if len(result.Inconsistencies) != 1 {
		t.Fatalf("Expected 1 inconsistency, got %d", len(result.Inconsistencies))
	}
	if result.Inconsistencies[0].Type != InconsistencyOrphan {
		t.Errorf("Expected orphan, got %v", result.Inconsistencies[0].Type)
	}
	if result.Inconsistencies[0].IndexableID != "stale" {
		t.Errorf("Expected stale, got %s", result.Inconsistencies[0].IndexableID)
	}
}

func TestConsistencyChecker_Missing(t *testing.T) {
	checker, _ := newCheckerFixture(t, map[string]string{"i1": "a", "i2": "b"}, "i1")

	result, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	orphans, missing := result.Counts()
	if orphans != 0 || missing != 1 {
		t.Errorf("Expected 0 orphans and 1 missing, got %d and %d", orphans, missing)
	}
}

func TestConsistencyChecker_RepairMakesIndexConsistent(t *testing.T) {
	ctx := context.Background()
	checker, idx := newCheckerFixture(t,
		map[string]string{"i1": "grey heron", "i2": "little egret"}, "i1", "stale")

	result, err := checker.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if err := checker.Repair(ctx, result.Inconsistencies); err != nil {
		t.Fatalf("Repair() error: %v", err)
	}

	after, err := checker.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if len(after.Inconsistencies) != 0 {
		t.Errorf("Expected a consistent index after repair, got %+v", after.Inconsistencies)
	}

	hits, err := idx.Search(ctx, Query{Text: "egret", Analyzer: "en", Limit: 10})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "i2" {
		t.Errorf("Expected the repaired document to be searchable, got %+v", hits)
	}
}

func TestConsistencyChecker_QuickCheck(t *testing.T) {
	tests := []struct {
		name           string
		stored         map[string]string
		indexed        []string
		wantConsistent bool
	}{
		{"empty", map[string]string{}, nil, true},
		{"same count", map[string]string{"a": "x", "b": "y"}, []string{"a", "b"}, true},
		{"index behind", map[string]string{"a": "x", "b": "y"}, []string{"a"}, false},
		{"index ahead", map[string]string{"a": "x"}, []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, _ := newCheckerFixture(t, tt.stored, tt.indexed...)
			got, err := checker.QuickCheck(context.Background())
			if err != nil {
				t.Fatalf("QuickCheck() error: %v", err)
			}
			if got != tt.wantConsistent {
				t.Errorf("QuickCheck() = %v, want %v", got, tt.wantConsistent)
			}
		})
	}
}

func TestInconsistencyType_String(t *testing.T) {
	tests := []struct {
		typ  InconsistencyType
		want string
	}{
		{InconsistencyOrphan, "orphan"},
		{InconsistencyMissing, "missing"},
		{InconsistencyType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
