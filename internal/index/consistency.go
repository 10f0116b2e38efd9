package index

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphan is a text index entry without a stored indexable.
	InconsistencyOrphan InconsistencyType = iota
	// InconsistencyMissing is a stored indexable missing from the text index.
	InconsistencyMissing
)

// String returns the snake_case name of the type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphan:
		return "orphan"
	case InconsistencyMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// MarshalText lets inconsistency types render by name in JSON.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type        InconsistencyType `json:"type"`
	IndexableID string            `json:"indexable_id"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of stored indexables verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Counts returns the number of orphan and missing entries.
func (r *CheckResult) Counts() (orphans, missing int) {
	for _, i := range r.Inconsistencies {
		switch i.Type {
		case InconsistencyOrphan:
			orphans++
		case InconsistencyMissing:
			missing++
		}
	}
	return orphans, missing
}

// Source is the record store the text index mirrors.
type Source interface {
	// DocumentIDs returns the ids of every indexable that belongs in the
	// text index.
	DocumentIDs(ctx context.Context) ([]string, error)

	// Documents loads indexables as documents.
	Documents(ctx context.Context, ids []string) ([]*Document, error)
}

// ConsistencyChecker compares the record store with the text index. The
// record store is the source of truth.
type ConsistencyChecker struct {
	source Source
	index  TextIndex
}

// NewConsistencyChecker creates a checker.
func NewConsistencyChecker(source Source, index TextIndex) *ConsistencyChecker {
	return &ConsistencyChecker{source: source, index: index}
}

// Check finds orphaned and missing entries.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	storedIDs, err := c.source.DocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	indexIDs, err := c.index.AllIDs()
	if err != nil {
		return nil, err
	}

	stored := make(map[string]bool, len(storedIDs))
	for _, id := range storedIDs {
		stored[id] = true
	}
	indexed := make(map[string]bool, len(indexIDs))
	for _, id := range indexIDs {
		indexed[id] = true
	}

	var issues []Inconsistency
	for _, id := range indexIDs {
		if !stored[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphan, IndexableID: id})
		}
	}
	for _, id := range storedIDs {
		if !indexed[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissing, IndexableID: id})
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].IndexableID < issues[j].IndexableID
	})

	return &CheckResult{
		Checked:         len(storedIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphans from the text index and indexes missing entries
// from the record store.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphans, missing []string
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphan:
			orphans = append(orphans, issue.IndexableID)
		case InconsistencyMissing:
			missing = append(missing, issue.IndexableID)
		}
	}

	if len(orphans) > 0 {
		if err := c.index.Delete(ctx, orphans); err != nil {
			return err
		}
		slog.Info("orphan_entries_deleted", slog.Int("count", len(orphans)))
	}

	if len(missing) > 0 {
		docs, err := c.source.Documents(ctx, missing)
		if err != nil {
			return err
		}
		if err := c.index.Index(ctx, docs); err != nil {
			return err
		}
		slog.Info("missing_entries_indexed", slog.Int("count", len(docs)))
	}
	return nil
}

// QuickCheck compares counts only. Returns true when they match.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	ids, err := c.source.DocumentIDs(ctx)
	if err != nil {
		return false, err
	}
	indexCount := 0
	if st := c.index.Stats(); st != nil {
		indexCount = st.DocumentCount
	}

	consistent := len(ids) == indexCount
	if !consistent {
		slog.Debug("index_counts_mismatch",
			slog.Int("store", len(ids)),
			slog.Int("text_index", indexCount))
	}
	return consistent, nil
}
