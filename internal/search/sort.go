package search

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// Sortable indexable columns.
const (
	SortText      = "indexable"
	SortInt       = "indexable_int"
	SortFloat     = "indexable_float"
	SortDateStart = "indexable_date_range_start"
	SortDateEnd   = "indexable_date_range_end"
)

// sortZero returns the key of a resource without the sort indexable.
func sortZero(column string) any {
	switch {
	case strings.HasPrefix(column, SortInt):
		return int64(0)
	case strings.HasPrefix(column, SortFloat):
		return 0.0
	case strings.HasPrefix(column, "indexable_date"):
		return zeroDate
	default:
		return ""
	}
}

// sortValue reads column from an indexable, or its zero value when unset.
func sortValue(ix *store.Indexable, column string) any {
	switch column {
	case SortInt:
		if ix.Int != nil {
			return *ix.Int
		}
	case SortFloat:
		if ix.Float != nil {
			return *ix.Float
		}
	case SortDateStart:
		if ix.DateStart != nil {
			return ix.DateStart.UTC()
		}
	case SortDateEnd:
		if ix.DateEnd != nil {
			return ix.DateEnd.UTC()
		}
	default:
		return ix.Text
	}
	return sortZero(column)
}

// applySort sets each candidate's sort key from order. Without a type and
// subtype every candidate gets the column's zero value, so rank decides.
func (e *Engine) applySort(ctx context.Context, order *SortOrder, cs []*candidate) error {
	if order == nil || (order.Type == "" && order.Subtype == "" && order.ValueForSort == "") {
		return nil
	}
	column := strings.ToLower(strings.TrimSpace(order.ValueForSort))
	if column == "" {
		column = SortText
	}
	switch column {
	case SortText, SortInt, SortFloat, SortDateStart, SortDateEnd:
	default:
		return ierrors.InvalidQuery(fmt.Sprintf("cannot sort on %q", order.ValueForSort)).
			WithSuggestion("value_for_sort is one of indexable, indexable_int, indexable_float, indexable_date_range_start, indexable_date_range_end")
	}

	for _, c := range cs {
		c.sortKey = sortZero(column)
	}
	if order.Type == "" || order.Subtype == "" {
		return nil
	}

	byID := make(map[string]*candidate, len(cs))
	ids := make([]string, len(cs))
	for i, c := range cs {
		byID[c.id] = c
		ids[i] = c.id
	}

	db := e.store.DB(ctx)
	seen := make(map[string]bool, len(cs))
	for _, batch := range chunks(ids, 500) {
		var rows []store.Indexable
		err := db.Where("resource_id IN ?", batch).
			Where("lower(type) = ? AND lower(subtype) = ?", strings.ToLower(order.Type), strings.ToLower(order.Subtype)).
			Order("resource_id, group_id, created_at, id").
			Find(&rows).Error
		if err != nil {
			return queryErr(err)
		}
		for i := range rows {
			row := &rows[i]
			if seen[row.ResourceID] {
				continue
			}
			seen[row.ResourceID] = true
			byID[row.ResourceID].sortKey = sortValue(row, column)
		}
	}
	return nil
}

// compareKeys orders two sort keys of the same column.
func compareKeys(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	case float64:
		y, _ := b.(float64)
		return cmp.Compare(x, y)
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	return 0
}
