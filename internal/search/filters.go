package search

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// resourceColumns maps filterable fields to columns, per resource class.
var resourceColumns = map[string]map[string]string{
	ClassResource: {
		"id":              "resources.id",
		"original_id":     "resources.original_id",
		"iiif_type":       "resources.iiif_type",
		"type":            "resources.iiif_type",
		"label":           "resources.label",
		"first_canvas_id": "resources.first_canvas_id",
	},
	ClassContext: {
		"id":   "contexts.id",
		"type": "contexts.type",
		"slug": "contexts.slug",
	},
}

// compare builds a SQL condition comparing column with value.
func compare(column, operator string, value any) (string, []any, error) {
	switch strings.ToLower(operator) {
	case OpExact:
		return column + " = ?", []any{fmt.Sprint(value)}, nil
	case "", OpIExact:
		return "lower(" + column + ") = lower(?)", []any{fmt.Sprint(value)}, nil
	case OpContains:
		return "instr(" + column + ", ?) > 0", []any{fmt.Sprint(value)}, nil
	case OpIContains:
		return "instr(lower(" + column + "), lower(?)) > 0", []any{fmt.Sprint(value)}, nil
	case OpIn:
		values := valueList(value)
		if len(values) == 0 {
			return "1 = 0", nil, nil
		}
		return column + " IN ?", []any{values}, nil
	default:
		return "", nil, ierrors.InvalidQuery(fmt.Sprintf("unknown operator %q", operator)).
			WithSuggestion("use exact, iexact, contains, icontains or in")
	}
}

// valueList accepts a JSON list, a string slice or a comma-separated string.
func valueList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}

// applyResourceFilters ANDs every filter onto q. An unknown resource class
// or field is an ErrCodeInvalidResourceClass error.
func applyResourceFilters(db, q *gorm.DB, filters []ResourceFilter) (*gorm.DB, error) {
	for _, f := range filters {
		class := strings.ToLower(strings.TrimSpace(f.ResourceClass))
		if class == "" {
			class = ClassResource
		}
		columns, ok := resourceColumns[class]
		if !ok {
			return nil, ierrors.New(ierrors.ErrCodeInvalidResourceClass,
				fmt.Sprintf("unknown resource class %q", f.ResourceClass), nil).
				WithSuggestion("use iiifresource or context")
		}
		column, ok := columns[strings.ToLower(f.Field)]
		if !ok {
			return nil, ierrors.New(ierrors.ErrCodeInvalidResourceClass,
				fmt.Sprintf("unknown field %q for resource class %q", f.Field, class), nil).
				WithSuggestion("fields: " + strings.Join(fieldNames(columns), ", "))
		}

		value := f.Value
		if column == "resources.iiif_type" {
			value = lowerValue(value)
		}
		cond, args, err := compare(column, f.Operator, value)
		if err != nil {
			return nil, err
		}

		if class == ClassContext {
			sub := db.Table("resource_contexts").
				Select("resource_contexts.resource_id").
				Joins("JOIN contexts ON contexts.id = resource_contexts.context_id").
				Where(cond, args...)
			q = q.Where("resources.id IN (?)", sub)
			continue
		}
		q = q.Where(cond, args...)
	}
	return q, nil
}

func lowerValue(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	default:
		list := valueList(v)
		for i := range list {
			list[i] = strings.ToLower(list[i])
		}
		return list
	}
}

func fieldNames(columns map[string]string) []string {
	out := make([]string, 0, len(columns))
	for k := range columns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// facetGroup is the facets sharing one type and subtype.
type facetGroup struct {
	typ, subtype string
	facets       []Facet
}

// groupFacets groups facets by lowercased type and subtype, in first-seen
// order.
func groupFacets(facets []Facet) []*facetGroup {
	var out []*facetGroup
	byKey := make(map[string]*facetGroup)
	for _, f := range facets {
		typ, sub := strings.ToLower(strings.TrimSpace(f.Type)), strings.ToLower(strings.TrimSpace(f.Subtype))
		key := typ + "\x00" + sub
		g, ok := byKey[key]
		if !ok {
			g = &facetGroup{typ: typ, subtype: sub}
			byKey[key] = g
			out = append(out, g)
		}
		g.facets = append(g.facets, f)
	}
	return out
}

// applyFacets ANDs one condition per facet group onto q. With on set, a
// resource matches through any of its ancestors.
func applyFacets(db, q *gorm.DB, facets []Facet, on *FacetOn) (*gorm.DB, error) {
	for _, g := range groupFacets(facets) {
		conds := make([]string, 0, len(g.facets))
		var args []any
		for _, f := range g.facets {
			op := f.Operator
			if op == "" {
				op = defaultFacet
			}
			if strings.EqualFold(op, OpIn) {
				return nil, ierrors.InvalidQuery("facets do not support the in operator").
					WithSuggestion("give one facet per value")
			}
			c, a, err := compare("indexables.indexable", op, f.Value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
			args = append(args, a...)
		}

		owners := db.Model(&store.Indexable{}).
			Select("indexables.resource_id").
			Where("lower(indexables.type) = ? AND lower(indexables.subtype) = ?", g.typ, g.subtype).
			Where("("+strings.Join(conds, " OR ")+")", args...)

		if on == nil {
			q = q.Where("resources.id IN (?)", owners)
			continue
		}

		relType := on.RelationshipType
		if relType == "" {
			relType = store.RelIsPartOf
		}
		via := db.Table("relationships").
			Select("relationships.source_id").
			Where("relationships.type = ?", relType).
			Where("relationships.target_id IN (?)", owners)
		if on.ResourceType != "" {
			via = via.Joins("JOIN resources AS ancestors ON ancestors.id = relationships.target_id").
				Where("ancestors.iiif_type = ?", strings.ToLower(on.ResourceType))
		}
		q = q.Where("resources.id IN (?)", via)
	}
	return q, nil
}
