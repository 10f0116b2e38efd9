// Package flatten extracts searchable entries from a IIIF resource's
// descriptive properties.
package flatten

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
)

// Index modes of a field.
const (
	IndexAsText = "text"
	IndexAsDate = "date"
)

// Indexable types of the default field configuration.
const (
	TypeDescriptive = "descriptive"
	TypeMetadata    = "metadata"
)

// noneLanguages are the IIIF keys for values without a language.
var noneLanguages = map[string]bool{"none": true, "@none": true}

// FieldConfig selects one property for flattening.
type FieldConfig struct {
	Key           string
	IndexableType string
	IndexAs       string
}

// DefaultFields is the field configuration used when none is given.
var DefaultFields = []FieldConfig{
	{Key: "label", IndexableType: TypeDescriptive, IndexAs: IndexAsText},
	{Key: "summary", IndexableType: TypeDescriptive, IndexAs: IndexAsText},
	{Key: "requiredStatement", IndexableType: TypeDescriptive, IndexAs: IndexAsText},
	{Key: "metadata", IndexableType: TypeMetadata, IndexAs: IndexAsText},
	{Key: "navDate", IndexableType: TypeDescriptive, IndexAs: IndexAsDate},
}

// Entry is one flattened value.
type Entry struct {
	Type     string
	Subtype  string
	Language string

	// Text is the plain text with markup removed. Empty for dates.
	Text string

	// OriginalContent is the sanitized source value.
	OriginalContent string

	DateStart *time.Time
	DateEnd   *time.Time

	Int   *int64
	Float *float64

	// GroupID ties together entries of one field instance, e.g. all
	// languages of one metadata pair: "metadata/0".
	GroupID string
}

// Flatten parses raw JSON and flattens it.
func Flatten(raw []byte, fields []FieldConfig, defaultLang string) ([]Entry, error) {
	obj, err := iiif.DecodeObject(raw)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeInvalidResource, "cannot flatten resource", err)
	}
	return FlattenObject(obj, fields, defaultLang), nil
}

// FlattenObject flattens the configured fields of a decoded resource.
//
// Every value in every language yields one entry. A {label, value} pair
// takes its subtype from the label text in the value's language, lowercased,
// so a pair labelled "Author"/"Urheber" produces subtypes "author" and
// "urheber". The "none" and "@none" language keys become defaultLang.
// Unparseable dates are skipped.
func FlattenObject(obj map[string]any, fields []FieldConfig, defaultLang string) []Entry {
	if fields == nil {
		fields = DefaultFields
	}
	var out []Entry
	for _, f := range fields {
		v, ok := obj[f.Key]
		if !ok || v == nil {
			continue
		}
		for i, inst := range instances(v) {
			group := fmt.Sprintf("%s/%d", f.Key, i)
			out = append(out, flattenInstance(f, inst, group, defaultLang)...)
		}
	}
	return out
}

// instances normalises a property value into field instances: an object is
// one instance, a list is used as is and a scalar is wrapped.
func instances(v any) []any {
	switch t := v.(type) {
	case []any:
		if isValueList(t) {
			return []any{t}
		}
		return t
	default:
		return []any{t}
	}
}

// isValueList reports a v2 list of {"@value", "@language"} objects or plain
// strings, which together form one instance.
func isValueList(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, item := range list {
		switch t := item.(type) {
		case string:
		case map[string]any:
			if _, ok := t["@value"]; !ok {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func flattenInstance(f FieldConfig, inst any, group, defaultLang string) []Entry {
	var out []Entry
	if m, ok := inst.(map[string]any); ok && isPair(m) {
		labels := LanguageMap(m["label"], defaultLang)
		values := LanguageMap(m["value"], defaultLang)
		for _, lang := range sortedKeys(values) {
			subtype := pairSubtype(labels, lang, f.Key)
			for _, v := range values[lang] {
				if e, ok := makeEntry(f, subtype, lang, v, group); ok {
					out = append(out, e)
				}
			}
		}
		return out
	}

	values := LanguageMap(inst, defaultLang)
	for _, lang := range sortedKeys(values) {
		for _, v := range values[lang] {
			if e, ok := makeEntry(f, f.Key, lang, v, group); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

func isPair(m map[string]any) bool {
	_, hasLabel := m["label"]
	_, hasValue := m["value"]
	return hasLabel && hasValue
}

// pairSubtype is the label text in lang, or the configured key when the
// label has none in that language.
func pairSubtype(labels map[string][]string, lang, key string) string {
	if texts := labels[lang]; len(texts) > 0 {
		if s := StripHTML(texts[0]); s != "" {
			return strings.ToLower(s)
		}
	}
	return key
}

// LanguageMap converts a v3 language map, a v2 @value object or list, or a
// scalar into language → values. None keys are mapped to defaultLang.
func LanguageMap(v any, defaultLang string) map[string][]string {
	out := make(map[string][]string)
	add := func(lang string, vals ...string) {
		if noneLanguages[lang] || lang == "" {
			lang = defaultLang
		}
		for _, s := range vals {
			if s != "" {
				out[lang] = append(out[lang], s)
			}
		}
	}

	var visit func(v any, lang string)
	visit = func(v any, lang string) {
		switch t := v.(type) {
		case nil:
		case string:
			add(lang, t)
		case json.Number:
			add(lang, t.String())
		case float64:
			add(lang, strconv.FormatFloat(t, 'f', -1, 64))
		case bool:
			add(lang, strconv.FormatBool(t))
		case []any:
			for _, item := range t {
				visit(item, lang)
			}
		case map[string]any:
			if val, ok := t["@value"]; ok {
				l, _ := t["@language"].(string)
				visit(val, l)
				return
			}
			for k, inner := range t {
				visit(inner, k)
			}
		}
	}
	visit(v, "none")
	return out
}

func makeEntry(f FieldConfig, subtype, lang, value, group string) (Entry, bool) {
	e := Entry{
		Type:     f.IndexableType,
		Subtype:  subtype,
		Language: lang,
		GroupID:  group,
	}

	switch f.IndexAs {
	case IndexAsDate:
		start, end, ok := ParseDate(StripHTML(value))
		if !ok {
			slog.Debug("date_unparseable",
				slog.String("field", f.Key),
				slog.String("value", value))
			return Entry{}, false
		}
		e.DateStart, e.DateEnd = &start, &end
		e.OriginalContent = SanitizeHTML(value)
		return e, true
	default:
		e.Text = StripHTML(value)
		if e.Text == "" {
			return Entry{}, false
		}
		e.OriginalContent = SanitizeHTML(value)
		e.Int, e.Float = parseNumber(e.Text)
		return e, true
	}
}

func parseNumber(s string) (*int64, *float64) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		f := float64(i)
		return &i, &f
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return nil, &f
	}
	return nil, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
