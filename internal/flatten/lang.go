package flatten

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// StandardAnalyzer is used for languages without a dedicated analyzer.
const StandardAnalyzer = "standard"

// analyzers maps ISO 639-1 codes to full-text analyzer names.
var analyzers = map[string]string{
	"ar": "ar", "da": "da", "de": "de", "en": "en", "es": "es", "fa": "fa",
	"fi": "fi", "fr": "fr", "hi": "hi", "hu": "hu", "it": "it", "nl": "nl",
	"no": "no", "nb": "no", "pt": "pt", "ro": "ro", "ru": "ru", "sv": "sv",
	"tr": "tr", "zh": "cjk", "ja": "cjk", "ko": "cjk",
}

// LanguageInfo describes a language code.
type LanguageInfo struct {
	ISO639_2 string
	ISO639_1 string
	Display  string
	Analyzer string
}

// Describe resolves an ISO 639-1, ISO 639-2 or BCP 47 code. Unknown codes
// are kept as given and use the standard analyzer.
func Describe(code string) LanguageInfo {
	raw := strings.TrimSpace(code)
	info := LanguageInfo{ISO639_2: raw, Display: raw, Analyzer: StandardAnalyzer}
	if raw == "" {
		return info
	}

	tag, err := language.Parse(raw)
	if err != nil {
		return info
	}
	base, conf := tag.Base()
	if conf == language.No || base.String() == "und" {
		return info
	}

	if iso3 := base.ISO3(); iso3 != "" {
		info.ISO639_2 = iso3
	}
	if s := base.String(); len(s) == 2 {
		info.ISO639_1 = s
	}
	if name := display.English.Languages().Name(base); name != "" {
		info.Display = name
	}
	if a, ok := analyzers[info.ISO639_1]; ok {
		info.Analyzer = a
	}
	return info
}

// byName maps lowercased English language names to ISO 639-1 codes.
var byName = func() map[string]string {
	names := display.English.Languages()
	m := make(map[string]string, len(analyzers))
	for code := range analyzers {
		if name := names.Name(language.MustParse(code)); name != "" {
			m[strings.ToLower(name)] = code
		}
	}
	m["norwegian"] = "no"
	return m
}()

// ResolveLanguage accepts a code (en, eng, en-GB) or an English language
// name (english, German) and describes it.
func ResolveLanguage(s string) LanguageInfo {
	if code, ok := byName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return Describe(code)
	}
	return Describe(s)
}

// Analyzers returns the distinct analyzer names in use, sorted.
func Analyzers() []string {
	seen := map[string]bool{StandardAnalyzer: true}
	out := []string{StandardAnalyzer}
	for _, a := range analyzers {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}
