package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		code string
		want LanguageInfo
	}{
		{"en", LanguageInfo{ISO639_2: "eng", ISO639_1: "en", Display: "English", Analyzer: "en"}},
		{"de", LanguageInfo{ISO639_2: "deu", ISO639_1: "de", Display: "German", Analyzer: "de"}},
		{"fra", LanguageInfo{ISO639_2: "fra", ISO639_1: "fr", Display: "French", Analyzer: "fr"}},
		{"en-GB", LanguageInfo{ISO639_2: "eng", ISO639_1: "en", Display: "English", Analyzer: "en"}},
		{"ja", LanguageInfo{ISO639_2: "jpn", ISO639_1: "ja", Display: "Japanese", Analyzer: "cjk"}},
		{"cy", LanguageInfo{ISO639_2: "cym", ISO639_1: "cy", Display: "Welsh", Analyzer: StandardAnalyzer}},
		{"not a code", LanguageInfo{ISO639_2: "not a code", Display: "not a code", Analyzer: StandardAnalyzer}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.code))
		})
	}
}

func TestResolveLanguage_AcceptsNames(t *testing.T) {
	assert.Equal(t, "en", ResolveLanguage("english").ISO639_1)
	assert.Equal(t, "deu", ResolveLanguage("German").ISO639_2)
	assert.Equal(t, "fr", ResolveLanguage("fr").Analyzer)
}

func TestAnalyzers_IncludesStandard(t *testing.T) {
	names := Analyzers()
	assert.Contains(t, names, StandardAnalyzer)
	assert.Contains(t, names, "en")
	assert.Contains(t, names, "cjk")
}
