package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain text", StripHTML("  plain \n text "))
	assert.Equal(t, "a < b & c", StripHTML("a < b &amp; c"))
	assert.Equal(t, "line one line two", StripHTML("<p>line one<br/>line two</p>"))
	assert.Equal(t, "kept", StripHTML("<span>kept</span><style>p{}</style><!-- gone -->"))
}

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain text is escaped", "Tom & Jerry", "Tom &amp; Jerry"},
		{"allowed tags kept", `<p><i>Ardea</i> <b>cinerea</b></p>`, `<p><i>Ardea</i> <b>cinerea</b></p>`},
		{"unknown tags unwrapped", `<div class="x"><em>hi</em></div>`, `hi`},
		{"safe link kept", `<a href="https://example.org" onclick="x()">site</a>`, `<a href="https://example.org">site</a>`},
		{"image void element", `<img src="https://x.org/i.jpg" alt="i" onerror="x()">`, `<img src="https://x.org/i.jpg" alt="i">`},
		{"script removed", `<p>ok<script>bad()</script></p>`, `<p>ok</p>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeHTML(tt.in))
		})
	}
}
