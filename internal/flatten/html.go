package flatten

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedTags are the HTML elements kept in original content, following the
// IIIF Presentation 3 rules for HTML in property values.
var allowedTags = map[atom.Atom]map[string]bool{
	atom.A:     {"href": true},
	atom.B:     {},
	atom.Br:    {},
	atom.I:     {},
	atom.Img:   {"src": true, "alt": true},
	atom.P:     {},
	atom.Small: {},
	atom.Span:  {},
	atom.Sub:   {},
	atom.Sup:   {},
}

// droppedTags are removed together with their content.
var droppedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Noscript: true,
	atom.Template: true,
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Br: true, atom.Div: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Td: true, atom.Th: true,
}

func looksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

func parseFragment(s string) []*html.Node {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil
	}
	return nodes
}

// StripHTML returns the text content of s with whitespace collapsed.
func StripHTML(s string) string {
	if !looksLikeHTML(s) {
		return collapseSpace(html.UnescapeString(s))
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if droppedTags[n.DataAtom] {
				return
			}
			if blockTags[n.DataAtom] {
				sb.WriteByte(' ')
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.DataAtom] {
			sb.WriteByte(' ')
		}
	}
	for _, n := range parseFragment(s) {
		walk(n)
	}
	return collapseSpace(sb.String())
}

// SanitizeHTML keeps allow-listed tags and attributes and escapes text.
// Other elements are unwrapped; scripts and styles are removed with their
// content. Links must be http(s) or mailto.
func SanitizeHTML(s string) string {
	if !looksLikeHTML(s) {
		return html.EscapeString(strings.TrimSpace(s))
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(html.EscapeString(n.Data))
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if droppedTags[n.DataAtom] {
				return
			}
			attrs, ok := allowedTags[n.DataAtom]
			if !ok {
				break
			}
			sb.WriteByte('<')
			sb.WriteString(n.Data)
			for _, a := range n.Attr {
				if !attrs[a.Key] || a.Namespace != "" || !safeURL(a.Key, a.Val) {
					continue
				}
				sb.WriteByte(' ')
				sb.WriteString(a.Key)
				sb.WriteString(`="`)
				sb.WriteString(html.EscapeString(a.Val))
				sb.WriteByte('"')
			}
			sb.WriteByte('>')
			if n.DataAtom == atom.Br || n.DataAtom == atom.Img {
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			sb.WriteString("</")
			sb.WriteString(n.Data)
			sb.WriteByte('>')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range parseFragment(s) {
		walk(n)
	}
	return strings.TrimSpace(sb.String())
}

func safeURL(key, val string) bool {
	if key != "href" && key != "src" {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(val))
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "mailto:")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
