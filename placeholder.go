package teitables

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Anchor is a byte offset into a document where tables are spliced.
type Anchor int

// NoAnchor means the document held no table placeholder.
const NoAnchor Anchor = -1

// Valid reports whether the anchor points into the document.
func (a Anchor) Valid() bool {
	return a >= 0
}

// PlaceholderMatcher selects the elements that stand in for tables, e.g.
// GROBID's <figure type="table">. Element is compared by local name without
// regard to case or namespace prefix.
type PlaceholderMatcher struct {
	Element string `json:"element"`
	Attr    string `json:"attr"`
	Value   string `json:"value"`
}

// DefaultPlaceholderMatcher matches GROBID table figures.
func DefaultPlaceholderMatcher() PlaceholderMatcher {
	return PlaceholderMatcher{Element: "figure", Attr: "type", Value: "table"}
}

func (m PlaceholderMatcher) matchesName(name []byte) bool {
	local := string(name)
	if i := strings.LastIndexByte(local, ':'); i >= 0 {
		local = local[i+1:]
	}
	return strings.EqualFold(local, m.Element)
}

// matchesAttrs consumes the attributes of the current tag.
func (m PlaceholderMatcher) matchesAttrs(z *html.Tokenizer, hasAttr bool) bool {
	matched := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if strings.EqualFold(string(key), m.Attr) && strings.TrimSpace(string(val)) == m.Value {
			matched = true
		}
	}
	return matched
}

// Removal is the result of stripping placeholders from a document.
type Removal struct {
	Text    string
	Anchor  Anchor // offset of the first placeholder, valid in both texts
	Removed int
}

type span struct {
	start, end int
}

// RemovePlaceholders deletes every placeholder element, including its
// content, from doc. All other bytes are kept as they are. Nested elements of
// the same name are balanced; a placeholder that is never closed is left in
// place.
func RemovePlaceholders(doc string, m PlaceholderMatcher) Removal {
	spans := findPlaceholders(doc, m)
	if len(spans) == 0 {
		return Removal{Text: doc, Anchor: NoAnchor}
	}

	var sb strings.Builder
	sb.Grow(len(doc))
	prev := 0
	for _, s := range spans {
		sb.WriteString(doc[prev:s.start])
		prev = s.end
	}
	sb.WriteString(doc[prev:])

	return Removal{
		Text:    sb.String(),
		Anchor:  Anchor(spans[0].start),
		Removed: len(spans),
	}
}

// CountPlaceholders returns the number of placeholders RemovePlaceholders
// would delete.
func CountPlaceholders(doc string, m PlaceholderMatcher) int {
	return len(findPlaceholders(doc, m))
}

// newTokenizer returns a tokenizer that treats every element as markup, the
// way an XML reader would, rather than switching to raw text inside HTML
// elements such as title.
func newTokenizer(r io.Reader) *html.Tokenizer {
	z := html.NewTokenizer(r)
	z.AllowCDATA(true)
	return z
}

// findPlaceholders returns the byte spans of outermost placeholders in order.
func findPlaceholders(doc string, m PlaceholderMatcher) []span {
	z := newTokenizer(strings.NewReader(doc))

	var spans []span
	offset, depth, start := 0, 0, 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return spans
		}
		tokStart := offset
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			z.NextIsNotRawText()
			name, hasAttr := z.TagName()
			if !m.matchesName(name) {
				continue
			}
			if depth > 0 {
				depth++
				continue
			}
			if m.matchesAttrs(z, hasAttr) {
				depth, start = 1, tokStart
			}

		case html.SelfClosingTagToken:
			z.NextIsNotRawText()
			if depth > 0 {
				continue
			}
			name, hasAttr := z.TagName()
			if m.matchesName(name) && m.matchesAttrs(z, hasAttr) {
				spans = append(spans, span{tokStart, offset})
			}

		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			name, _ := z.TagName()
			if m.matchesName(name) {
				depth--
				if depth == 0 {
					spans = append(spans, span{start, offset})
				}
			}
		}
	}
}
