package teitables

import (
	"strings"

	"golang.org/x/net/html"
)

// SplicePosition records where Splice placed the tables.
type SplicePosition int

const (
	// AtAnchor means the tables replaced the first placeholder.
	AtAnchor SplicePosition = iota
	// BeforeRootClose means the tables went just before the root closing tag.
	BeforeRootClose
	// Appended means neither was found and the tables were added at the end.
	Appended
)

func (p SplicePosition) String() string {
	switch p {
	case AtAnchor:
		return "anchor"
	case BeforeRootClose:
		return "before_root_close"
	case Appended:
		return "appended"
	default:
		return "unknown"
	}
}

// TableSection wraps a fragment in the start and end marker comments.
func TableSection(fragment, source string) string {
	return "\n<!-- ======== START: Tables from " + source + " ======== -->\n" +
		fragment +
		"\n<!-- ======== END: Tables from " + source + " ======== -->\n"
}

// Splice inserts the table fragment into doc. With a valid anchor the
// section goes exactly there; otherwise it goes before the closing tag of
// the root element (</TEI> for GROBID output), and failing that it is
// appended.
func Splice(doc, fragment string, anchor Anchor, source string) (string, SplicePosition) {
	section := TableSection(fragment, source)

	if anchor.Valid() && int(anchor) <= len(doc) {
		return doc[:anchor] + section + doc[anchor:], AtAnchor
	}

	if at := rootCloseOffset(doc); at >= 0 {
		return doc[:at] + section + doc[at:], BeforeRootClose
	}

	return doc + "\n" + section, Appended
}

// rootCloseOffset returns the offset of the last closing tag named like the
// first element of doc, or -1.
func rootCloseOffset(doc string) int {
	z := newTokenizer(strings.NewReader(doc))

	var root string
	offset, at := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return at
		}
		tokStart := offset
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			z.NextIsNotRawText()
			if root == "" {
				name, _ := z.TagName()
				root = string(name)
			}
		case html.SelfClosingTagToken:
			z.NextIsNotRawText()
		case html.EndTagToken:
			if root == "" {
				continue
			}
			if name, _ := z.TagName(); string(name) == root {
				at = tokStart
			}
		}
	}
}
