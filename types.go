package teitables

import (
	"math"
	"sort"
)

// Rect represents a bounding box in page space.
type Rect struct {
	X0 float64 // Left
	Y0 float64 // Top (after conversion from PDF coordinates)
	X1 float64 // Right
	Y1 float64 // Bottom (after conversion from PDF coordinates)
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// CenterX returns the horizontal center of the rectangle.
func (r Rect) CenterX() float64 {
	return (r.X0 + r.X1) / 2
}

// CenterY returns the vertical center of the rectangle.
func (r Rect) CenterY() float64 {
	return (r.Y0 + r.Y1) / 2
}

// union returns the smallest rectangle containing both r and o.
func (r Rect) union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// EnrichedChar is a single glyph with its box and font size.
type EnrichedChar struct {
	Text     rune
	Box      Rect
	FontSize float64
}

// EnrichedWord is a run of glyphs that pdfplumber would report as one word.
type EnrichedWord struct {
	Text     string
	Box      Rect
	FontSize float64 // Average font size
}

// Line is a horizontal run of words sharing a top coordinate.
type Line struct {
	Words []EnrichedWord
	Box   Rect
}

// Page holds the geometry extracted from one PDF page.
type Page struct {
	Number int // 1-based
	Width  float64
	Height float64
	Words  []EnrichedWord // reading order
	Lines  []Edge         // ruling lines drawn on the page
	Tables []Table
}

// PageSource is a handle on one opened PDF. Each request owns its own
// PageSource; implementations are not safe for concurrent use.
type PageSource interface {
	// PageCount returns the number of pages in the document.
	PageCount() (int, error)
	// Page extracts the geometry of the page at the given 0-based index.
	Page(index int) (*Page, error)
	// Close releases the document and any backend resources.
	Close() error
}

// groupWordsIntoLines clusters words whose tops lie within tolerance of the
// first word of the line, pdfplumber's cluster_objects on "top".
func groupWordsIntoLines(words []EnrichedWord, tolerance float64) []Line {
	if len(words) == 0 {
		return nil
	}

	sorted := make([]EnrichedWord, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.Y0 < sorted[j].Box.Y0
	})

	var lines []Line
	current := Line{Words: []EnrichedWord{sorted[0]}, Box: sorted[0].Box}
	for _, word := range sorted[1:] {
		if word.Box.Y0-current.Box.Y0 <= tolerance {
			current.Words = append(current.Words, word)
			current.Box = current.Box.union(word.Box)
			continue
		}
		lines = append(lines, current)
		current = Line{Words: []EnrichedWord{word}, Box: word.Box}
	}
	lines = append(lines, current)

	for i := range lines {
		sort.SliceStable(lines[i].Words, func(a, b int) bool {
			return lines[i].Words[a].Box.X0 < lines[i].Words[b].Box.X0
		})
	}

	return lines
}

// sortReadingOrder orders words top-to-bottom, then left-to-right within a line.
func sortReadingOrder(words []EnrichedWord, tolerance float64) []EnrichedWord {
	lines := groupWordsIntoLines(words, tolerance)
	ordered := make([]EnrichedWord, 0, len(words))
	for _, line := range lines {
		ordered = append(ordered, line.Words...)
	}
	return ordered
}
