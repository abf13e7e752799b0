package teitables

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// NativeOpener opens documents with the pure Go ledongthuc/pdf reader. It
// needs no pdfium runtime but sees less of the page: glyph runs from the
// content stream and rectangles drawn with the re operator.
type NativeOpener struct {
	Settings TableSettings
}

// OpenFile implements SourceOpener.
func (o *NativeOpener) OpenFile(_ context.Context, path string) (src PageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to open PDF document: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return &nativeSource{file: f, reader: reader, settings: o.Settings}, nil
}

type nativeSource struct {
	file     *os.File
	reader   *pdf.Reader
	settings TableSettings
}

func (s *nativeSource) PageCount() (int, error) {
	return s.reader.NumPage(), nil
}

func (s *nativeSource) Page(index int) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page %d: %v", index+1, r)
		}
	}()

	p := s.reader.Page(index + 1)
	if p.V.IsNull() {
		return nil, errors.Errorf("page %d not found", index+1)
	}

	width, height := mediaBox(p)
	content := p.Content()

	chars := glyphsToChars(content.Text, height)
	words := groupCharsIntoWords(chars, s.settings.XTolerance, s.settings.YTolerance)

	page = &Page{
		Number: index + 1,
		Width:  width,
		Height: height,
		Words:  sortReadingOrder(expandLigatures(words), s.settings.YTolerance),
	}

	for _, r := range content.Rect {
		x0, x1 := r.Min.X, r.Max.X
		y0, y1 := height-r.Max.Y, height-r.Min.Y

		var edges []Edge
		if edge, ok := segmentToEdge(x0, y0, x1, y1); ok {
			edges = append(edges, edge)
		} else if x1-x0 >= 2.0 && y1-y0 >= 2.0 {
			edges = rectToEdges(x0, y0, x1, y1)
		}
		for _, e := range edges {
			if s.settings.FilterPageBorders && isPageBorder(e, width, height) {
				continue
			}
			page.Lines = append(page.Lines, e)
		}
	}

	return page, nil
}

func (s *nativeSource) Close() error {
	return errors.Wrap(s.file.Close(), "failed to close PDF document")
}

// mediaBox returns the page size, defaulting to US Letter when the page
// carries no usable MediaBox.
func mediaBox(p pdf.Page) (width, height float64) {
	box := p.V.Key("MediaBox")
	if box.Len() < 4 {
		return 612, 792
	}
	x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
	x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return 612, 792
	}
	return x1 - x0, y1 - y0
}

// glyphsToChars converts content stream text runs into glyphs with a
// top-left origin. The glyph height is approximated by the font size above
// the baseline.
func glyphsToChars(texts []pdf.Text, pageHeight float64) []EnrichedChar {
	chars := make([]EnrichedChar, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(t.S)
		if r == utf8.RuneError {
			continue
		}

		size := t.FontSize
		if size <= 0 {
			size = 10
		}

		// Multi-rune runs share the run's advance width evenly.
		runes := []rune(t.S)
		step := t.W / float64(len(runes))
		for i, r := range runes {
			x0 := t.X + step*float64(i)
			chars = append(chars, EnrichedChar{
				Text: r,
				Box: Rect{
					X0: x0,
					Y0: pageHeight - (t.Y + size),
					X1: x0 + step,
					Y1: pageHeight - t.Y,
				},
				FontSize: size,
			})
		}
	}
	return chars
}
