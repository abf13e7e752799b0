package teitables

import (
	"context"
	"math"
	"time"
	"unicode"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

// SourceOpener opens a PDF on disk as a PageSource.
type SourceOpener interface {
	OpenFile(ctx context.Context, path string) (PageSource, error)
}

// PdfiumOpener opens documents with pdfium instances drawn from a pool. Each
// opened source holds its instance until Close, so concurrent requests never
// share one.
type PdfiumOpener struct {
	Pool            pdfium.Pool
	InstanceTimeout time.Duration
	Settings        TableSettings
}

// OpenFile implements SourceOpener.
func (o *PdfiumOpener) OpenFile(_ context.Context, path string) (PageSource, error) {
	timeout := o.InstanceTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	instance, err := o.Pool.GetInstance(timeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pdfium instance")
	}

	src, err := openPdfiumSource(instance, path, o.Settings)
	if err != nil {
		instance.Close()
		return nil, err
	}
	src.release = instance.Close
	return src, nil
}

// pdfiumSource reads page geometry through a pdfium instance.
type pdfiumSource struct {
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	settings TableSettings
	release  func() error
}

// NewPdfiumSource opens the PDF at path on an instance the caller owns.
func NewPdfiumSource(instance pdfium.Pdfium, path string, settings TableSettings) (PageSource, error) {
	return openPdfiumSource(instance, path, settings)
}

func openPdfiumSource(instance pdfium.Pdfium, path string, settings TableSettings) (*pdfiumSource, error) {
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		FilePath: &path,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return &pdfiumSource{instance: instance, doc: doc.Document, settings: settings}, nil
}

func (s *pdfiumSource) PageCount() (int, error) {
	pageCount, err := s.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: s.doc,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to get page count")
	}
	return pageCount.PageCount, nil
}

func (s *pdfiumSource) Page(index int) (*Page, error) {
	pageResp, err := s.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: s.doc,
		Index:    index,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load page")
	}
	defer s.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	return ExtractPage(s.instance, pageResp.Page, index+1, s.settings)
}

func (s *pdfiumSource) Close() error {
	_, err := s.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: s.doc,
	})
	if s.release != nil {
		if rerr := s.release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return errors.Wrap(err, "failed to close PDF document")
}

// ExtractPage extracts the words and ruling lines of a loaded pdfium page.
// Tables are not detected here; see DetectTables.
func ExtractPage(instance pdfium.Pdfium, page references.FPDF_PAGE, pageNumber int, settings TableSettings) (*Page, error) {
	widthResp, err := instance.FPDF_GetPageWidthF(&requests.FPDF_GetPageWidthF{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page width")
	}

	heightResp, err := instance.FPDF_GetPageHeightF(&requests.FPDF_GetPageHeightF{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page height")
	}

	width := float64(widthResp.PageWidth)
	height := float64(heightResp.PageHeight)

	result := &Page{
		Number: pageNumber,
		Width:  width,
		Height: height,
	}

	textPage, err := instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load text page")
	}
	defer instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
		TextPage: textPage.TextPage,
	})

	charCount, err := instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
		TextPage: textPage.TextPage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count characters")
	}

	if charCount.Count > 0 {
		chars := extractChars(instance, textPage.TextPage, charCount.Count, height)
		words := groupCharsIntoWords(chars, settings.XTolerance, settings.YTolerance)
		result.Words = sortReadingOrder(expandLigatures(words), settings.YTolerance)
	}

	// Ruling lines are best effort; a page without them simply has no
	// line-based tables.
	lines, err := extractRulings(instance, page, width, height, settings.FilterPageBorders)
	if err == nil {
		result.Lines = lines
	}

	return result, nil
}

// extractChars reads every glyph with its box, converted to a top-left origin.
func extractChars(instance pdfium.Pdfium, textPage references.FPDF_TEXTPAGE, count int, pageHeight float64) []EnrichedChar {
	chars := make([]EnrichedChar, 0, count)

	for i := range count {
		unicodeRes, err := instance.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil || unicodeRes.Unicode == 0 {
			continue
		}

		charBox, err := instance.FPDFText_GetCharBox(&requests.FPDFText_GetCharBox{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil {
			continue
		}

		fontSize := 12.0
		if fs, err := instance.FPDFText_GetFontSize(&requests.FPDFText_GetFontSize{
			TextPage: textPage,
			Index:    i,
		}); err == nil {
			fontSize = fs.FontSize
		}

		chars = append(chars, EnrichedChar{
			Text: rune(unicodeRes.Unicode),
			Box: Rect{
				X0: charBox.Left,
				Y0: pageHeight - charBox.Top,
				X1: charBox.Right,
				Y1: pageHeight - charBox.Bottom,
			},
			FontSize: fontSize,
		})
	}

	return chars
}

// groupCharsIntoWords splits a glyph stream into words the way pdfplumber's
// WordExtractor does: on whitespace, on a horizontal gap wider than xTol, and
// on a jump of more than yTol between glyph tops.
func groupCharsIntoWords(chars []EnrichedChar, xTol, yTol float64) []EnrichedWord {
	var words []EnrichedWord
	var current []EnrichedChar

	flush := func() {
		if len(current) > 0 {
			words = append(words, aggregateWord(current))
			current = nil
		}
	}

	for _, char := range chars {
		if unicode.IsSpace(char.Text) {
			flush()
			continue
		}
		if len(current) > 0 {
			prev := current[len(current)-1]
			if char.Box.X0 > prev.Box.X1+xTol ||
				char.Box.X1 < prev.Box.X0-xTol ||
				math.Abs(char.Box.Y0-prev.Box.Y0) > yTol {
				flush()
			}
		}
		current = append(current, char)
	}
	flush()

	return words
}

// aggregateWord builds a word from its glyphs.
func aggregateWord(chars []EnrichedChar) EnrichedWord {
	runes := make([]rune, 0, len(chars))
	box := chars[0].Box
	var totalSize float64
	for _, char := range chars {
		runes = append(runes, char.Text)
		box = box.union(char.Box)
		totalSize += char.FontSize
	}

	return EnrichedWord{
		Text:     string(runes),
		Box:      box,
		FontSize: totalSize / float64(len(chars)),
	}
}

// ligatures maps presentation-form ligatures to their letters.
var ligatures = map[rune]string{
	0xFB00: "ff",
	0xFB01: "fi",
	0xFB02: "fl",
	0xFB03: "ffi",
	0xFB04: "ffl",
	0xFB05: "ft",
	0xFB06: "st",
}

// expandLigatures rewrites ligature glyphs into plain letters.
func expandLigatures(words []EnrichedWord) []EnrichedWord {
	for i := range words {
		var expanded []rune
		changed := false
		for _, r := range words[i].Text {
			if letters, ok := ligatures[r]; ok {
				expanded = append(expanded, []rune(letters)...)
				changed = true
				continue
			}
			expanded = append(expanded, r)
		}
		if changed {
			words[i].Text = string(expanded)
		}
	}
	return words
}
