package teitables

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ivanvanderbyl/markdown"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// SheetName returns the worksheet name used for a table in XLSX exports.
func SheetName(t DetectedTable) string {
	return fmt.Sprintf("p%d_t%d", t.Page, t.Number)
}

// WriteXLSX writes one worksheet per table: the context in A1 and the grid
// from row 3. A document without tables gets a single empty "tables" sheet.
func WriteXLSX(w io.Writer, tables []DetectedTable) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	if len(tables) == 0 {
		if err := f.SetSheetName(defaultSheet, "tables"); err != nil {
			return errors.Wrap(err, "failed to rename sheet")
		}
		return errors.Wrap(f.Write(w), "failed to write workbook")
	}

	for i, t := range tables {
		name := SheetName(t)
		idx, err := f.NewSheet(name)
		if err != nil {
			return errors.Wrapf(err, "failed to create sheet %s", name)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}

		if err := f.SetCellValue(name, "A1", t.Context); err != nil {
			return errors.Wrapf(err, "failed to write context of %s", name)
		}
		if err := f.SetCellValue(name, "B1", t.Coordinates()); err != nil {
			return errors.Wrapf(err, "failed to write coordinates of %s", name)
		}

		for r, row := range t.Rows {
			for c, cell := range row {
				ref, err := excelize.CoordinatesToCellName(c+1, r+3)
				if err != nil {
					return errors.Wrap(err, "failed to address cell")
				}
				if err := f.SetCellValue(name, ref, cell); err != nil {
					return errors.Wrapf(err, "failed to write cell %s of %s", ref, name)
				}
			}
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return errors.Wrap(err, "failed to remove default sheet")
	}

	return errors.Wrap(f.Write(w), "failed to write workbook")
}

// TablesMarkdown renders each table as a heading, its context and a markdown
// table whose first row is the header.
func TablesMarkdown(tables []DetectedTable) (string, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	for i, t := range tables {
		if i > 0 {
			md.HorizontalRule().LF()
		}
		md.H2(fmt.Sprintf("Table %d (page %d)", t.Number, t.Page))
		md.LF()
		md.PlainText(t.Context)
		md.LF()
		convertRowsToMarkdown(md, t.Rows)
		md.LF()
	}

	if err := md.Build(); err != nil {
		return "", errors.Wrap(err, "failed to build markdown")
	}
	return buf.String(), nil
}

// convertRowsToMarkdown writes a grid with the builder, padding short rows.
func convertRowsToMarkdown(md *markdown.Markdown, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	if width == 0 {
		return
	}

	pad := func(row []string) []string {
		cells := make([]string, width)
		for i := range cells {
			if i < len(row) {
				// Replace newlines with spaces in cell content
				cells[i] = strings.ReplaceAll(row[i], "\n", " ")
			}
		}
		return cells
	}

	header := pad(rows[0])
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		body = append(body, pad(row))
	}
	if len(body) == 0 {
		body = [][]string{make([]string, width)}
	}

	md.Table(markdown.TableSet{
		Header: header,
		Rows:   body,
	})
}
