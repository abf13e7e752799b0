package teitables

import (
	"fmt"
	"strings"
)

// NAN replaces cells that are missing or hold only whitespace. Consumers
// treat it as "known absent", which is distinct from an empty string.
const NAN = "NAN"

// DetectedTable is one table recovered from the PDF, ready to serialise.
type DetectedTable struct {
	Page    int // 1-based page number
	Index   int // 1-based ordinal on the page
	Number  int // document-wide table number
	BBox    *CellBBox
	Context string
	Rows    [][]string
}

// Coordinates renders the table position as "page,x0,top,width,height", or
// "page,No coordinates found" when the box is unknown.
func (t DetectedTable) Coordinates() string {
	if t.BBox == nil {
		return fmt.Sprintf("%d,No coordinates found", t.Page)
	}
	return fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f",
		t.Page, t.BBox.X0, t.BBox.Top, t.BBox.Width(), t.BBox.Height())
}

// normalizeCell maps a grid position to its serialised value.
func normalizeCell(cell TableCell) string {
	if cell.Missing {
		return NAN
	}
	text := strings.TrimSpace(cell.Content)
	if text == "" {
		return NAN
	}
	return text
}

// normalizeRows converts a detected grid into rows of cell strings.
func normalizeRows(table Table) [][]string {
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, normalizeCell(cell))
		}
		rows = append(rows, cells)
	}
	return rows
}
