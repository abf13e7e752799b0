package teitables

// Orientation of an Edge.
type Orientation string

const (
	Horizontal Orientation = "h"
	Vertical   Orientation = "v"
)

// Edge represents a horizontal or vertical line segment used for table detection.
// Based on pdfplumber's edge structure.
type Edge struct {
	X0          float64
	X1          float64
	Top         float64
	Bottom      float64
	Width       float64 // horizontal extent
	Height      float64 // vertical extent
	Orientation Orientation
}

// length returns the extent of the edge along its orientation.
func (e Edge) length() float64 {
	if e.Orientation == Vertical {
		return e.Height
	}
	return e.Width
}

// Point is an (x, y) coordinate where edges intersect.
type Point struct {
	X float64
	Y float64
}

// CellBBox is a table cell (or table) bounding box.
type CellBBox struct {
	X0     float64
	Top    float64
	X1     float64
	Bottom float64
}

// Width returns the horizontal extent of the box.
func (b CellBBox) Width() float64 {
	return b.X1 - b.X0
}

// Height returns the vertical extent of the box.
func (b CellBBox) Height() float64 {
	return b.Bottom - b.Top
}

// TableCell is one grid position of a detected table.
//
// Missing is set when no cell was detected at this position, for example
// under a horizontally merged cell. It is distinct from a cell that exists
// but holds no text.
type TableCell struct {
	BBox    CellBBox
	Content string
	Missing bool
}

// TableRow is a row of grid positions.
type TableRow struct {
	Cells []TableCell
	BBox  CellBBox
}

// Table is a detected table with its grid and content.
type Table struct {
	BBox    CellBBox
	Rows    []TableRow
	Cells   []CellBBox // Raw cell bounding boxes
	NumRows int
	NumCols int
}

// Strategy selects where table edges come from.
type Strategy string

const (
	// StrategyLines uses only ruling lines drawn in the PDF.
	StrategyLines Strategy = "lines"
	// StrategyLinesText uses ruling lines, falling back to word alignment
	// when an orientation has none.
	StrategyLinesText Strategy = "lines_text"
	// StrategyText infers edges from word alignment only.
	StrategyText Strategy = "text"
)

// TableSettings configures table detection behavior.
// Based on pdfplumber's TableSettings.
type TableSettings struct {
	VerticalStrategy   Strategy `json:"vertical_strategy"`
	HorizontalStrategy Strategy `json:"horizontal_strategy"`

	SnapXTolerance float64 `json:"snap_x_tolerance"`
	SnapYTolerance float64 `json:"snap_y_tolerance"`

	JoinXTolerance float64 `json:"join_x_tolerance"`
	JoinYTolerance float64 `json:"join_y_tolerance"`

	EdgeMinLength float64 `json:"edge_min_length"`

	// Minimum number of aligned words required to infer an edge from text.
	MinWordsVertical   int `json:"min_words_vertical"`
	MinWordsHorizontal int `json:"min_words_horizontal"`

	IntersectionXTolerance float64 `json:"intersection_x_tolerance"`
	IntersectionYTolerance float64 `json:"intersection_y_tolerance"`

	// Word grouping tolerances, pdfplumber's x_tolerance / y_tolerance.
	XTolerance float64 `json:"x_tolerance"`
	YTolerance float64 `json:"y_tolerance"`

	// FilterPageBorders drops ruling lines spanning nearly the whole page,
	// such as page frames. Off by default, like pdfplumber.
	FilterPageBorders bool `json:"filter_page_borders"`
}

// DefaultTableSettings returns pdfplumber's defaults: ruling lines only.
func DefaultTableSettings() TableSettings {
	return TableSettings{
		VerticalStrategy:       StrategyLines,
		HorizontalStrategy:     StrategyLines,
		SnapXTolerance:         3.0,
		SnapYTolerance:         3.0,
		JoinXTolerance:         3.0,
		JoinYTolerance:         3.0,
		EdgeMinLength:          3.0,
		MinWordsVertical:       3,
		MinWordsHorizontal:     1,
		IntersectionXTolerance: 3.0,
		IntersectionYTolerance: 3.0,
		XTolerance:             3.0,
		YTolerance:             3.0,
		FilterPageBorders:      false,
	}
}
