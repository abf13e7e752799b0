package teitables

import (
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

// extractRulings collects the ruling lines of a page from its path objects:
// two-segment paths that are horizontal or vertical, and the four sides of
// rectangles and other closed paths.
func extractRulings(instance pdfium.Pdfium, page references.FPDF_PAGE, pageWidth, pageHeight float64, filterBorders bool) ([]Edge, error) {
	countResp, err := instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{
		Page: requests.Page{
			ByReference: &page,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to count page objects")
	}

	var edges []Edge
	keep := func(e Edge) {
		if filterBorders && isPageBorder(e, pageWidth, pageHeight) {
			return
		}
		edges = append(edges, e)
	}

	for i := 0; i < countResp.Count; i++ {
		objResp, err := instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page: requests.Page{
				ByReference: &page,
			},
			Index: i,
		})
		if err != nil {
			continue
		}

		typeResp, err := instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: objResp.PageObject,
		})
		if err != nil || typeResp.Type != enums.FPDF_PAGEOBJ_PATH {
			continue
		}

		boundsResp, err := instance.FPDFPageObj_GetBounds(&requests.FPDFPageObj_GetBounds{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			continue
		}

		segResp, err := instance.FPDFPath_CountSegments(&requests.FPDFPath_CountSegments{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			continue
		}

		// PDF origin is bottom-left; flip to top-left.
		x0 := float64(boundsResp.Left)
		y0 := pageHeight - float64(boundsResp.Top)
		x1 := float64(boundsResp.Right)
		y1 := pageHeight - float64(boundsResp.Bottom)

		switch {
		case segResp.Count == 2:
			if edge, ok := segmentToEdge(x0, y0, x1, y1); ok {
				keep(edge)
			}
		case segResp.Count >= 4:
			for _, edge := range rectToEdges(x0, y0, x1, y1) {
				keep(edge)
			}
		}
	}

	return edges, nil
}

// isPageBorder reports whether an edge frames the page rather than ruling a
// table: it spans at least 90% of the page in its own direction.
func isPageBorder(edge Edge, pageWidth, pageHeight float64) bool {
	const fullSpanThreshold = 0.90

	if edge.Orientation == Horizontal {
		return edge.Width >= pageWidth*fullSpanThreshold
	}
	return edge.Height >= pageHeight*fullSpanThreshold
}

// segmentToEdge converts a straight segment's bounds into an edge when it is
// close to horizontal or vertical.
func segmentToEdge(x0, y0, x1, y1 float64) (Edge, bool) {
	width := x1 - x0
	height := y1 - y0

	switch {
	case height < 2.0 && width > 1.0:
		return Edge{X0: x0, X1: x1, Top: y0, Bottom: y1, Width: width, Height: height, Orientation: Horizontal}, true
	case width < 2.0 && height > 1.0:
		return Edge{X0: x0, X1: x1, Top: y0, Bottom: y1, Width: width, Height: height, Orientation: Vertical}, true
	}
	return Edge{}, false
}

// rectToEdges returns the four sides of a rectangle.
func rectToEdges(x0, y0, x1, y1 float64) []Edge {
	return []Edge{
		{X0: x0, X1: x1, Top: y0, Bottom: y0, Width: x1 - x0, Orientation: Horizontal},
		{X0: x0, X1: x1, Top: y1, Bottom: y1, Width: x1 - x0, Orientation: Horizontal},
		{X0: x0, X1: x0, Top: y0, Bottom: y1, Height: y1 - y0, Orientation: Vertical},
		{X0: x1, X1: x1, Top: y0, Bottom: y1, Height: y1 - y0, Orientation: Vertical},
	}
}
