package teitables

import (
	"context"
	"math"
	"sort"
	"strings"
)

// cancelCheckInterval is how many outer iterations the quadratic searches
// run between context checks.
const cancelCheckInterval = 64

// mergeEdges snaps and joins edges that are close together.
func mergeEdges(edges []Edge, settings TableSettings) []Edge {
	if settings.SnapXTolerance > 0 || settings.SnapYTolerance > 0 {
		edges = snapEdges(edges, settings.SnapXTolerance, settings.SnapYTolerance)
	}

	type lineKey struct {
		orientation Orientation
		position    float64
	}

	grouped := make(map[lineKey][]Edge)
	var keys []lineKey
	for _, edge := range edges {
		key := lineKey{orientation: edge.Orientation, position: edge.Top}
		if edge.Orientation == Vertical {
			key.position = edge.X0
		}
		if _, ok := grouped[key]; !ok {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], edge)
	}

	// Keep output order independent of map iteration.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].orientation != keys[j].orientation {
			return keys[i].orientation < keys[j].orientation
		}
		return keys[i].position < keys[j].position
	})

	var result []Edge
	for _, key := range keys {
		result = append(result, joinEdgeGroup(grouped[key], key.orientation, settings)...)
	}
	return result
}

// snapEdges moves edges that lie within tolerance of each other onto their
// mean position: vertical edges along x, horizontal edges along y.
func snapEdges(edges []Edge, xTol, yTol float64) []Edge {
	var vEdges, hEdges []Edge
	for _, e := range edges {
		if e.Orientation == Vertical {
			vEdges = append(vEdges, e)
		} else {
			hEdges = append(hEdges, e)
		}
	}

	snapAlong(vEdges, xTol, func(e *Edge) *float64 { return &e.X0 }, func(e *Edge) *float64 { return &e.X1 })
	snapAlong(hEdges, yTol, func(e *Edge) *float64 { return &e.Top }, func(e *Edge) *float64 { return &e.Bottom })

	return append(vEdges, hEdges...)
}

// snapAlong clusters edges by the coordinate returned by lead. Each cluster
// is moved to its mean; trail is shifted by the same amount so the edge keeps
// its thickness.
func snapAlong(edges []Edge, tolerance float64, lead, trail func(*Edge) *float64) {
	if len(edges) == 0 {
		return
	}

	order := make([]int, len(edges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return *lead(&edges[order[i]]) < *lead(&edges[order[j]])
	})

	apply := func(members []int) {
		var sum float64
		for _, idx := range members {
			sum += *lead(&edges[idx])
		}
		mean := sum / float64(len(members))
		for _, idx := range members {
			diff := mean - *lead(&edges[idx])
			*lead(&edges[idx]) = mean
			*trail(&edges[idx]) += diff
		}
	}

	cluster := []int{order[0]}
	last := *lead(&edges[order[0]])
	for _, idx := range order[1:] {
		val := *lead(&edges[idx])
		if val-last <= tolerance {
			cluster = append(cluster, idx)
		} else {
			apply(cluster)
			cluster = []int{idx}
		}
		last = val
	}
	apply(cluster)
}

// joinEdgeGroup joins collinear edges whose ends are within tolerance.
func joinEdgeGroup(edges []Edge, orientation Orientation, settings TableSettings) []Edge {
	if len(edges) == 0 {
		return edges
	}

	start := func(e Edge) float64 { return e.X0 }
	end := func(e Edge) float64 { return e.X1 }
	tolerance := settings.JoinXTolerance
	if orientation == Vertical {
		start = func(e Edge) float64 { return e.Top }
		end = func(e Edge) float64 { return e.Bottom }
		tolerance = settings.JoinYTolerance
	}

	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return start(sorted[i]) < start(sorted[j])
	})

	joined := []Edge{sorted[0]}
	for _, current := range sorted[1:] {
		last := &joined[len(joined)-1]
		if start(current) > end(*last)+tolerance {
			joined = append(joined, current)
			continue
		}
		if end(current) <= end(*last) {
			continue
		}
		if orientation == Horizontal {
			last.X1 = current.X1
			last.Width = last.X1 - last.X0
		} else {
			last.Bottom = current.Bottom
			last.Height = last.Bottom - last.Top
		}
	}

	return joined
}

// filterEdgesByLength drops edges shorter than minLength.
func filterEdgesByLength(edges []Edge, minLength float64) []Edge {
	if minLength <= 0 {
		return edges
	}

	result := make([]Edge, 0, len(edges))
	for _, edge := range edges {
		if edge.length() >= minLength {
			result = append(result, edge)
		}
	}
	return result
}

// junction lists the edges meeting at an intersection point.
type junction struct {
	v []Edge
	h []Edge
}

// findIntersections finds where vertical and horizontal edges cross.
func findIntersections(ctx context.Context, edges []Edge, settings TableSettings) (map[Point]*junction, error) {
	intersections := make(map[Point]*junction)

	var vEdges, hEdges []Edge
	for _, e := range edges {
		if e.Orientation == Vertical {
			vEdges = append(vEdges, e)
		} else {
			hEdges = append(hEdges, e)
		}
	}

	xTol := settings.IntersectionXTolerance
	yTol := settings.IntersectionYTolerance

	for i, v := range vEdges {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, h := range hEdges {
			if v.Top <= h.Top+yTol &&
				v.Bottom >= h.Top-yTol &&
				v.X0 >= h.X0-xTol &&
				v.X0 <= h.X1+xTol {
				point := Point{X: v.X0, Y: h.Top}
				j, ok := intersections[point]
				if !ok {
					j = &junction{}
					intersections[point] = j
				}
				j.v = append(j.v, v)
				j.h = append(j.h, h)
			}
		}
	}

	return intersections, nil
}

// sharesEdge reports whether two edge sets have an edge in common.
func sharesEdge(a, b []Edge) bool {
	for _, e1 := range a {
		for _, e2 := range b {
			if e1 == e2 {
				return true
			}
		}
	}
	return false
}

// intersectionsToCells finds the smallest rectangles whose four corners are
// intersections joined by a common edge on every side.
func intersectionsToCells(ctx context.Context, intersections map[Point]*junction) ([]CellBBox, error) {
	if len(intersections) == 0 {
		return nil, nil
	}

	points := make([]Point, 0, len(intersections))
	for p := range intersections {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Y == points[j].Y {
			return points[i].X < points[j].X
		}
		return points[i].Y < points[j].Y
	})

	connected := func(p1, p2 Point) bool {
		if p1.X == p2.X {
			return sharesEdge(intersections[p1].v, intersections[p2].v)
		}
		if p1.Y == p2.Y {
			return sharesEdge(intersections[p1].h, intersections[p2].h)
		}
		return false
	}

	var cells []CellBBox
	for i, pt := range points {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var below, right []Point
		for _, candidate := range points[i+1:] {
			if candidate.X == pt.X {
				below = append(below, candidate)
			}
			if candidate.Y == pt.Y {
				right = append(right, candidate)
			}
		}

	search:
		for _, b := range below {
			if !connected(pt, b) {
				continue
			}
			for _, r := range right {
				if !connected(pt, r) {
					continue
				}
				corner := Point{X: r.X, Y: b.Y}
				if _, ok := intersections[corner]; !ok {
					continue
				}
				if connected(corner, r) && connected(corner, b) {
					cells = append(cells, CellBBox{X0: pt.X, Top: pt.Y, X1: corner.X, Bottom: corner.Y})
					break search
				}
			}
		}
	}

	return cells, nil
}

// cellsToTables groups cells that share corners into tables. Groups of a
// single cell are discarded and the rest are ordered by their top-left cell.
func cellsToTables(cells []CellBBox) [][]CellBBox {
	if len(cells) == 0 {
		return nil
	}

	corners := func(c CellBBox) [4]Point {
		return [4]Point{{c.X0, c.Top}, {c.X0, c.Bottom}, {c.X1, c.Top}, {c.X1, c.Bottom}}
	}

	remaining := make([]CellBBox, len(cells))
	copy(remaining, cells)

	var groups [][]CellBBox
	var current []CellBBox
	seen := make(map[Point]bool)

	for len(remaining) > 0 {
		before := len(current)

		kept := remaining[:0]
		for _, cell := range remaining {
			cc := corners(cell)
			attach := len(current) == 0
			if !attach {
				for _, c := range cc {
					if seen[c] {
						attach = true
						break
					}
				}
			}
			if !attach {
				kept = append(kept, cell)
				continue
			}
			current = append(current, cell)
			for _, c := range cc {
				seen[c] = true
			}
		}
		remaining = kept

		if len(current) == before {
			groups = append(groups, current)
			current = nil
			seen = make(map[Point]bool)
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	origin := func(group []CellBBox) Point {
		best := Point{X: math.MaxFloat64, Y: math.MaxFloat64}
		for _, c := range group {
			if c.Top < best.Y || (c.Top == best.Y && c.X0 < best.X) {
				best = Point{X: c.X0, Y: c.Top}
			}
		}
		return best
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := origin(groups[i]), origin(groups[j])
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	tables := groups[:0]
	for _, g := range groups {
		if len(g) > 1 {
			tables = append(tables, g)
		}
	}
	return tables
}

// clusterValues returns the sorted distinct values of vals, merging values
// closer than tolerance into the first of their run.
func clusterValues(vals []float64, tolerance float64) []float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	var out []float64
	for _, v := range sorted {
		if len(out) > 0 && v-out[len(out)-1] < tolerance {
			continue
		}
		out = append(out, v)
	}
	return out
}

// nearestIndex returns the index of the value in anchors closest to v.
func nearestIndex(anchors []float64, v float64) int {
	best := 0
	for i, a := range anchors {
		if math.Abs(a-v) < math.Abs(anchors[best]-v) {
			best = i
		}
	}
	return best
}

// createTable lays cells out on a row/column grid and fills in their text.
// Columns are the distinct left edges across the whole table; a row with no
// cell at a column gets a Missing placeholder there.
func createTable(cells []CellBBox, words []EnrichedWord, settings TableSettings) Table {
	if len(cells) == 0 {
		return Table{}
	}

	bbox := cells[0]
	tops := make([]float64, 0, len(cells))
	lefts := make([]float64, 0, len(cells))
	for _, cell := range cells {
		bbox.X0 = math.Min(bbox.X0, cell.X0)
		bbox.Top = math.Min(bbox.Top, cell.Top)
		bbox.X1 = math.Max(bbox.X1, cell.X1)
		bbox.Bottom = math.Max(bbox.Bottom, cell.Bottom)
		tops = append(tops, cell.Top)
		lefts = append(lefts, cell.X0)
	}

	const gridTolerance = 1.0
	rowTops := clusterValues(tops, gridTolerance)
	colLefts := clusterValues(lefts, gridTolerance)

	grid := make([][]*CellBBox, len(rowTops))
	for i := range grid {
		grid[i] = make([]*CellBBox, len(colLefts))
	}
	for i := range cells {
		r := nearestIndex(rowTops, cells[i].Top)
		c := nearestIndex(colLefts, cells[i].X0)
		if grid[r][c] == nil {
			grid[r][c] = &cells[i]
		}
	}

	rows := make([]TableRow, 0, len(grid))
	for _, slots := range grid {
		row := TableRow{Cells: make([]TableCell, len(slots))}
		first := true
		for c, slot := range slots {
			if slot == nil {
				row.Cells[c] = TableCell{Missing: true}
				continue
			}
			row.Cells[c] = TableCell{
				BBox:    *slot,
				Content: cellText(*slot, words, settings.YTolerance),
			}
			if first {
				row.BBox = *slot
				first = false
				continue
			}
			row.BBox.X0 = math.Min(row.BBox.X0, slot.X0)
			row.BBox.Top = math.Min(row.BBox.Top, slot.Top)
			row.BBox.X1 = math.Max(row.BBox.X1, slot.X1)
			row.BBox.Bottom = math.Max(row.BBox.Bottom, slot.Bottom)
		}
		rows = append(rows, row)
	}

	return Table{
		BBox:    bbox,
		Rows:    rows,
		Cells:   cells,
		NumRows: len(rows),
		NumCols: len(colLefts),
	}
}

// cellText joins the words centred inside the cell: words on a line with
// spaces, lines with newlines.
func cellText(cell CellBBox, words []EnrichedWord, lineTolerance float64) string {
	const tolerance = 1.0

	var inside []EnrichedWord
	for _, word := range words {
		cx, cy := word.Box.CenterX(), word.Box.CenterY()
		if cx >= cell.X0-tolerance && cx <= cell.X1+tolerance &&
			cy >= cell.Top-tolerance && cy <= cell.Bottom+tolerance {
			inside = append(inside, word)
		}
	}
	if len(inside) == 0 {
		return ""
	}

	lines := groupWordsIntoLines(inside, lineTolerance)
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts := make([]string, 0, len(line.Words))
		for _, w := range line.Words {
			parts = append(parts, w.Text)
		}
		texts = append(texts, strings.Join(parts, " "))
	}
	return strings.Join(texts, "\n")
}
