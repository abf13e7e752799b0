package teitables

import (
	"context"
	"math"
	"sort"
)

// wordCluster is a set of words aligned on one coordinate.
type wordCluster struct {
	at    float64
	words []EnrichedWord
}

// bounds returns the box enclosing every word in the cluster.
func (c wordCluster) bounds() Rect {
	box := c.words[0].Box
	for _, w := range c.words[1:] {
		box = box.union(w.Box)
	}
	return box
}

// clusterWords groups words whose key lies within tolerance of a cluster's
// first member.
func clusterWords(words []EnrichedWord, key func(EnrichedWord) float64, tolerance float64) []wordCluster {
	var clusters []wordCluster
	for _, word := range words {
		k := key(word)
		placed := false
		for i := range clusters {
			if math.Abs(clusters[i].at-k) < tolerance {
				clusters[i].words = append(clusters[i].words, word)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, wordCluster{at: k, words: []EnrichedWord{word}})
		}
	}
	return clusters
}

// wordsToEdgesHorizontal infers horizontal edges along the tops and bottoms
// of rows of words. Based on pdfplumber's words_to_edges_h.
func wordsToEdgesHorizontal(words []EnrichedWord, minWords int) []Edge {
	clusters := clusterWords(words, func(w EnrichedWord) float64 { return w.Box.Y0 }, 1.0)

	var rows []Rect
	for _, c := range clusters {
		if len(c.words) >= minWords {
			rows = append(rows, c.bounds())
		}
	}
	if len(rows) == 0 {
		return nil
	}

	minX0, maxX1 := math.MaxFloat64, -math.MaxFloat64
	for _, r := range rows {
		minX0 = math.Min(minX0, r.X0)
		maxX1 = math.Max(maxX1, r.X1)
	}

	edges := make([]Edge, 0, len(rows)*2)
	for _, r := range rows {
		for _, y := range []float64{r.Y0, r.Y1} {
			edges = append(edges, Edge{
				X0:          minX0,
				X1:          maxX1,
				Top:         y,
				Bottom:      y,
				Width:       maxX1 - minX0,
				Orientation: Horizontal,
			})
		}
	}
	return edges
}

// wordsToEdgesVertical infers vertical edges from words sharing a left edge,
// right edge or centre. Based on pdfplumber's words_to_edges_v.
func wordsToEdgesVertical(words []EnrichedWord, minWords int) []Edge {
	if len(words) == 0 {
		return nil
	}

	all := clusterWords(words, func(w EnrichedWord) float64 { return w.Box.X0 }, 1.0)
	all = append(all, clusterWords(words, func(w EnrichedWord) float64 { return w.Box.X1 }, 1.0)...)
	all = append(all, clusterWords(words, func(w EnrichedWord) float64 { return w.Box.CenterX() }, 1.0)...)

	sort.SliceStable(all, func(i, j int) bool {
		return len(all[i].words) > len(all[j].words)
	})

	// Larger clusters win; anything overlapping an accepted one is dropped.
	var columns []Rect
	for _, c := range all {
		if len(c.words) < minWords {
			continue
		}
		box := c.bounds()
		overlaps := false
		for _, kept := range columns {
			if !(box.X1 < kept.X0 || box.X0 > kept.X1 || box.Y1 < kept.Y0 || box.Y0 > kept.Y1) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			columns = append(columns, box)
		}
	}
	if len(columns) == 0 {
		return nil
	}

	sort.Slice(columns, func(i, j int) bool {
		return columns[i].X0 < columns[j].X0
	})

	minTop, maxBottom, maxX1 := math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	for _, col := range columns {
		minTop = math.Min(minTop, col.Y0)
		maxBottom = math.Max(maxBottom, col.Y1)
		maxX1 = math.Max(maxX1, col.X1)
	}

	vertical := func(x float64) Edge {
		return Edge{
			X0:          x,
			X1:          x,
			Top:         minTop,
			Bottom:      maxBottom,
			Height:      maxBottom - minTop,
			Orientation: Vertical,
		}
	}

	edges := make([]Edge, 0, len(columns)+1)
	for _, col := range columns {
		edges = append(edges, vertical(col.X0))
	}
	return append(edges, vertical(maxX1))
}

// edgesFor collects edges of one orientation according to the strategy.
func edgesFor(page *Page, orientation Orientation, strategy Strategy, minWords int) []Edge {
	var edges []Edge
	if strategy == StrategyLines || strategy == StrategyLinesText {
		for _, line := range page.Lines {
			if line.Orientation == orientation {
				edges = append(edges, line)
			}
		}
	}

	useText := strategy == StrategyText || (strategy == StrategyLinesText && len(edges) == 0)
	if useText && len(page.Words) > 0 {
		if orientation == Vertical {
			edges = append(edges, wordsToEdgesVertical(page.Words, minWords)...)
		} else {
			edges = append(edges, wordsToEdgesHorizontal(page.Words, minWords)...)
		}
	}
	return edges
}

// DetectTables finds tables on a page from ruling lines and/or word alignment.
// Based on pdfplumber's TableFinder. The returned tables are ordered top to
// bottom, then left to right, and each carries the bounding box computed from
// its own cells.
func DetectTables(page *Page, settings TableSettings) []Table {
	tables, _ := DetectTablesContext(context.Background(), page, settings)
	return tables
}

// DetectTablesContext is DetectTables with cancellation. The intersection
// and cell searches stop with ctx's error once ctx is done.
func DetectTablesContext(ctx context.Context, page *Page, settings TableSettings) ([]Table, error) {
	var edges []Edge
	edges = append(edges, edgesFor(page, Vertical, settings.VerticalStrategy, settings.MinWordsVertical)...)
	edges = append(edges, edgesFor(page, Horizontal, settings.HorizontalStrategy, settings.MinWordsHorizontal)...)
	if len(edges) == 0 {
		return nil, nil
	}

	edges = mergeEdges(edges, settings)
	edges = filterEdgesByLength(edges, settings.EdgeMinLength)

	intersections, err := findIntersections(ctx, edges, settings)
	if err != nil {
		return nil, err
	}
	cells, err := intersectionsToCells(ctx, intersections)
	if err != nil {
		return nil, err
	}
	groups := cellsToTables(cells)

	tables := make([]Table, 0, len(groups))
	for _, group := range groups {
		tables = append(tables, createTable(group, page.Words, settings))
	}
	return tables, nil
}
