package teitables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hEdge(x0, x1, y float64) Edge {
	return Edge{X0: x0, X1: x1, Top: y, Bottom: y, Width: x1 - x0, Orientation: Horizontal}
}

func vEdge(x, top, bottom float64) Edge {
	return Edge{X0: x, X1: x, Top: top, Bottom: bottom, Height: bottom - top, Orientation: Vertical}
}

func w(text string, x0, top, x1, bottom float64) EnrichedWord {
	return EnrichedWord{Text: text, Box: Rect{X0: x0, Y0: top, X1: x1, Y1: bottom}, FontSize: bottom - top}
}

func TestDetectTables_MergedCell(t *testing.T) {
	// A header cell spanning both columns above two body cells.
	page := &Page{
		Number: 1,
		Width:  612,
		Height: 792,
		Lines: []Edge{
			hEdge(0, 200, 0),
			hEdge(0, 200, 50),
			hEdge(0, 200, 100),
			vEdge(0, 0, 100),
			vEdge(200, 0, 100),
			vEdge(100, 50, 100),
		},
		Words: []EnrichedWord{
			w("Header", 80, 20, 120, 30),
			w("L", 40, 70, 50, 80),
			w("R1", 140, 55, 150, 62),
			w("R2", 140, 85, 150, 92),
		},
	}

	tables := DetectTables(page, DefaultTableSettings())
	require.Len(t, tables, 1)

	table := tables[0]
	assert.Len(t, table.Cells, 3)
	assert.Equal(t, 2, table.NumRows)
	assert.Equal(t, 2, table.NumCols)
	assert.Equal(t, CellBBox{X0: 0, Top: 0, X1: 200, Bottom: 100}, table.BBox)

	require.Len(t, table.Rows[0].Cells, 2)
	assert.Equal(t, "Header", table.Rows[0].Cells[0].Content)
	assert.True(t, table.Rows[0].Cells[1].Missing)
	assert.False(t, table.Rows[1].Cells[0].Missing)

	assert.Equal(t, [][]string{{"Header", "NAN"}, {"L", "R1\nR2"}}, normalizeRows(table))
}

func TestDetectTablesContext_Canceled(t *testing.T) {
	page := &Page{Lines: []Edge{
		hEdge(10, 110, 10), hEdge(10, 110, 35), hEdge(10, 110, 60),
		vEdge(10, 10, 60), vEdge(60, 10, 60), vEdge(110, 10, 60),
	}}

	tables, err := DetectTablesContext(context.Background(), page, DefaultTableSettings())
	require.NoError(t, err)
	require.Len(t, tables, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tables, err = DetectTablesContext(ctx, page, DefaultTableSettings())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tables)
}

func TestDetectTables_NoEdges(t *testing.T) {
	page := &Page{
		Number: 1,
		Width:  612,
		Height: 792,
		Words:  []EnrichedWord{w("just", 10, 10, 30, 20), w("text", 35, 10, 55, 20)},
	}
	assert.Empty(t, DetectTables(page, DefaultTableSettings()))
}

func TestDetectTables_SingleCellIsNotATable(t *testing.T) {
	page := &Page{
		Lines: []Edge{
			hEdge(0, 100, 0),
			hEdge(0, 100, 50),
			vEdge(0, 0, 50),
			vEdge(100, 0, 50),
		},
	}
	assert.Empty(t, DetectTables(page, DefaultTableSettings()))
}

func TestDetectTables_OrderedTopToBottom(t *testing.T) {
	var lines []Edge
	grid := func(x0, top float64) {
		for _, y := range []float64{top, top + 20, top + 40} {
			lines = append(lines, hEdge(x0, x0+100, y))
		}
		for _, x := range []float64{x0, x0 + 50, x0 + 100} {
			lines = append(lines, vEdge(x, top, top+40))
		}
	}
	grid(300, 400)
	grid(50, 100)

	tables := DetectTables(&Page{Lines: lines}, DefaultTableSettings())
	require.Len(t, tables, 2)
	assert.Equal(t, 100.0, tables[0].BBox.Top)
	assert.Equal(t, 400.0, tables[1].BBox.Top)
	assert.Len(t, tables[0].Cells, 4)
}

func TestDetectTables_SnapsNearlyAlignedEdges(t *testing.T) {
	page := &Page{
		Lines: []Edge{
			hEdge(0, 100, 0),
			hEdge(0, 100, 20),
			hEdge(0, 100, 40),
			vEdge(0, 0, 40),
			// Middle ruling drawn as two strokes 2pt apart.
			vEdge(50, 0, 20),
			vEdge(52, 20, 40),
			vEdge(100, 0, 40),
		},
	}

	tables := DetectTables(page, DefaultTableSettings())
	require.Len(t, tables, 1)
	assert.Len(t, tables[0].Cells, 4)
	assert.Equal(t, 2, tables[0].NumRows)
	assert.Equal(t, 2, tables[0].NumCols)
	assert.Equal(t, 51.0, tables[0].Rows[0].Cells[1].BBox.X0)
}

func TestFilterEdgesByLength(t *testing.T) {
	edges := []Edge{hEdge(0, 2, 10), hEdge(0, 50, 20), vEdge(5, 0, 1), vEdge(5, 0, 30)}
	kept := filterEdgesByLength(edges, 3)
	require.Len(t, kept, 2)
	assert.Equal(t, 50.0, kept[0].Width)
	assert.Equal(t, 30.0, kept[1].Height)
}

func TestClusterValues(t *testing.T) {
	assert.Equal(t, []float64{0, 50, 100}, clusterValues([]float64{100, 50.4, 0, 50, 0.5}, 1))
	assert.Empty(t, clusterValues(nil, 1))
}

func TestNearestIndex(t *testing.T) {
	anchors := []float64{0, 50, 100}
	assert.Equal(t, 0, nearestIndex(anchors, -3))
	assert.Equal(t, 1, nearestIndex(anchors, 60))
	assert.Equal(t, 2, nearestIndex(anchors, 99))
}

func TestCellText(t *testing.T) {
	cell := CellBBox{X0: 0, Top: 0, X1: 100, Bottom: 40}
	words := []EnrichedWord{
		w("second", 10, 22, 40, 30),
		w("world", 45, 5, 70, 13),
		w("hello", 10, 5, 40, 13),
		w("outside", 110, 5, 140, 13),
	}
	assert.Equal(t, "hello world\nsecond", cellText(cell, words, 3))
	assert.Empty(t, cellText(cell, nil, 3))
}

func TestTableContext(t *testing.T) {
	bbox := &CellBBox{X0: 100, Top: 200, X1: 300, Bottom: 300}
	words := []EnrichedWord{
		w("Table", 100, 170, 130, 180),
		w("3.", 135, 185, 145, 195),
		w("left", 50, 185, 90, 195),
		w("far", 120, 100, 140, 110),
		w("Note", 300, 305, 330, 315),
		w("inside", 150, 250, 180, 260),
	}

	assert.Equal(t, "Text above table: Table 3. | Text under table: Note", tableContext(words, bbox, 50))
	assert.Equal(t, "Text above table: ", tableContext(nil, bbox, 50))
	assert.Equal(t, "Text above table: ", tableContext(words, nil, 50))
}
