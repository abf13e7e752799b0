package teitables_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanvanderbyl/teitables"
)

func TestExtractor_SingleGridTable(t *testing.T) {
	src := newFakeSource(gridPage(1,
		word("A", 20, 15, 30, 25),
		word("B", 70, 15, 80, 25),
	))
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.NoError(t, ext.Err)
	require.Equal(t, 1, ext.Count)
	require.Len(t, ext.Tables, 1)

	table := ext.Tables[0]
	assert.Equal(t, 1, table.Page)
	assert.Equal(t, 1, table.Index)
	assert.Equal(t, 1, table.Number)
	assert.Equal(t, "1,10.00,10.00,100.00,50.00", table.Coordinates())
	assert.Equal(t, "Text above table: ", table.Context)
	assert.Equal(t, [][]string{{"A", "B"}, {"NAN", "NAN"}}, table.Rows)
}

func TestExtractor_NumberingRunsAcrossPages(t *testing.T) {
	src := newFakeSource(gridPage(1), gridPage(2))
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.NoError(t, ext.Err)
	require.Equal(t, 2, ext.Count)

	assert.Equal(t, 1, ext.Tables[0].Number)
	assert.Equal(t, 2, ext.Tables[1].Number)
	assert.Equal(t, 1, ext.Tables[0].Page)
	assert.Equal(t, 2, ext.Tables[1].Page)

	// The per-page ordinal restarts, the document-wide number does not.
	assert.Equal(t, 1, ext.Tables[0].Index)
	assert.Equal(t, 1, ext.Tables[1].Index)
}

func TestExtractor_SkipsPagesWithoutTables(t *testing.T) {
	empty := &teitables.Page{Number: 1, Width: 612, Height: 792}
	src := newFakeSource(empty, gridPage(2))
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.NoError(t, ext.Err)
	require.Equal(t, 1, ext.Count)
	assert.Equal(t, 2, ext.Tables[0].Page)
	assert.Equal(t, 1, ext.Tables[0].Number)
	assert.Len(t, ext.Metrics.PageExtractions, 2)
	assert.Equal(t, 2, ext.Metrics.Statistics.TotalPages)
}

func TestExtractor_PageErrorDegrades(t *testing.T) {
	src := newFakeSource(gridPage(1), gridPage(2), gridPage(3))
	src.failAt = 2
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.Error(t, ext.Err)
	assert.True(t, ext.Degraded())
	assert.Equal(t, 0, ext.Count)
	assert.Empty(t, ext.Tables)
	assert.Contains(t, ext.Message(), "Error processing paper.pdf: ")
	assert.Contains(t, ext.Message(), "page 3")
	assert.Equal(t, ext.Message(), ext.Fragment())
}

func TestExtractor_PanicDegrades(t *testing.T) {
	src := newFakeSource(gridPage(1), gridPage(2))
	src.panicAt = 1
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	var ext teitables.Extraction
	require.NotPanics(t, func() {
		ext = extractor.Extract(context.Background(), src, "paper.pdf")
	})
	require.Error(t, ext.Err)
	assert.Equal(t, 0, ext.Count)
	assert.Contains(t, ext.Message(), "panic")
}

func TestExtractor_CancelledContextDegrades(t *testing.T) {
	src := newFakeSource(gridPage(1))
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := extractor.Extract(ctx, src, "paper.pdf")
	require.Error(t, ext.Err)
	assert.ErrorIs(t, ext.Err, context.Canceled)
	assert.Equal(t, 0, ext.Count)
}

func TestExtractor_TimeoutDegrades(t *testing.T) {
	src := newFakeSource(gridPage(1), gridPage(2), gridPage(3))
	src.delay = 30 * time.Millisecond

	cfg := testConfig()
	cfg.Timeout = 5 * time.Millisecond
	extractor := teitables.NewExtractor(cfg, quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.Error(t, ext.Err)
	assert.ErrorIs(t, ext.Err, teitables.ErrExtractionTimeout)
	assert.Equal(t, 0, ext.Count)
	assert.Empty(t, ext.Tables)
}

func TestExtractor_TimeoutDuringDetection(t *testing.T) {
	// One page: the deadline passes while the page is read, so the table
	// finder is the first to see it.
	src := newFakeSource(gridPage(1))
	src.delay = 30 * time.Millisecond

	cfg := testConfig()
	cfg.Timeout = 5 * time.Millisecond
	extractor := teitables.NewExtractor(cfg, quietLogger())

	ext := extractor.Extract(context.Background(), src, "paper.pdf")
	require.Error(t, ext.Err)
	assert.ErrorIs(t, ext.Err, teitables.ErrExtractionTimeout)
	assert.Contains(t, ext.Err.Error(), "stopped on page 1")
	assert.Equal(t, 0, ext.Count)
}

func TestExtractor_NoPages(t *testing.T) {
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), newFakeSource(), "empty.pdf")
	assert.ErrorIs(t, ext.Err, teitables.ErrNoPages)
	assert.Equal(t, 0, ext.Count)
}

func TestExtractor_CellNormalization(t *testing.T) {
	page := &teitables.Page{
		Number: 1,
		Width:  612,
		Height: 792,
		Tables: []teitables.Table{{
			BBox:  teitables.CellBBox{X0: 0, Top: 0, X1: 90, Bottom: 20},
			Cells: []teitables.CellBBox{{X0: 0, Top: 0, X1: 30, Bottom: 20}},
			Rows: []teitables.TableRow{{
				Cells: []teitables.TableCell{
					{Content: "   "},
					{Missing: true},
					{Content: "  42 \n"},
				},
			}},
		}},
	}
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), newFakeSource(page), "paper.pdf")
	require.NoError(t, ext.Err)
	require.Len(t, ext.Tables, 1)
	assert.Equal(t, [][]string{{"NAN", "NAN", "42"}}, ext.Tables[0].Rows)
	assert.Contains(t, ext.Fragment(), "<row><cell>NAN</cell><cell>NAN</cell><cell>42</cell></row>")
}

func TestExtractor_NoCoordinates(t *testing.T) {
	page := &teitables.Page{
		Number: 4,
		Words:  []teitables.EnrichedWord{word("Above", 0, 0, 20, 10)},
		Tables: []teitables.Table{{
			Rows: []teitables.TableRow{{Cells: []teitables.TableCell{{Content: "x"}}}},
		}},
	}
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), newFakeSource(page), "paper.pdf")
	require.NoError(t, ext.Err)
	require.Len(t, ext.Tables, 1)
	assert.Nil(t, ext.Tables[0].BBox)
	assert.Equal(t, "4,No coordinates found", ext.Tables[0].Coordinates())
	assert.Equal(t, "Text above table: ", ext.Tables[0].Context)
}

func TestExtractor_Context(t *testing.T) {
	page := &teitables.Page{
		Number: 1,
		Width:  612,
		Height: 792,
		Words: []teitables.EnrichedWord{
			word("far", 110, 100, 130, 110),   // beyond the margin
			word("side", 50, 170, 70, 180),    // left of the table
			word("Table", 110, 170, 140, 180), // above
			word("1:", 145, 170, 155, 180),    // above
			word("Note", 110, 310, 130, 320),  // below
		},
		Lines: gridEdges(100, 200, 300, 300, 2, 2),
	}
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.Extract(context.Background(), newFakeSource(page), "paper.pdf")
	require.NoError(t, ext.Err)
	require.Len(t, ext.Tables, 1)
	assert.Equal(t, "Text above table: Table 1: | Text under table: Note", ext.Tables[0].Context)
}

func TestExtractor_ContextMargin(t *testing.T) {
	page := &teitables.Page{
		Number: 1,
		Words: []teitables.EnrichedWord{
			word("distant", 110, 100, 140, 110),
			word("close", 110, 170, 140, 180),
		},
		Lines: gridEdges(100, 200, 300, 300, 2, 2),
	}

	cfg := testConfig()
	cfg.Margin = 100
	extractor := teitables.NewExtractor(cfg, quietLogger())

	ext := extractor.Extract(context.Background(), newFakeSource(page), "paper.pdf")
	require.NoError(t, ext.Err)
	require.Len(t, ext.Tables, 1)
	assert.Equal(t, "Text above table: distant close", ext.Tables[0].Context)
}

func TestExtractor_ExtractFile(t *testing.T) {
	src := newFakeSource(gridPage(1))
	opener := &fakeOpener{src: src}
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.ExtractFile(context.Background(), opener, "paper.pdf")
	require.NoError(t, ext.Err)
	assert.Equal(t, 1, ext.Count)
	assert.Equal(t, "paper.pdf", opener.lastPath())
	assert.True(t, src.isClosed(), "source should be closed after extraction")
}

func TestExtractor_ExtractFileOpenError(t *testing.T) {
	opener := &fakeOpener{err: errors.New("not a PDF")}
	extractor := teitables.NewExtractor(testConfig(), quietLogger())

	ext := extractor.ExtractFile(context.Background(), opener, "broken.pdf")
	require.Error(t, ext.Err)
	assert.Equal(t, 0, ext.Count)
	assert.Equal(t, "Error processing broken.pdf: not a PDF", ext.Message())
}
