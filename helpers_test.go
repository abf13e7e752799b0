package teitables_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ivanvanderbyl/teitables"
)

// fakeSource serves prepared pages. It can fail, panic or stall on a page.
type fakeSource struct {
	pages   []*teitables.Page
	failAt  int // 0-based page index that errors, -1 for none
	panicAt int
	delay   time.Duration

	mu     sync.Mutex
	closed bool
}

func newFakeSource(pages ...*teitables.Page) *fakeSource {
	return &fakeSource{pages: pages, failAt: -1, panicAt: -1}
}

func (s *fakeSource) PageCount() (int, error) {
	return len(s.pages), nil
}

func (s *fakeSource) Page(index int) (*teitables.Page, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if index == s.failAt {
		return nil, errors.New("table finder failed")
	}
	if index == s.panicAt {
		panic("index out of range")
	}
	// Hand out a copy so detection results never leak between runs.
	p := *s.pages[index]
	return &p, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener returns the same source for every path and remembers the paths.
type fakeOpener struct {
	src *fakeSource
	err error

	mu    sync.Mutex
	paths []string
}

func (o *fakeOpener) OpenFile(_ context.Context, path string) (teitables.PageSource, error) {
	o.mu.Lock()
	o.paths = append(o.paths, path)
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

func (o *fakeOpener) lastPath() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.paths) == 0 {
		return ""
	}
	return o.paths[len(o.paths)-1]
}

// gridEdges returns the ruling lines of a cols x rows grid.
func gridEdges(x0, top, x1, bottom float64, cols, rows int) []teitables.Edge {
	var edges []teitables.Edge
	for i := 0; i <= rows; i++ {
		y := top + (bottom-top)*float64(i)/float64(rows)
		edges = append(edges, teitables.Edge{
			X0: x0, X1: x1, Top: y, Bottom: y,
			Width:       x1 - x0,
			Orientation: teitables.Horizontal,
		})
	}
	for j := 0; j <= cols; j++ {
		x := x0 + (x1-x0)*float64(j)/float64(cols)
		edges = append(edges, teitables.Edge{
			X0: x, X1: x, Top: top, Bottom: bottom,
			Height:      bottom - top,
			Orientation: teitables.Vertical,
		})
	}
	return edges
}

func word(text string, x0, top, x1, bottom float64) teitables.EnrichedWord {
	return teitables.EnrichedWord{
		Text:     text,
		Box:      teitables.Rect{X0: x0, Y0: top, X1: x1, Y1: bottom},
		FontSize: bottom - top,
	}
}

// gridPage is a letter page holding one 2x2 ruled table at (10,10)-(110,60).
func gridPage(number int, words ...teitables.EnrichedWord) *teitables.Page {
	return &teitables.Page{
		Number: number,
		Width:  612,
		Height: 792,
		Words:  words,
		Lines:  gridEdges(10, 10, 110, 60, 2, 2),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() teitables.Config {
	cfg := teitables.DefaultConfig()
	cfg.Timeout = 0
	return cfg
}
