package teitables

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// ProcessingMetrics contains timing and statistics for one extraction.
type ProcessingMetrics struct {
	TotalTime       time.Duration
	DocumentOpen    time.Duration
	PageExtractions []PageMetrics
	Statistics      DocumentStatistics
}

// PageMetrics contains timing for a single page.
type PageMetrics struct {
	PageNumber int
	Duration   time.Duration
	Tables     int
}

// DocumentStatistics contains document-level statistics.
type DocumentStatistics struct {
	TotalPages  int
	TotalTables int
	TotalWords  int
	TotalEdges  int
}

// Config controls extraction and merging.
type Config struct {
	// Margin is the vertical distance around a table searched for context (default: 50)
	Margin float64 `json:"margin"`

	// SourceLabel names the extractor in the splice marker comments (default: "PDFplumber")
	SourceLabel string `json:"source_label"`

	// Timeout bounds table extraction per document. It is checked between
	// pages and inside table detection; reading a single page from the PDF
	// is not interrupted. Zero disables it (default: 2m)
	Timeout time.Duration `json:"timeout"`

	// TableSettings configures table detection (default: DefaultTableSettings())
	TableSettings TableSettings `json:"table_settings"`

	// Placeholder selects the GROBID elements that are replaced (default: DefaultPlaceholderMatcher())
	Placeholder PlaceholderMatcher `json:"placeholder"`

	// EnableMetricsLogging logs per-page timings and statistics (default: false)
	EnableMetricsLogging bool `json:"enable_metrics_logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Margin:        50,
		SourceLabel:   "PDFplumber",
		Timeout:       2 * time.Minute,
		TableSettings: DefaultTableSettings(),
		Placeholder:   DefaultPlaceholderMatcher(),
	}
}

// Extraction is the outcome of extracting tables from one PDF. When Err is
// set the extraction degraded: Tables is empty and Count is zero.
type Extraction struct {
	Tables  []DetectedTable
	Count   int
	Err     error
	Source  string
	Metrics ProcessingMetrics
}

// Degraded reports whether extraction failed.
func (e Extraction) Degraded() bool {
	return e.Err != nil
}

// Message returns the error description of a degraded extraction.
func (e Extraction) Message() string {
	if e.Err == nil {
		return ""
	}
	return fmt.Sprintf("Error processing %s: %v", e.Source, e.Err)
}

// Fragment returns the serialised tables, or the escaped error description
// when the extraction degraded.
func (e Extraction) Fragment() string {
	if e.Degraded() {
		return escapeText(e.Message())
	}
	return MarshalFragment(e.Tables)
}

// Extractor detects tables page by page. It holds no per-document state and
// may be shared between goroutines; each call brings its own PageSource.
type Extractor struct {
	config Config
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger uses slog.Default().
func NewExtractor(config Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{config: config, logger: logger}
}

// ExtractFile opens path with opener and extracts its tables. It never
// returns an error: any failure yields a degraded Extraction.
func (e *Extractor) ExtractFile(ctx context.Context, opener SourceOpener, path string) (ext Extraction) {
	defer func() {
		if r := recover(); r != nil {
			ext = e.degraded(path, errors.Errorf("panic: %v", r))
		}
	}()

	openStart := time.Now()
	src, err := opener.OpenFile(ctx, path)
	if err != nil {
		return e.degraded(path, err)
	}
	defer src.Close()

	ext = e.Extract(ctx, src, path)
	ext.Metrics.DocumentOpen = time.Since(openStart) - ext.Metrics.TotalTime
	return ext
}

// Extract detects the tables of every page of src. Table numbers run across
// the whole document. Errors, panics and an expired context degrade the
// result instead of being returned.
func (e *Extractor) Extract(ctx context.Context, src PageSource, label string) (ext Extraction) {
	defer func() {
		if r := recover(); r != nil {
			ext = e.degraded(label, errors.Errorf("panic: %v", r))
		}
	}()

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()

	pageCount, err := src.PageCount()
	if err != nil {
		return e.degraded(label, err)
	}
	if pageCount == 0 {
		return e.degraded(label, ErrNoPages)
	}

	var (
		tables      []DetectedTable
		pageMetrics []PageMetrics
		stats       = DocumentStatistics{TotalPages: pageCount}
	)

	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrExtractionTimeout
			}
			return e.degraded(label, errors.Wrapf(err, "stopped before page %d", i+1))
		}

		pageStart := time.Now()
		page, err := src.Page(i)
		if err != nil {
			return e.degraded(label, errors.Wrapf(err, "failed to extract page %d", i+1))
		}

		found, err := e.pageTables(ctx, page, len(tables))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrExtractionTimeout
			}
			return e.degraded(label, errors.Wrapf(err, "stopped on page %d", i+1))
		}
		tables = append(tables, found...)

		pageDuration := time.Since(pageStart)
		pageMetrics = append(pageMetrics, PageMetrics{
			PageNumber: page.Number,
			Duration:   pageDuration,
			Tables:     len(found),
		})
		stats.TotalWords += len(page.Words)
		stats.TotalEdges += len(page.Lines)

		if e.config.EnableMetricsLogging {
			e.logger.Debug("page extracted",
				"page", i+1,
				"pages", pageCount,
				"tables", len(found),
				"duration", pageDuration)
		}
	}

	stats.TotalTables = len(tables)
	metrics := ProcessingMetrics{
		TotalTime:       time.Since(startTime),
		PageExtractions: pageMetrics,
		Statistics:      stats,
	}
	if e.config.EnableMetricsLogging {
		e.logMetrics(label, metrics)
	}

	return Extraction{
		Tables:  tables,
		Count:   len(tables),
		Source:  label,
		Metrics: metrics,
	}
}

// pageTables detects and normalises the tables of one page. offset is the
// number of tables already found earlier in the document.
func (e *Extractor) pageTables(ctx context.Context, page *Page, offset int) ([]DetectedTable, error) {
	if page.Tables == nil {
		detected, err := DetectTablesContext(ctx, page, e.config.TableSettings)
		if err != nil {
			return nil, err
		}
		page.Tables = detected
	}
	if len(page.Tables) == 0 {
		return nil, nil
	}

	found := make([]DetectedTable, 0, len(page.Tables))
	for i, table := range page.Tables {
		var bbox *CellBBox
		if len(table.Cells) > 0 {
			b := table.BBox
			bbox = &b
		}
		found = append(found, DetectedTable{
			Page:    page.Number,
			Index:   i + 1,
			Number:  offset + i + 1,
			BBox:    bbox,
			Context: tableContext(page.Words, bbox, e.config.Margin),
			Rows:    normalizeRows(table),
		})
	}
	return found, nil
}

func (e *Extractor) degraded(label string, err error) Extraction {
	ext := Extraction{Source: label, Err: err}
	e.logger.Warn("table extraction failed", "source", label, "error", err)
	return ext
}

func (e *Extractor) logMetrics(label string, metrics ProcessingMetrics) {
	var avg time.Duration
	if n := len(metrics.PageExtractions); n > 0 {
		avg = metrics.TotalTime / time.Duration(n)
	}
	e.logger.Info("table extraction metrics",
		"source", label,
		"total_time", metrics.TotalTime.Round(time.Millisecond),
		"pages", metrics.Statistics.TotalPages,
		"tables", metrics.Statistics.TotalTables,
		"words", metrics.Statistics.TotalWords,
		"edges", metrics.Statistics.TotalEdges,
		"avg_per_page", avg.Round(time.Millisecond))
}
