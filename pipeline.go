package teitables

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Result is a merged document with details of how it was produced.
type Result struct {
	XML             string
	Tables          []DetectedTable
	TableCount      int
	Removed         int // GROBID placeholders removed
	Anchor          Anchor
	Position        SplicePosition
	ExtractionError error // set when extraction degraded
	Metrics         ProcessingMetrics
}

// Processor merges PDF tables into GROBID TEI documents. Every call works on
// its own document handle, so one Processor can serve concurrent requests.
type Processor struct {
	config    Config
	opener    SourceOpener
	extractor *Extractor
	logger    *slog.Logger
}

// NewProcessor creates a processor. A nil logger uses slog.Default().
func NewProcessor(config Config, opener SourceOpener, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		config:    config,
		opener:    opener,
		extractor: NewExtractor(config, logger),
		logger:    logger,
	}
}

// Config returns the processor configuration.
func (p *Processor) Config() Config {
	return p.config
}

// ExtractTables runs table extraction alone. See Extractor.ExtractFile.
func (p *Processor) ExtractTables(ctx context.Context, pdfPath string) Extraction {
	return p.extractor.ExtractFile(ctx, p.opener, pdfPath)
}

// Process merges the tables of the PDF at pdfPath into the TEI document at
// xmlPath. Problems with the PDF content degrade to a document without
// tables; missing inputs and I/O failures are returned as errors.
func (p *Processor) Process(ctx context.Context, pdfPath, xmlPath string) (*Result, error) {
	return p.process(ctx, pdfPath, pdfPath, xmlPath)
}

func (p *Processor) process(ctx context.Context, pdfPath, label, xmlPath string) (*Result, error) {
	if err := requireFile(pdfPath, "PDF"); err != nil {
		return nil, err
	}
	if err := requireFile(xmlPath, "GROBID XML"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read GROBID XML")
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}

	removal := RemovePlaceholders(doc, p.config.Placeholder)
	p.logger.Info("removed table placeholders", "source", label, "count", removal.Removed)

	ext := p.extractor.ExtractFile(ctx, p.opener, pdfPath)
	if ext.Degraded() {
		ext.Source = label
	}

	merged, pos := Splice(removal.Text, ext.Fragment(), removal.Anchor, p.config.SourceLabel)
	p.logger.Info("spliced tables",
		"source", label,
		"tables", ext.Count,
		"position", pos.String())

	return &Result{
		XML:             RemoveBlankLines(merged),
		Tables:          ext.Tables,
		TableCount:      ext.Count,
		Removed:         removal.Removed,
		Anchor:          removal.Anchor,
		Position:        pos,
		ExtractionError: ext.Err,
		Metrics:         ext.Metrics,
	}, nil
}

// ProcessReaders spools both inputs into a private temporary directory and
// runs Process. The directory is removed on every return path. name labels
// the PDF in logs and error messages.
func (p *Processor) ProcessReaders(ctx context.Context, pdf, xml io.Reader, name string) (*Result, error) {
	if pdf == nil || xml == nil {
		return nil, errors.Wrap(ErrMissingInput, "both PDF and GROBID XML are required")
	}

	dir, err := os.MkdirTemp("", "teitables-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "input.pdf")
	if err := spool(pdfPath, pdf); err != nil {
		return nil, errors.Wrap(err, "failed to store PDF")
	}
	xmlPath := filepath.Join(dir, "grobid.xml")
	if err := spool(xmlPath, xml); err != nil {
		return nil, errors.Wrap(err, "failed to store GROBID XML")
	}

	if name == "" {
		name = "input.pdf"
	}
	return p.process(ctx, pdfPath, name, xmlPath)
}

func spool(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func requireFile(path, what string) error {
	if path == "" {
		return errors.Wrapf(ErrMissingInput, "%s path is empty", what)
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrMissingInput, "%s not found: %s", what, path)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrMissingInput, "%s is a directory: %s", what, path)
	}
	return nil
}
