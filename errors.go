package teitables

import "github.com/pkg/errors"

var (
	// ErrMissingInput is returned when a required input file is absent or empty.
	ErrMissingInput = errors.New("teitables: missing required input")

	// ErrExtractionTimeout is recorded on an Extraction that ran out of time.
	ErrExtractionTimeout = errors.New("teitables: table extraction timed out")

	// ErrNoPages is recorded on an Extraction whose document has no pages.
	ErrNoPages = errors.New("teitables: document has no pages")

	// ErrGrobidUnavailable is returned when the GROBID service cannot be reached.
	ErrGrobidUnavailable = errors.New("teitables: GROBID service unavailable")
)
