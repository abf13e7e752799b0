package teitables

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PassThreshold is the accuracy above which a document counts as passed.
const PassThreshold = 0.9

// EvalSubject names the table detector being evaluated.
type EvalSubject string

const (
	// SubjectPDF evaluates the geometric extractor.
	SubjectPDF EvalSubject = "pdf"
	// SubjectGrobid evaluates GROBID by counting its table placeholders.
	SubjectGrobid EvalSubject = "grobid"
)

// EvalCase is one document of an evaluation dataset.
type EvalCase struct {
	Name  string
	PDF   string
	XML   string // GROBID output stored beside the PDF, if any
	Truth string // file holding the expected table count
}

// EvalRecord is the outcome of evaluating one document.
type EvalRecord struct {
	Name     string
	Found    int
	Expected int
	Accuracy float64
	Duration time.Duration
	Err      error
}

// TimePerTable returns the processing time per table found.
func (r EvalRecord) TimePerTable() time.Duration {
	if r.Found == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Found)
}

// EvalSummary aggregates the records of a dataset run.
type EvalSummary struct {
	Documents       int
	Passed          int
	Failed          int // records with an error
	ExpectedTotal   int
	FoundTotal      int
	OverallAccuracy float64 // accuracy of the summed counts
	AverageAccuracy float64 // mean of the per-document accuracies
	AccuracyStdDev  float64
	AverageDuration time.Duration
	MedianDuration  time.Duration
	TimePerTable    time.Duration
}

// Accuracy scores a detected table count against the true count. The
// difference is measured against the larger of the two, so over- and
// under-detection are penalised alike. A document with no tables scores 0.
func Accuracy(found, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	diff := found - expected
	if diff < 0 {
		diff = -diff
	}
	denom := expected
	if found > expected {
		denom = found
	}
	return max(0, 1-float64(diff)/float64(denom))
}

var expectedCountPattern = regexp.MustCompile(`Number of tables in PDF file: (\d+)`)

// ReadExpectedCount reads the true table count from a ground-truth file
// containing a line "Number of tables in PDF file: N".
func ReadExpectedCount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read ground truth")
	}
	m := expectedCountPattern.FindSubmatch(data)
	if m == nil {
		return 0, errors.Errorf("no table count in %s", path)
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, errors.Wrapf(err, "bad table count in %s", path)
	}
	return n, nil
}

// FindEvalCases lists the documents of a dataset laid out as
// root/NAME/NAME.pdf with a TotalTables*.txt ground-truth file in the same
// directory. Directories without a PDF are skipped.
func FindEvalCases(root string) ([]EvalCase, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read dataset")
	}

	var cases []EvalCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(root, name)

		pdf := filepath.Join(dir, name+".pdf")
		if _, err := os.Stat(pdf); err != nil {
			continue
		}

		c := EvalCase{Name: name, PDF: pdf}
		if truth, _ := filepath.Glob(filepath.Join(dir, "TotalTables*.txt")); len(truth) > 0 {
			c.Truth = truth[0]
		}
		for _, suffix := range []string{".xml", ".tei.xml"} {
			if xml := filepath.Join(dir, name+suffix); fileExists(xml) {
				c.XML = xml
				break
			}
		}
		cases = append(cases, c)
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Evaluate counts the tables subject finds in one document and scores the
// count against the ground truth. For SubjectGrobid a stored TEI document
// is used when present; otherwise client processes the PDF.
func (p *Processor) Evaluate(ctx context.Context, c EvalCase, subject EvalSubject, client *GrobidClient) EvalRecord {
	rec := EvalRecord{Name: c.Name}

	if c.Truth == "" {
		rec.Err = errors.Wrapf(ErrMissingInput, "no ground truth for %s", c.Name)
		return rec
	}
	expected, err := ReadExpectedCount(c.Truth)
	if err != nil {
		rec.Err = err
		return rec
	}
	rec.Expected = expected

	start := time.Now()
	switch subject {
	case SubjectPDF:
		ext := p.ExtractTables(ctx, c.PDF)
		rec.Found, rec.Err = ext.Count, ext.Err
	case SubjectGrobid:
		rec.Found, rec.Err = p.countGrobidTables(ctx, c, client)
	default:
		rec.Err = errors.Errorf("unknown evaluation subject %q", subject)
	}
	rec.Duration = time.Since(start)
	rec.Accuracy = Accuracy(rec.Found, rec.Expected)

	p.logger.Info("document evaluated",
		"name", c.Name,
		"subject", string(subject),
		"found", rec.Found,
		"expected", rec.Expected,
		"accuracy", rec.Accuracy,
		"duration", rec.Duration.Round(time.Millisecond))
	return rec
}

func (p *Processor) countGrobidTables(ctx context.Context, c EvalCase, client *GrobidClient) (int, error) {
	var tei string
	switch {
	case c.XML != "":
		data, err := os.ReadFile(c.XML)
		if err != nil {
			return 0, errors.Wrap(err, "failed to read GROBID XML")
		}
		if tei, err = DecodeDocument(data); err != nil {
			return 0, err
		}
	case client != nil:
		f, err := os.Open(c.PDF)
		if err != nil {
			return 0, errors.Wrap(err, "failed to open PDF")
		}
		defer f.Close()
		if tei, err = client.ProcessFulltext(ctx, f, filepath.Base(c.PDF)); err != nil {
			return 0, err
		}
	default:
		return 0, errors.Wrapf(ErrMissingInput, "no GROBID XML for %s", c.Name)
	}
	return CountPlaceholders(tei, p.config.Placeholder), nil
}

// Summarize aggregates evaluation records. Records with an error are
// counted in Failed and still contribute their (zero) accuracy.
func Summarize(records []EvalRecord) EvalSummary {
	s := EvalSummary{Documents: len(records)}
	if len(records) == 0 {
		return s
	}

	accuracies := make([]float64, 0, len(records))
	durations := make([]float64, 0, len(records))
	var total time.Duration
	for _, r := range records {
		if r.Err != nil {
			s.Failed++
		}
		if r.Accuracy > PassThreshold {
			s.Passed++
		}
		s.ExpectedTotal += r.Expected
		s.FoundTotal += r.Found
		accuracies = append(accuracies, r.Accuracy)
		durations = append(durations, float64(r.Duration))
		total += r.Duration
	}

	s.OverallAccuracy = Accuracy(s.FoundTotal, s.ExpectedTotal)
	s.AverageAccuracy = mean(accuracies)
	s.AccuracyStdDev = stdDev(accuracies)
	s.AverageDuration = total / time.Duration(len(records))
	s.MedianDuration = time.Duration(median(durations))
	if s.FoundTotal > 0 {
		s.TimePerTable = total / time.Duration(s.FoundTotal)
	}
	return s
}

// WriteReport writes a plain-text log of the records followed by the summary.
func WriteReport(w io.Writer, subject EvalSubject, records []EvalRecord, s EvalSummary) error {
	var sb strings.Builder
	rule := strings.Repeat("-", 50)

	for _, r := range records {
		fmt.Fprintf(&sb, "Document: %s\n", r.Name)
		if r.Err != nil {
			fmt.Fprintf(&sb, "Error: %v\n", r.Err)
		}
		fmt.Fprintf(&sb, "Tables found (%s): %d\n", subject, r.Found)
		fmt.Fprintf(&sb, "Total tables: %d\n", r.Expected)
		fmt.Fprintf(&sb, "Accuracy = %.2f%%\n", r.Accuracy*100)
		fmt.Fprintf(&sb, "Processing time: %.4f seconds\n", r.Duration.Seconds())
		fmt.Fprintf(&sb, "Time per table: %.4f seconds\n", r.TimePerTable().Seconds())
		fmt.Fprintf(&sb, "\n%s\n", rule)
	}

	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "Documents: %d (passed %d, errors %d)\n", s.Documents, s.Passed, s.Failed)
	fmt.Fprintf(&sb, "Total tables in all PDFs: %d\n", s.ExpectedTotal)
	fmt.Fprintf(&sb, "Total tables found: %d\n", s.FoundTotal)
	fmt.Fprintf(&sb, "Overall accuracy: %.2f%%\n", s.OverallAccuracy*100)
	fmt.Fprintf(&sb, "Average accuracy per document: %.2f%% (std dev %.2f)\n", s.AverageAccuracy*100, s.AccuracyStdDev*100)
	fmt.Fprintf(&sb, "Average processing time per document: %.4f seconds\n", s.AverageDuration.Seconds())
	fmt.Fprintf(&sb, "Median processing time per document: %.4f seconds\n", s.MedianDuration.Seconds())
	fmt.Fprintf(&sb, "Average processing time per table: %.4f seconds\n", s.TimePerTable.Seconds())

	_, err := io.WriteString(w, sb.String())
	return errors.Wrap(err, "failed to write report")
}
