package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ivanvanderbyl/teitables"
)

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Splice the PDF's tables into its GROBID TEI document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "pdf",
				Aliases:  []string{"i"},
				Usage:    "Input PDF file path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "xml",
				Usage: "GROBID TEI XML file path",
			},
			&cli.StringFlag{
				Name:    "grobid-url",
				Usage:   "GROBID server used when --xml is not given",
				Sources: cli.EnvVars("TEITABLES_GROBID_URL"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output XML file path (default: stdout)",
			},
		},
		Action: runMerge,
	}
}

func runMerge(ctx context.Context, cmd *cli.Command) error {
	processor, closer, err := newProcessor(cmd, 1)
	if err != nil {
		return err
	}
	defer closer()

	pdfPath := cmd.String("pdf")
	xmlPath := cmd.String("xml")

	var result *teitables.Result
	switch {
	case xmlPath != "":
		result, err = processor.Process(ctx, pdfPath, xmlPath)
	case cmd.String("grobid-url") != "":
		result, err = mergeViaGrobid(ctx, processor, cmd.String("grobid-url"), pdfPath)
	default:
		return errors.Wrap(teitables.ErrMissingInput, "either --xml or --grobid-url is required")
	}
	if err != nil {
		return err
	}

	if result.ExtractionError != nil {
		slog.Warn("tables could not be extracted", "error", result.ExtractionError)
	}
	slog.Info("merged",
		"tables", result.TableCount,
		"placeholders_removed", result.Removed,
		"position", result.Position.String())

	return writeOutput(cmd.String("output"), []byte(result.XML))
}

// mergeViaGrobid asks GROBID for the TEI document first.
func mergeViaGrobid(ctx context.Context, processor *teitables.Processor, grobidURL, pdfPath string) (*teitables.Result, error) {
	client := teitables.NewGrobidClient(grobidURL)
	alive, err := client.IsAlive(ctx)
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, errors.Wrap(teitables.ErrGrobidUnavailable, grobidURL)
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, errors.Wrap(teitables.ErrMissingInput, err.Error())
	}
	defer f.Close()

	tei, err := client.ProcessFulltext(ctx, f, filepath.Base(pdfPath))
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, errors.Wrap(err, "failed to rewind PDF")
	}

	return processor.ProcessReaders(ctx, f, strings.NewReader(tei), filepath.Base(pdfPath))
}

func tablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "Extract tables from a PDF without merging",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "pdf",
				Aliases:  []string{"i"},
				Usage:    "Input PDF file path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: xml, markdown or xlsx",
				Value: "xml",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout, required for xlsx)",
			},
		},
		Action: runTables,
	}
}

func runTables(ctx context.Context, cmd *cli.Command) error {
	processor, closer, err := newProcessor(cmd, 1)
	if err != nil {
		return err
	}
	defer closer()

	ext := processor.ExtractTables(ctx, cmd.String("pdf"))
	if ext.Degraded() {
		slog.Warn("tables could not be extracted", "error", ext.Message())
	}
	fmt.Fprintf(os.Stderr, "Found %d tables\n", ext.Count)

	output := cmd.String("output")
	switch format := cmd.String("format"); format {
	case "xml":
		return writeOutput(output, []byte(ext.Fragment()+"\n"))
	case "markdown", "md":
		md, err := teitables.TablesMarkdown(ext.Tables)
		if err != nil {
			return err
		}
		return writeOutput(output, []byte(md))
	case "xlsx":
		if output == "" {
			return errors.New("--output is required for xlsx")
		}
		var buf bytes.Buffer
		if err := teitables.WriteXLSX(&buf, ext.Tables); err != nil {
			return err
		}
		return writeOutput(output, buf.Bytes())
	default:
		return errors.Errorf("unknown format %q", format)
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Merge every NAME.pdf in a directory with its GROBID XML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Usage:    "Directory holding PDFs and GROBID XML files",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Documents processed concurrently",
				Value:   runtime.NumCPU(),
			},
		},
		Action: runBatch,
	}
}

// batchJob pairs a PDF with the TEI document GROBID produced for it.
type batchJob struct {
	pdf string
	xml string
	out string
}

// grobidSuffixes are the names GROBID output is commonly saved under.
var grobidSuffixes = []string{".xml", ".tei.xml", ".grobid.tei.xml"}

// findBatchJobs lists the PDFs in dir that have a GROBID document beside them.
func findBatchJobs(dir string) ([]batchJob, error) {
	pdfs, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list PDFs")
	}
	sort.Strings(pdfs)

	var jobs []batchJob
	for _, pdf := range pdfs {
		stem := strings.TrimSuffix(pdf, filepath.Ext(pdf))
		for _, suffix := range grobidSuffixes {
			xml := stem + suffix
			if info, err := os.Stat(xml); err == nil && !info.IsDir() {
				jobs = append(jobs, batchJob{pdf: pdf, xml: xml, out: stem + ".tables.xml"})
				break
			}
		}
	}
	return jobs, nil
}

func runBatch(ctx context.Context, cmd *cli.Command) error {
	workers := cmd.Int("workers")
	if workers < 1 {
		workers = 1
	}

	jobs, err := findBatchJobs(cmd.String("dir"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.Wrapf(teitables.ErrMissingInput, "no PDF with GROBID XML in %s", cmd.String("dir"))
	}

	processor, closer, err := newProcessor(cmd, workers)
	if err != nil {
		return err
	}
	defer closer()

	var (
		mu     sync.Mutex
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, job := range jobs {
		g.Go(func() error {
			if err := runBatchJob(gctx, processor, job); err != nil {
				slog.Error("document failed", "pdf", job.pdf, "error", err)
				mu.Lock()
				failed = append(failed, filepath.Base(job.pdf))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("batch finished", "documents", len(jobs), "failed", len(failed))
	if len(failed) > 0 {
		return errors.Errorf("%d of %d documents failed: %s", len(failed), len(jobs), strings.Join(failed, ", "))
	}
	return nil
}

func runBatchJob(ctx context.Context, processor *teitables.Processor, job batchJob) error {
	result, err := processor.Process(ctx, job.pdf, job.xml)
	if err != nil {
		return err
	}
	if result.ExtractionError != nil {
		slog.Warn("tables could not be extracted", "pdf", job.pdf, "error", result.ExtractionError)
	}
	if err := os.WriteFile(job.out, []byte(result.XML), 0644); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	slog.Info("document merged", "pdf", job.pdf, "tables", result.TableCount, "output", job.out)
	return nil
}

func evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Score table detection against a dataset with known table counts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dataset",
				Usage:    "Directory of NAME/NAME.pdf documents with TotalTables*.txt files",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Detector to evaluate: pdf or grobid",
				Value: string(teitables.SubjectPDF),
			},
			&cli.StringFlag{
				Name:    "grobid-url",
				Usage:   "GROBID server for documents without stored TEI",
				Sources: cli.EnvVars("TEITABLES_GROBID_URL"),
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"o"},
				Usage:   "Report file path (default: stdout)",
			},
		},
		Action: runEvaluate,
	}
}

func runEvaluate(ctx context.Context, cmd *cli.Command) error {
	subject := teitables.EvalSubject(cmd.String("subject"))
	if subject != teitables.SubjectPDF && subject != teitables.SubjectGrobid {
		return errors.Errorf("unknown subject %q", subject)
	}

	cases, err := teitables.FindEvalCases(cmd.String("dataset"))
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return errors.Wrapf(teitables.ErrMissingInput, "no documents in %s", cmd.String("dataset"))
	}

	processor, closer, err := newProcessor(cmd, 1)
	if err != nil {
		return err
	}
	defer closer()

	var client *teitables.GrobidClient
	if url := cmd.String("grobid-url"); url != "" {
		client = teitables.NewGrobidClient(url)
	}

	// Documents run one at a time so the timings are comparable.
	records := make([]teitables.EvalRecord, 0, len(cases))
	for _, c := range cases {
		rec := processor.Evaluate(ctx, c, subject, client)
		if rec.Err != nil {
			slog.Warn("evaluation error", "name", c.Name, "error", rec.Err)
		}
		records = append(records, rec)
	}

	summary := teitables.Summarize(records)
	slog.Info("evaluation finished",
		"documents", summary.Documents,
		"overall_accuracy", summary.OverallAccuracy,
		"average_accuracy", summary.AverageAccuracy)

	var buf bytes.Buffer
	if err := teitables.WriteReport(&buf, subject, records, summary); err != nil {
		return err
	}
	return writeOutput(cmd.String("report"), buf.Bytes())
}
