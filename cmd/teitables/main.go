package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/ivanvanderbyl/teitables"
)

func main() {
	cmd := &cli.Command{
		Name:  "teitables",
		Usage: "Replace GROBID table placeholders with tables extracted from the PDF",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			slog.SetDefault(newLogger(cmd.String("log-format"), cmd.Bool("metrics")))
			return ctx, nil
		},
		Commands: []*cli.Command{
			mergeCommand(),
			tablesCommand(),
			batchCommand(),
			evaluateCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("teitables failed", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a JSON config file",
			Sources: cli.EnvVars("TEITABLES_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "PDF backend: pdfium or native",
			Value:   "pdfium",
			Sources: cli.EnvVars("TEITABLES_BACKEND"),
		},
		&cli.FloatFlag{
			Name:    "margin",
			Usage:   "Vertical distance around a table searched for context",
			Value:   50,
			Sources: cli.EnvVars("TEITABLES_MARGIN"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Per-document extraction timeout (0 disables)",
			Value:   2 * time.Minute,
			Sources: cli.EnvVars("TEITABLES_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "source-label",
			Usage:   "Extractor name written in the table marker comments",
			Value:   "PDFplumber",
			Sources: cli.EnvVars("TEITABLES_SOURCE_LABEL"),
		},
		&cli.StringFlag{
			Name:    "strategy",
			Usage:   "Table edge strategy: lines, lines_text or text",
			Value:   string(teitables.StrategyLines),
			Sources: cli.EnvVars("TEITABLES_STRATEGY"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format: text or json",
			Value:   "text",
			Sources: cli.EnvVars("TEITABLES_LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "metrics",
			Usage:   "Log per-page timings and statistics",
			Sources: cli.EnvVars("TEITABLES_METRICS"),
		},
	}
}

func newLogger(format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig builds the configuration from defaults, an optional JSON file
// and explicitly set flags, in that order.
func loadConfig(cmd *cli.Command) (teitables.Config, error) {
	cfg := teitables.DefaultConfig()

	if path := cmd.String("config"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, errors.Wrap(err, "failed to open config")
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, errors.Wrap(err, "failed to parse config")
		}
	}

	if cmd.IsSet("margin") {
		cfg.Margin = cmd.Float("margin")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("source-label") {
		cfg.SourceLabel = cmd.String("source-label")
	}
	if cmd.IsSet("metrics") {
		cfg.EnableMetricsLogging = cmd.Bool("metrics")
	}
	if cmd.IsSet("strategy") {
		strategy := teitables.Strategy(cmd.String("strategy"))
		switch strategy {
		case teitables.StrategyLines, teitables.StrategyLinesText, teitables.StrategyText:
		default:
			return cfg, errors.Errorf("unknown strategy %q", strategy)
		}
		cfg.TableSettings.VerticalStrategy = strategy
		cfg.TableSettings.HorizontalStrategy = strategy
	}

	return cfg, nil
}

// newOpener returns the PDF backend chosen by --backend and a function that
// releases it. workers bounds the number of pdfium instances.
func newOpener(cmd *cli.Command, settings teitables.TableSettings, workers int) (teitables.SourceOpener, func() error, error) {
	switch backend := cmd.String("backend"); backend {
	case "native":
		return &teitables.NativeOpener{Settings: settings}, func() error { return nil }, nil
	case "pdfium", "":
		if workers < 1 {
			workers = 1
		}
		pool, err := webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  workers,
			MaxTotal: workers,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise pdfium: %w", err)
		}
		opener := &teitables.PdfiumOpener{
			Pool:            pool,
			InstanceTimeout: 30 * time.Second,
			Settings:        settings,
		}
		return opener, pool.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown backend %q", backend)
	}
}

// newProcessor wires configuration, backend and logger together.
func newProcessor(cmd *cli.Command, workers int) (*teitables.Processor, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	opener, closer, err := newOpener(cmd, cfg.TableSettings, workers)
	if err != nil {
		return nil, nil, err
	}
	return teitables.NewProcessor(cfg, opener, slog.Default()), closer, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	slog.Info("output written", "path", path)
	return nil
}
