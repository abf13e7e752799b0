package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/ivanvanderbyl/teitables"
)

const (
	missingFilesMessage   = "Both PDF and GROBID XML files are required."
	uploadTooLargeMessage = "Upload exceeds the size limit."
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the merge pipeline over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address",
				Value:   ":8080",
				Sources: cli.EnvVars("TEITABLES_ADDR"),
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "pdfium instances shared by requests",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "max-upload-mb",
				Usage: "Largest accepted upload in megabytes",
				Value: 100,
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	processor, closer, err := newProcessor(cmd, cmd.Int("workers"))
	if err != nil {
		return err
	}
	defer closer()

	addr := cmd.String("addr")
	srv := &http.Server{
		Addr:         addr,
		Handler:      newServer(processor, slog.Default(), int64(cmd.Int("max-upload-mb"))<<20),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // extraction of large PDFs can be slow
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server error")
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown error")
	}
	slog.Info("server stopped")
	return nil
}

type server struct {
	processor *teitables.Processor
	logger    *slog.Logger
	maxUpload int64
}

// newServer returns the HTTP API wrapped in logging and recovery middleware.
func newServer(processor *teitables.Processor, logger *slog.Logger, maxUpload int64) http.Handler {
	s := &server{processor: processor, logger: logger, maxUpload: maxUpload}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("POST /parse_table", s.handleProcess)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	var handler http.Handler = mux
	handler = logMiddleware(logger, handler)
	handler = recoveryMiddleware(logger, handler)
	return handler
}

// POST /process
// Multipart form with "pdf" and "grobid_xml" files. Responds with the merged
// TEI document as an attachment.
func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, uploadTooLargeMessage)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, uploadTooLargeMessage)
			return
		}
		writeError(w, http.StatusBadRequest, missingFilesMessage)
		return
	}
	defer r.MultipartForm.RemoveAll()

	pdf, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, missingFilesMessage)
		return
	}
	defer pdf.Close()

	xml, _, err := r.FormFile("grobid_xml")
	if err != nil {
		writeError(w, http.StatusBadRequest, missingFilesMessage)
		return
	}
	defer xml.Close()

	result, err := s.processor.ProcessReaders(r.Context(), pdf, xml, filepath.Base(header.Filename))
	if err != nil {
		s.logger.Error("processing failed", "file", header.Filename, "error", err)
		if errors.Is(err, teitables.ErrMissingInput) {
			writeError(w, http.StatusBadRequest, missingFilesMessage)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process document")
		return
	}

	if result.ExtractionError != nil {
		s.logger.Warn("tables could not be extracted", "file", header.Filename, "error", result.ExtractionError)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=updated_grobid.xml")
	w.Header().Set("X-Tables-Count", strconv.Itoa(result.TableCount))
	w.Header().Set("X-Placeholders-Removed", strconv.Itoa(result.Removed))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result.XML))
}

// GET /
func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("I am alive!"))
}

// GET /health
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.processor.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"source_label": cfg.SourceLabel,
		"margin":       cfg.Margin,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
