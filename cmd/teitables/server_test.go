package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanvanderbyl/teitables"
)

// stubSource serves a single letter page with one 2x2 ruled table.
type stubSource struct{}

func (stubSource) PageCount() (int, error) { return 1, nil }

func (stubSource) Page(int) (*teitables.Page, error) {
	var lines []teitables.Edge
	for _, y := range []float64{100, 125, 150} {
		lines = append(lines, teitables.Edge{X0: 100, X1: 200, Top: y, Bottom: y, Width: 100, Orientation: teitables.Horizontal})
	}
	for _, x := range []float64{100, 150, 200} {
		lines = append(lines, teitables.Edge{X0: x, X1: x, Top: 100, Bottom: 150, Height: 50, Orientation: teitables.Vertical})
	}
	return &teitables.Page{Number: 1, Width: 612, Height: 792, Lines: lines}, nil
}

func (stubSource) Close() error { return nil }

type stubOpener struct {
	err error
}

func (o stubOpener) OpenFile(context.Context, string) (teitables.PageSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	return stubSource{}, nil
}

func testHandler(opener teitables.SourceOpener) http.Handler {
	return limitedHandler(opener, 10<<20)
}

func limitedHandler(opener teitables.SourceOpener, maxUpload int64) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := teitables.DefaultConfig()
	cfg.Timeout = 0
	return newServer(teitables.NewProcessor(cfg, opener, logger), logger, maxUpload)
}

func uploadRequest(t *testing.T, path string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, content := range files {
		part, err := mw.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_ParseTable(t *testing.T) {
	for _, path := range []string{"/parse_table", "/process"} {
		t.Run(path, func(t *testing.T) {
			handler := testHandler(stubOpener{})
			req := uploadRequest(t, path, map[string]string{
				"pdf":        "%PDF-1.7",
				"grobid_xml": `<TEI><text><figure type="table"><head>T</head></figure></text></TEI>`,
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
			assert.Equal(t, "attachment; filename=updated_grobid.xml", rec.Header().Get("Content-Disposition"))
			assert.Equal(t, "1", rec.Header().Get("X-Tables-Count"))
			assert.Equal(t, "1", rec.Header().Get("X-Placeholders-Removed"))

			body := rec.Body.String()
			assert.Contains(t, body, "<text>\n<!-- ======== START: Tables from PDFplumber ======== -->")
			assert.Contains(t, body, `<table page="1" table_number="1"><coordinates>1,100.00,100.00,100.00,50.00</coordinates>`)
			assert.NotContains(t, body, `type="table"`)
		})
	}
}

func TestServer_MissingFile(t *testing.T) {
	handler := testHandler(stubOpener{})
	req := uploadRequest(t, "/parse_table", map[string]string{"pdf": "%PDF-1.7"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Both PDF and GROBID XML files are required.", resp["error"])
}

func TestServer_NotMultipart(t *testing.T) {
	handler := testHandler(stubOpener{})
	req := httptest.NewRequest(http.MethodPost, "/parse_table", bytes.NewBufferString("pdf=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DegradedExtractionStillMerges(t *testing.T) {
	handler := testHandler(stubOpener{err: errors.New("not a PDF")})
	req := uploadRequest(t, "/parse_table", map[string]string{
		"pdf":        "junk",
		"grobid_xml": "<TEI><text/></TEI>",
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Tables-Count"))
	assert.Contains(t, rec.Body.String(), "Error processing pdf.bin: not a PDF")
}

func TestServer_UploadTooLarge(t *testing.T) {
	files := map[string]string{
		"pdf":        "%PDF-1.7\n" + strings.Repeat("0", 200<<10),
		"grobid_xml": "<TEI><text/></TEI>",
	}

	t.Run("declared length", func(t *testing.T) {
		rec := httptest.NewRecorder()
		limitedHandler(stubOpener{}, 16<<10).ServeHTTP(rec, uploadRequest(t, "/parse_table", files))

		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "Upload exceeds the size limit.", resp["error"])
	})

	t.Run("unknown length", func(t *testing.T) {
		req := uploadRequest(t, "/parse_table", files)
		req.ContentLength = -1

		rec := httptest.NewRecorder()
		limitedHandler(stubOpener{}, 16<<10).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("within limit", func(t *testing.T) {
		small := map[string]string{"pdf": "%PDF-1.7", "grobid_xml": "<TEI><text/></TEI>"}
		rec := httptest.NewRecorder()
		limitedHandler(stubOpener{}, 16<<10).ServeHTTP(rec, uploadRequest(t, "/parse_table", small))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_Root(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler(stubOpener{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I am alive!", rec.Body.String())
}

func TestServer_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler(stubOpener{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "PDFplumber", resp["source_label"])
	assert.Equal(t, 50.0, resp["margin"])
}

func TestServer_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler(stubOpener{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
