package teitables

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TEICoordinateElements are the TEI elements GROBID is asked to annotate
// with coords attributes.
var TEICoordinateElements = []string{
	"ref", "s", "biblStruct", "persName", "figure",
	"formula", "head", "note", "title", "affiliation",
}

// GrobidClient talks to a GROBID server.
type GrobidClient struct {
	BaseURL    string // e.g. http://localhost:8070
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewGrobidClient creates a client for the server at baseURL.
func NewGrobidClient(baseURL string) *GrobidClient {
	return &GrobidClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     slog.Default(),
	}
}

// IsAlive reports whether the server answers its liveness probe with "true".
func (c *GrobidClient) IsAlive(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/isalive", nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to build request")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return false, errors.Wrap(ErrGrobidUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "failed to read response")
	}
	return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "true", nil
}

// ProcessFulltext sends a PDF through processFulltextDocument and returns the
// TEI XML. Header, citation and funder consolidation, raw affiliations and
// citations, sentence segmentation and coordinates are all requested.
func (c *GrobidClient) ProcessFulltext(ctx context.Context, pdf io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("input", filename)
	if err != nil {
		return "", errors.Wrap(err, "failed to create form file")
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return "", errors.Wrap(err, "failed to copy PDF")
	}

	fields := []struct {
		name  string
		value int
	}{
		{"consolidateHeader", 1},
		{"consolidateCitations", 1},
		{"consolidateFunders", 1},
		{"includeRawAffiliations", 1},
		{"includeRawCitations", 1},
		{"segmentSentences", 1},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, strconv.Itoa(f.value)); err != nil {
			return "", errors.Wrapf(err, "failed to write field %s", f.name)
		}
	}
	for _, el := range TEICoordinateElements {
		if err := writer.WriteField("teiCoordinates", el); err != nil {
			return "", errors.Wrap(err, "failed to write teiCoordinates")
		}
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finish form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/processFulltextDocument", &body)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger().Info("sending PDF to GROBID", "file", filename, "url", req.URL.String())
	resp, err := c.client().Do(req)
	if err != nil {
		return "", errors.Wrap(ErrGrobidUnavailable, err.Error())
	}
	defer resp.Body.Close()

	tei, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read GROBID response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("GROBID returned %d: %s", resp.StatusCode, strings.TrimSpace(string(tei)))
	}

	c.logger().Info("received response from GROBID", "status", resp.StatusCode, "bytes", len(tei))
	if !bytes.Contains(tei, []byte("coords")) {
		c.logger().Warn("no coordinates found in GROBID output, check teiCoordinates settings", "file", filename)
	}

	return string(tei), nil
}

func (c *GrobidClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *GrobidClient) client() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
