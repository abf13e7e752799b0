package teitables

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var xmlDeclEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding\s*=\s*)(["'])([^"']+)(["'])`)

var byteOrderMarks = [][]byte{
	{0xEF, 0xBB, 0xBF},
	{0xFE, 0xFF},
	{0xFF, 0xFE},
}

// DecodeDocument returns the document as UTF-8 text. A byte order mark is
// honoured and removed; otherwise an encoding named in the XML declaration
// is transcoded. When the text is transcoded the declaration is rewritten to
// say UTF-8.
func DecodeDocument(data []byte) (string, error) {
	for _, bom := range byteOrderMarks {
		if !bytes.HasPrefix(data, bom) {
			continue
		}
		out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
		if err != nil {
			return "", errors.Wrap(err, "failed to decode document")
		}
		return declareUTF8(string(out)), nil
	}

	m := xmlDeclEncoding.FindSubmatch(data)
	if m == nil {
		return string(data), nil
	}
	label := strings.ToLower(strings.TrimSpace(string(m[3])))
	if label == "utf-8" || label == "utf8" {
		return string(data), nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", errors.Errorf("unsupported document encoding %q", label)
	}
	if name == "utf-8" {
		return string(data), nil
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode document from %s", name)
	}
	return declareUTF8(string(out)), nil
}

func declareUTF8(doc string) string {
	return xmlDeclEncoding.ReplaceAllString(doc, "${1}${2}UTF-8${4}")
}
