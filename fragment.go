package teitables

import (
	"strconv"
	"strings"
)

// MarshalFragment serialises tables into the pdf_tables grammar read by
// downstream TEI consumers:
//
//	<pdf_tables>
//	<table page="P" table_number="N"><coordinates>..</coordinates><context>..</context><row><cell>..</cell></row></table>
//	</pdf_tables>
//
// Every <table opening tag is preceded by a newline. Nothing is validated.
func MarshalFragment(tables []DetectedTable) string {
	if len(tables) == 0 {
		return "<pdf_tables />"
	}

	var sb strings.Builder
	sb.WriteString("<pdf_tables>")
	for _, t := range tables {
		sb.WriteString("\n<table page=\"")
		sb.WriteString(escapeAttr(strconv.Itoa(t.Page)))
		sb.WriteString("\" table_number=\"")
		sb.WriteString(escapeAttr(strconv.Itoa(t.Number)))
		sb.WriteString("\">")

		writeElement(&sb, "coordinates", t.Coordinates())
		writeElement(&sb, "context", t.Context)

		for _, row := range t.Rows {
			if len(row) == 0 {
				sb.WriteString("<row />")
				continue
			}
			sb.WriteString("<row>")
			for _, cell := range row {
				writeElement(&sb, "cell", cell)
			}
			sb.WriteString("</row>")
		}
		sb.WriteString("</table>")
	}
	sb.WriteString("</pdf_tables>")
	return sb.String()
}

func writeElement(sb *strings.Builder, name, text string) {
	if text == "" {
		sb.WriteString("<" + name + " />")
		return
	}
	sb.WriteString("<" + name + ">")
	sb.WriteString(escapeText(text))
	sb.WriteString("</" + name + ">")
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"\r", "&#13;",
		"\n", "&#10;",
		"\t", "&#09;",
	)
)

// escapeText escapes character data the way ElementTree does: quotes are
// left alone.
func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
