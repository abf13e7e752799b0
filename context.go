package teitables

import "strings"

// tableContext collects the words within margin above and below a table,
// limited to words starting inside the table's horizontal span.
func tableContext(words []EnrichedWord, bbox *CellBBox, margin float64) string {
	if bbox == nil {
		return "Text above table: "
	}

	var above, below []string
	for _, w := range words {
		if w.Box.X0 < bbox.X0 || w.Box.X0 > bbox.X1 {
			continue
		}
		if w.Box.Y1 <= bbox.Top && bbox.Top-w.Box.Y1 <= margin {
			above = append(above, w.Text)
		}
		if w.Box.Y0 >= bbox.Bottom && w.Box.Y0-bbox.Bottom <= margin {
			below = append(below, w.Text)
		}
	}

	var sb strings.Builder
	sb.WriteString("Text above table: ")
	sb.WriteString(strings.Join(above, " "))
	if len(below) > 0 {
		sb.WriteString(" | Text under table: ")
		sb.WriteString(strings.Join(below, " "))
	}
	return sb.String()
}
