package teitables

import "strings"

// RemoveBlankLines drops every line that holds only whitespace. Remaining
// lines are kept byte for byte, including a trailing "\r" of CRLF input, and
// joined with "\n".
func RemoveBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
