package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips every HTML element, normalises to NFC, removes control characters and
// collapses runs of spaces while keeping intentional line breaks.
func PlainText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	stripped := html.UnescapeString(strictPolicy.Sanitize(trimmed))
	stripped = norm.NFC.String(stripped)

	normalized := strings.ReplaceAll(strings.ReplaceAll(stripped, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		kept = append(kept, strings.Join(strings.Fields(line), " "))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// PlainTextList applies PlainText to every value and drops entries that end up empty.
func PlainTextList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if clean := PlainText(value); clean != "" {
			out = append(out, clean)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
