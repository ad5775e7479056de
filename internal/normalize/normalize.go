// Package normalize cleans text extracted from a book before it is chunked.
//
// The passes run in a fixed order: chapter markers, all-caps heading lines,
// isolated page numbers, newline runs, then whitespace runs. Later passes
// depend on the line structure that earlier passes still see.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// "Capítulo 3", "CAP. IV", "Chapter 12", "ch. ii"
	chapterMarker = regexp.MustCompile(`(?i)\b(?:chapter|ch\.|cap[ií]tulo|cap\.|cap)\s+(?:\d+|[ivxlcdm]+)\b`)

	// Running headers and section titles printed in capitals on their own line.
	headingLine = regexp.MustCompile(`\n[A-ZÁÉÍÓÚÑÜ0-9 ,.'’\-]{4,80}\n`)

	pageNumber   = regexp.MustCompile(`(?:^|\s+)\d{1,4}(?:\s+|$)`)
	newlineRun   = regexp.MustCompile(`\n+`)
	whitespaceRn = regexp.MustCompile(`\s+`)
)

// Normalize returns raw with page furniture removed and all whitespace
// collapsed to single spaces. Empty input yields empty output.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := chapterMarker.ReplaceAllString(raw, "")
	text = headingLine.ReplaceAllString(text, "\n")
	text = removePageNumbers(text)
	text = newlineRun.ReplaceAllString(text, " ")
	text = whitespaceRn.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// removePageNumbers drops 1-4 digit tokens that stand alone between
// whitespace. A match consumes the whitespace on both sides, so adjacent
// numbers ("12 13") need another pass; every pass removes at least one
// digit, which bounds the loop.
func removePageNumbers(text string) string {
	for {
		next := pageNumber.ReplaceAllString(text, " ")
		if next == text {
			return text
		}
		text = next
	}
}
