package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateText shortens value to at most max runes, appending "..." when
// anything was cut. max <= 0 returns the empty string.
func TruncateText(value string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}

// Snippet returns the text surrounding [start, end) padded by margin bytes
// on both sides, clamped to the bounds of text, with collapsed whitespace.
// The window is widened to rune boundaries so multi-byte characters never
// get cut in half.
func Snippet(text string, start, end, margin int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start, end = end, start
	}
	from := start - margin
	if from < 0 {
		from = 0
	}
	to := end + margin
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return NormalizeSpace(text[from:to])
}

// NormalizeSpace collapses runs of whitespace into single spaces and trims
// the ends.
func NormalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
