package parser

import (
	"strings"
	"unicode"
)

// Column is a fixed character range [Start, End) inside a line.
type Column struct {
	Start int
	End   int
}

// Split cuts line at every occurrence of sep.
func Split(line, sep string) []string {
	return strings.Split(line, sep)
}

// SplitN cuts line at most k-1 times, so the last piece keeps any remaining
// separators. k <= 0 behaves like Split.
func SplitN(line, sep string, k int) []string {
	if k <= 0 {
		return strings.Split(line, sep)
	}
	return strings.SplitN(line, sep, k)
}

// SplitFields splits on runs of whitespace into at most k pieces. The last
// piece keeps its inner spacing untouched, only the leading blanks are dropped.
func SplitFields(line string, k int) []string {
	if k <= 0 {
		return strings.Fields(line)
	}

	var pieces []string
	rest := strings.TrimLeftFunc(line, unicode.IsSpace)
	for rest != "" {
		if len(pieces) == k-1 {
			pieces = append(pieces, strings.TrimRightFunc(rest, unicode.IsSpace))
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			pieces = append(pieces, rest)
			break
		}
		pieces = append(pieces, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return pieces
}

// Columns extracts fixed character ranges from line. Ranges that fall past the
// end of the line are truncated, so a short line yields short or empty pieces.
func Columns(line string, cols []Column) []string {
	pieces := make([]string, len(cols))
	for i, col := range cols {
		start, end := col.Start, col.End
		if start > len(line) {
			start = len(line)
		}
		if end > len(line) {
			end = len(line)
		}
		if start >= end {
			continue
		}
		pieces[i] = strings.TrimSpace(line[start:end])
	}
	return pieces
}
