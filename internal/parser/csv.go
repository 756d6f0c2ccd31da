package parser

import (
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SplitQuoted splits one delimited line honoring double quotes, so a quoted
// field may contain the separator and loses its surrounding quotes.
func SplitQuoted(line, sep string) ([]string, error) {
	comma, size := utf8.DecodeRuneInString(sep)
	if size == 0 || size != len(sep) {
		return nil, fmt.Errorf("quoted layout needs a single character separator, got %q", sep)
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	record, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read quoted record: %w", err)
	}
	return record, nil
}
