package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/imgbatch-api/internal/domain"
)

// expectedFields is the number of columns in a data line:
// serial number, product name and the URL list.
const expectedFields = 3

// urlSeparator separates input URLs inside the third column.
const urlSeparator = ";"

var (
	// ErrUnparseable is returned when the payload as a whole cannot be read
	// as text. No rows are produced in that case.
	ErrUnparseable = errors.New("payload is not readable text")

	// ErrMalformedRow is wrapped by the per-row error of a line that could
	// not be split into the expected columns.
	ErrMalformedRow = errors.New("malformed row")
)

// Parse turns a raw batch payload into rows.
//
// Blank lines are ignored and the first remaining line is treated as the
// header. A line that cannot be split into exactly three columns still
// produces a Row, carrying ParseErr, so that every data line yields exactly
// one result downstream. Only a payload that is not text at all fails the
// whole parse with ErrUnparseable.
func Parse(raw []byte) ([]domain.Row, error) {
	if !utf8.Valid(raw) || bytes.IndexByte(raw, 0) >= 0 {
		return nil, ErrUnparseable
	}

	lines := splitLines(string(raw))
	if len(lines) == 0 {
		return []domain.Row{}, nil
	}

	// first non-blank line is the header
	data := lines[1:]
	rows := make([]domain.Row, 0, len(data))
	for i, line := range data {
		rows = append(rows, parseLine(i, line))
	}

	return rows, nil
}

// splitLines returns the non-blank lines of text, with trailing
// carriage returns removed.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parseLine(ordinal int, line string) domain.Row {
	row := domain.Row{Ordinal: ordinal, Raw: line}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	fields, err := r.Read()
	if err != nil {
		row.ParseErr = fmt.Errorf("%w: %v", ErrMalformedRow, err)
		return row
	}

	if len(fields) > 0 {
		row.SerialNumber = strings.TrimSpace(fields[0])
	}
	if len(fields) > 1 {
		row.ProductName = strings.TrimSpace(fields[1])
	}

	if len(fields) != expectedFields {
		row.ParseErr = fmt.Errorf("%w: expected %d fields, got %d",
			ErrMalformedRow, expectedFields, len(fields))
		return row
	}

	row.InputURLs = SplitURLs(fields[2])
	return row
}

// SplitURLs splits a URL list on ';'. Empty entries are kept as empty
// strings so that they occupy a slot and are reported as failures.
func SplitURLs(field string) []string {
	parts := strings.Split(field, urlSeparator)
	urls := make([]string, len(parts))
	for i, p := range parts {
		urls[i] = strings.TrimSpace(p)
	}
	return urls
}
