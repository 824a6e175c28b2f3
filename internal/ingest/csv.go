package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

type csvParser struct{}

func (csvParser) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvParser) Parse(content []byte) (*Document, error) {
	t, err := ParseCSVBytes(content)
	if err != nil {
		return nil, err
	}
	return &Document{Tables: []*Table{t}}, nil
}

// ParseCSVBytes parses CSV content into a Table. The delimiter is sniffed
// from the first line; exports that are not UTF-8 are decoded as Latin-1,
// which is what spreadsheet tools commonly emit.
func ParseCSVBytes(content []byte) (*Table, error) {
	return ParseCSVBytesDelim(content, 0)
}

// ParseCSVBytesDelim parses CSV content with an explicit delimiter. A zero
// delimiter falls back to sniffing the first line.
func ParseCSVBytesDelim(content []byte, delim rune) (*Table, error) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(content) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("decode latin-1: %w", err)
		}
		content = decoded
	}
	if delim == 0 {
		delim = SniffDelimiter(content)
	}
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	ncol := len(header)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Header: header}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		if isEmptyRow(rec) {
			continue
		}
		row := make([]string, ncol)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// SniffDelimiter inspects the first line of content and picks the candidate
// separator with the most occurrences, defaulting to comma.
func SniffDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best := ','
	bestCount := bytes.Count(line, []byte{','})
	for _, cand := range []byte{';', '\t', '|'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best = rune(cand)
			bestCount = n
		}
	}
	return best
}

func isEmptyRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
