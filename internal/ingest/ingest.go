// Package ingest turns study files (CSV, XLSX, PPTX, JSON, plain text) into
// tabular data and note text for the analysis pipeline.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwelens/rwelens-cli/internal/utils"
)

// Table is a rectangular slice of a source file: a header row plus data rows.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Document is the parse result for a single file. Tabular formats yield one
// table, PPTX may carry several plus free text, note formats carry text only.
type Document struct {
	Text   string
	Tables []*Table
}

// FirstTable returns the document's first table or an error when the file
// produced no tabular data.
func (d *Document) FirstTable() (*Table, error) {
	if d == nil || len(d.Tables) == 0 {
		return nil, fmt.Errorf("no tabular data found")
	}
	return d.Tables[0], nil
}

// Parser defines a file parser implementation.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (*Document, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// SupportedExtensions lists the file types the registry handles.
func SupportedExtensions() []string {
	return []string{".csv", ".tsv", ".xlsx", ".pptx", ".json", ".txt", ".md", ".markdown"}
}

// ParseFile reads a file from disk and parses it with the registered parser
// for its name.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseBytes(filepath.Base(path), data)
}

// ParseBytes parses in-memory content using the parser registered for the
// file name. Dashboard uploads come through here without touching disk.
func ParseBytes(filename string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %s", filepath.Base(filename))
	}
	for _, p := range registry {
		if p.CanParse(filename) {
			doc, err := p.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", filepath.Base(filename), err)
			}
			return doc, nil
		}
	}
	if strings.EqualFold(filepath.Ext(filename), ".xls") {
		return nil, fmt.Errorf("legacy .xls workbooks are not supported; save the file as .xlsx")
	}
	return nil, fmt.Errorf("unsupported file type %q (supported: %s)",
		filepath.Ext(filename), strings.Join(SupportedExtensions(), ", "))
}

// EstimateTokens delegates to utils.CountTokens for note sizing.
func EstimateTokens(text string) int {
	return utils.CountTokens(text)
}

func init() {
	// Register default parsers
	Register(csvParser{})
	Register(xlsxParser{})
	Register(pptxParser{})
	Register(jsonParser{})
	Register(txtParser{})
	Register(markdownParser{})
}
