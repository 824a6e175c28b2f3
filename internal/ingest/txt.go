package ingest

import "strings"

type txtParser struct{}

func (txtParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}

func (txtParser) Parse(content []byte) (*Document, error) {
	return &Document{Text: string(content)}, nil
}
