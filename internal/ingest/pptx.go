package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type pptxParser struct{}

func (pptxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pptx")
}

var slideFileRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Parse extracts free text and data tables from every slide. Slide text is
// emitted as "Slide N:" sections; each DrawingML table becomes a Table whose
// first row is the header.
func (pptxParser) Parse(content []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	type slideRef struct {
		num  int
		name string
	}
	var slides []slideRef
	for _, f := range zr.File {
		if m := slideFileRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slideRef{num: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sections []string
	var tables []*Table
	for _, s := range slides {
		data := readZipFile(zr, s.name)
		text, slideTables := parseSlide(data)
		if text != "" {
			sections = append(sections, fmt.Sprintf("Slide %d:\n%s", s.num, text))
		}
		for i, t := range slideTables {
			t.Name = fmt.Sprintf("slide %d table %d", s.num, i+1)
			tables = append(tables, t)
		}
	}
	if len(sections) == 0 && len(tables) == 0 {
		return nil, fmt.Errorf("no readable content in presentation")
	}
	return &Document{Text: strings.Join(sections, "\n\n"), Tables: tables}, nil
}

// parseSlide walks one slide's XML collecting paragraph text outside tables
// and cell text inside them. Namespace prefixes are ignored; DrawingML text
// always lives in <a:t> runs.
func parseSlide(data []byte) (string, []*Table) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		lines    []string
		tables   []*Table
		cur      *Table
		curRow   []string
		cellBuf  strings.Builder
		paraBuf  strings.Builder
		inText   bool
		inCell   bool
		inPara   bool
		tblDepth int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					cur = &Table{}
				}
			case "tr":
				if tblDepth > 0 {
					curRow = nil
				}
			case "tc":
				if tblDepth > 0 {
					inCell = true
					cellBuf.Reset()
				}
			case "p":
				if tblDepth == 0 {
					inPara = true
					paraBuf.Reset()
				} else if inCell && cellBuf.Len() > 0 {
					cellBuf.WriteByte('\n')
				}
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inText = false
			case "p":
				if tblDepth == 0 && inPara {
					if s := strings.TrimSpace(paraBuf.String()); s != "" {
						lines = append(lines, s)
					}
					inPara = false
				}
			case "tc":
				if tblDepth > 0 && inCell {
					curRow = append(curRow, strings.TrimSpace(cellBuf.String()))
					inCell = false
				}
			case "tr":
				if tblDepth > 0 && cur != nil {
					row := curRow
					curRow = nil
					if cur.Header == nil {
						cur.Header = row
					} else {
						rec := make([]string, len(cur.Header))
						copy(rec, row)
						cur.Rows = append(cur.Rows, rec)
					}
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && cur != nil {
					if len(cur.Header) > 0 {
						tables = append(tables, cur)
					}
					cur = nil
				}
			}
		case xml.CharData:
			if inText {
				if inCell {
					cellBuf.Write(se)
				} else if inPara {
					paraBuf.Write(se)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), tables
}
