package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type xlsxParser struct{}

func (xlsxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

func (xlsxParser) Parse(content []byte) (*Document, error) {
	t, err := ParseXLSXBytes(content, "", 1)
	if err != nil {
		return nil, err
	}
	return &Document{Tables: []*Table{t}}, nil
}

// ParseXLSXFile reads a workbook from disk and extracts the selected sheet.
func ParseXLSXFile(path string, sheetName string, sheetIndex int) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	t, err := ParseXLSXBytes(b, sheetName, sheetIndex)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ParseXLSXBytes extracts one worksheet as a Table. If sheetName is empty the
// 1-based sheetIndex selects the sheet, defaulting to the first one.
func ParseXLSXBytes(content []byte, sheetName string, sheetIndex int) (*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	workbookXML := readZipFile(zr, "xl/workbook.xml")
	relsXML := readZipFile(zr, "xl/_rels/workbook.xml.rels")
	sharedXML := readZipFile(zr, "xl/sharedStrings.xml")
	sheets := parseWorkbook(workbookXML)
	rels := parseRelationships(relsXML)

	target := ""
	resolvedName := ""
	if sheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, sheetName) {
				resolvedName = s.Name
				if rel, ok := rels[s.RID]; ok {
					target = normalizeRelPath(rel)
				}
				break
			}
		}
		if target == "" {
			available := make([]string, len(sheets))
			for i, s := range sheets {
				available[i] = s.Name
			}
			return nil, fmt.Errorf("sheet %q not found (available: %s)",
				sheetName, strings.Join(available, ", "))
		}
	}
	if target == "" {
		// fallback by index (1-based)
		idx := sheetIndex
		if idx <= 0 {
			idx = 1
		}
		var rid string
		for _, s := range sheets {
			if s.SheetID == idx {
				rid = s.RID
				resolvedName = s.Name
				break
			}
		}
		if rid != "" {
			if rel, ok := rels[rid]; ok {
				target = normalizeRelPath(rel)
			}
		}
		if target == "" {
			target = fmt.Sprintf("xl/worksheets/sheet%d.xml", idx)
		}
	}
	sheetXML := readZipFile(zr, target)
	if len(sheetXML) == 0 {
		return nil, fmt.Errorf("worksheet %s not found in workbook", target)
	}
	shared := parseSharedStrings(sharedXML)

	rr := newSheetRowReader(sheetXML, shared)
	header, ok := rr.Next()
	if !ok || len(header) == 0 {
		return nil, fmt.Errorf("worksheet has no header row")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Name: resolvedName, Header: header}
	ncol := len(header)
	for {
		row, ok := rr.Next()
		if !ok {
			break
		}
		if isEmptyRow(row) {
			continue
		}
		rec := make([]string, ncol)
		copy(rec, row)
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// SheetNames lists the worksheet names of a workbook in declaration order.
func SheetNames(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := parseWorkbook(readZipFile(zr, "xl/workbook.xml"))
	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.Name
	}
	return names, nil
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) []wbSheet {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return sheets
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			var s wbSheet
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "name":
					s.Name = a.Value
				case "sheetId":
					s.SheetID = atoiSafe(a.Value)
				case "id":
					s.RID = a.Value // in r: namespace
				}
			}
			sheets = append(sheets, s)
		}
	}
	return sheets
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return out
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			var id, target string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "Id":
					id = a.Value
				case "Target":
					target = a.Value
				}
			}
			if id != "" && target != "" {
				out[id] = target
			}
		}
	}
	return out
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "si" {
				buf.Reset()
			}
			if se.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			if se.Name.Local == "t" {
				inT = false
			}
			if se.Name.Local == "si" {
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write([]byte(se))
			}
		}
	}
	return out
}

// sheetRowReader walks worksheet XML row by row, resolving A1-style cell
// references to column positions and shared-string cells to their text.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	inRow  bool
	curRow []string
	maxCol int
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

func (r *sheetRowReader) Next() ([]string, bool) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				r.inRow = true
				r.curRow = nil
				r.maxCol = 0
			}
			if r.inRow && se.Name.Local == "c" {
				// cell: attributes r (A1), t (type)
				var rAttr, tAttr string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						rAttr = a.Value
					case "t":
						tAttr = a.Value
					}
				}
				colIdx := colIndexFromRef(rAttr)
				if colIdx+1 > r.maxCol {
					r.maxCol = colIdx + 1
				}
				val := r.readCellValue(tAttr)
				if len(r.curRow) <= colIdx {
					tmp := make([]string, colIdx+1)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.curRow[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				if len(r.curRow) < r.maxCol {
					tmp := make([]string, r.maxCol)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.inRow = false
				return r.curRow, true
			}
		}
	}
}

func (r *sheetRowReader) readCellValue(tAttr string) string {
	var val string
	// read until end of c; capture <v> or <is><t>
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, er := r.dec.Token()
					if er != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write([]byte(ch))
					}
				}
				val = sb.String()
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				if tAttr == "s" { // shared string
					idx := atoiSafe(val)
					if idx >= 0 && idx < len(r.shared) {
						return r.shared[idx]
					}
					return ""
				}
				return val
			}
		}
	}
}

// colIndexFromRef maps refs like "C12" to 2 (0-based index).
func colIndexFromRef(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			i++
			continue
		}
		break
	}
	s := strings.ToUpper(ref[:i])
	idx := 0
	for j := 0; j < len(s); j++ {
		idx = idx*26 + int(s[j]-'A'+1)
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship Target paths to ZIP entry paths.
// Targets may carry a leading slash (e.g. "/xl/worksheets/sheet1.xml") which
// ZIP entries do not have.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return "xl/" + rel
}
