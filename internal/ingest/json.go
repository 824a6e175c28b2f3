package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type jsonParser struct{}

func (jsonParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".json")
}

func (jsonParser) Parse(content []byte) (*Document, error) {
	t, err := ParseJSONBytes(content)
	if err != nil {
		return nil, err
	}
	return &Document{Tables: []*Table{t}}, nil
}

// ParseJSONBytes normalizes JSON into a Table. A top-level array of objects
// becomes the table directly; for a top-level object the first field (in file
// order) holding a non-empty array of objects is used, falling back to the
// object itself as a single row.
func ParseJSONBytes(content []byte) (*Table, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty json")
	}
	switch trimmed[0] {
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if len(raws) == 0 {
			return nil, fmt.Errorf("json array is empty")
		}
		return tableFromRecords(raws)
	case '{':
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			var val json.RawMessage
			if err := dec.Decode(&val); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			v := bytes.TrimSpace(val)
			if len(v) == 0 || v[0] != '[' {
				continue
			}
			var raws []json.RawMessage
			if err := json.Unmarshal(v, &raws); err != nil || len(raws) == 0 {
				continue
			}
			if first := bytes.TrimSpace(raws[0]); len(first) > 0 && first[0] == '{' {
				return tableFromRecords(raws)
			}
		}
		// No embedded record array: the object itself is one row.
		return tableFromRecords([]json.RawMessage{trimmed})
	default:
		return nil, fmt.Errorf("unsupported json shape (expected object or array)")
	}
}

func tableFromRecords(raws []json.RawMessage) (*Table, error) {
	var cols []string
	idx := map[string]int{}
	rows := make([]map[string]string, 0, len(raws))
	for i, raw := range raws {
		fields, order, err := decodeFlatObject(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		for _, k := range order {
			if _, ok := idx[k]; !ok {
				idx[k] = len(cols)
				cols = append(cols, k)
			}
		}
		rows = append(rows, fields)
	}
	t := &Table{Header: cols}
	for _, m := range rows {
		rec := make([]string, len(cols))
		for k, v := range m {
			rec[idx[k]] = v
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// decodeFlatObject renders one JSON object as strings, preserving key order.
func decodeFlatObject(raw json.RawMessage) (map[string]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %s", previewJSON(raw))
	}
	out := map[string]string{}
	var order []string
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key")
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		out[key] = scalarString(val)
		order = append(order, key)
	}
	return out, order, nil
}

// scalarString keeps numbers and bools as their source text, unquotes
// strings, and leaves nested structures as compact JSON.
func scalarString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "null":
		return ""
	case len(s) > 0 && s[0] == '"':
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		return s
	default:
		return s
	}
}

func previewJSON(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}
