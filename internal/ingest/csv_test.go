package ingest

import (
	"testing"
)

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseCSVSniffsSemicolon(t *testing.T) {
	content := []byte("patient_id;age;country\nP001;52;Germany\nP002;47;France\n")
	tab, err := ParseCSVBytes(content)
	if err != nil {
		t.Fatalf("ParseCSVBytes: %v", err)
	}
	if !equalStrings(tab.Header, []string{"patient_id", "age", "country"}) {
		t.Fatalf("unexpected header: %v", tab.Header)
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tab.Rows))
	}
	if tab.Rows[1][2] != "France" {
		t.Fatalf("unexpected cell: %q", tab.Rows[1][2])
	}
}

func TestParseCSVLatin1Fallback(t *testing.T) {
	// 0xE9 is é in Latin-1 and an invalid standalone byte in UTF-8.
	content := []byte("name,city\nRen\xe9,Qu\xe9bec\n")
	tab, err := ParseCSVBytes(content)
	if err != nil {
		t.Fatalf("ParseCSVBytes: %v", err)
	}
	if tab.Rows[0][0] != "René" || tab.Rows[0][1] != "Québec" {
		t.Fatalf("latin-1 decode failed: %v", tab.Rows[0])
	}
}

func TestParseCSVStripsBOMAndPadsRows(t *testing.T) {
	content := []byte("\xef\xbb\xbfa,b,c\n1,2\n\n4,5,6\n")
	tab, err := ParseCSVBytes(content)
	if err != nil {
		t.Fatalf("ParseCSVBytes: %v", err)
	}
	if tab.Header[0] != "a" {
		t.Fatalf("BOM not stripped: %q", tab.Header[0])
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("empty row not skipped, got %d rows", len(tab.Rows))
	}
	if !equalStrings(tab.Rows[0], []string{"1", "2", ""}) {
		t.Fatalf("short row not padded: %v", tab.Rows[0])
	}
}

func TestSniffDelimiterPrefersTab(t *testing.T) {
	if d := SniffDelimiter([]byte("a\tb\tc\n1\t2\t3\n")); d != '\t' {
		t.Fatalf("expected tab, got %q", d)
	}
	if d := SniffDelimiter([]byte("a,b,c\n")); d != ',' {
		t.Fatalf("expected comma, got %q", d)
	}
}

func TestParseCSVExplicitDelimiterOverridesSniffing(t *testing.T) {
	// Sniffing would pick the comma here; the explicit semicolon wins.
	content := []byte("a,b;c,d\n1,2;3,4\n")
	tab, err := ParseCSVBytesDelim(content, ';')
	if err != nil {
		t.Fatalf("ParseCSVBytesDelim: %v", err)
	}
	if !equalStrings(tab.Header, []string{"a,b", "c,d"}) {
		t.Fatalf("unexpected header: %v", tab.Header)
	}
	if !equalStrings(tab.Rows[0], []string{"1,2", "3,4"}) {
		t.Fatalf("unexpected row: %v", tab.Rows[0])
	}
}
