package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/study"
)

func exportDataset(t *testing.T) *study.Dataset {
	t.Helper()
	tab := &ingest.Table{
		Header: []string{
			"patient_id", "age", "sex", "country", "intervention",
			"start_date", "end_date", "baseline_bmi", "followup_bmi",
			"weight_change_kg", "adherence_rate", "outcome",
			"adverse_event", "hospitalizations", "comorbidities",
		},
		Rows: [][]string{
			{"P001", "52", "Female", "Germany", "Mounjaro", "2023-01-01", "2023-07-01", "36", "31", "-10", "0.9", "Significant Weight Loss", "Nausea", "0", "Type 2 Diabetes"},
			{"P002", "45", "Male", "Germany", "Mounjaro", "2023-01-01", "2023-06-01", "33", "30", "-8", "0.85", "Moderate Weight Loss", "None", "0", "None"},
			{"P003", "29", "Male", "France", "LifestyleOnly", "2023-01-01", "2023-07-01", "32", "31.5", "-2", "0.6", "No Change", "None", "0", "Hypertension"},
			{"P004", "60", "Female", "France", "LifestyleOnly", "2023-01-01", "2023-06-01", "31", "30.5", "-3", "0.7", "Moderate Weight Loss", "Headache", "1", "None"},
		},
	}
	ds, err := study.FromTable("export", tab)
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	return ds
}

func TestFilteredCSVNoFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := FilteredCSV(&buf, exportDataset(t), Filter{}); err != nil {
		t.Fatalf("FilteredCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(records))
	}
	if len(records[0]) != len(study.DatasetColumns) {
		t.Fatalf("header has %d columns, want %d", len(records[0]), len(study.DatasetColumns))
	}
	// Derived fields come through: P001 ran 2023-01-01 to 2023-07-01.
	header := records[0]
	row := records[1]
	idx := map[string]int{}
	for i, h := range header {
		idx[h] = i
	}
	if row[idx["treatment_duration_days"]] != "181" {
		t.Fatalf("duration = %q", row[idx["treatment_duration_days"]])
	}
	if row[idx["bmi_change"]] != "-5" {
		t.Fatalf("bmi change = %q", row[idx["bmi_change"]])
	}
	if row[idx["significant_weight_loss"]] != "True" {
		t.Fatalf("significant flag = %q", row[idx["significant_weight_loss"]])
	}
	if row[idx["age_group"]] != "50-59" {
		t.Fatalf("age group = %q", row[idx["age_group"]])
	}
}

func TestFilteredCSVAppliesConstraints(t *testing.T) {
	var buf bytes.Buffer
	f := Filter{Interventions: []string{"Mounjaro"}, AgeMin: 50}
	if err := FilteredCSV(&buf, exportDataset(t), f); err != nil {
		t.Fatalf("FilteredCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	if records[1][0] != "P001" {
		t.Fatalf("wrong patient: %q", records[1][0])
	}
}

func TestFilterMatch(t *testing.T) {
	p := &study.Patient{Age: 45, Sex: "Male", Country: "Germany", Intervention: "Mounjaro", Outcome: "No Change"}
	if !(Filter{}).Match(p) {
		t.Fatalf("empty filter should match")
	}
	if !(Filter{Countries: []string{"France", "Germany"}}).Match(p) {
		t.Fatalf("country filter should match")
	}
	if (Filter{Sexes: []string{"Female"}}).Match(p) {
		t.Fatalf("sex filter should exclude")
	}
	if (Filter{AgeMax: 40}).Match(p) {
		t.Fatalf("age max should exclude")
	}
	if (Filter{AgeMin: 40}).Match(p) != true {
		t.Fatalf("age min should include")
	}
}

func TestStatsCSVShape(t *testing.T) {
	var buf bytes.Buffer
	if err := StatsCSV(&buf, exportDataset(t)); err != nil {
		t.Fatalf("StatsCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	// Header plus eight statistic rows.
	if len(records) != 9 {
		t.Fatalf("expected 9 rows, got %d", len(records))
	}
	if records[0][0] != "" || records[0][1] != "age" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][0] != "count" || records[1][1] != "4" {
		t.Fatalf("count row = %v", records[1])
	}
	wantStats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	for i, stat := range wantStats {
		if records[i+1][0] != stat {
			t.Fatalf("row %d = %q, want %q", i+1, records[i+1][0], stat)
		}
	}
}

func TestReportHTMLSections(t *testing.T) {
	var buf bytes.Buffer
	ds := exportDataset(t)
	if err := ReportHTML(&buf, ds, nil); err != nil {
		t.Fatalf("ReportHTML: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		"RWE Lens Analysis Report",
		"Treatment Effectiveness",
		"Mounjaro",
		"LifestyleOnly",
		"Outcomes by Country",
		"Germany",
		"Statistical Tests",
		"Key Insights",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q", want)
		}
	}
}

func TestAdverseEventsHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := AdverseEventsHTML(&buf, exportDataset(t)); err != nil {
		t.Fatalf("AdverseEventsHTML: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "2 of 4 patients (50.0%)") {
		t.Fatalf("missing overall AE line: %s", html)
	}
	if !strings.Contains(html, "Nausea") || !strings.Contains(html, "Headache") {
		t.Fatalf("missing AE types")
	}
	if !strings.Contains(html, "Mounjaro") || !strings.Contains(html, "LifestyleOnly") {
		t.Fatalf("missing intervention rows")
	}
}
