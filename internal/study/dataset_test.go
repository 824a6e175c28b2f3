package study

import (
	"math"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ingest"
)

func cohortTable() *ingest.Table {
	return &ingest.Table{
		Header: []string{
			"Patient ID", "age", "sex", "country", "intervention",
			"start_date", "end_date", "baseline_bmi", "followup_bmi",
			"weight_change_kg", "adherence_rate", "outcome",
			"adverse_event", "hospitalizations", "comorbidities",
		},
		Rows: [][]string{
			{"P001", "52", "Female", "Germany", "Mounjaro", "2023-01-01", "2023-07-01", "36.5", "31.2", "-14.3", "0.92", "Significant Weight Loss", "Nausea", "0", "Type 2 Diabetes; Hypertension"},
			{"P002", "44", "Male", "France", "Lifestyle Only", "2023-02-01", "2023-08-01", "31.0", "30.4", "-1.5", "0.61", "No Change", "None", "1", "None"},
			{"P003", "29", "Female", "Germany", "Mounjaro", "2023-03-01", "2023-09-01", "", "28.0", "-6.0", "0.85", "Moderate Weight Loss", "None", "0", ""},
		},
	}
}

func TestFromTableNormalizesHeadersAndDerives(t *testing.T) {
	ds, err := FromTable("cohort", cohortTable())
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	if len(ds.Patients) != 3 {
		t.Fatalf("expected 3 patients, got %d", len(ds.Patients))
	}
	if ds.Columns[0] != "patient_id" {
		t.Fatalf("header not normalized: %q", ds.Columns[0])
	}
	p := ds.Patients[0]
	if p.PatientID != "P001" || p.Age != 52 || p.TreatmentDurationDays != 181 {
		t.Fatalf("unexpected first patient: %+v", p)
	}
	if !p.SignificantWeightLoss || p.BMICategory != "Obese III" {
		t.Fatalf("derived fields wrong: %+v", p)
	}
	// Missing baseline_bmi stays nil and yields no bmi_change.
	if ds.Patients[2].BaselineBMI != nil || ds.Patients[2].BMIChange != nil {
		t.Fatalf("expected nil measures for missing cell")
	}
}

func TestFromTableReportsMissingRequiredColumns(t *testing.T) {
	tab := &ingest.Table{
		Header: []string{"age", "sex"},
		Rows:   [][]string{{"41", "Male"}},
	}
	_, err := FromTable("bad", tab)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, col := range []string{"patient_id", "intervention", "outcome"} {
		if !strings.Contains(err.Error(), col) {
			t.Fatalf("error should name %s: %v", col, err)
		}
	}
}

func TestFromTableWarnsOnBadCells(t *testing.T) {
	tab := cohortTable()
	tab.Rows[1][1] = "forty-four"
	tab.Rows[1][7] = "n/a"
	ds, err := FromTable("cohort", tab)
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	if len(ds.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", ds.Warnings)
	}
	if !strings.Contains(ds.Warnings[0], "age") {
		t.Fatalf("first warning should mention age: %q", ds.Warnings[0])
	}
	if ds.Patients[1].Age != 0 || ds.Patients[1].BaselineBMI != nil {
		t.Fatal("bad cells should coerce to zero/nil")
	}
}

func TestNumericReturnsNaNForMissing(t *testing.T) {
	ds, err := FromTable("cohort", cohortTable())
	if err != nil {
		t.Fatal(err)
	}
	vals := ds.Numeric("baseline_bmi")
	if len(vals) != 3 {
		t.Fatalf("len: %d", len(vals))
	}
	if vals[0] != 36.5 || !math.IsNaN(vals[2]) {
		t.Fatalf("unexpected values: %v", vals)
	}
	if got := ds.Numeric("treatment_duration_days")[0]; got != 181 {
		t.Fatalf("derived column: %v", got)
	}
	if !math.IsNaN(ds.Numeric("no_such_column")[0]) {
		t.Fatal("unknown column should be NaN")
	}
}

func TestCountByOrdersByDescendingCount(t *testing.T) {
	ds, err := FromTable("cohort", cohortTable())
	if err != nil {
		t.Fatal(err)
	}
	keys, counts := CountBy(ds.Patients, func(p *Patient) string { return p.Country })
	if len(keys) != 2 || keys[0] != "Germany" {
		t.Fatalf("unexpected order: %v", keys)
	}
	if counts["Germany"] != 2 || counts["France"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestInterventionsFirstSeenOrder(t *testing.T) {
	ds, err := FromTable("cohort", cohortTable())
	if err != nil {
		t.Fatal(err)
	}
	got := ds.Interventions()
	if len(got) != 2 || got[0] != "Mounjaro" || got[1] != "Lifestyle Only" {
		t.Fatalf("unexpected interventions: %v", got)
	}
}
