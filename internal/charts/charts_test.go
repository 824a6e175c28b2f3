package charts

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/study"
)

func chartDataset(t *testing.T) *study.Dataset {
	t.Helper()
	tab := &ingest.Table{
		Header: []string{
			"patient_id", "age", "sex", "country", "intervention",
			"start_date", "end_date", "baseline_bmi", "followup_bmi",
			"weight_change_kg", "adherence_rate", "outcome",
			"adverse_event", "hospitalizations", "comorbidities",
		},
		Rows: [][]string{
			{"P001", "52", "Female", "Germany", "Mounjaro", "2023-01-15", "2023-07-01", "36", "31", "-10", "0.9", "Significant Weight Loss", "Nausea", "0", "Type 2 Diabetes"},
			{"P002", "45", "Male", "Germany", "Mounjaro", "2023-02-10", "2023-06-01", "33", "30", "-8", "0.85", "Moderate Weight Loss", "None", "0", "None"},
			{"P003", "29", "Male", "France", "LifestyleOnly", "2023-01-20", "2023-07-01", "32", "31.5", "-2", "0.6", "No Change", "None", "0", "Hypertension"},
			{"P004", "61", "Female", "France", "LifestyleOnly", "2023-02-05", "2023-06-01", "31", "30.5", "-3", "0.7", "Moderate Weight Loss", "Headache", "1", "None"},
		},
	}
	ds, err := study.FromTable("charts", tab)
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	return ds
}

func renderToString(t *testing.T, c Renderable) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(c, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestAgeHistogramBinsInOrder(t *testing.T) {
	html := renderToString(t, AgeHistogram(chartDataset(t)))
	if !strings.Contains(html, "Age Distribution") {
		t.Fatalf("missing title")
	}
	// Ages 52, 45, 29, 61 map to 50-59, 40-49, <30, 60+ under right-closed
	// bins (age 60 itself still falls in 50-59); 30-39 is empty and dropped.
	for _, g := range []string{"40-49", "50-59", "60+"} {
		if !strings.Contains(html, g) {
			t.Fatalf("missing age group %q", g)
		}
	}
	if !strings.Contains(html, "<30") && !strings.Contains(html, "\\u003c30") {
		t.Fatalf("missing age group <30")
	}
	if strings.Contains(html, "30-39") {
		t.Fatalf("empty bin should be dropped")
	}
}

func TestScatterSeriesPerIntervention(t *testing.T) {
	html := renderToString(t, BMIScatter(chartDataset(t)))
	if !strings.Contains(html, "Mounjaro") || !strings.Contains(html, "LifestyleOnly") {
		t.Fatalf("expected one series per intervention")
	}
}

func TestAdverseEventBarExcludesNone(t *testing.T) {
	html := renderToString(t, AdverseEventBar(chartDataset(t)))
	if !strings.Contains(html, "Nausea") || !strings.Contains(html, "Headache") {
		t.Fatalf("missing adverse event types")
	}
	if strings.Contains(html, "\"None\"") {
		t.Fatalf("None should be excluded from adverse events")
	}
}

func TestWeightChangeBoxHasBothArms(t *testing.T) {
	html := renderToString(t, WeightChangeBox(chartDataset(t)))
	if !strings.Contains(html, "Weight Change by Intervention") {
		t.Fatalf("missing title")
	}
	if !strings.Contains(html, "Mounjaro") || !strings.Contains(html, "LifestyleOnly") {
		t.Fatalf("missing arms")
	}
}

func TestTimelineCountsPerMonth(t *testing.T) {
	html := renderToString(t, TimelineLine(chartDataset(t)))
	if !strings.Contains(html, "2023-01") || !strings.Contains(html, "2023-02") {
		t.Fatalf("missing month labels")
	}
}

func TestDashboardRendersAllCharts(t *testing.T) {
	html := renderToString(t, Dashboard(chartDataset(t)))
	for _, title := range []string{
		"Age Distribution", "Gender Distribution", "Patients by Country",
		"Baseline vs Follow-up BMI", "Weight Change by Intervention",
		"Outcome Distribution", "Adverse Events",
		"Adherence Rate Distribution", "Correlation Matrix",
		"Enrollment Timeline",
	} {
		if !strings.Contains(html, title) {
			t.Fatalf("dashboard missing %q", title)
		}
	}
}
