// Package export materializes datasets and analysis results as CSV and HTML
// artifacts, matching what the dashboard offers for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/study"
)

// Content types served with the exports.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// Filter narrows which patients are exported. Zero values mean no
// constraint on that dimension.
type Filter struct {
	Interventions []string
	Countries     []string
	Sexes         []string
	Outcomes      []string
	AgeMin        int
	AgeMax        int
}

// Match reports whether the patient passes every set constraint.
func (f Filter) Match(p *study.Patient) bool {
	if !matchAny(f.Interventions, p.Intervention) {
		return false
	}
	if !matchAny(f.Countries, p.Country) {
		return false
	}
	if !matchAny(f.Sexes, p.Sex) {
		return false
	}
	if !matchAny(f.Outcomes, p.Outcome) {
		return false
	}
	if f.AgeMin > 0 && p.Age < f.AgeMin {
		return false
	}
	if f.AgeMax > 0 && p.Age > f.AgeMax {
		return false
	}
	return true
}

func matchAny(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// FilteredCSV writes the matching patients with the canonical column order,
// derived fields included.
func FilteredCSV(w io.Writer, ds *study.Dataset, f Filter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(study.DatasetColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range ds.Patients {
		if !f.Match(p) {
			continue
		}
		if err := cw.Write(Record(p)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record renders one patient as cells in DatasetColumns order.
func Record(p *study.Patient) []string {
	row := make([]string, 0, len(study.DatasetColumns))
	for _, col := range study.DatasetColumns {
		row = append(row, patientCell(p, col))
	}
	return row
}

func patientCell(p *study.Patient, col string) string {
	switch col {
	case "patient_id":
		return p.PatientID
	case "age":
		return strconv.Itoa(p.Age)
	case "sex":
		return p.Sex
	case "country":
		return p.Country
	case "intervention":
		return p.Intervention
	case "diagnosis_date":
		return p.DiagnosisDate.String()
	case "start_date":
		return p.StartDate.String()
	case "end_date":
		return p.EndDate.String()
	case "baseline_bmi":
		return floatCell(p.BaselineBMI)
	case "followup_bmi":
		return floatCell(p.FollowupBMI)
	case "weight_change_kg":
		return floatCell(p.WeightChangeKg)
	case "adherence_rate":
		return floatCell(p.AdherenceRate)
	case "outcome":
		return p.Outcome
	case "adverse_event":
		return p.AdverseEvent
	case "hospitalizations":
		return strconv.Itoa(p.Hospitalizations)
	case "comorbidities":
		return p.Comorbidities
	case "treatment_duration_days":
		return strconv.Itoa(p.TreatmentDurationDays)
	case "bmi_change":
		return floatCell(p.BMIChange)
	case "weight_change_percentage":
		return floatCell(p.WeightChangePct)
	case "comorbidity_count":
		return strconv.Itoa(p.ComorbidityCount)
	case "significant_weight_loss":
		return boolCell(p.SignificantWeightLoss)
	case "moderate_weight_loss":
		return boolCell(p.ModerateWeightLoss)
	case "any_weight_loss":
		return boolCell(p.AnyWeightLoss)
	case "age_group":
		return p.AgeGroup
	case "baseline_bmi_category":
		return p.BMICategory
	}
	return ""
}

func floatCell(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func boolCell(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// statRows is the describe() row order.
var statRows = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// StatsCSV writes the descriptive statistics table, one row per statistic
// and one column per numeric field.
func StatsCSV(w io.Writer, ds *study.Dataset) error {
	descs := analysis.Describe(ds)
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(descs)+1)
	header = append(header, "")
	for _, d := range descs {
		header = append(header, d.Column)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, stat := range statRows {
		row := make([]string, 0, len(descs)+1)
		row = append(row, stat)
		for _, d := range descs {
			row = append(row, statCell(d, stat))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func statCell(d analysis.NumericDescription, stat string) string {
	var v float64
	switch stat {
	case "count":
		return strconv.Itoa(d.Count)
	case "mean":
		v = d.Mean
	case "std":
		v = d.Std
	case "min":
		v = d.Min
	case "25%":
		v = d.Q25
	case "50%":
		v = d.Median
	case "75%":
		v = d.Q75
	case "max":
		v = d.Max
	}
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
