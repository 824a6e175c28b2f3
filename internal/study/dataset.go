package study

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rwelens/rwelens-cli/internal/ingest"
)

// maxCoercionWarnings caps the per-dataset warning list so one mangled
// export does not flood the CLI.
const maxCoercionWarnings = 20

// Columns every cohort dataset must carry. The remaining schema columns are
// optional and coerce to their zero/missing values.
var requiredColumns = []string{"patient_id", "age", "intervention", "outcome"}

// DatasetColumns is the canonical column order for exports: the raw study
// schema followed by the derived fields.
var DatasetColumns = []string{
	"patient_id", "age", "sex", "country", "intervention",
	"diagnosis_date", "start_date", "end_date",
	"baseline_bmi", "followup_bmi", "weight_change_kg", "adherence_rate",
	"outcome", "adverse_event", "hospitalizations", "comorbidities",
	"treatment_duration_days", "bmi_change", "weight_change_percentage",
	"comorbidity_count", "significant_weight_loss", "moderate_weight_loss",
	"any_weight_loss", "age_group", "baseline_bmi_category",
}

// Dataset is a loaded cohort with derived fields computed.
type Dataset struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SourcePath string     `json:"source_path,omitempty"`
	Columns    []string   `json:"columns"`
	Patients   []*Patient `json:"patients"`
	Warnings   []string   `json:"warnings,omitempty"`
	LoadedAt   time.Time  `json:"loaded_at"`
}

// FromTable builds a Dataset from a parsed table. Headers are normalized
// (trimmed, lowercased, spaces to underscores), required columns validated
// in one pass, and every value coerced with a warning rather than a hard
// failure so a few bad cells do not reject a whole study export.
func FromTable(name string, t *ingest.Table) (*Dataset, error) {
	if t == nil || len(t.Header) == 0 {
		return nil, fmt.Errorf("no tabular data found")
	}
	idx := map[string]int{}
	cols := make([]string, len(t.Header))
	for i, h := range t.Header {
		c := normalizeColumn(h)
		cols[i] = c
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	var missing []string
	for _, rc := range requiredColumns {
		if _, ok := idx[rc]; !ok {
			missing = append(missing, rc)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset %s is missing required columns: %s", name, strings.Join(missing, ", "))
	}

	ds := &Dataset{
		ID:       uuid.NewString(),
		Name:     name,
		Columns:  cols,
		LoadedAt: time.Now(),
	}
	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	warn := func(format string, args ...any) {
		if len(ds.Warnings) < maxCoercionWarnings {
			ds.Warnings = append(ds.Warnings, fmt.Sprintf(format, args...))
		}
	}

	for rn, row := range t.Rows {
		p := &Patient{
			PatientID:     cell(row, "patient_id"),
			Sex:           cell(row, "sex"),
			Country:       cell(row, "country"),
			Intervention:  cell(row, "intervention"),
			Outcome:       cell(row, "outcome"),
			AdverseEvent:  cell(row, "adverse_event"),
			Comorbidities: cell(row, "comorbidities"),
		}
		if v := cell(row, "age"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				p.Age = n
			} else {
				warn("row %d: bad age %q", rn+2, v)
			}
		}
		if v := cell(row, "hospitalizations"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				p.Hospitalizations = n
			} else {
				warn("row %d: bad hospitalizations %q", rn+2, v)
			}
		}
		p.BaselineBMI = coerceFloat(cell(row, "baseline_bmi"), rn, "baseline_bmi", warn)
		p.FollowupBMI = coerceFloat(cell(row, "followup_bmi"), rn, "followup_bmi", warn)
		p.WeightChangeKg = coerceFloat(cell(row, "weight_change_kg"), rn, "weight_change_kg", warn)
		p.AdherenceRate = coerceFloat(cell(row, "adherence_rate"), rn, "adherence_rate", warn)
		p.DiagnosisDate = coerceDate(cell(row, "diagnosis_date"), rn, "diagnosis_date", warn)
		p.StartDate = coerceDate(cell(row, "start_date"), rn, "start_date", warn)
		p.EndDate = coerceDate(cell(row, "end_date"), rn, "end_date", warn)
		p.derive()
		ds.Patients = append(ds.Patients, p)
	}
	if len(ds.Patients) == 0 {
		return nil, fmt.Errorf("dataset %s has no data rows", name)
	}
	return ds, nil
}

func normalizeColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func coerceFloat(v string, rn int, col string, warn func(string, ...any)) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warn("row %d: bad %s %q", rn+2, col, v)
		return nil
	}
	return &f
}

func coerceDate(v string, rn int, col string, warn func(string, ...any)) Date {
	d, ok := ParseDate(v)
	if !ok {
		warn("row %d: bad %s %q", rn+2, col, v)
	}
	return d
}

// Numeric returns the named column as floats, one per patient, with NaN for
// missing values. Derived numeric columns are addressable too.
func (ds *Dataset) Numeric(col string) []float64 {
	out := make([]float64, len(ds.Patients))
	for i, p := range ds.Patients {
		out[i] = numericField(p, col)
	}
	return out
}

func numericField(p *Patient, col string) float64 {
	switch col {
	case "age":
		return float64(p.Age)
	case "baseline_bmi":
		return floatOrNaN(p.BaselineBMI)
	case "followup_bmi":
		return floatOrNaN(p.FollowupBMI)
	case "weight_change_kg":
		return floatOrNaN(p.WeightChangeKg)
	case "adherence_rate":
		return floatOrNaN(p.AdherenceRate)
	case "hospitalizations":
		return float64(p.Hospitalizations)
	case "treatment_duration_days":
		return float64(p.TreatmentDurationDays)
	case "bmi_change":
		return floatOrNaN(p.BMIChange)
	case "weight_change_percentage":
		return floatOrNaN(p.WeightChangePct)
	case "comorbidity_count":
		return float64(p.ComorbidityCount)
	case "significant_weight_loss":
		return boolToFloat(p.SignificantWeightLoss)
	case "moderate_weight_loss":
		return boolToFloat(p.ModerateWeightLoss)
	case "any_weight_loss":
		return boolToFloat(p.AnyWeightLoss)
	default:
		return math.NaN()
	}
}

func floatOrNaN(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Strings returns the named categorical column, one value per patient.
func (ds *Dataset) Strings(col string) []string {
	out := make([]string, len(ds.Patients))
	for i, p := range ds.Patients {
		switch col {
		case "patient_id":
			out[i] = p.PatientID
		case "sex":
			out[i] = p.Sex
		case "country":
			out[i] = p.Country
		case "intervention":
			out[i] = p.Intervention
		case "outcome":
			out[i] = p.Outcome
		case "adverse_event":
			out[i] = p.AdverseEvent
		case "comorbidities":
			out[i] = p.Comorbidities
		case "age_group":
			out[i] = p.AgeGroup
		case "baseline_bmi_category":
			out[i] = p.BMICategory
		}
	}
	return out
}

// NumericColumns lists the numeric columns used for correlation matrices,
// matching the source study's selection.
func NumericColumns() []string {
	return []string{
		"age", "baseline_bmi", "followup_bmi", "weight_change_kg",
		"adherence_rate", "hospitalizations", "treatment_duration_days",
		"bmi_change", "comorbidity_count",
	}
}

// Interventions returns the distinct interventions in first-seen order.
func (ds *Dataset) Interventions() []string {
	return firstSeen(ds.Strings("intervention"))
}

// Countries returns the distinct countries in first-seen order.
func (ds *Dataset) Countries() []string {
	return firstSeen(ds.Strings("country"))
}

func firstSeen(vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Subset returns the patients for which keep returns true.
func (ds *Dataset) Subset(keep func(*Patient) bool) []*Patient {
	var out []*Patient
	for _, p := range ds.Patients {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// CountBy tallies a categorical column, returning values ordered by
// descending count then first appearance, the way value_counts sorts.
func CountBy(patients []*Patient, key func(*Patient) string) ([]string, map[string]int) {
	counts := map[string]int{}
	order := map[string]int{}
	for i, p := range patients {
		k := key(p)
		if k == "" {
			continue
		}
		if _, ok := order[k]; !ok {
			order[k] = i
		}
		counts[k]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})
	return keys, counts
}
