package study

import (
	"fmt"
	"strings"
	"time"
)

// Outcome labels used by the binary outcome flags.
const (
	OutcomeSignificant = "Significant Weight Loss"
	OutcomeModerate    = "Moderate Weight Loss"
)

// Patient is one row of a cohort dataset. Optional clinical measures are
// pointers so a missing CSV cell survives a JSON round-trip as null rather
// than a fake zero.
type Patient struct {
	PatientID     string `json:"patient_id"`
	Age           int    `json:"age"`
	Sex           string `json:"sex,omitempty"`
	Country       string `json:"country,omitempty"`
	Intervention  string `json:"intervention"`
	DiagnosisDate Date   `json:"diagnosis_date,omitempty"`
	StartDate     Date   `json:"start_date,omitempty"`
	EndDate       Date   `json:"end_date,omitempty"`

	BaselineBMI    *float64 `json:"baseline_bmi,omitempty"`
	FollowupBMI    *float64 `json:"followup_bmi,omitempty"`
	WeightChangeKg *float64 `json:"weight_change_kg,omitempty"`
	AdherenceRate  *float64 `json:"adherence_rate,omitempty"`

	Outcome          string `json:"outcome"`
	AdverseEvent     string `json:"adverse_event,omitempty"`
	Hospitalizations int    `json:"hospitalizations"`
	Comorbidities    string `json:"comorbidities,omitempty"`

	// Derived fields, computed once at load and persisted as-is.
	TreatmentDurationDays int      `json:"treatment_duration_days"`
	BMIChange             *float64 `json:"bmi_change,omitempty"`
	WeightChangePct       *float64 `json:"weight_change_percentage,omitempty"`
	ComorbidityCount      int      `json:"comorbidity_count"`
	SignificantWeightLoss bool     `json:"significant_weight_loss"`
	ModerateWeightLoss    bool     `json:"moderate_weight_loss"`
	AnyWeightLoss         bool     `json:"any_weight_loss"`
	AgeGroup              string   `json:"age_group,omitempty"`
	BMICategory           string   `json:"baseline_bmi_category,omitempty"`
}

// derive fills every computed field from the raw columns.
func (p *Patient) derive() {
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() {
		p.TreatmentDurationDays = int(p.EndDate.Time().Sub(p.StartDate.Time()).Hours() / 24)
	}
	if p.BaselineBMI != nil && p.FollowupBMI != nil {
		d := *p.FollowupBMI - *p.BaselineBMI
		p.BMIChange = &d
	}
	if p.WeightChangeKg != nil {
		// Percentage of an assumed 80 kg baseline body weight.
		pct := *p.WeightChangeKg / (*p.WeightChangeKg + 80) * 100
		p.WeightChangePct = &pct
	}
	p.ComorbidityCount = countComorbidities(p.Comorbidities)
	p.SignificantWeightLoss = p.Outcome == OutcomeSignificant
	p.ModerateWeightLoss = p.Outcome == OutcomeModerate
	p.AnyWeightLoss = p.SignificantWeightLoss || p.ModerateWeightLoss
	p.AgeGroup = ageGroup(p.Age)
	if p.BaselineBMI != nil {
		p.BMICategory = bmiCategory(*p.BaselineBMI)
	}
}

// countComorbidities counts the ';'-separated conditions, ignoring blanks
// and the literal "None" entry.
func countComorbidities(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return 0
	}
	n := 0
	for _, part := range strings.Split(s, ";") {
		if t := strings.TrimSpace(part); t != "" && t != "None" {
			n++
		}
	}
	return n
}

// HasComorbidity reports whether the raw comorbidities field mentions the
// given condition (substring match, as in the source study).
func (p *Patient) HasComorbidity(condition string) bool {
	return strings.Contains(p.Comorbidities, condition)
}

// ageGroup buckets age into right-closed bins (0,30] (30,40] (40,50]
// (50,60] (60,100]. Ages outside the covered range get no group.
func ageGroup(age int) string {
	a := float64(age)
	switch {
	case a > 0 && a <= 30:
		return "<30"
	case a > 30 && a <= 40:
		return "30-39"
	case a > 40 && a <= 50:
		return "40-49"
	case a > 50 && a <= 60:
		return "50-59"
	case a > 60 && a <= 100:
		return "60+"
	default:
		return ""
	}
}

// bmiCategory buckets baseline BMI into right-closed bins matching the
// study's obesity classes.
func bmiCategory(bmi float64) string {
	switch {
	case bmi > 0 && bmi <= 25:
		return "Normal/Overweight"
	case bmi > 25 && bmi <= 30:
		return "Obese I"
	case bmi > 30 && bmi <= 35:
		return "Obese II"
	case bmi > 35 && bmi <= 100:
		return "Obese III"
	default:
		return ""
	}
}

// Date is a calendar date that marshals as "2006-01-02" and accepts the
// formats spreadsheet exports commonly carry.
type Date struct {
	t time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	time.RFC3339,
}

// ParseDate parses a date cell. Empty input yields a zero Date without error.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, true
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return Date{t: t}, true
		}
	}
	return Date{}, false
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }

// String renders the date as 2006-01-02, or "" for the zero Date.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.t.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.t = time.Time{}
		return nil
	}
	parsed, ok := ParseDate(s)
	if !ok {
		return fmt.Errorf("parse date %q", s)
	}
	d.t = parsed.t
	return nil
}
