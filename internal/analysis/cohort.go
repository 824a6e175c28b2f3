package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/rwelens/rwelens-cli/internal/study"
)

// Canonical intervention labels in the study schema.
const (
	InterventionMounjaro  = "Mounjaro"
	InterventionLifestyle = "LifestyleOnly"
)

// commonComorbidities is the fixed condition list the per-type impact
// analysis covers. Matching is substring-based on the raw field.
var commonComorbidities = []string{
	"Type 2 Diabetes", "Hypertension", "Sleep Apnea",
	"Cardiac Disease", "High Cholesterol", "Obesity", "PCOS",
}

// NumericDescription summarizes one numeric column the way df.describe()
// does: count plus the five-number summary with interpolated quantiles.
type NumericDescription struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"25%"`
	Median float64 `json:"50%"`
	Q75    float64 `json:"75%"`
	Max    float64 `json:"max"`
}

// Describe computes descriptive statistics for the given numeric columns,
// defaulting to the full numeric schema.
func Describe(ds *study.Dataset, cols ...string) []NumericDescription {
	if len(cols) == 0 {
		cols = study.NumericColumns()
	}
	out := make([]NumericDescription, 0, len(cols))
	for _, col := range cols {
		vals := ds.Numeric(col)
		clean := dropNaN(vals)
		d := NumericDescription{Column: col, Count: len(clean)}
		if len(clean) > 0 {
			d.Mean = nanMean(clean)
			d.Std = nanStd(clean)
			d.Min = nanMin(clean)
			d.Q25 = nanQuantile(clean, 0.25)
			d.Median = nanQuantile(clean, 0.5)
			d.Q75 = nanQuantile(clean, 0.75)
			d.Max = nanMax(clean)
		}
		out = append(out, d)
	}
	return out
}

// BasicStats bundles dataset-level descriptive statistics.
type BasicStats struct {
	Overview     DatasetOverview   `json:"dataset_overview"`
	Demographics DemographicStats  `json:"demographics"`
	Clinical     ClinicalMeasures  `json:"clinical_measures"`
	Outcomes     OutcomeStatistics `json:"outcomes"`
}

type DatasetOverview struct {
	TotalPatients     int       `json:"total_patients"`
	UniqueCountries   int       `json:"unique_countries"`
	Countries         []string  `json:"countries"`
	InterventionTypes []string  `json:"intervention_types"`
	DateRange         DateRange `json:"date_range"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AgeStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type DemographicStats struct {
	AgeStats             AgeStats        `json:"age_stats"`
	GenderDistribution   []CategoryCount `json:"gender_distribution"`
	CountryDistribution  []CategoryCount `json:"country_distribution"`
	AgeGroupDistribution []CategoryCount `json:"age_group_distribution"`
}

type MeasureStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}

type ClinicalMeasures struct {
	BaselineBMI   MeasureStats `json:"baseline_bmi"`
	FollowupBMI   MeasureStats `json:"followup_bmi"`
	WeightChange  MeasureStats `json:"weight_change"`
	AdherenceRate MeasureStats `json:"adherence_rate"`
}

type AdverseEventStats struct {
	TotalWithAE int             `json:"total_with_ae"`
	Types       []CategoryCount `json:"ae_types"`
}

type HospitalizationStats struct {
	Mean         float64         `json:"mean"`
	Distribution []CategoryCount `json:"distribution"`
}

type OutcomeStatistics struct {
	OutcomeDistribution      []CategoryCount      `json:"outcome_distribution"`
	InterventionDistribution []CategoryCount      `json:"intervention_distribution"`
	AdverseEvents            AdverseEventStats    `json:"adverse_events"`
	Hospitalizations         HospitalizationStats `json:"hospitalizations"`
}

// BasicStatistics computes the dataset overview, demographics, clinical
// measure summaries, and outcome distributions.
func BasicStatistics(ds *study.Dataset) *BasicStats {
	countries := ds.Countries()
	var minStart, maxEnd study.Date
	for _, p := range ds.Patients {
		if !p.StartDate.IsZero() && (minStart.IsZero() || p.StartDate.Before(minStart)) {
			minStart = p.StartDate
		}
		if !p.EndDate.IsZero() && p.EndDate.After(maxEnd) {
			maxEnd = p.EndDate
		}
	}
	age := ds.Numeric("age")
	measure := func(col string, r func(float64) float64) MeasureStats {
		vals := ds.Numeric(col)
		return MeasureStats{Mean: r(nanMean(vals)), Median: r(nanMedian(vals)), Std: r(nanStd(vals))}
	}
	withAE := ds.Subset(func(p *study.Patient) bool { return p.AdverseEvent != "" && p.AdverseEvent != "None" })
	aeTypes := distribution(withAE, func(p *study.Patient) string { return p.AdverseEvent })
	hosp := distribution(ds.Patients, func(p *study.Patient) string { return fmt.Sprintf("%d", p.Hospitalizations) })

	return &BasicStats{
		Overview: DatasetOverview{
			TotalPatients:     len(ds.Patients),
			UniqueCountries:   len(countries),
			Countries:         countries,
			InterventionTypes: ds.Interventions(),
			DateRange:         DateRange{Start: minStart.String(), End: maxEnd.String()},
		},
		Demographics: DemographicStats{
			AgeStats: AgeStats{
				Mean:   round1(nanMean(age)),
				Median: nanMedian(age),
				Std:    round1(nanStd(age)),
				Min:    nanMin(age),
				Max:    nanMax(age),
			},
			GenderDistribution:   distribution(ds.Patients, func(p *study.Patient) string { return p.Sex }),
			CountryDistribution:  distribution(ds.Patients, func(p *study.Patient) string { return p.Country }),
			AgeGroupDistribution: distribution(ds.Patients, func(p *study.Patient) string { return p.AgeGroup }),
		},
		Clinical: ClinicalMeasures{
			BaselineBMI:   measure("baseline_bmi", round1),
			FollowupBMI:   measure("followup_bmi", round1),
			WeightChange:  measure("weight_change_kg", round1),
			AdherenceRate: measure("adherence_rate", round2),
		},
		Outcomes: OutcomeStatistics{
			OutcomeDistribution:      distribution(ds.Patients, func(p *study.Patient) string { return p.Outcome }),
			InterventionDistribution: distribution(ds.Patients, func(p *study.Patient) string { return p.Intervention }),
			AdverseEvents:            AdverseEventStats{TotalWithAE: len(withAE), Types: aeTypes},
			Hospitalizations: HospitalizationStats{
				Mean:         round1(nanMean(ds.Numeric("hospitalizations"))),
				Distribution: hosp,
			},
		},
	}
}

func distribution(patients []*study.Patient, key func(*study.Patient) string) []CategoryCount {
	keys, counts := study.CountBy(patients, key)
	out := make([]CategoryCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, CategoryCount{Value: k, Count: counts[k]})
	}
	return out
}

// InterventionEffect captures effectiveness metrics for one intervention arm.
type InterventionEffect struct {
	Intervention              string  `json:"intervention"`
	NPatients                 int     `json:"n_patients"`
	MeanWeightLoss            float64 `json:"mean_weight_loss"`
	MeanBMIChange             float64 `json:"mean_bmi_change"`
	SignificantWeightLossRate float64 `json:"significant_weight_loss_rate"`
	AnyWeightLossRate         float64 `json:"any_weight_loss_rate"`
	MeanAdherence             float64 `json:"mean_adherence"`
	AdverseEventRate          float64 `json:"adverse_event_rate"`
	HospitalizationRate       float64 `json:"hospitalization_rate"`
}

// TreatmentEffectiveness compares outcomes per intervention arm, in
// first-seen order.
func TreatmentEffectiveness(ds *study.Dataset) []InterventionEffect {
	var out []InterventionEffect
	for _, iv := range ds.Interventions() {
		subset := ds.Subset(func(p *study.Patient) bool { return p.Intervention == iv })
		out = append(out, InterventionEffect{
			Intervention:              iv,
			NPatients:                 len(subset),
			MeanWeightLoss:            round2(meanOver(subset, "weight_change_kg")),
			MeanBMIChange:             round2(meanOver(subset, "bmi_change")),
			SignificantWeightLossRate: round1(rate(subset, func(p *study.Patient) bool { return p.SignificantWeightLoss })),
			AnyWeightLossRate:         round1(rate(subset, func(p *study.Patient) bool { return p.AnyWeightLoss })),
			MeanAdherence:             round2(meanOver(subset, "adherence_rate")),
			AdverseEventRate:          round1(rate(subset, func(p *study.Patient) bool { return p.AdverseEvent != "" && p.AdverseEvent != "None" })),
			HospitalizationRate:       round1(rate(subset, func(p *study.Patient) bool { return p.Hospitalizations > 0 })),
		})
	}
	return out
}

func meanOver(patients []*study.Patient, col string) float64 {
	sub := study.Dataset{Patients: patients}
	return nanMean(sub.Numeric(col))
}

// rate is the share of patients matching the predicate, as a percentage.
func rate(patients []*study.Patient, pred func(*study.Patient) bool) float64 {
	if len(patients) == 0 {
		return math.NaN()
	}
	n := 0
	for _, p := range patients {
		if pred(p) {
			n++
		}
	}
	return float64(n) / float64(len(patients)) * 100
}

func successRate(patients []*study.Patient) float64 {
	return rate(patients, func(p *study.Patient) bool { return p.AnyWeightLoss })
}

// CountryOutcome, AgeGroupOutcome, and SexOutcome slice outcomes by one
// demographic factor each.
type CountryOutcome struct {
	Country        string  `json:"country"`
	NPatients      int     `json:"n_patients"`
	MeanWeightLoss float64 `json:"mean_weight_loss"`
	SuccessRate    float64 `json:"success_rate"`
	MounjaroUsage  float64 `json:"mounjaro_usage"`
}

type AgeGroupOutcome struct {
	AgeGroup       string  `json:"age_group"`
	NPatients      int     `json:"n_patients"`
	MeanWeightLoss float64 `json:"mean_weight_loss"`
	SuccessRate    float64 `json:"success_rate"`
	MeanAdherence  float64 `json:"mean_adherence"`
}

type SexOutcome struct {
	Sex             string  `json:"sex"`
	NPatients       int     `json:"n_patients"`
	MeanWeightLoss  float64 `json:"mean_weight_loss"`
	SuccessRate     float64 `json:"success_rate"`
	MeanBaselineBMI float64 `json:"mean_baseline_bmi"`
}

type DemographicsAnalysis struct {
	ByCountry  []CountryOutcome  `json:"by_country"`
	ByAgeGroup []AgeGroupOutcome `json:"by_age_group"`
	ByGender   []SexOutcome      `json:"by_gender"`
}

// Demographics analyzes outcomes by country, age group, and sex.
func Demographics(ds *study.Dataset) *DemographicsAnalysis {
	out := &DemographicsAnalysis{}
	for _, country := range ds.Countries() {
		subset := ds.Subset(func(p *study.Patient) bool { return p.Country == country })
		out.ByCountry = append(out.ByCountry, CountryOutcome{
			Country:        country,
			NPatients:      len(subset),
			MeanWeightLoss: round2(meanOver(subset, "weight_change_kg")),
			SuccessRate:    round1(successRate(subset)),
			MounjaroUsage:  round1(rate(subset, func(p *study.Patient) bool { return p.Intervention == InterventionMounjaro })),
		})
	}
	seen := map[string]bool{}
	for _, p := range ds.Patients {
		g := p.AgeGroup
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		subset := ds.Subset(func(q *study.Patient) bool { return q.AgeGroup == g })
		out.ByAgeGroup = append(out.ByAgeGroup, AgeGroupOutcome{
			AgeGroup:       g,
			NPatients:      len(subset),
			MeanWeightLoss: round2(meanOver(subset, "weight_change_kg")),
			SuccessRate:    round1(successRate(subset)),
			MeanAdherence:  round2(meanOver(subset, "adherence_rate")),
		})
	}
	for _, sex := range firstSeenBy(ds.Patients, func(p *study.Patient) string { return p.Sex }) {
		subset := ds.Subset(func(p *study.Patient) bool { return p.Sex == sex })
		out.ByGender = append(out.ByGender, SexOutcome{
			Sex:             sex,
			NPatients:       len(subset),
			MeanWeightLoss:  round2(meanOver(subset, "weight_change_kg")),
			SuccessRate:     round1(successRate(subset)),
			MeanBaselineBMI: round1(meanOver(subset, "baseline_bmi")),
		})
	}
	return out
}

func firstSeenBy(patients []*study.Patient, key func(*study.Patient) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range patients {
		k := key(p)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// CohortOutcome is the shared n/weight/success triple for a patient subset.
type CohortOutcome struct {
	NPatients      int     `json:"n_patients"`
	MeanWeightLoss float64 `json:"mean_weight_loss"`
	SuccessRate    float64 `json:"success_rate"`
}

type ComorbidityCountGroup struct {
	Count          int     `json:"comorbidity_count"`
	NPatients      int     `json:"n_patients"`
	MeanWeightLoss float64 `json:"mean_weight_loss"`
	SuccessRate    float64 `json:"success_rate"`
	MeanAdherence  float64 `json:"mean_adherence"`
}

type ComorbidityTypeImpact struct {
	Condition string        `json:"condition"`
	With      CohortOutcome `json:"with_condition"`
	Without   CohortOutcome `json:"without_condition"`
}

type ComorbidityAnalysis struct {
	ByCount []ComorbidityCountGroup `json:"by_count"`
	ByType  []ComorbidityTypeImpact `json:"by_type"`
}

// ComorbidityImpact analyzes outcomes by comorbidity burden and by the
// specific common conditions.
func ComorbidityImpact(ds *study.Dataset) *ComorbidityAnalysis {
	out := &ComorbidityAnalysis{}
	counts := map[int]bool{}
	for _, p := range ds.Patients {
		counts[p.ComorbidityCount] = true
	}
	ordered := make([]int, 0, len(counts))
	for c := range counts {
		ordered = append(ordered, c)
	}
	sort.Ints(ordered)
	for _, c := range ordered {
		subset := ds.Subset(func(p *study.Patient) bool { return p.ComorbidityCount == c })
		out.ByCount = append(out.ByCount, ComorbidityCountGroup{
			Count:          c,
			NPatients:      len(subset),
			MeanWeightLoss: round2(meanOver(subset, "weight_change_kg")),
			SuccessRate:    round1(successRate(subset)),
			MeanAdherence:  round2(meanOver(subset, "adherence_rate")),
		})
	}
	for _, condition := range commonComorbidities {
		with := ds.Subset(func(p *study.Patient) bool { return p.HasComorbidity(condition) })
		without := ds.Subset(func(p *study.Patient) bool { return !p.HasComorbidity(condition) })
		if len(with) == 0 || len(without) == 0 {
			continue
		}
		out.ByType = append(out.ByType, ComorbidityTypeImpact{
			Condition: condition,
			With: CohortOutcome{
				NPatients:      len(with),
				MeanWeightLoss: round2(meanOver(with, "weight_change_kg")),
				SuccessRate:    round1(successRate(with)),
			},
			Without: CohortOutcome{
				NPatients:      len(without),
				MeanWeightLoss: round2(meanOver(without, "weight_change_kg")),
				SuccessRate:    round1(successRate(without)),
			},
		})
	}
	return out
}
