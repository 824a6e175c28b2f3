package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/study"
)

// cohortDataset is six patients with hand-checkable statistics: three on
// Mounjaro, three lifestyle-only, across Germany and France.
func cohortDataset(t *testing.T) *study.Dataset {
	t.Helper()
	tab := &ingest.Table{
		Header: []string{
			"patient_id", "age", "sex", "country", "intervention",
			"start_date", "end_date", "baseline_bmi", "followup_bmi",
			"weight_change_kg", "adherence_rate", "outcome",
			"adverse_event", "hospitalizations", "comorbidities",
		},
		Rows: [][]string{
			{"P001", "52", "Female", "Germany", "Mounjaro", "2023-01-01", "2023-07-01", "36", "31", "-10", "0.9", "Significant Weight Loss", "Nausea", "0", "Type 2 Diabetes; Hypertension"},
			{"P002", "45", "Male", "Germany", "Mounjaro", "2023-01-01", "2023-06-01", "33", "30", "-8", "0.85", "Moderate Weight Loss", "None", "0", "Hypertension"},
			{"P003", "38", "Female", "France", "Mounjaro", "2023-01-01", "2023-08-01", "35", "29", "-12", "0.95", "Significant Weight Loss", "Nausea", "1", "None"},
			{"P004", "50", "Male", "France", "LifestyleOnly", "2023-01-01", "2023-07-01", "32", "31.5", "-2", "0.6", "No Change", "None", "0", "Type 2 Diabetes"},
			{"P005", "60", "Female", "Germany", "LifestyleOnly", "2023-01-01", "2023-06-01", "31", "30.5", "-3", "0.7", "Moderate Weight Loss", "None", "2", "None"},
			{"P006", "29", "Male", "France", "LifestyleOnly", "2023-01-01", "2023-05-01", "29", "29", "-1", "0.5", "No Change", "None", "0", "Hypertension; Sleep Apnea"},
		},
	}
	ds, err := study.FromTable("cohort", tab)
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	return ds
}

func TestDescribeMatchesInterpolatedQuantiles(t *testing.T) {
	ds := cohortDataset(t)
	descs := Describe(ds, "age")
	if len(descs) != 1 {
		t.Fatalf("expected 1 description, got %d", len(descs))
	}
	d := descs[0]
	if d.Count != 6 {
		t.Fatalf("count = %d", d.Count)
	}
	if !almostEqual(d.Mean, 274.0/6, 1e-9) {
		t.Fatalf("mean = %f", d.Mean)
	}
	if !almostEqual(d.Q25, 39.75, 1e-9) || !almostEqual(d.Median, 47.5, 1e-9) || !almostEqual(d.Q75, 51.5, 1e-9) {
		t.Fatalf("quantiles = %f %f %f", d.Q25, d.Median, d.Q75)
	}
	if d.Min != 29 || d.Max != 60 {
		t.Fatalf("min/max = %f %f", d.Min, d.Max)
	}
}

func TestBasicStatistics(t *testing.T) {
	ds := cohortDataset(t)
	bs := BasicStatistics(ds)

	if bs.Overview.TotalPatients != 6 || bs.Overview.UniqueCountries != 2 {
		t.Fatalf("overview = %+v", bs.Overview)
	}
	if !equalStrings(bs.Overview.Countries, []string{"Germany", "France"}) {
		t.Fatalf("countries = %v", bs.Overview.Countries)
	}
	if !equalStrings(bs.Overview.InterventionTypes, []string{"Mounjaro", "LifestyleOnly"}) {
		t.Fatalf("interventions = %v", bs.Overview.InterventionTypes)
	}
	if bs.Overview.DateRange.Start != "2023-01-01" || bs.Overview.DateRange.End != "2023-08-01" {
		t.Fatalf("date range = %+v", bs.Overview.DateRange)
	}

	age := bs.Demographics.AgeStats
	if age.Mean != 45.7 || age.Median != 47.5 || age.Min != 29 || age.Max != 60 {
		t.Fatalf("age stats = %+v", age)
	}
	if bs.Clinical.WeightChange.Mean != -6.0 {
		t.Fatalf("weight change mean = %f", bs.Clinical.WeightChange.Mean)
	}
	if bs.Clinical.AdherenceRate.Mean != 0.75 {
		t.Fatalf("adherence mean = %f", bs.Clinical.AdherenceRate.Mean)
	}

	if bs.Outcomes.AdverseEvents.TotalWithAE != 2 {
		t.Fatalf("total with AE = %d", bs.Outcomes.AdverseEvents.TotalWithAE)
	}
	if len(bs.Outcomes.AdverseEvents.Types) != 1 || bs.Outcomes.AdverseEvents.Types[0].Value != "Nausea" || bs.Outcomes.AdverseEvents.Types[0].Count != 2 {
		t.Fatalf("AE types = %v", bs.Outcomes.AdverseEvents.Types)
	}
	if len(bs.Demographics.GenderDistribution) != 2 || bs.Demographics.GenderDistribution[0].Count != 3 {
		t.Fatalf("gender distribution = %v", bs.Demographics.GenderDistribution)
	}
}

func TestTreatmentEffectiveness(t *testing.T) {
	ds := cohortDataset(t)
	eff := TreatmentEffectiveness(ds)
	if len(eff) != 2 {
		t.Fatalf("expected 2 arms, got %d", len(eff))
	}
	m := eff[0]
	if m.Intervention != "Mounjaro" || m.NPatients != 3 {
		t.Fatalf("first arm = %+v", m)
	}
	if m.MeanWeightLoss != -10.0 {
		t.Fatalf("mounjaro mean weight loss = %f", m.MeanWeightLoss)
	}
	if m.MeanBMIChange != -4.67 {
		t.Fatalf("mounjaro mean bmi change = %f", m.MeanBMIChange)
	}
	if m.SignificantWeightLossRate != 66.7 || m.AnyWeightLossRate != 100.0 {
		t.Fatalf("mounjaro rates = %+v", m)
	}
	if m.AdverseEventRate != 66.7 || m.HospitalizationRate != 33.3 {
		t.Fatalf("mounjaro safety = %+v", m)
	}

	l := eff[1]
	if l.Intervention != "LifestyleOnly" || l.MeanWeightLoss != -2.0 {
		t.Fatalf("lifestyle arm = %+v", l)
	}
	if l.SignificantWeightLossRate != 0.0 || l.AnyWeightLossRate != 33.3 {
		t.Fatalf("lifestyle rates = %+v", l)
	}
}

func TestDemographicsAnalysis(t *testing.T) {
	ds := cohortDataset(t)
	d := Demographics(ds)

	if len(d.ByCountry) != 2 {
		t.Fatalf("countries = %v", d.ByCountry)
	}
	de := d.ByCountry[0]
	if de.Country != "Germany" || de.NPatients != 3 || de.MeanWeightLoss != -7.0 {
		t.Fatalf("germany = %+v", de)
	}
	if de.SuccessRate != 100.0 || de.MounjaroUsage != 66.7 {
		t.Fatalf("germany rates = %+v", de)
	}
	fr := d.ByCountry[1]
	if fr.SuccessRate != 33.3 {
		t.Fatalf("france = %+v", fr)
	}

	if len(d.ByAgeGroup) != 4 || d.ByAgeGroup[0].AgeGroup != "50-59" {
		t.Fatalf("age groups = %+v", d.ByAgeGroup)
	}
	if d.ByAgeGroup[0].SuccessRate != 100.0 {
		t.Fatalf("50-59 success = %+v", d.ByAgeGroup[0])
	}

	if len(d.ByGender) != 2 || d.ByGender[0].Sex != "Female" {
		t.Fatalf("genders = %+v", d.ByGender)
	}
	if d.ByGender[0].SuccessRate != 100.0 {
		t.Fatalf("female success = %+v", d.ByGender[0])
	}
}

func TestComorbidityImpact(t *testing.T) {
	ds := cohortDataset(t)
	c := ComorbidityImpact(ds)

	if len(c.ByCount) != 3 {
		t.Fatalf("by count = %+v", c.ByCount)
	}
	if c.ByCount[0].Count != 0 || c.ByCount[0].SuccessRate != 100.0 {
		t.Fatalf("zero comorbidities = %+v", c.ByCount[0])
	}
	if c.ByCount[2].Count != 2 || c.ByCount[2].SuccessRate != 50.0 {
		t.Fatalf("two comorbidities = %+v", c.ByCount[2])
	}

	var hyper *ComorbidityTypeImpact
	for i := range c.ByType {
		if c.ByType[i].Condition == "Hypertension" {
			hyper = &c.ByType[i]
		}
		if c.ByType[i].Condition == "PCOS" {
			t.Fatal("PCOS has no carriers and must be skipped")
		}
	}
	if hyper == nil {
		t.Fatal("hypertension impact missing")
	}
	if hyper.With.NPatients != 3 || hyper.Without.NPatients != 3 {
		t.Fatalf("hypertension split = %+v", hyper)
	}
}

func TestHypothesisTests(t *testing.T) {
	ds := cohortDataset(t)
	res := HypothesisTests(ds)
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}

	tt := res.MounjaroVsLifestyle
	if tt == nil {
		t.Fatal("t-test missing")
	}
	// t = -8 / sqrt(2.5 * 2/3) with 4 dof
	if tt.TStatistic != -6.197 {
		t.Fatalf("t statistic = %f", tt.TStatistic)
	}
	if !tt.Significant || tt.PValue <= 0 || tt.PValue >= 0.05 {
		t.Fatalf("t-test p = %f", tt.PValue)
	}
	if !strings.Contains(tt.Interpretation, "significantly different") {
		t.Fatalf("interpretation = %q", tt.Interpretation)
	}

	corr := res.AdherenceWeightCorrelation
	if corr == nil {
		t.Fatal("correlation missing")
	}
	if corr.Coefficient != -0.971 {
		t.Fatalf("r = %f", corr.Coefficient)
	}
	if !corr.Significant || !strings.Contains(corr.Interpretation, "Strong") {
		t.Fatalf("correlation = %+v", corr)
	}

	av := res.CountryWeightLossANOVA
	if av == nil {
		t.Fatal("ANOVA missing")
	}
	// SSB=6 over 1 dof, SSW=100 over 4 dof
	if av.FStatistic != 0.24 {
		t.Fatalf("F = %f", av.FStatistic)
	}
	if av.Significant {
		t.Fatalf("ANOVA should not be significant, p = %f", av.PValue)
	}
}

func TestHypothesisTestsDegenerateArms(t *testing.T) {
	tab := &ingest.Table{
		Header: []string{"patient_id", "age", "intervention", "outcome", "weight_change_kg", "adherence_rate", "country"},
		Rows: [][]string{
			{"P001", "40", "Mounjaro", "No Change", "-5", "0.8", "Germany"},
			{"P002", "41", "Mounjaro", "No Change", "-6", "0.7", "Germany"},
		},
	}
	ds, err := study.FromTable("tiny", tab)
	if err != nil {
		t.Fatal(err)
	}
	res := HypothesisTests(ds)
	if res.MounjaroVsLifestyle != nil || res.CountryWeightLossANOVA != nil {
		t.Fatalf("degenerate tests should be nil: %+v", res)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected warnings for skipped tests")
	}
}

func TestClusterPatientsDeterministic(t *testing.T) {
	ds := cohortDataset(t)
	a, err := ClusterPatients(ds, 2)
	if err != nil {
		t.Fatalf("ClusterPatients: %v", err)
	}
	b, err := ClusterPatients(ds, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 2 {
		t.Fatalf("profiles = %d", len(a))
	}
	var total int
	for i, p := range a {
		total += p.NPatients
		if p.NPatients != b[i].NPatients || p.Outcomes != b[i].Outcomes {
			t.Fatalf("clustering not deterministic: %+v vs %+v", p, b[i])
		}
	}
	if total != 6 {
		t.Fatalf("assigned %d of 6 patients", total)
	}

	if _, err := ClusterPatients(ds, 10); err == nil {
		t.Fatal("expected error for k > n")
	}
}

func TestInsights(t *testing.T) {
	ds := cohortDataset(t)
	insights := Insights(ds)
	if len(insights) != 6 {
		t.Fatalf("expected 6 insights, got %d: %v", len(insights), insights)
	}
	if !strings.Contains(insights[0], "Mounjaro shows 66.7% higher significant weight loss rate") {
		t.Fatalf("insight 0 = %q", insights[0])
	}
	if !strings.Contains(insights[1], "66.7% higher success rate") {
		t.Fatalf("insight 1 = %q", insights[1])
	}
	if !strings.Contains(insights[2], "50-59") {
		t.Fatalf("insight 2 = %q", insights[2])
	}
	if !strings.Contains(insights[3], "50.0% higher success rate") {
		t.Fatalf("insight 3 = %q", insights[3])
	}
	if !strings.Contains(insights[4], "Germany") {
		t.Fatalf("insight 4 = %q", insights[4])
	}
	if !strings.Contains(insights[5], "33.3% (2 out of 6 patients)") {
		t.Fatalf("insight 5 = %q", insights[5])
	}
}

func TestSummaryBundlesEverything(t *testing.T) {
	ds := cohortDataset(t)
	s := Summary(ds)
	if s.BasicStats == nil || s.Demographics == nil || s.Comorbidities == nil || s.StatisticalTests == nil {
		t.Fatalf("summary incomplete: %+v", s)
	}
	if len(s.TreatmentEffectiveness) != 2 || len(s.Insights) != 6 {
		t.Fatalf("summary sizes wrong: %+v", s)
	}
}

func TestRateEmptySubsetIsNaN(t *testing.T) {
	if !math.IsNaN(rate(nil, func(*study.Patient) bool { return true })) {
		t.Fatal("rate of empty subset should be NaN")
	}
}
