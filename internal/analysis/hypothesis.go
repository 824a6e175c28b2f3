package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rwelens/rwelens-cli/internal/study"
)

const significanceLevel = 0.05

// TTestResult is a two-sample Student's t-test outcome.
type TTestResult struct {
	TestType       string  `json:"test_type"`
	TStatistic     float64 `json:"t_statistic"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	Interpretation string  `json:"interpretation"`
}

// CorrelationResult is a Pearson correlation with its two-sided p-value.
type CorrelationResult struct {
	TestType       string  `json:"test_type"`
	Coefficient    float64 `json:"correlation_coefficient"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	Interpretation string  `json:"interpretation"`
}

// ANOVAResult is a one-way ANOVA outcome.
type ANOVAResult struct {
	TestType       string  `json:"test_type"`
	FStatistic     float64 `json:"f_statistic"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	Interpretation string  `json:"interpretation"`
}

// TestResults bundles the study's three standing hypothesis tests. A test
// that cannot run on the data at hand is nil with a warning recorded.
type TestResults struct {
	MounjaroVsLifestyle        *TTestResult       `json:"mounjaro_vs_lifestyle,omitempty"`
	AdherenceWeightCorrelation *CorrelationResult `json:"adherence_weight_correlation,omitempty"`
	CountryWeightLossANOVA     *ANOVAResult       `json:"country_weight_loss_anova,omitempty"`
	Warnings                   []string           `json:"warnings,omitempty"`
}

// HypothesisTests runs the standard test battery. Individual degenerate
// tests become warnings rather than failing the whole battery.
func HypothesisTests(ds *study.Dataset) *TestResults {
	out := &TestResults{}
	if tt, err := TTestWeightByIntervention(ds); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	} else {
		out.MounjaroVsLifestyle = tt
	}
	if corr, err := AdherenceWeightCorrelation(ds); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	} else {
		out.AdherenceWeightCorrelation = corr
	}
	if av, err := CountryWeightLossANOVA(ds); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	} else {
		out.CountryWeightLossANOVA = av
	}
	return out
}

// TTestWeightByIntervention compares weight change between the Mounjaro and
// lifestyle-only arms with a pooled-variance two-sample t-test.
func TTestWeightByIntervention(ds *study.Dataset) (*TTestResult, error) {
	a := armWeights(ds, InterventionMounjaro)
	b := armWeights(ds, InterventionLifestyle)
	if len(a) < 2 || len(b) < 2 {
		return nil, fmt.Errorf("t-test needs at least 2 weight observations per arm (Mounjaro %d, LifestyleOnly %d)", len(a), len(b))
	}
	t, p, err := pooledTTest(a, b)
	if err != nil {
		return nil, err
	}
	res := &TTestResult{
		TestType:    "Independent t-test",
		TStatistic:  round3(t),
		PValue:      round6(p),
		Significant: p < significanceLevel,
	}
	if res.Significant {
		res.Interpretation = "Mounjaro shows significantly different weight loss compared to lifestyle intervention"
	} else {
		res.Interpretation = "No significant difference between interventions"
	}
	return res, nil
}

func armWeights(ds *study.Dataset, intervention string) []float64 {
	var out []float64
	for _, p := range ds.Patients {
		if p.Intervention != intervention || p.WeightChangeKg == nil {
			continue
		}
		out = append(out, *p.WeightChangeKg)
	}
	return out
}

func pooledTTest(a, b []float64) (t, p float64, err error) {
	n1 := float64(len(a))
	n2 := float64(len(b))
	m1 := nanMean(a)
	m2 := nanMean(b)
	s1 := nanStd(a)
	s2 := nanStd(b)
	dof := n1 + n2 - 2
	pooled := ((n1-1)*s1*s1 + (n2-1)*s2*s2) / dof
	if pooled == 0 {
		return 0, 0, fmt.Errorf("t-test undefined: zero pooled variance")
	}
	t = (m1 - m2) / math.Sqrt(pooled*(1/n1+1/n2))
	p = twoSidedStudentP(t, dof)
	return t, p, nil
}

// twoSidedStudentP is the two-sided tail probability of Student's t.
func twoSidedStudentP(t, dof float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	return 2 * dist.CDF(-math.Abs(t))
}

// AdherenceWeightCorrelation measures the Pearson relation between adherence
// and weight change, with the p-value from the t transform.
func AdherenceWeightCorrelation(ds *study.Dataset) (*CorrelationResult, error) {
	r, n, ok := pearson(ds.Numeric("adherence_rate"), ds.Numeric("weight_change_kg"))
	if !ok || n < 3 {
		return nil, fmt.Errorf("correlation needs at least 3 complete adherence/weight pairs with variance (have %d)", n)
	}
	var p float64
	if r*r >= 1 {
		p = 0
	} else {
		t := r * math.Sqrt(float64(n-2)/(1-r*r))
		p = twoSidedStudentP(t, float64(n-2))
	}
	strength := "Weak"
	if math.Abs(r) > 0.7 {
		strength = "Strong"
	} else if math.Abs(r) > 0.3 {
		strength = "Moderate"
	}
	return &CorrelationResult{
		TestType:       "Pearson correlation",
		Coefficient:    round3(r),
		PValue:         round6(p),
		Significant:    p < significanceLevel,
		Interpretation: fmt.Sprintf("%s correlation between adherence and weight loss", strength),
	}, nil
}

// CountryWeightLossANOVA runs a one-way ANOVA of weight change across
// countries.
func CountryWeightLossANOVA(ds *study.Dataset) (*ANOVAResult, error) {
	var groups [][]float64
	for _, country := range ds.Countries() {
		var g []float64
		for _, p := range ds.Patients {
			if p.Country == country && p.WeightChangeKg != nil {
				g = append(g, *p.WeightChangeKg)
			}
		}
		if len(g) > 0 {
			groups = append(groups, g)
		}
	}
	f, p, err := oneWayANOVA(groups)
	if err != nil {
		return nil, err
	}
	res := &ANOVAResult{
		TestType:    "One-way ANOVA",
		FStatistic:  round3(f),
		PValue:      round6(p),
		Significant: p < significanceLevel,
	}
	if res.Significant {
		res.Interpretation = "Significant differences in weight loss across countries"
	} else {
		res.Interpretation = "No significant differences across countries"
	}
	return res, nil
}

func oneWayANOVA(groups [][]float64) (f, p float64, err error) {
	k := len(groups)
	if k < 2 {
		return 0, 0, fmt.Errorf("ANOVA needs at least 2 groups (have %d)", k)
	}
	var total float64
	var n int
	for _, g := range groups {
		for _, v := range g {
			total += v
			n++
		}
	}
	if n <= k {
		return 0, 0, fmt.Errorf("ANOVA needs more observations (%d) than groups (%d)", n, k)
	}
	grand := total / float64(n)
	var ssb, ssw float64
	for _, g := range groups {
		gm := nanMean(g)
		ssb += float64(len(g)) * (gm - grand) * (gm - grand)
		for _, v := range g {
			ssw += (v - gm) * (v - gm)
		}
	}
	if ssw == 0 {
		return 0, 0, fmt.Errorf("ANOVA undefined: zero within-group variance")
	}
	d1 := float64(k - 1)
	d2 := float64(n - k)
	f = (ssb / d1) / (ssw / d2)
	dist := distuv.F{D1: d1, D2: d2}
	p = dist.Survival(f)
	return f, p, nil
}
