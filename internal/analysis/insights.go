package analysis

import (
	"fmt"

	"github.com/rwelens/rwelens-cli/internal/study"
)

// Insights derives the headline findings from the analyzer suite. Each
// sentence is emitted only when the data supports it.
func Insights(ds *study.Dataset) []string {
	var insights []string

	effectiveness := TreatmentEffectiveness(ds)
	var mounjaroRate, lifestyleRate float64
	var haveMounjaro, haveLifestyle bool
	for _, e := range effectiveness {
		switch e.Intervention {
		case InterventionMounjaro:
			mounjaroRate = e.SignificantWeightLossRate
			haveMounjaro = true
		case InterventionLifestyle:
			lifestyleRate = e.SignificantWeightLossRate
			haveLifestyle = true
		}
	}
	if haveMounjaro && haveLifestyle && mounjaroRate > lifestyleRate {
		insights = append(insights, fmt.Sprintf(
			"Mounjaro shows %.1f%% higher significant weight loss rate compared to lifestyle intervention alone.",
			mounjaroRate-lifestyleRate))
	}

	highAdh := ds.Subset(func(p *study.Patient) bool { return p.AdherenceRate != nil && *p.AdherenceRate > 0.8 })
	lowAdh := ds.Subset(func(p *study.Patient) bool { return p.AdherenceRate != nil && *p.AdherenceRate <= 0.8 })
	if len(highAdh) > 0 && len(lowAdh) > 0 {
		insights = append(insights, fmt.Sprintf(
			"Patients with high adherence (>80%%) show %.1f%% higher success rate.",
			successRate(highAdh)-successRate(lowAdh)))
	}

	demographics := Demographics(ds)
	if len(demographics.ByAgeGroup) > 0 {
		best := demographics.ByAgeGroup[0]
		for _, g := range demographics.ByAgeGroup[1:] {
			if g.SuccessRate > best.SuccessRate {
				best = g
			}
		}
		insights = append(insights, fmt.Sprintf(
			"Age group %s shows the highest success rate at %v%%.", best.AgeGroup, best.SuccessRate))
	}

	comorbidity := ComorbidityImpact(ds)
	if len(comorbidity.ByCount) > 1 {
		var none, multiple *ComorbidityCountGroup
		for i := range comorbidity.ByCount {
			g := &comorbidity.ByCount[i]
			switch g.Count {
			case 0:
				none = g
			case 2:
				if multiple == nil {
					multiple = g
				}
			case 3:
				if multiple == nil {
					multiple = g
				}
			}
		}
		if none != nil && multiple != nil {
			insights = append(insights, fmt.Sprintf(
				"Patients with no comorbidities have %.1f%% higher success rate than those with multiple conditions.",
				none.SuccessRate-multiple.SuccessRate))
		}
	}

	if len(demographics.ByCountry) > 0 {
		best := demographics.ByCountry[0]
		for _, c := range demographics.ByCountry[1:] {
			if c.SuccessRate > best.SuccessRate {
				best = c
			}
		}
		insights = append(insights, fmt.Sprintf(
			"%s shows the highest treatment success rate at %v%%.", best.Country, best.SuccessRate))
	}

	total := len(ds.Patients)
	if total > 0 {
		ae := len(ds.Subset(func(p *study.Patient) bool { return p.AdverseEvent != "" && p.AdverseEvent != "None" }))
		insights = append(insights, fmt.Sprintf(
			"Overall adverse event rate is %.1f%% (%d out of %d patients).",
			float64(ae)/float64(total)*100, ae, total))
	}

	return insights
}
