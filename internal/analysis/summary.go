package analysis

import "github.com/rwelens/rwelens-cli/internal/study"

// DataSummary bundles the whole analyzer suite for the chat assistant and
// the HTML report.
type DataSummary struct {
	BasicStats             *BasicStats           `json:"basic_stats"`
	TreatmentEffectiveness []InterventionEffect  `json:"treatment_effectiveness"`
	Demographics           *DemographicsAnalysis `json:"demographics_analysis"`
	Comorbidities          *ComorbidityAnalysis  `json:"comorbidities_analysis"`
	StatisticalTests       *TestResults          `json:"statistical_tests"`
	Insights               []string              `json:"insights"`
}

// Summary runs every analyzer over the dataset.
func Summary(ds *study.Dataset) *DataSummary {
	return &DataSummary{
		BasicStats:             BasicStatistics(ds),
		TreatmentEffectiveness: TreatmentEffectiveness(ds),
		Demographics:           Demographics(ds),
		Comorbidities:          ComorbidityImpact(ds),
		StatisticalTests:       HypothesisTests(ds),
		Insights:               Insights(ds),
	}
}
