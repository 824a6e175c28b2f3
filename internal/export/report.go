package export

import (
	"fmt"
	"html/template"
	"io"

	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/study"
)

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>RWE Lens Report: {{.Name}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1, h2 { color: #1a3c6e; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 6px 12px; text-align: left; }
th { background: #f0f4fa; }
.cards { display: flex; gap: 1em; flex-wrap: wrap; }
.card { border: 1px solid #ddd; border-radius: 6px; padding: 1em; min-width: 10em; }
.card .value { font-size: 1.6em; font-weight: bold; }
ul.insights li { margin: 0.4em 0; }
</style>
</head>
<body>
<h1>RWE Lens Analysis Report</h1>
<p>Dataset: <strong>{{.Name}}</strong></p>

<h2>Overview</h2>
<div class="cards">
<div class="card"><div class="value">{{.Overview.TotalPatients}}</div>Patients</div>
<div class="card"><div class="value">{{.Overview.UniqueCountries}}</div>Countries</div>
<div class="card"><div class="value">{{.Overview.DateRange.Start}}</div>Study start</div>
<div class="card"><div class="value">{{.Overview.DateRange.End}}</div>Study end</div>
</div>

<h2>Treatment Effectiveness</h2>
<table>
<tr><th>Intervention</th><th>N</th><th>Mean weight loss (kg)</th><th>Mean BMI change</th><th>Significant loss %</th><th>Any loss %</th><th>Mean adherence</th><th>AE %</th><th>Hospitalization %</th></tr>
{{range .Effectiveness}}<tr><td>{{.Intervention}}</td><td>{{.NPatients}}</td><td>{{.MeanWeightLoss}}</td><td>{{.MeanBMIChange}}</td><td>{{.SignificantWeightLossRate}}</td><td>{{.AnyWeightLossRate}}</td><td>{{.MeanAdherence}}</td><td>{{.AdverseEventRate}}</td><td>{{.HospitalizationRate}}</td></tr>
{{end}}</table>

<h2>Outcomes by Country</h2>
<table>
<tr><th>Country</th><th>N</th><th>Mean weight loss (kg)</th><th>Success %</th><th>Mounjaro usage %</th></tr>
{{range .Demographics.ByCountry}}<tr><td>{{.Country}}</td><td>{{.NPatients}}</td><td>{{.MeanWeightLoss}}</td><td>{{.SuccessRate}}</td><td>{{.MounjaroUsage}}</td></tr>
{{end}}</table>

<h2>Outcomes by Age Group</h2>
<table>
<tr><th>Age group</th><th>N</th><th>Mean weight loss (kg)</th><th>Success %</th><th>Mean adherence</th></tr>
{{range .Demographics.ByAgeGroup}}<tr><td>{{.AgeGroup}}</td><td>{{.NPatients}}</td><td>{{.MeanWeightLoss}}</td><td>{{.SuccessRate}}</td><td>{{.MeanAdherence}}</td></tr>
{{end}}</table>

<h2>Statistical Tests</h2>
<table>
<tr><th>Test</th><th>Statistic</th><th>P-value</th><th>Significant</th><th>Interpretation</th></tr>
{{with .Tests.MounjaroVsLifestyle}}<tr><td>{{.TestType}}</td><td>{{.TStatistic}}</td><td>{{.PValue}}</td><td>{{if .Significant}}Yes{{else}}No{{end}}</td><td>{{.Interpretation}}</td></tr>{{end}}
{{with .Tests.AdherenceWeightCorrelation}}<tr><td>{{.TestType}}</td><td>{{.Coefficient}}</td><td>{{.PValue}}</td><td>{{if .Significant}}Yes{{else}}No{{end}}</td><td>{{.Interpretation}}</td></tr>{{end}}
{{with .Tests.CountryWeightLossANOVA}}<tr><td>{{.TestType}}</td><td>{{.FStatistic}}</td><td>{{.PValue}}</td><td>{{if .Significant}}Yes{{else}}No{{end}}</td><td>{{.Interpretation}}</td></tr>{{end}}
</table>
{{range .Tests.Warnings}}<p><em>{{.}}</em></p>
{{end}}

<h2>Key Insights</h2>
<ul class="insights">
{{range .Insights}}<li>{{.}}</li>
{{end}}</ul>
</body>
</html>
`))

type reportData struct {
	Name          string
	Overview      analysis.DatasetOverview
	Effectiveness []analysis.InterventionEffect
	Demographics  *analysis.DemographicsAnalysis
	Tests         *analysis.TestResults
	Insights      []string
}

// ReportHTML writes a standalone HTML analysis report.
func ReportHTML(w io.Writer, ds *study.Dataset, s *analysis.DataSummary) error {
	if s == nil {
		s = analysis.Summary(ds)
	}
	data := reportData{
		Name:          ds.Name,
		Overview:      s.BasicStats.Overview,
		Effectiveness: s.TreatmentEffectiveness,
		Demographics:  s.Demographics,
		Tests:         s.StatisticalTests,
		Insights:      s.Insights,
	}
	if err := reportTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

var aeTmpl = template.Must(template.New("ae").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Adverse Event Analysis: {{.Name}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1, h2 { color: #6e1a1a; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 6px 12px; text-align: left; }
th { background: #faf0f0; }
</style>
</head>
<body>
<h1>Adverse Event Analysis</h1>
<p>Dataset: <strong>{{.Name}}</strong></p>
<p>{{.TotalWithAE}} of {{.TotalPatients}} patients ({{printf "%.1f" .OverallRate}}%) reported an adverse event.</p>

<h2>Event Types</h2>
<table>
<tr><th>Event</th><th>Patients</th><th>% of cohort</th></tr>
{{range .Types}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{printf "%.1f" .Rate}}</td></tr>
{{end}}</table>

<h2>By Intervention</h2>
<table>
<tr><th>Intervention</th><th>N</th><th>With AE</th><th>AE rate %</th></tr>
{{range .ByIntervention}}<tr><td>{{.Name}}</td><td>{{.N}}</td><td>{{.Count}}</td><td>{{printf "%.1f" .Rate}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type aeRow struct {
	Name  string
	N     int
	Count int
	Rate  float64
}

type aeData struct {
	Name           string
	TotalPatients  int
	TotalWithAE    int
	OverallRate    float64
	Types          []aeRow
	ByIntervention []aeRow
}

// AdverseEventsHTML writes the adverse event breakdown report.
func AdverseEventsHTML(w io.Writer, ds *study.Dataset) error {
	hasAE := func(p *study.Patient) bool { return p.AdverseEvent != "" && p.AdverseEvent != "None" }
	withAE := ds.Subset(hasAE)
	total := len(ds.Patients)
	data := aeData{
		Name:          ds.Name,
		TotalPatients: total,
		TotalWithAE:   len(withAE),
	}
	if total > 0 {
		data.OverallRate = float64(len(withAE)) / float64(total) * 100
	}
	keys, counts := study.CountBy(withAE, func(p *study.Patient) string { return p.AdverseEvent })
	for _, k := range keys {
		row := aeRow{Name: k, Count: counts[k]}
		if total > 0 {
			row.Rate = float64(counts[k]) / float64(total) * 100
		}
		data.Types = append(data.Types, row)
	}
	for _, iv := range ds.Interventions() {
		arm := ds.Subset(func(p *study.Patient) bool { return p.Intervention == iv })
		n := 0
		for _, p := range arm {
			if hasAE(p) {
				n++
			}
		}
		row := aeRow{Name: iv, N: len(arm), Count: n}
		if len(arm) > 0 {
			row.Rate = float64(n) / float64(len(arm)) * 100
		}
		data.ByIntervention = append(data.ByIntervention, row)
	}
	if err := aeTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render adverse event report: %w", err)
	}
	return nil
}
