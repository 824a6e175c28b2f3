// Package charts builds the dashboard figures as self-contained echarts
// HTML, one builder per study visualization.
package charts

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/study"
)

// ageGroupOrder fixes the histogram bin order regardless of row order.
var ageGroupOrder = []string{"<30", "30-39", "40-49", "50-59", "60+"}

// Renderable is any chart or page that can write itself as HTML.
type Renderable interface {
	Render(w io.Writer) error
}

// AgeHistogram counts patients per age group.
func AgeHistogram(ds *study.Dataset) *charts.Bar {
	counts := map[string]int{}
	for _, p := range ds.Patients {
		counts[p.AgeGroup]++
	}
	var labels []string
	var data []opts.BarData
	for _, g := range ageGroupOrder {
		if counts[g] == 0 {
			continue
		}
		labels = append(labels, g)
		data = append(data, opts.BarData{Value: counts[g]})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Age Distribution"}))
	bar.SetXAxis(labels).AddSeries("Patients", data)
	return bar
}

// SexPie shows the gender split.
func SexPie(ds *study.Dataset) *charts.Pie {
	keys, counts := study.CountBy(ds.Patients, func(p *study.Patient) string { return p.Sex })
	var data []opts.PieData
	for _, k := range keys {
		data = append(data, opts.PieData{Name: k, Value: counts[k]})
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Gender Distribution"}))
	pie.AddSeries("Patients", data)
	return pie
}

// CountryBar counts patients per country, most common first.
func CountryBar(ds *study.Dataset) *charts.Bar {
	keys, counts := study.CountBy(ds.Patients, func(p *study.Patient) string { return p.Country })
	var data []opts.BarData
	for _, k := range keys {
		data = append(data, opts.BarData{Value: counts[k]})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Patients by Country"}))
	bar.SetXAxis(keys).AddSeries("Patients", data)
	return bar
}

// BMIScatter plots baseline against follow-up BMI, one series per
// intervention arm.
func BMIScatter(ds *study.Dataset) *charts.Scatter {
	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Baseline vs Follow-up BMI"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Baseline BMI"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Follow-up BMI"}),
	)
	for _, iv := range ds.Interventions() {
		var data []opts.ScatterData
		for _, p := range ds.Patients {
			if p.Intervention != iv || p.BaselineBMI == nil || p.FollowupBMI == nil {
				continue
			}
			data = append(data, opts.ScatterData{Value: []any{*p.BaselineBMI, *p.FollowupBMI}})
		}
		sc.AddSeries(iv, data)
	}
	return sc
}

// WeightChangeBox draws the five-number weight change summary per arm.
func WeightChangeBox(ds *study.Dataset) *charts.BoxPlot {
	var labels []string
	var data []opts.BoxPlotData
	for _, iv := range ds.Interventions() {
		sub := study.Dataset{Patients: ds.Subset(func(p *study.Patient) bool { return p.Intervention == iv })}
		descs := analysis.Describe(&sub, "weight_change_kg")
		if len(descs) == 0 || descs[0].Count == 0 {
			continue
		}
		d := descs[0]
		labels = append(labels, iv)
		data = append(data, opts.BoxPlotData{Value: []float64{d.Min, d.Q25, d.Median, d.Q75, d.Max}})
	}
	box := charts.NewBoxPlot()
	box.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Weight Change by Intervention"}))
	box.SetXAxis(labels).AddSeries("Weight change (kg)", data)
	return box
}

// OutcomePie shows the outcome distribution.
func OutcomePie(ds *study.Dataset) *charts.Pie {
	keys, counts := study.CountBy(ds.Patients, func(p *study.Patient) string { return p.Outcome })
	var data []opts.PieData
	for _, k := range keys {
		data = append(data, opts.PieData{Name: k, Value: counts[k]})
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Outcome Distribution"}))
	pie.AddSeries("Patients", data)
	return pie
}

// AdverseEventBar counts adverse event types, excluding patients without
// events.
func AdverseEventBar(ds *study.Dataset) *charts.Bar {
	withAE := ds.Subset(func(p *study.Patient) bool { return p.AdverseEvent != "" && p.AdverseEvent != "None" })
	keys, counts := study.CountBy(withAE, func(p *study.Patient) string { return p.AdverseEvent })
	var data []opts.BarData
	for _, k := range keys {
		data = append(data, opts.BarData{Value: counts[k]})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Adverse Events"}))
	bar.SetXAxis(keys).AddSeries("Patients", data)
	return bar
}

// AdherenceHistogram bins adherence rates into tenths.
func AdherenceHistogram(ds *study.Dataset) *charts.Bar {
	bins := make([]int, 10)
	for _, p := range ds.Patients {
		if p.AdherenceRate == nil {
			continue
		}
		v := *p.AdherenceRate
		if v < 0 || v > 1 || math.IsNaN(v) {
			continue
		}
		idx := int(v * 10)
		if idx > 9 {
			idx = 9
		}
		bins[idx]++
	}
	var labels []string
	var data []opts.BarData
	for i, n := range bins {
		labels = append(labels, fmt.Sprintf("%.1f-%.1f", float64(i)/10, float64(i+1)/10))
		data = append(data, opts.BarData{Value: n})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Adherence Rate Distribution"}))
	bar.SetXAxis(labels).AddSeries("Patients", data)
	return bar
}

// CorrelationHeatmap renders the Pearson matrix over the numeric columns.
func CorrelationHeatmap(ds *study.Dataset) *charts.HeatMap {
	cols, m := analysis.CorrelationMatrix(ds)
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Correlation Matrix"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: cols}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: cols}),
		charts.WithVisualMapOpts(opts.VisualMap{Min: -1, Max: 1}),
	)
	var data []opts.HeatMapData
	for i := range cols {
		for j := range cols {
			if math.IsNaN(m[i][j]) {
				continue
			}
			data = append(data, opts.HeatMapData{Value: [3]any{i, j, m[i][j]}})
		}
	}
	hm.AddSeries("Pearson r", data)
	return hm
}

// TimelineLine counts enrollment starts per calendar month.
func TimelineLine(ds *study.Dataset) *charts.Line {
	counts := map[string]int{}
	for _, p := range ds.Patients {
		if p.StartDate.IsZero() {
			continue
		}
		counts[p.StartDate.Time().Format("2006-01")]++
	}
	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)
	var data []opts.LineData
	for _, m := range months {
		data = append(data, opts.LineData{Value: counts[m]})
	}
	line := charts.NewLine()
	line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Enrollment Timeline"}))
	line.SetXAxis(months).AddSeries("Enrollments", data)
	return line
}

// Dashboard assembles every figure into one page.
func Dashboard(ds *study.Dataset) *components.Page {
	page := components.NewPage()
	page.PageTitle = "RWE Lens Dashboard"
	page.AddCharts(
		AgeHistogram(ds),
		SexPie(ds),
		CountryBar(ds),
		BMIScatter(ds),
		WeightChangeBox(ds),
		OutcomePie(ds),
		AdverseEventBar(ds),
		AdherenceHistogram(ds),
		CorrelationHeatmap(ds),
		TimelineLine(ds),
	)
	return page
}

// Render writes a chart or page as standalone HTML.
func Render(c Renderable, w io.Writer) error {
	return c.Render(w)
}
