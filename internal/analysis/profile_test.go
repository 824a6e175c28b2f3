package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ingest"
)

var csvRows = []string{
	"Group;Concentration (g/L);Temp (°F);Score;LocaleNumber;Category;Note",
	"A;0,5;70;10,0;1.000,0;alpha;first",
	"A;0,6;71;11,0;1.100,0;alpha;second",
	"A;0,55;69;9,5;0.900,0;beta;third",
	"B;0,7;75;10,5;1.050,0;alpha;fourth",
	"B;0,65;74;9,8;0.980,0;beta;fifth",
	"B;0,68;73;10,2;1.020,0;alpha;sixth",
	"A;0,52;68;8,8;0.880,0;gamma;seventh",
	"B;0,75;76;9,7;0.970,0;beta;eighth",
	"A;3,0;95;50,0;5.000,0;alpha;ninth",
	"B;0,66;72;10,1;1.010,0;gamma;tenth",
}

var (
	processedConcentration = []float64{
		mgPerL(0.5), mgPerL(0.6), mgPerL(0.55), mgPerL(0.7), mgPerL(0.65), mgPerL(0.68), mgPerL(0.52), mgPerL(0.75), mgPerL(3.0),
	}
	processedTemp = []float64{
		toC(70), toC(71), toC(69), toC(75), toC(74), toC(73), toC(68), toC(76), toC(95),
	}
	processedScore  = []float64{10, 11, 9.5, 10.5, 9.8, 10.2, 8.8, 9.7, 50}
	processedLocale = []float64{1000, 1100, 900, 1050, 980, 1020, 880, 970, 5000}
)

func profileOptions() Options {
	opt := DefaultOptions()
	opt.SampleRows = 3
	opt.MaxRows = 9
	opt.GroupBy = []string{"Group"}
	opt.Correlations = true
	opt.CorrPerGroup = true
	opt.Outliers = true
	opt.DecimalSeparator = ','
	opt.ThousandsSeparator = '.'
	return opt
}

func TestProfileCSVAndMarkdown(t *testing.T) {
	tmp := t.TempDir()
	csvPath := filepath.Join(tmp, "metrics.csv")
	if err := os.WriteFile(csvPath, []byte(strings.Join(csvRows, "\n")), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rep, err := ProfileCSV(csvPath, profileOptions())
	if err != nil {
		t.Fatalf("ProfileCSV: %v", err)
	}

	assertReport(t, rep, "metrics.csv")

	md := rep.Markdown()
	if !strings.Contains(md, "[DATASET SUMMARY]") {
		t.Fatalf("markdown missing summary: %s", md)
	}
	if !strings.Contains(md, "File: metrics.csv") {
		t.Fatalf("markdown missing file: %s", md)
	}
	if !strings.Contains(md, "Rows: ~10 (processed 9)") {
		t.Fatalf("markdown missing row note: %s", md)
	}
	if !strings.Contains(md, "Concentration [mg/L]: numeric") {
		t.Fatalf("markdown missing concentration schema: %s", md)
	}
	if !strings.Contains(md, "outliers: 1 above |z|>3.5") {
		t.Fatalf("markdown missing outlier info: %s", md)
	}
	if !strings.Contains(md, "[GROUP-BY SUMMARY]") || !strings.Contains(md, "Group=A (n=5)") {
		t.Fatalf("markdown missing group summary: %s", md)
	}
	if !strings.Contains(md, "[PER-GROUP CORRELATIONS]") || !strings.Contains(md, "Score ~ LocaleNumber") {
		t.Fatalf("markdown missing per-group correlations: %s", md)
	}
	if !strings.Contains(md, "[CORRELATIONS]") || !strings.Contains(md, "Score ~ LocaleNumber") {
		t.Fatalf("markdown missing global correlations: %s", md)
	}
	if !strings.Contains(md, "[NOTES]") || !strings.Contains(md, "processed only 9/10 rows due to MaxRows") {
		t.Fatalf("markdown missing notes: %s", md)
	}
}

func TestProfileTableFromMemory(t *testing.T) {
	var rows [][]string
	for _, line := range csvRows[1:] {
		rows = append(rows, strings.Split(line, ";"))
	}
	tab := &ingest.Table{Header: strings.Split(csvRows[0], ";"), Rows: rows}

	rep, err := ProfileTable("cohort", tab, profileOptions())
	if err != nil {
		t.Fatalf("ProfileTable: %v", err)
	}
	assertReport(t, rep, "cohort")
}

func TestProfileTableEmpty(t *testing.T) {
	rep, err := ProfileTable("empty", &ingest.Table{}, DefaultOptions())
	if err != nil {
		t.Fatalf("ProfileTable: %v", err)
	}
	if rep.Rows != 0 || len(rep.Cols) != 0 {
		t.Fatalf("expected empty report, got %+v", rep)
	}
}

func assertReport(t *testing.T, rep *Report, expectName string) {
	t.Helper()
	if rep.Name != expectName {
		t.Fatalf("report name = %q, want %q", rep.Name, expectName)
	}
	if rep.Rows != 10 {
		t.Fatalf("rows = %d, want 10", rep.Rows)
	}
	if rep.Processed != 9 {
		t.Fatalf("processed = %d, want 9", rep.Processed)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0] != "processed only 9/10 rows due to MaxRows" {
		t.Fatalf("warnings = %#v", rep.Warnings)
	}
	if len(rep.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(rep.Samples))
	}
	expectFirst := []string{"A", "0,5", "70", "10,0", "1.000,0", "alpha", "first"}
	if !equalStrings(rep.Samples[0], expectFirst) {
		t.Fatalf("first sample = %#v, want %#v", rep.Samples[0], expectFirst)
	}

	conc := columnByName(t, rep, "Concentration")
	if conc.Unit != "mg/L" {
		t.Fatalf("concentration unit = %q", conc.Unit)
	}
	checkStats(t, conc, processedConcentration)
	count, maxZ := robustOutlierStats(processedScore, 3.5)

	score := columnByName(t, rep, "Score")
	if score.Unit != "" {
		t.Fatalf("score unit = %q", score.Unit)
	}
	checkStats(t, score, processedScore)
	if score.OutliersCount != count {
		t.Fatalf("score outliers = %d, want %d", score.OutliersCount, count)
	}
	if !almostEqual(score.OutliersMaxAbsZ, maxZ, 1e-6) {
		t.Fatalf("score max |z| = %f, want %f", score.OutliersMaxAbsZ, maxZ)
	}
	if !almostEqual(score.OutlierThreshold, 3.5, 1e-9) {
		t.Fatalf("score threshold = %f", score.OutlierThreshold)
	}

	temp := columnByName(t, rep, "Temp")
	if temp.Unit != "°C" {
		t.Fatalf("temp unit = %q", temp.Unit)
	}
	checkStats(t, temp, processedTemp)

	locale := columnByName(t, rep, "LocaleNumber")
	checkStats(t, locale, processedLocale)

	cat := columnByName(t, rep, "Category")
	if cat.Kind != "categorical" {
		t.Fatalf("category kind = %q", cat.Kind)
	}
	if len(cat.TopValues) == 0 || cat.TopValues[0].Value != "alpha" || cat.TopValues[0].Count != 5 {
		t.Fatalf("category top = %#v", cat.TopValues)
	}

	if len(rep.Groups) != 2 {
		t.Fatalf("groups len = %d, want 2", len(rep.Groups))
	}
	groupA := rep.Groups[0]
	groupB := rep.Groups[1]
	if groupA.Key != "Group=A" || groupA.Size != 5 {
		t.Fatalf("group A = %#v", groupA)
	}
	if groupB.Key != "Group=B" || groupB.Size != 4 {
		t.Fatalf("group B = %#v", groupB)
	}

	scoreA := groupA.Metrics["Score"]
	scoreB := groupB.Metrics["Score"]
	checkNumSummary(t, scoreA, subset(processedScore, []int{0, 1, 2, 6, 8}))
	checkNumSummary(t, scoreB, subset(processedScore, []int{3, 4, 5, 7}))

	concA := groupA.Metrics["Concentration"]
	concB := groupB.Metrics["Concentration"]
	checkNumSummary(t, concA, subset(processedConcentration, []int{0, 1, 2, 6, 8}))
	checkNumSummary(t, concB, subset(processedConcentration, []int{3, 4, 5, 7}))

	expCorr := correlation(processedScore, processedLocale)
	if rep.Corr == nil {
		t.Fatalf("corr matrix nil")
	}
	if !equalStrings(rep.Corr.Columns, []string{"Concentration", "Temp", "Score", "LocaleNumber"}) {
		t.Fatalf("corr columns = %#v", rep.Corr.Columns)
	}
	idxScore := 2
	idxLocale := 3
	if !almostEqual(rep.Corr.Values[idxScore][idxLocale], expCorr, 1e-6) {
		t.Fatalf("global corr score-locale = %f, want %f", rep.Corr.Values[idxScore][idxLocale], expCorr)
	}

	corrA := correlation(subset(processedScore, []int{0, 1, 2, 6, 8}), subset(processedLocale, []int{0, 1, 2, 6, 8}))
	corrB := correlation(subset(processedScore, []int{3, 4, 5, 7}), subset(processedLocale, []int{3, 4, 5, 7}))

	if len(groupA.CorrPairs) == 0 || groupA.CorrPairs[0].A != "Score" || groupA.CorrPairs[0].B != "LocaleNumber" || !almostEqual(groupA.CorrPairs[0].R, corrA, 1e-6) {
		t.Fatalf("group A corr pairs = %#v", groupA.CorrPairs)
	}
	if len(groupB.CorrPairs) == 0 || groupB.CorrPairs[0].A != "Score" || groupB.CorrPairs[0].B != "LocaleNumber" || !almostEqual(groupB.CorrPairs[0].R, corrB, 1e-6) {
		t.Fatalf("group B corr pairs = %#v", groupB.CorrPairs)
	}
}

func columnByName(t *testing.T, rep *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range rep.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found", name)
	return ColumnSummary{}
}

func checkStats(t *testing.T, col ColumnSummary, vals []float64) {
	t.Helper()
	if col.NonNull != len(vals) {
		t.Fatalf("non-null = %d, want %d", col.NonNull, len(vals))
	}
	if !almostEqual(col.Min, minFloat(vals), 1e-6) {
		t.Fatalf("min = %f, want %f", col.Min, minFloat(vals))
	}
	if !almostEqual(col.Max, maxFloat(vals), 1e-6) {
		t.Fatalf("max = %f, want %f", col.Max, maxFloat(vals))
	}
	if !almostEqual(col.Mean, meanOf(vals), 1e-6) {
		t.Fatalf("mean = %f, want %f", col.Mean, meanOf(vals))
	}
	if !almostEqual(col.Std, sampleStd(vals), 1e-6) {
		t.Fatalf("std = %f, want %f", col.Std, sampleStd(vals))
	}
}

func checkNumSummary(t *testing.T, s NumSummary, vals []float64) {
	t.Helper()
	if s.Count != len(vals) {
		t.Fatalf("summary count = %d, want %d", s.Count, len(vals))
	}
	if !almostEqual(s.Min, minFloat(vals), 1e-6) {
		t.Fatalf("summary min = %f, want %f", s.Min, minFloat(vals))
	}
	if !almostEqual(s.Max, maxFloat(vals), 1e-6) {
		t.Fatalf("summary max = %f, want %f", s.Max, maxFloat(vals))
	}
	if !almostEqual(s.Mean, meanOf(vals), 1e-6) {
		t.Fatalf("summary mean = %f, want %f", s.Mean, meanOf(vals))
	}
}

func robustOutlierStats(vals []float64, threshold float64) (count int, maxAbs float64) {
	cp := append([]float64(nil), vals...)
	med, mad := medianMAD(cp)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range cp {
		z := 0.6745 * (v - med) / mad
		az := math.Abs(z)
		if az > threshold {
			count++
		}
		if az > maxAbs {
			maxAbs = az
		}
	}
	return
}

func subset(vals []float64, idxs []int) []float64 {
	out := make([]float64, len(idxs))
	for i, idx := range idxs {
		out[i] = vals[idx]
	}
	return out
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStd(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := meanOf(vals)
	var sum float64
	for _, v := range vals {
		diff := v - m
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

func minFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func correlation(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("length mismatch")
	}
	ma := meanOf(a)
	mb := meanOf(b)
	var num, da2, db2 float64
	for i := range a {
		da := a[i] - ma
		db := b[i] - mb
		num += da * db
		da2 += da * da
		db2 += db * db
	}
	if da2 == 0 || db2 == 0 {
		return 0
	}
	return num / math.Sqrt(da2*db2)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func mgPerL(v float64) float64 { return v * 1000 }
func toC(f float64) float64    { return (f - 32) * 5.0 / 9.0 }

func TestProfileCSVHonorsDelimiterOption(t *testing.T) {
	tmp := t.TempDir()
	csvPath := filepath.Join(tmp, "pipes.csv")
	// The comma-heavy header would win delimiter sniffing.
	rows := "label, raw|value, scaled\nx,1|2,5\ny,3|4,5\n"
	if err := os.WriteFile(csvPath, []byte(rows), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	opt := DefaultOptions()
	opt.Delimiter = '|'
	rep, err := ProfileCSV(csvPath, opt)
	if err != nil {
		t.Fatalf("ProfileCSV: %v", err)
	}
	if len(rep.Cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(rep.Cols))
	}
	if rep.Cols[1].Name != "value, scaled" {
		t.Fatalf("unexpected columns: %+v", rep.Cols)
	}
	if rep.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rep.Rows)
	}
}
