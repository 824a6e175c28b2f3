package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `patient_id,age,sex,country,intervention,start_date,end_date,baseline_bmi,followup_bmi,weight_change_kg,adherence_rate,outcome,adverse_event,hospitalizations,comorbidities
P001,52,Female,Germany,Mounjaro,2023-01-01,2023-07-01,36,31,-10,0.9,Significant Weight Loss,Nausea,0,Type 2 Diabetes
P002,45,Male,Germany,Mounjaro,2023-01-01,2023-06-01,33,30,-8,0.85,Moderate Weight Loss,None,0,None
P003,29,Male,France,LifestyleOnly,2023-01-01,2023-07-01,32,31.5,-2,0.6,No Change,None,0,Hypertension
P004,60,Female,France,LifestyleOnly,2023-01-01,2023-06-01,31,30.5,-3,0.7,Moderate Weight Loss,Headache,1,None
`

// runCmd executes the root command with args and fails the test on error.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func writeSampleCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mounjaro_export.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestCLI_Init_Load_List_Analyze(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	csvPath := writeSampleCSV(t, home)

	runCmd(t, "init", "itest", "-d", "integration test study")
	runCmd(t, "load", csvPath, "-s", "itest", "--quiet")
	runCmd(t, "list", "--datasets", "-s", "itest")

	out := filepath.Join(home, "analysis.json")
	runCmd(t, "analyze", "-s", "itest", "--kind", "summary", "-o", out)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read analysis: %v", err)
	}
	if !bytes.Contains(data, []byte("treatment_effectiveness")) {
		t.Fatalf("analysis output missing effectiveness section")
	}
}

func TestCLI_InitRefusesExistingStudy(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	runCmd(t, "init", "dup")
	rootCmd.SetArgs([]string{"init", "dup"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for duplicate study")
	}
}

func TestCLI_ExportAndCharts(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	csvPath := writeSampleCSV(t, home)

	outCSV := filepath.Join(home, "filtered.csv")
	runCmd(t, "export", csvPath, "--format", "csv", "--intervention", "Mounjaro", "-o", outCSV)
	data, err := os.ReadFile(outCSV)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "P001") || strings.Contains(string(data), "P003") {
		t.Fatalf("filter not applied: %s", data)
	}

	chartDir := filepath.Join(home, "charts")
	runCmd(t, "charts", csvPath, "-o", chartDir)
	if _, err := os.Stat(filepath.Join(chartDir, "dashboard.html")); err != nil {
		t.Fatalf("dashboard not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(chartDir, "age.html")); err != nil {
		t.Fatalf("age chart not written: %v", err)
	}
}

func TestCLI_StatsProfile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	csvPath := writeSampleCSV(t, home)
	out := filepath.Join(home, "profile.md")
	runCmd(t, "stats", csvPath, "-o", out, "--group-by", "country", "--correlations")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	if !strings.Contains(string(data), "country") {
		t.Fatalf("profile missing grouped column: %s", data)
	}
}

func TestCLI_ReportDryRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	csvPath := writeSampleCSV(t, home)
	runCmd(t, "report", csvPath, "--dry-run", "--quiet")
}

func TestCLI_ReportBudgetBlocks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	csvPath := writeSampleCSV(t, home)
	rootCmd.SetArgs([]string{"report", csvPath, "--dry-run", "--quiet", "--budget", "0.00000001"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error due to budget limit")
	}
}

func TestCLI_StudySetModelAndNotes(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg = nil

	runCmd(t, "init", "cfgstudy")
	runCmd(t, "study", "set-model", "llama-3.3-70b-versatile", "-s", "cfgstudy")
	runCmd(t, "study", "instruct", "Focus on safety outcomes", "-s", "cfgstudy")

	notePath := filepath.Join(home, "protocol.md")
	if err := os.WriteFile(notePath, []byte("# Protocol\n\nSix month follow-up."), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}
	runCmd(t, "notes", "add", notePath, "-s", "cfgstudy", "--desc", "study protocol")
	runCmd(t, "notes", "list", "-s", "cfgstudy")

	s, err := loadStudyByName("cfgstudy")
	if err != nil {
		t.Fatalf("load study: %v", err)
	}
	if s.Config.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("model = %q", s.Config.Model)
	}
	if s.Instructions != "Focus on safety outcomes" {
		t.Fatalf("instructions = %q", s.Instructions)
	}
	if len(s.Notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(s.Notes))
	}
}
