package cmd

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/study"
	"github.com/rwelens/rwelens-cli/internal/utils"
)

var (
	anaStudyName  string
	anaKind       string
	anaMarkdown   bool
	anaOutputPath string
	anaClusterK   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [dataset-id|file]",
	Short: "Run cohort analytics over a dataset",
	Example: `  rwelens analyze mounjaro_2023.csv --kind effectiveness
  rwelens analyze -s mounjaro --kind all --markdown -o report.md
  rwelens analyze -s mounjaro --kind clusters`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		ds, _, err := resolveDataset(arg, anaStudyName)
		if err != nil {
			return err
		}

		var result any
		switch anaKind {
		case "basic":
			result = analysis.BasicStatistics(ds)
		case "effectiveness":
			result = analysis.TreatmentEffectiveness(ds)
		case "demographics":
			result = analysis.Demographics(ds)
		case "comorbidities":
			result = analysis.ComorbidityImpact(ds)
		case "tests":
			result = analysis.HypothesisTests(ds)
		case "clusters":
			profiles, err := analysis.ClusterPatients(ds, anaClusterK)
			if err != nil {
				return err
			}
			result = profiles
		case "insights":
			result = analysis.Insights(ds)
		case "summary", "all":
			result = analysis.Summary(ds)
		default:
			return fmt.Errorf("unknown --kind %q (use basic|effectiveness|demographics|comorbidities|tests|clusters|insights|summary|all)", anaKind)
		}

		var out []byte
		if anaMarkdown {
			s, ok := result.(*analysis.DataSummary)
			if !ok {
				s = analysis.Summary(ds)
			}
			out = []byte(summaryMarkdown(ds, s))
		} else {
			b, err := utils.PrettyJSON(result)
			if err != nil {
				return err
			}
			out = b
		}

		if anaOutputPath != "" {
			if err := os.WriteFile(anaOutputPath, out, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

// summaryMarkdown renders the full analysis summary as a markdown report.
func summaryMarkdown(ds *study.Dataset, s *analysis.DataSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Cohort Analysis: %s\n\n", ds.Name)
	ov := s.BasicStats.Overview
	fmt.Fprintf(&sb, "- Patients: %d\n", ov.TotalPatients)
	fmt.Fprintf(&sb, "- Countries: %d\n", ov.UniqueCountries)
	fmt.Fprintf(&sb, "- Study period: %s to %s\n\n", ov.DateRange.Start, ov.DateRange.End)

	sb.WriteString("## Treatment Effectiveness\n\n")
	sb.WriteString("| Intervention | N | Mean weight loss (kg) | Significant loss % | Any loss % | Adherence | AE % |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, e := range s.TreatmentEffectiveness {
		fmt.Fprintf(&sb, "| %s | %d | %s | %s | %s | %s | %s |\n",
			e.Intervention, e.NPatients,
			mdNum(e.MeanWeightLoss), mdNum(e.SignificantWeightLossRate),
			mdNum(e.AnyWeightLossRate), mdNum(e.MeanAdherence), mdNum(e.AdverseEventRate))
	}
	sb.WriteString("\n## Outcomes by Country\n\n")
	sb.WriteString("| Country | N | Mean weight loss (kg) | Success % |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, c := range s.Demographics.ByCountry {
		fmt.Fprintf(&sb, "| %s | %d | %s | %s |\n", c.Country, c.NPatients, mdNum(c.MeanWeightLoss), mdNum(c.SuccessRate))
	}

	sb.WriteString("\n## Statistical Tests\n\n")
	t := s.StatisticalTests
	if r := t.MounjaroVsLifestyle; r != nil {
		fmt.Fprintf(&sb, "- %s: t=%s, p=%s (%s)\n", r.TestType, mdNum(r.TStatistic), mdNum(r.PValue), r.Interpretation)
	}
	if r := t.AdherenceWeightCorrelation; r != nil {
		fmt.Fprintf(&sb, "- %s: r=%s, p=%s (%s)\n", r.TestType, mdNum(r.Coefficient), mdNum(r.PValue), r.Interpretation)
	}
	if r := t.CountryWeightLossANOVA; r != nil {
		fmt.Fprintf(&sb, "- %s: F=%s, p=%s (%s)\n", r.TestType, mdNum(r.FStatistic), mdNum(r.PValue), r.Interpretation)
	}
	for _, w := range t.Warnings {
		fmt.Fprintf(&sb, "- _%s_\n", w)
	}

	sb.WriteString("\n## Key Insights\n\n")
	for _, in := range s.Insights {
		fmt.Fprintf(&sb, "- %s\n", in)
	}
	return sb.String()
}

func mdNum(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaStudyName, "study", "s", "", "study name (dataset id defaults to the latest attached)")
	analyzeCmd.Flags().StringVar(&anaKind, "kind", "summary", "analysis kind: basic|effectiveness|demographics|comorbidities|tests|clusters|insights|summary|all")
	analyzeCmd.Flags().BoolVar(&anaMarkdown, "markdown", false, "render a markdown report instead of JSON")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "write the result to this path")
	analyzeCmd.Flags().IntVar(&anaClusterK, "clusters", 4, "number of clusters for --kind clusters")
}
