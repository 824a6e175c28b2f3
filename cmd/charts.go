package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/charts"
	"github.com/rwelens/rwelens-cli/internal/study"
)

var (
	chartsStudyName string
	chartsOutputDir string
)

// chartNames is the filename order for the individual chart files.
var chartNames = []string{
	"age", "sex", "country", "bmi", "weight-change",
	"outcome", "adverse-events", "adherence", "correlation", "timeline",
}

func namedChart(ds *study.Dataset, name string) charts.Renderable {
	switch name {
	case "age":
		return charts.AgeHistogram(ds)
	case "sex":
		return charts.SexPie(ds)
	case "country":
		return charts.CountryBar(ds)
	case "bmi":
		return charts.BMIScatter(ds)
	case "weight-change":
		return charts.WeightChangeBox(ds)
	case "outcome":
		return charts.OutcomePie(ds)
	case "adverse-events":
		return charts.AdverseEventBar(ds)
	case "adherence":
		return charts.AdherenceHistogram(ds)
	case "correlation":
		return charts.CorrelationHeatmap(ds)
	case "timeline":
		return charts.TimelineLine(ds)
	}
	return nil
}

var chartsCmd = &cobra.Command{
	Use:   "charts [dataset-id|file]",
	Short: "Render the dashboard charts to standalone HTML files",
	Example: `  rwelens charts mounjaro_2023.csv -o charts/
  rwelens charts -s mounjaro -o charts/`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		ds, _, err := resolveDataset(arg, chartsStudyName)
		if err != nil {
			return err
		}
		if chartsOutputDir == "" {
			return fmt.Errorf("--output directory is required")
		}
		if err := os.MkdirAll(chartsOutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}

		writeChart := func(name string, c charts.Renderable) error {
			path := filepath.Join(chartsOutputDir, name+".html")
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer f.Close()
			if err := charts.Render(c, f); err != nil {
				return fmt.Errorf("render %s: %w", name, err)
			}
			return nil
		}

		if err := writeChart("dashboard", charts.Dashboard(ds)); err != nil {
			return err
		}
		for _, name := range chartNames {
			if err := writeChart(name, namedChart(ds, name)); err != nil {
				return err
			}
		}
		fmt.Printf("✓ Wrote dashboard.html and %d charts to %s\n", len(chartNames), chartsOutputDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartsCmd)
	chartsCmd.Flags().StringVarP(&chartsStudyName, "study", "s", "", "study name (dataset id defaults to the latest attached)")
	chartsCmd.Flags().StringVarP(&chartsOutputDir, "output", "o", "", "output directory for chart HTML files")
}
