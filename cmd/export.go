package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/export"
)

var (
	expStudyName     string
	expFormat        string
	expOutputPath    string
	expInterventions []string
	expCountries     []string
	expSexes         []string
	expOutcomes      []string
	expAgeMin        int
	expAgeMax        int
)

var exportCmd = &cobra.Command{
	Use:   "export [dataset-id|file]",
	Short: "Export filtered data or analysis reports",
	Example: `  rwelens export mounjaro_2023.csv --format csv --intervention Mounjaro --age-min 50 -o filtered.csv
  rwelens export -s mounjaro --format report-html -o report.html
  rwelens export -s mounjaro --format stats-csv -o stats.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		ds, _, err := resolveDataset(arg, expStudyName)
		if err != nil {
			return err
		}
		if expOutputPath == "" {
			return fmt.Errorf("--output is required")
		}
		f, err := os.Create(expOutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()

		switch expFormat {
		case "csv":
			filter := export.Filter{
				Interventions: expInterventions,
				Countries:     expCountries,
				Sexes:         expSexes,
				Outcomes:      expOutcomes,
				AgeMin:        expAgeMin,
				AgeMax:        expAgeMax,
			}
			err = export.FilteredCSV(f, ds, filter)
		case "stats-csv":
			err = export.StatsCSV(f, ds)
		case "report-html":
			err = export.ReportHTML(f, ds, nil)
		case "ae-html":
			err = export.AdverseEventsHTML(f, ds)
		default:
			return fmt.Errorf("unknown --format %q (use csv|stats-csv|report-html|ae-html)", expFormat)
		}
		if err != nil {
			return err
		}
		fmt.Printf("✓ Exported %s to %s\n", expFormat, expOutputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&expStudyName, "study", "s", "", "study name (dataset id defaults to the latest attached)")
	exportCmd.Flags().StringVar(&expFormat, "format", "csv", "export format: csv|stats-csv|report-html|ae-html")
	exportCmd.Flags().StringVarP(&expOutputPath, "output", "o", "", "output file path")
	exportCmd.Flags().StringSliceVar(&expInterventions, "intervention", nil, "filter: intervention (repeatable)")
	exportCmd.Flags().StringSliceVar(&expCountries, "country", nil, "filter: country (repeatable)")
	exportCmd.Flags().StringSliceVar(&expSexes, "sex", nil, "filter: sex (repeatable)")
	exportCmd.Flags().StringSliceVar(&expOutcomes, "outcome", nil, "filter: outcome (repeatable)")
	exportCmd.Flags().IntVar(&expAgeMin, "age-min", 0, "filter: minimum age")
	exportCmd.Flags().IntVar(&expAgeMax, "age-max", 0, "filter: maximum age")
}
