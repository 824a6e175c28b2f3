package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/analysis"
)

var (
	statsOutputPath string
	statsDelimiter  string
	statsSampleRows int
	statsMaxRows    int
	statsGroupBy    []string
	statsCorr       bool
	statsCorrGroups bool
	statsDecimal    string
	statsThousands  string
	statsOutliers   bool
	statsOutlierThr float64
	statsSheetName  string
	statsSheetIndex int
	statsQuiet      bool
)

var statsCmd = &cobra.Command{
	Use:   "stats <files...>",
	Short: "Profile tabular files: column types, distributions, groups, correlations",
	Example: `  rwelens stats mounjaro_2023.csv --group-by country --correlations
  rwelens stats exports/*.xlsx --sheet-index 1 -o profiles/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := analysis.DefaultOptions()
		if statsSampleRows > 0 {
			opt.SampleRows = statsSampleRows
		}
		if statsMaxRows > 0 {
			opt.MaxRows = statsMaxRows
		}
		if statsDelimiter != "" {
			switch statsDelimiter {
			case ",":
				opt.Delimiter = ','
			case "\t", "tab":
				opt.Delimiter = '\t'
			case ";":
				opt.Delimiter = ';'
			default:
				return fmt.Errorf("unsupported --delimiter: %s", statsDelimiter)
			}
		}
		// Locale separators
		switch strings.ToLower(strings.TrimSpace(statsDecimal)) {
		case ",", "comma":
			opt.DecimalSeparator = ','
		case ".", "dot":
			opt.DecimalSeparator = '.'
		case "":
		default:
			return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", statsDecimal)
		}
		switch strings.ToLower(strings.TrimSpace(statsThousands)) {
		case ",":
			opt.ThousandsSeparator = ','
		case ".":
			opt.ThousandsSeparator = '.'
		case "space", " ":
			opt.ThousandsSeparator = ' '
		case "":
		default:
			return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", statsThousands)
		}
		opt.GroupBy = statsGroupBy
		opt.Correlations = statsCorr
		opt.CorrPerGroup = statsCorrGroups
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = statsOutliers
		} else {
			opt.Outliers = true
		}
		if statsOutlierThr > 0 {
			opt.OutlierThreshold = statsOutlierThr
		}

		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		// With multiple inputs -o must be a directory.
		outDir := ""
		outFile := ""
		if statsOutputPath != "" {
			if info, err := os.Stat(statsOutputPath); err == nil && info.IsDir() {
				outDir = statsOutputPath
			} else if len(files) > 1 {
				if err := os.MkdirAll(statsOutputPath, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
				outDir = statsOutputPath
			} else {
				outFile = statsOutputPath
			}
		}

		total := len(files)
		for i, path := range files {
			if !statsQuiet && total > 1 {
				fmt.Printf("[%d/%d] Profiling %s...\n", i+1, total, filepath.Base(path))
			}
			var rep *analysis.Report
			var err error
			if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
				rep, err = analysis.ProfileXLSX(path, statsSheetName, statsSheetIndex, opt)
			} else {
				rep, err = analysis.ProfileCSV(path, opt)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			md := rep.Markdown()

			switch {
			case outDir != "":
				base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				target := filepath.Join(outDir, base+".profile.md")
				if err := os.WriteFile(target, []byte(md), 0o644); err != nil {
					return fmt.Errorf("write profile: %w", err)
				}
				if !statsQuiet {
					fmt.Printf("✓ Wrote profile to %s\n", target)
				}
			case outFile != "":
				if err := os.WriteFile(outFile, []byte(md), 0o644); err != nil {
					return fmt.Errorf("write profile: %w", err)
				}
				if !statsQuiet {
					fmt.Printf("✓ Wrote profile to %s\n", outFile)
				}
			default:
				fmt.Println(md)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsOutputPath, "output", "o", "", "write profile(s) to this file (single input) or directory")
	statsCmd.Flags().StringVar(&statsDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	statsCmd.Flags().StringVar(&statsDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	statsCmd.Flags().StringVar(&statsThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	statsCmd.Flags().IntVar(&statsSampleRows, "sample-rows", 5, "number of sample rows to include")
	statsCmd.Flags().IntVar(&statsMaxRows, "max-rows", 100000, "maximum rows to process (0 = unlimited)")
	statsCmd.Flags().StringSliceVar(&statsGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	statsCmd.Flags().BoolVar(&statsCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	statsCmd.Flags().BoolVar(&statsCorrGroups, "corr-per-group", false, "compute correlation pairs within each group (may be slower)")
	statsCmd.Flags().BoolVar(&statsOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	statsCmd.Flags().Float64Var(&statsOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	statsCmd.Flags().StringVar(&statsSheetName, "sheet-name", "", "XLSX: sheet name to profile")
	statsCmd.Flags().IntVar(&statsSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	statsCmd.Flags().BoolVar(&statsQuiet, "quiet", false, "suppress progress output")
}
