package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/store"
)

var (
	loadStudyName string
	loadQuiet     bool
)

var loadCmd = &cobra.Command{
	Use:   "load <files...>",
	Short: "Load study export files (CSV/XLSX/JSON) into a study workspace",
	Example: `  rwelens load mounjaro_2023.csv -s mounjaro
  rwelens load exports/*.xlsx -s mounjaro --quiet`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadStudyName == "" {
			return fmt.Errorf("--study is required")
		}
		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
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

		s, err := loadStudyByName(loadStudyName)
		if err != nil {
			return err
		}

		catalog := openCatalog()
		if catalog != nil {
			defer catalog.Close()
		}

		total := len(files)
		for i, path := range files {
			if !loadQuiet {
				fmt.Printf("[%d/%d] Loading %s...\n", i+1, total, filepath.Base(path))
			}
			ds, err := s.AttachDataset(path)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if !loadQuiet {
				fmt.Printf("  ✓ %s: %d patients, %d columns (id %s)\n", ds.Name, len(ds.Patients), len(ds.Columns), ds.ID)
				for _, w := range ds.Warnings {
					fmt.Printf("  ⚠ %s\n", w)
				}
			}
			if catalog != nil {
				rec := store.DatasetRecord{
					ID:         ds.ID,
					Study:      s.Name,
					Name:       ds.Name,
					SourcePath: path,
					Rows:       len(ds.Patients),
					Columns:    len(ds.Columns),
					Warnings:   len(ds.Warnings),
				}
				if err := catalog.RecordDataset(context.Background(), rec); err != nil {
					fmt.Fprintf(os.Stderr, "⚠ Warning: catalog update failed: %v\n", err)
				}
			}
		}
		if err := s.Save(); err != nil {
			return err
		}
		if !loadQuiet {
			fmt.Printf("✓ Study '%s' now has %d dataset(s)\n", s.Name, len(s.Datasets))
		}
		return nil
	},
}

// openCatalog opens the SQLite catalog, or returns nil when it cannot be
// opened (the load still succeeds, just without catalog registration).
func openCatalog() *store.Catalog {
	path := ""
	if cfg != nil && cfg.DataDir != "" {
		path = filepath.Join(filepath.Dir(cfg.DataDir), "catalog.db")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".rwelens", "catalog.db")
	}
	c, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: cannot open catalog at %s: %v\n", path, err)
		return nil
	}
	return c
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVarP(&loadStudyName, "study", "s", "", "study name")
	loadCmd.Flags().BoolVar(&loadQuiet, "quiet", false, "suppress progress output")
}
