package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/study"
)

var (
	listStudies   bool
	listDatasets  bool
	listStudyName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies or datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listStudies == listDatasets { // either both true or both false
			return fmt.Errorf("specify exactly one of --studies or --datasets")
		}
		if listStudies {
			return listAllStudies()
		}
		if listStudyName == "" {
			return fmt.Errorf("--study is required when using --datasets")
		}
		s, err := loadStudyByName(listStudyName)
		if err != nil {
			return err
		}
		if len(s.Datasets) == 0 {
			fmt.Println("(no datasets)")
			return nil
		}
		refs := make([]*study.DatasetRef, 0, len(s.Datasets))
		for _, r := range s.Datasets {
			refs = append(refs, r)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].AddedAt.Before(refs[j].AddedAt) })
		for _, r := range refs {
			fmt.Printf("- %s: %s (%d patients, %d columns", r.ID, r.Name, r.Rows, r.Columns)
			if r.Warnings > 0 {
				fmt.Printf(", %d warnings", r.Warnings)
			}
			fmt.Println(")")
		}
		return nil
	},
}

func listAllStudies() error {
	root, err := defaultStudiesDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	found := false
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		sj := filepath.Join(root, e.Name(), "study.json")
		if _, err := os.Stat(sj); err == nil {
			fmt.Printf("- %s\n", e.Name())
			found = true
		}
	}
	if !found {
		fmt.Println("(no studies)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listStudies, "studies", false, "list studies")
	listCmd.Flags().BoolVar(&listDatasets, "datasets", false, "list datasets in a study")
	listCmd.Flags().StringVarP(&listStudyName, "study", "s", "", "study name for --datasets")
}
