package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var (
	notesStudyName string
	notesDesc      string
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage supporting notes attached to a study",
}

var notesAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Attach a supporting document (protocol, findings, txt/md) for chat context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		if notesStudyName == "" {
			return fmt.Errorf("--study is required")
		}
		s, err := loadStudyByName(notesStudyName)
		if err != nil {
			return err
		}
		n, err := s.AttachNote(file, notesDesc)
		if err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Note attached: %s (~%d tokens)\n", filepath.Base(file), n.Tokens)
		return nil
	},
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes attached to a study",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notesStudyName == "" {
			return fmt.Errorf("--study is required")
		}
		s, err := loadStudyByName(notesStudyName)
		if err != nil {
			return err
		}
		if len(s.Notes) == 0 {
			fmt.Println("(no notes)")
			return nil
		}
		ids := make([]string, 0, len(s.Notes))
		for id := range s.Notes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			n := s.Notes[id]
			fmt.Printf("- %s: %s (%s, ~%d tokens)\n", n.ID, n.Name, n.Description, n.Tokens)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesAddCmd)
	notesCmd.AddCommand(notesListCmd)
	notesCmd.PersistentFlags().StringVarP(&notesStudyName, "study", "s", "", "study name")
	notesAddCmd.Flags().StringVar(&notesDesc, "desc", "", "note description")
}
