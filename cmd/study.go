package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var studyFlagName string

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Manage per-study settings",
}

var studySetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Set the default AI model for a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if studyFlagName == "" {
			return fmt.Errorf("--study is required")
		}
		s, err := loadStudyByName(studyFlagName)
		if err != nil {
			return err
		}
		s.Config.Model = args[0]
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Study '%s' default model set to %s\n", s.Name, args[0])
		return nil
	},
}

var studyInstructCmd = &cobra.Command{
	Use:   "instruct <instructions>",
	Short: "Set or update the analysis instructions the AI assistant follows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if studyFlagName == "" {
			return fmt.Errorf("--study is required")
		}
		s, err := loadStudyByName(studyFlagName)
		if err != nil {
			return err
		}
		s.SetInstructions(args[0])
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Println("✓ Instructions updated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(studyCmd)
	studyCmd.AddCommand(studySetModelCmd)
	studyCmd.AddCommand(studyInstructCmd)
	studyCmd.PersistentFlags().StringVarP(&studyFlagName, "study", "s", "", "study name")
}
