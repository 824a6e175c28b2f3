package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/study"
	"github.com/rwelens/rwelens-cli/internal/utils"
)

var (
	initDescription string
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init <study-name>",
	Short: "Initialize a new RWE study workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		root, err := defaultStudiesDir()
		if err != nil {
			return err
		}
		studyDir := filepath.Join(root, name)
		// Refuse to overwrite an existing study.
		if info, err := os.Stat(studyDir); err == nil && info.IsDir() {
			studyFile := filepath.Join(studyDir, "study.json")
			if _, err := os.Stat(studyFile); err == nil {
				return fmt.Errorf("study already exists at %s", studyDir)
			}
			entries, err := os.ReadDir(studyDir)
			if err != nil {
				return fmt.Errorf("inspect study directory: %w", err)
			}
			if len(entries) > 0 && !initForce {
				return fmt.Errorf("directory %s already exists and is not empty; use --force to initialize anyway", studyDir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat study directory: %w", err)
		}
		if err := utils.EnsureDir(studyDir); err != nil {
			return err
		}
		s := study.NewStudy(name, initDescription, studyDir)
		if err := s.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Study initialized: %s\n", studyDir)
		return nil
	},
}

func defaultStudiesDir() (string, error) {
	if cfg != nil && cfg.StudiesDir != "" {
		dir := cfg.StudiesDir
		if strings.HasPrefix(dir, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home dir: %w", err)
			}
			dir = strings.TrimPrefix(dir, "~")
			dir = strings.TrimPrefix(dir, string(os.PathSeparator))
			dir = strings.TrimPrefix(dir, "/")
			dir = filepath.Join(home, dir)
		}
		dir = filepath.Clean(dir)
		if err := utils.EnsureDir(dir); err != nil {
			return "", err
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, "RWELensStudies")
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveStudyDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("study name is required")
	}
	root, err := defaultStudiesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func loadStudyByName(name string) (*study.Study, error) {
	dir, err := resolveStudyDirByName(name)
	if err != nil {
		return nil, err
	}
	return study.LoadStudy(dir)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDescription, "desc", "d", "", "study description")
	initCmd.Flags().BoolVar(&initForce, "force", false, "initialize even if the directory is not empty")
}
