package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rwelens/rwelens-cli/internal/config"
)

var (
	// Global flags (wired to config/viper in loadConfig)
	cfgFile      string
	flagProvider string
	flagModel    string
	verbose      bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "rwelens",
	Short: "RWE Lens: real-world evidence analytics for Mounjaro cohort studies",
	Long: `RWE Lens ingests real-world evidence study exports (CSV/XLSX/JSON),
computes cohort analytics and statistical tests, renders dashboard charts,
and answers questions about the data through an AI assistant with automatic
provider fallback (Groq, Gemini, OpenAI).`,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rwelens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "pin an AI provider: groq|gemini|openai (default: fallback chain)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "override the AI model for all providers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("provider") && flagProvider != "" {
		cfg.DefaultProvider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.DefaultModel = flagModel
	}
	if f.Changed("verbose") && verbose {
		cfg.LogLevel = "debug"
	}
}
