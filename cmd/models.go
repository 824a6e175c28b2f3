package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/ai"
)

var (
	modelsProvider  string
	modelsRecommend string
	modelsJSON      bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known AI models with context windows and pricing",
	Example: `  rwelens models
  rwelens models --provider groq
  rwelens models --recommend balanced --provider gemini`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if modelsRecommend != "" {
			name, ok := ai.RecommendModel(modelsProvider, modelsRecommend)
			if !ok {
				return fmt.Errorf("no recommendation for provider %q tier %q (tiers: cheap|balanced|high-context)", modelsProvider, modelsRecommend)
			}
			fmt.Println(name)
			return nil
		}

		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k, mi := range cat {
			if modelsProvider != "" && mi.Provider != modelsProvider {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return fmt.Errorf("no models for provider %q (use groq|gemini|openai)", modelsProvider)
		}

		if modelsJSON {
			m := make(map[string]ai.ModelInfo, len(keys))
			for _, k := range keys {
				m[k] = cat[k]
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}

		fmt.Printf("%-28s %-8s %10s %12s %12s\n", "MODEL", "PROVIDER", "CONTEXT", "IN $/1K", "OUT $/1K")
		for _, k := range keys {
			mi := cat[k]
			fmt.Printf("%-28s %-8s %10d %12.5f %12.5f\n", k, mi.Provider, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "filter by provider: groq|gemini|openai")
	modelsCmd.Flags().StringVar(&modelsRecommend, "recommend", "", "print the recommended model for a tier: cheap|balanced|high-context")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "emit the catalog as JSON")
}
