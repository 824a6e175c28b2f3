package cmd

import (
	"crypto/sha1"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/ai"
	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/chat"
	"github.com/rwelens/rwelens-cli/internal/utils"
)

var (
	repStudyName   string
	repOutputPath  string
	repDryRun      bool
	repQuiet       bool
	repStream      bool
	repPromptLimit int
	repBudgetLimit float64
)

const reportInstructions = `Write a structured real-world evidence study report from the dataset
context above. Cover: study population and demographics, treatment
effectiveness (Mounjaro vs lifestyle intervention, with the statistical
test results), safety profile (adverse events and hospitalizations),
adherence, and a short conclusions section. Use markdown headings.
Base every claim on the numbers provided; do not invent data.`

var reportCmd = &cobra.Command{
	Use:   "report [dataset-id|file]",
	Short: "Generate an AI-written narrative study report",
	Example: `  rwelens report -s mounjaro -o report.md
  rwelens report mounjaro_2023.csv --dry-run
  rwelens report -s mounjaro --budget 0.05 --no-stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		ds, s, err := resolveDataset(arg, repStudyName)
		if err != nil {
			return err
		}

		summary := analysis.Summary(ds)
		var sb strings.Builder
		sb.WriteString(chat.BuildContext(summary))
		if notes := chatNotes(s); notes != "" {
			sb.WriteString("\n\nSTUDY NOTES:\n")
			sb.WriteString(notes)
		}
		sb.WriteString("\n\n")
		sb.WriteString(reportInstructions)
		prompt := sb.String()
		tokens := utils.CountTokens(prompt)

		// Optional prompt cap before proceeding
		if repPromptLimit > 0 && tokens > repPromptLimit {
			if !repQuiet {
				fmt.Printf("⚠ Prompt exceeds limit (%d > %d). Truncating before send...\n", tokens, repPromptLimit)
			}
			prompt = utils.TruncateToTokenLimit(prompt, repPromptLimit)
			tokens = utils.CountTokens(prompt)
		}

		model := selectModel(s, cfg, "")
		maxTokens := ai.DefaultMaxTokens
		if cfg != nil && cfg.MaxTokens > 0 {
			maxTokens = cfg.MaxTokens
		}
		if !repQuiet {
			fmt.Printf("Tokens: prompt≈%d, max response %d\n", tokens, maxTokens)
		}

		// Pricing preflight when the model is in the catalog.
		var estCost float64
		lookup := model
		if lookup == "" {
			lookup = ai.DefaultGroqModel
		}
		if mi, ok := ai.LookupModel(lookup); ok {
			if tokens+maxTokens > mi.ContextTokens {
				if !repQuiet {
					fmt.Printf("⚠ Prompt (%d tokens) + max-tokens (%d) exceeds %s context window (~%d tokens).\n",
						tokens, maxTokens, mi.Name, mi.ContextTokens)
				}
			}
			if cost, ok := ai.EstimateCostUSD(lookup, tokens, maxTokens); ok {
				estCost = cost
				if !repQuiet {
					fmt.Printf("Estimated max cost: ~$%.4f (in %.4f/out %.4f per 1K tokens)\n", cost, mi.InputPerK, mi.OutputPerK)
				}
			}
		}
		budget := repBudgetLimit
		if budget == 0 && cfg != nil {
			budget = cfg.BudgetUSD
		}
		if err := enforceBudget(estCost, budget); err != nil {
			return err
		}

		if repDryRun {
			if !repQuiet {
				// Deterministic dry-run request id for observability
				sum := sha1.Sum([]byte(prompt))
				rid := fmt.Sprintf("sim_%x", sum[:6])
				fmt.Println("\n--dry-run: no API call will be made. Prompt preview below --")
				fmt.Printf("Request ID (dry-run): %s\n", rid)
			}
			fmt.Println(prompt)
			return nil
		}

		chain, err := buildChain(cfg, "", model)
		if err != nil {
			return err
		}
		if !repQuiet {
			fmt.Printf("⚙ Generating report (providers: %s) ...\n", strings.Join(chain.Providers(), " → "))
		}

		messages := []ai.Message{{Role: "user", Content: prompt}}
		var content string
		if repStream {
			var full strings.Builder
			provider, err := chain.GenerateStream(cmd.Context(), messages, func(delta string) {
				full.WriteString(delta)
				if repOutputPath == "" {
					fmt.Print(delta)
				}
			})
			if repOutputPath == "" {
				fmt.Println()
			}
			if err != nil {
				return aiErrorHint(err, model)
			}
			if !repQuiet {
				fmt.Fprintf(os.Stderr, "(provider: %s)\n", provider)
			}
			content = full.String()
		} else {
			resp, err := chain.Generate(cmd.Context(), messages)
			if err != nil {
				return aiErrorHint(err, model)
			}
			if resp.RequestID != "" && !repQuiet {
				fmt.Printf("Request ID: %s\n", resp.RequestID)
			}
			content = resp.Text()
			if repOutputPath == "" {
				fmt.Println(content)
			}
		}
		if content == "" {
			return fmt.Errorf("no content returned from model")
		}

		if repOutputPath != "" {
			if err := os.WriteFile(repOutputPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if !repQuiet {
				fmt.Printf("💾 Saved report to %s\n", repOutputPath)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&repStudyName, "study", "s", "", "study name (dataset id defaults to the latest attached)")
	reportCmd.Flags().StringVarP(&repOutputPath, "output", "o", "", "write the report to this path")
	reportCmd.Flags().BoolVar(&repDryRun, "dry-run", false, "build the prompt and print token breakdown without calling the API")
	reportCmd.Flags().BoolVar(&repQuiet, "quiet", false, "suppress non-essential output")
	reportCmd.Flags().BoolVar(&repStream, "stream", true, "stream the response as it is generated")
	reportCmd.Flags().IntVar(&repPromptLimit, "prompt-limit", 0, "truncate the built prompt to this many tokens before sending")
	reportCmd.Flags().Float64Var(&repBudgetLimit, "budget", 0, "fail if estimated max cost (USD) exceeds this budget")
}
