package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/chat"
	"github.com/rwelens/rwelens-cli/internal/history"
	"github.com/rwelens/rwelens-cli/internal/study"
)

var (
	chatStudyName string
	chatDatasetID string
	chatPlain     bool
	chatNoStream  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask the AI assistant about a dataset (one-shot or interactive)",
	Example: `  rwelens chat -s mounjaro "How effective is Mounjaro compared to lifestyle intervention?"
  rwelens chat -s mounjaro            # interactive session
  rwelens chat mounjaro_2023.csv --plain --no-stream "What is the adverse event rate?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := chatDatasetID
		question := ""
		if len(args) == 1 {
			// A file path argument doubles as the dataset when no study is set.
			if chatStudyName == "" && chatDatasetID == "" {
				if _, err := os.Stat(args[0]); err == nil {
					arg = args[0]
				} else {
					question = args[0]
				}
			} else {
				question = args[0]
			}
		}
		ds, s, err := resolveDataset(arg, chatStudyName)
		if err != nil {
			return err
		}

		model := selectModel(s, cfg, "")
		chain, err := buildChain(cfg, "", model)
		if err != nil {
			return err
		}

		store, cleanup, err := buildHistoryStore(cmd.Context(), ds.ID)
		if err != nil {
			return err
		}
		defer cleanup()

		assistant := chat.New(chain, analysis.Summary(ds), store)
		notes := chatNotes(s)

		if question != "" {
			return askOnce(cmd.Context(), assistant, chain.Active, question, notes)
		}
		return chatREPL(cmd.Context(), assistant, chain, ds, notes)
	},
}

// buildHistoryStore picks the configured history backend. Redis keeps
// conversation history across sessions; memory is per-process.
func buildHistoryStore(ctx context.Context, session string) (history.Store, func(), error) {
	limit := history.DefaultLimit
	backend := "memory"
	if cfg != nil {
		if cfg.HistoryLimit > 0 {
			limit = cfg.HistoryLimit
		}
		if cfg.HistoryBackend != "" {
			backend = cfg.HistoryBackend
		}
	}
	switch backend {
	case "memory":
		return history.NewMemory(limit), func() {}, nil
	case "redis":
		addr := "127.0.0.1:6379"
		if cfg != nil && cfg.RedisAddr != "" {
			addr = cfg.RedisAddr
		}
		r, err := history.NewRedis(ctx, addr, session, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("connect history backend: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown history_backend: %s (use memory or redis)", backend)
	}
}

// chatNotes combines study instructions and attached notes for the prompt.
func chatNotes(s *study.Study) string {
	if s == nil {
		return ""
	}
	notes := s.BuildChatNotes()
	if s.Instructions != "" {
		notes = s.Instructions + "\n\n" + notes
	}
	return strings.TrimSpace(notes)
}

func askOnce(ctx context.Context, assistant *chat.Assistant, active func() string, question, notes string) error {
	if chatNoStream {
		answer, err := assistant.Ask(ctx, question, notes)
		if err != nil {
			fmt.Println(assistant.FallbackAnswer(question, err))
			return aiErrorHint(err, "")
		}
		fmt.Print(renderAnswer(answer, chatPlain))
		if verbose {
			fmt.Fprintf(os.Stderr, "(provider: %s)\n", active())
		}
		return nil
	}
	provider, err := assistant.AskStream(ctx, question, notes, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()
	if err != nil {
		fmt.Println(assistant.FallbackAnswer(question, err))
		return aiErrorHint(err, "")
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "(provider: %s)\n", provider)
	}
	return nil
}

func chatREPL(ctx context.Context, assistant *chat.Assistant, chain interface{ Active() string }, ds *study.Dataset, notes string) error {
	fmt.Printf("⚙ Chatting about %s (%d patients). Type /quit to exit, /suggest for ideas.\n", ds.Name, len(ds.Patients))
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/quit", "/exit":
			return nil
		case "/suggest":
			for _, g := range chat.SuggestedQuestions() {
				fmt.Printf("%s:\n", g.Topic)
				for _, q := range g.Questions {
					fmt.Printf("  - %s\n", q)
				}
			}
			continue
		case "/stats":
			printQuickStats(assistant.Stats())
			continue
		case "/history":
			summary, err := assistant.HistorySummary(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠ history: %v\n", err)
				continue
			}
			fmt.Println(summary)
			continue
		case "/clear":
			if err := assistant.ClearHistory(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "⚠ clear history: %v\n", err)
				continue
			}
			fmt.Println("✓ Conversation history cleared")
			continue
		}
		if err := askOnce(ctx, assistant, chain.Active, line, notes); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		}
	}
}

func printQuickStats(qs chat.QuickStats) {
	fmt.Printf("Patients:                 %d\n", qs.TotalPatients)
	fmt.Printf("Countries:                %d\n", qs.TotalCountries)
	fmt.Printf("Mounjaro success rate:    %.1f%%\n", qs.MounjaroSuccessRate)
	fmt.Printf("Lifestyle success rate:   %.1f%%\n", qs.LifestyleSuccessRate)
	fmt.Printf("Mean weight loss (Mjr):   %.1f kg\n", qs.MeanWeightLossMjr)
	fmt.Printf("Mean weight loss (Life):  %.1f kg\n", qs.MeanWeightLossLife)
	fmt.Printf("Adverse event rate:       %.1f%%\n", qs.AdverseEventRate)
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatStudyName, "study", "s", "", "study name")
	chatCmd.Flags().StringVar(&chatDatasetID, "dataset", "", "dataset id (defaults to the latest attached)")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "disable markdown rendering of answers")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for the full answer instead of streaming")
}
