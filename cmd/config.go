package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rwelens/rwelens-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set RWE Lens configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("groq_api_key: %s\n", mask(cfg.GroqAPIKey))
		fmt.Printf("gemini_api_key: %s\n", mask(cfg.GeminiAPIKey))
		fmt.Printf("openai_api_key: %s\n", mask(cfg.OpenAIAPIKey))
		fmt.Printf("default_provider: %s\n", cfg.DefaultProvider)
		fmt.Printf("default_model: %s\n", cfg.DefaultModel)
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		if cfg.BudgetUSD > 0 {
			fmt.Printf("budget_usd: %.4f\n", cfg.BudgetUSD)
		}
		fmt.Printf("studies_dir: %s\n", cfg.StudiesDir)
		fmt.Printf("data_dir: %s\n", cfg.DataDir)
		fmt.Printf("server_addr: %s\n", cfg.ServerAddr)
		fmt.Printf("history_backend: %s\n", cfg.HistoryBackend)
		if cfg.HistoryBackend == "redis" {
			fmt.Printf("redis_addr: %s\n", cfg.RedisAddr)
		}
		fmt.Printf("history_limit: %d\n", cfg.HistoryLimit)
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "groq_api_key":
			cfg.GroqAPIKey = val
		case "gemini_api_key":
			cfg.GeminiAPIKey = val
		case "openai_api_key":
			cfg.OpenAIAPIKey = val
		case "default_provider":
			switch val {
			case "groq", "gemini", "openai", "auto":
				cfg.DefaultProvider = val
			default:
				return fmt.Errorf("invalid default_provider: %s (use groq|gemini|openai|auto)", val)
			}
		case "default_model":
			cfg.DefaultModel = val
		case "max_tokens":
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid int for max_tokens: %w", err)
			}
			cfg.MaxTokens = i
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid float for temperature: %w", err)
			}
			cfg.Temperature = f
		case "budget_usd":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid float for budget_usd: %v", val)
			}
			cfg.BudgetUSD = f
		case "studies_dir":
			cfg.StudiesDir = val
		case "data_dir":
			cfg.DataDir = val
		case "server_addr":
			cfg.ServerAddr = val
		case "history_backend":
			switch val {
			case "memory", "redis":
				cfg.HistoryBackend = val
			default:
				return fmt.Errorf("invalid history_backend: %s (use memory or redis)", val)
			}
		case "redis_addr":
			cfg.RedisAddr = val
		case "history_limit":
			i, err := strconv.Atoi(val)
			if err != nil || i < 1 {
				return fmt.Errorf("invalid int for history_limit: %v", val)
			}
			cfg.HistoryLimit = i
		case "log_level":
			cfg.LogLevel = val
		case "log_format":
			cfg.LogFormat = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
