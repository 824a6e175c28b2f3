package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string `mapstructure:"default_model" yaml:"default_model"`

	// Provider credentials. Environment variables win: RWELENS_GROQ_API_KEY
	// falls back to the providers' conventional names (GROQ_API_KEY etc.).
	GroqAPIKey   string `mapstructure:"groq_api_key" yaml:"groq_api_key"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key"`

	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	PromptTokenLimit int     `mapstructure:"prompt_token_limit" yaml:"prompt_token_limit"`
	BudgetUSD        float64 `mapstructure:"budget_usd" yaml:"budget_usd"`
	Stream           bool    `mapstructure:"stream" yaml:"stream"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	StudiesDir string `mapstructure:"studies_dir" yaml:"studies_dir"`
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`

	// Dashboard server
	ServerAddr     string `mapstructure:"server_addr" yaml:"server_addr"`
	HistoryBackend string `mapstructure:"history_backend" yaml:"history_backend"`
	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr"`
	HistoryLimit   int    `mapstructure:"history_limit" yaml:"history_limit"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.rwelens/config.yaml, creating the directory if necessary.
// The file is written 0600 because it may contain provider API keys.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".rwelens")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("RWELENS")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("default_provider", "auto")
	v.SetDefault("default_model", "")
	v.SetDefault("max_tokens", 2000)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("prompt_token_limit", 8000)
	v.SetDefault("budget_usd", 0.0)
	v.SetDefault("stream", false)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Dashboard defaults
	v.SetDefault("server_addr", ":8787")
	v.SetDefault("history_backend", "memory")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("history_limit", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".rwelens")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Conventional env names used by the providers' own tooling.
	if c.GroqAPIKey == "" {
		c.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.StudiesDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.StudiesDir = filepath.Join(home, "RWELensStudies")
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".rwelens", "data")
	}
	return &c, nil
}
