package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/rwelens/rwelens-cli/internal/ai"
	cfgpkg "github.com/rwelens/rwelens-cli/internal/config"
	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/study"
)

// buildChain assembles the provider fallback chain from configured API keys.
// A non-empty provider pins the chain to that single provider.
func buildChain(cfg *cfgpkg.Global, provider, model string) (*ai.Chain, error) {
	cc := ai.ChainConfig{}
	if cfg != nil {
		cc.GroqAPIKey = cfg.GroqAPIKey
		cc.GeminiAPIKey = cfg.GeminiAPIKey
		cc.OpenAIAPIKey = cfg.OpenAIAPIKey
		cc.Temperature = cfg.Temperature
		cc.MaxTokens = cfg.MaxTokens
		if cfg.HTTPTimeoutSec > 0 {
			cc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if model == "" {
			model = cfg.DefaultModel
		}
		if provider == "" {
			provider = cfg.DefaultProvider
		}
	}
	cc.Model = model

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "auto":
	case ai.ProviderGroq:
		if cc.GroqAPIKey == "" {
			return nil, errors.New("provider groq selected but GROQ_API_KEY is not set")
		}
		cc.GeminiAPIKey, cc.OpenAIAPIKey = "", ""
	case ai.ProviderGemini, "google":
		if cc.GeminiAPIKey == "" {
			return nil, errors.New("provider gemini selected but GEMINI_API_KEY is not set")
		}
		cc.GroqAPIKey, cc.OpenAIAPIKey = "", ""
	case ai.ProviderOpenAI:
		if cc.OpenAIAPIKey == "" {
			return nil, errors.New("provider openai selected but OPENAI_API_KEY is not set")
		}
		cc.GroqAPIKey, cc.GeminiAPIKey = "", ""
	default:
		return nil, fmt.Errorf("unknown provider: %s (use groq|gemini|openai|auto)", provider)
	}
	return ai.NewChain(cc)
}

// selectModel resolves the model to request: CLI flag, then study config,
// then global config. Empty keeps each provider's default.
func selectModel(s *study.Study, cfg *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if s != nil && s.Config != nil && s.Config.Model != "" {
		return s.Config.Model
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return ""
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("✗ Estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// aiErrorHint wraps provider failures with actionable hints.
func aiErrorHint(err error, model string) error {
	var (
		allErr  *ai.AllProvidersFailedError
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &allErr):
		return fmt.Errorf("every configured AI provider failed. Check the per-provider errors below and your API keys (GROQ_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY): %w", err)
	case errors.As(err, &unreach):
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set the provider API key in the environment or in ~/.rwelens/config.yaml: %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		return fmt.Errorf("model not found (%s). Verify the model name with 'rwelens models': %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try reducing prompt size or max-tokens: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	default:
		return fmt.Errorf("generation failed: %w", err)
	}
}

// renderAnswer pretty-prints markdown answers for the terminal. Plain mode
// and renderer failures fall back to the raw text.
func renderAnswer(text string, plain bool) string {
	if plain {
		return text
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// resolveDataset loads the dataset a command operates on: a dataset id inside
// a study (empty arg means the most recently attached one), or a standalone
// tabular file when no study is given.
func resolveDataset(arg, studyName string) (*study.Dataset, *study.Study, error) {
	if studyName != "" {
		s, err := loadStudyByName(studyName)
		if err != nil {
			return nil, nil, err
		}
		if arg == "" {
			ds, err := s.ActiveDataset()
			return ds, s, err
		}
		if _, ok := s.Datasets[arg]; ok {
			ds, err := s.Dataset(arg)
			return ds, s, err
		}
		ds, err := datasetFromFile(arg)
		return ds, s, err
	}
	if arg == "" {
		return nil, nil, errors.New("provide a dataset file, or a dataset id with --study")
	}
	ds, err := datasetFromFile(arg)
	return ds, nil, err
}

func datasetFromFile(path string) (*study.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset %s: not a study dataset id and not a readable file", path)
	}
	doc, err := ingest.ParseFile(path)
	if err != nil {
		return nil, err
	}
	tab, err := doc.FirstTable()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ds, err := study.FromTable(name, tab)
	if err != nil {
		return nil, err
	}
	ds.SourcePath = path
	return ds, nil
}
