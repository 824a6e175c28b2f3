package ai

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Per-provider defaults for the fallback chain.
const (
	DefaultGroqModel   = "llama-3.1-8b-instant"
	DefaultGeminiModel = "gemini-2.0-flash-exp"
	DefaultOpenAIModel = "gpt-3.5-turbo"

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000

	groqAttempts  = 2
	groqRetryWait = time.Second
)

func defaultModel(provider string) string {
	switch provider {
	case ProviderGroq:
		return DefaultGroqModel
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderOpenAI:
		return DefaultOpenAIModel
	}
	return ""
}

func defaultTimeout(provider string) time.Duration {
	if provider == ProviderOpenAI {
		return 30 * time.Second
	}
	return 60 * time.Second
}

// ChainProvider is one configured provider in the fallback chain.
type ChainProvider struct {
	Name    string
	Model   string
	Runtime Runtime
}

// ChainConfig selects which providers to build the chain from. A provider
// without an API key is left out. Model pins the same model name on every
// provider; the zero value keeps per-provider defaults.
type ChainConfig struct {
	GroqAPIKey   string
	GeminiAPIKey string
	OpenAIAPIKey string

	Model       string
	Temperature float64
	MaxTokens   int
	HTTPTimeout time.Duration
}

// Chain tries the provider that last worked, then walks the fallback ladder
// in priority order (Groq, then Gemini, then OpenAI). Groq gets a second
// attempt before the chain moves on; Gemini is skipped for the request when
// the active provider failed with a quota or rate limit signal.
type Chain struct {
	mu          sync.Mutex
	providers   []*ChainProvider
	active      int
	temperature float64
	maxTokens   int
	sleep       func(time.Duration)
}

// NewChain builds a fallback chain from the configured API keys.
func NewChain(cfg ChainConfig) (*Chain, error) {
	keys := map[string]string{
		ProviderGroq:   cfg.GroqAPIKey,
		ProviderGemini: cfg.GeminiAPIKey,
		ProviderOpenAI: cfg.OpenAIAPIKey,
	}
	c := &Chain{
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		sleep:       time.Sleep,
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	for _, name := range ProviderOrder {
		key := keys[name]
		if key == "" {
			continue
		}
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultTimeout(name)
		}
		rt, ok := GetRuntime(name, RuntimeConfig{APIKey: key, HTTPTimeout: timeout})
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		model := cfg.Model
		if model == "" {
			model = defaultModel(name)
		}
		c.providers = append(c.providers, &ChainProvider{Name: name, Model: model, Runtime: rt})
	}
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no AI providers configured: set at least one of GROQ_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY")
	}
	return c, nil
}

// NewChainFromProviders builds a chain over prebuilt runtimes (used in tests
// and by callers that manage their own clients).
func NewChainFromProviders(providers ...*ChainProvider) *Chain {
	return &Chain{
		providers:   providers,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		sleep:       time.Sleep,
	}
}

// Active reports the provider currently answering requests.
func (c *Chain) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active >= len(c.providers) {
		return ""
	}
	return c.providers[c.active].Name
}

// Providers lists configured provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

func (c *Chain) request(messages []Message, model string) GenerateRequest {
	return GenerateRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

// ladder returns provider indices in fallback order: the active provider
// first, then every remaining provider in chain priority order. Groq always
// gets revisited on the way down even after the chain has moved past it.
func (c *Chain) ladder(start int) []int {
	order := make([]int, 0, len(c.providers))
	order = append(order, start)
	for i := range c.providers {
		if i != start {
			order = append(order, i)
		}
	}
	return order
}

// Generate asks the active provider, walking the fallback ladder on failure.
// Gemini is skipped when the active provider's error carries a quota signal,
// since a quota-limited request pattern tends to trip its free tier too.
func (c *Chain) Generate(ctx context.Context, messages []Message) (*GenerateResponse, error) {
	c.mu.Lock()
	start := c.active
	c.mu.Unlock()

	var failures []error
	var primaryErr error
	for _, i := range c.ladder(start) {
		p := c.providers[i]
		if i != start && p.Name == ProviderGemini && isQuotaSignal(primaryErr) {
			failures = append(failures, fmt.Errorf("%s: skipped after quota signal from %s", p.Name, c.providers[start].Name))
			continue
		}
		resp, err := c.tryProvider(ctx, p, messages)
		if err == nil {
			resp.Provider = p.Name
			c.mu.Lock()
			c.active = i
			c.mu.Unlock()
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i == start {
			primaryErr = err
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name, err))
	}
	return nil, &AllProvidersFailedError{Errors: failures}
}

func (c *Chain) tryProvider(ctx context.Context, p *ChainProvider, messages []Message) (*GenerateResponse, error) {
	attempts := 1
	if p.Name == ProviderGroq {
		attempts = groqAttempts
	}
	var lastErr error
	for a := 0; a < attempts; a++ {
		if a > 0 {
			c.sleep(groqRetryWait)
		}
		resp, err := p.Runtime.Generate(ctx, c.request(messages, p.Model))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isQuotaSignal(err) {
			break
		}
	}
	return nil, lastErr
}

// GenerateStream walks the same ladder as Generate. Providers without
// native streaming deliver the full answer as a single delta.
func (c *Chain) GenerateStream(ctx context.Context, messages []Message, onDelta func(string)) (string, error) {
	c.mu.Lock()
	start := c.active
	c.mu.Unlock()

	var failures []error
	var primaryErr error
	for _, i := range c.ladder(start) {
		p := c.providers[i]
		if i != start && p.Name == ProviderGemini && isQuotaSignal(primaryErr) {
			failures = append(failures, fmt.Errorf("%s: skipped after quota signal from %s", p.Name, c.providers[start].Name))
			continue
		}
		var err error
		if sr, ok := p.Runtime.(StreamRuntime); ok {
			err = sr.GenerateStream(ctx, c.request(messages, p.Model), onDelta)
			if err == nil {
				c.mu.Lock()
				c.active = i
				c.mu.Unlock()
				return p.Name, nil
			}
		} else {
			var resp *GenerateResponse
			resp, err = c.tryProvider(ctx, p, messages)
			if err == nil {
				onDelta(resp.Text())
				c.mu.Lock()
				c.active = i
				c.mu.Unlock()
				return p.Name, nil
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if i == start {
			primaryErr = err
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name, err))
	}
	return "", &AllProvidersFailedError{Errors: failures}
}
