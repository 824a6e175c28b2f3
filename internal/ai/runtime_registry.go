package ai

import "time"

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	APIKey      string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

func fillDefaults(c RuntimeConfig, timeout time.Duration) RuntimeConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = timeout
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 4 * time.Second
	}
	return c
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderGroq, func(c RuntimeConfig) Runtime {
		c = fillDefaults(c, 60*time.Second)
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, GroqBaseURL)
	})
	RegisterRuntime(ProviderOpenAI, func(c RuntimeConfig) Runtime {
		c = fillDefaults(c, 30*time.Second)
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, OpenAIBaseURL)
	})
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) Runtime {
		c = fillDefaults(c, 60*time.Second)
		return NewGeminiClient(c.APIKey, c.HTTPTimeout)
	})
}
