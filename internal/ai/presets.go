package ai

// PresetCatalog returns a built-in curated catalog for a known provider.
// The catalog can be merged or used to replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	switch provider {
	case ProviderGroq:
		return map[string]ModelInfo{
			"llama-3.1-8b-instant": {
				Name:          "llama-3.1-8b-instant",
				Provider:      ProviderGroq,
				ContextTokens: 131072,
				InputPerK:     0.00005,
				OutputPerK:    0.00008,
			},
			"llama-3.3-70b-versatile": {
				Name:          "llama-3.3-70b-versatile",
				Provider:      ProviderGroq,
				ContextTokens: 131072,
				InputPerK:     0.00059,
				OutputPerK:    0.00079,
			},
		}, true
	case ProviderGemini, "google":
		return map[string]ModelInfo{
			"gemini-2.0-flash-exp": {
				Name:          "gemini-2.0-flash-exp",
				Provider:      ProviderGemini,
				ContextTokens: 1000000,
				InputPerK:     0.0,
				OutputPerK:    0.0,
			},
			"gemini-1.5-flash": {
				Name:          "gemini-1.5-flash",
				Provider:      ProviderGemini,
				ContextTokens: 1000000,
				InputPerK:     0.0002,
				OutputPerK:    0.0008,
			},
			"gemini-1.5-pro": {
				Name:          "gemini-1.5-pro",
				Provider:      ProviderGemini,
				ContextTokens: 1000000,
				InputPerK:     0.00125,
				OutputPerK:    0.005,
			},
		}, true
	case ProviderOpenAI:
		return map[string]ModelInfo{
			"gpt-3.5-turbo": {
				Name:          "gpt-3.5-turbo",
				Provider:      ProviderOpenAI,
				ContextTokens: 16385,
				InputPerK:     0.0005,
				OutputPerK:    0.0015,
			},
			"gpt-4o-mini": {
				Name:          "gpt-4o-mini",
				Provider:      ProviderOpenAI,
				ContextTokens: 128000,
				InputPerK:     0.0006,
				OutputPerK:    0.0024,
			},
			"gpt-4o": {
				Name:          "gpt-4o",
				Provider:      ProviderOpenAI,
				ContextTokens: 128000,
				InputPerK:     0.005,
				OutputPerK:    0.015,
			},
		}, true
	default:
		return nil, false
	}
}

// RecommendModel returns a recommended model name for a given tier and provider.
// If provider is empty, defaults to Groq. Tiers: cheap|balanced|high-context.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderGroq
	}
	switch tier {
	case "cheap":
		switch provider {
		case ProviderGroq:
			return "llama-3.1-8b-instant", true
		case ProviderGemini, "google":
			return "gemini-1.5-flash", true
		case ProviderOpenAI:
			return "gpt-4o-mini", true
		}
	case "balanced":
		switch provider {
		case ProviderGroq:
			return "llama-3.3-70b-versatile", true
		case ProviderGemini, "google":
			return "gemini-2.0-flash-exp", true
		case ProviderOpenAI:
			return "gpt-4o", true
		}
	case "high-context":
		switch provider {
		case ProviderGroq:
			return "llama-3.3-70b-versatile", true
		case ProviderGemini, "google":
			return "gemini-1.5-pro", true // very large context
		case ProviderOpenAI:
			return "gpt-4o", true // 128k context
		}
	}
	return "", false
}
