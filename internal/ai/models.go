package ai

import (
	"encoding/json"
	"os"
)

// Model metadata and simple pricing helpers for UX warnings.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	// Groq hosted Llama models
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
	// Google Gemini
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
	// OpenAI
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
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// ---- Sync/override helpers ----

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example JSON entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","Provider":"openai","ContextTokens":128000,"InputPerK":0.0006,"OutputPerK":0.0024} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	var m map[string]ModelInfo
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// OverrideCatalog replaces the in-memory catalog entirely.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	models = m
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
