package ai

import "context"

// Runtime is a minimal interface implemented by AI backends such as Groq,
// Gemini and OpenAI. It aligns to the shared request/response types in
// this package.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection. Order of the
// fallback chain is Groq first, then Gemini, then OpenAI.
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ProviderOrder is the fallback priority used when no provider is pinned.
var ProviderOrder = []string{ProviderGroq, ProviderGemini, ProviderOpenAI}

// StreamRuntime is an optional extension that supports streaming output.
// Implementors should invoke onDelta with each partial content chunk.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}
