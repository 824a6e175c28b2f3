package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient adapts the Google GenAI SDK to the Runtime interface so the
// fallback chain can treat Gemini like the OpenAI-compatible providers.
type GeminiClient struct {
	apiKey     string
	httpClient *http.Client

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient returns a Gemini runtime. The underlying SDK client is
// created on first use.
func NewGeminiClient(apiKey string, httpTimeout time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

func (g *GeminiClient) init(ctx context.Context) error {
	g.once.Do(func() {
		if g.apiKey == "" {
			g.initErr = errors.New("API key is missing")
			return
		}
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     g.apiKey,
			HTTPClient: g.httpClient,
		})
	})
	return g.initErr
}

func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := g.init(ctx); err != nil {
		return nil, err
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	// System messages become the system instruction; the rest form the
	// conversation turns.
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("no user messages in request")
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	out := &GenerateResponse{
		Choices:  []Choice{{Message: Message{Role: "assistant", Content: text.String()}}},
		Provider: ProviderGemini,
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// classifyGeminiError maps SDK errors into the shared error taxonomy so the
// chain's skip logic works the same for every provider.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "resource_exhausted") || strings.Contains(msg, "429"):
		return &RateLimitError{APIError: &APIError{StatusCode: http.StatusTooManyRequests, Message: msg}}
	case strings.Contains(lower, "quota"):
		return &QuotaExceededError{APIError: &APIError{StatusCode: http.StatusTooManyRequests, Message: msg}}
	case strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "permission_denied") || strings.Contains(lower, "api key"):
		return &AuthError{APIError: &APIError{StatusCode: http.StatusUnauthorized, Message: msg}}
	case strings.Contains(lower, "not_found") || strings.Contains(lower, "not found"):
		return &ModelNotFoundError{APIError: &APIError{StatusCode: http.StatusNotFound, Message: msg}}
	case strings.Contains(lower, "invalid_argument"):
		return &BadRequestError{APIError: &APIError{StatusCode: http.StatusBadRequest, Message: msg}}
	}
	return fmt.Errorf("gemini request: %w", err)
}
