package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type stubRuntime struct {
	calls int
	errs  []error
	text  string
}

func (s *stubRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: s.text}}}}, nil
}

type stubStreamRuntime struct {
	stubRuntime
	chunks []string
}

func (s *stubStreamRuntime) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return s.errs[i]
	}
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

func testChain(providers ...*ChainProvider) *Chain {
	c := NewChainFromProviders(providers...)
	c.sleep = func(time.Duration) {}
	return c
}

func TestChainUsesFirstProvider(t *testing.T) {
	groq := &stubRuntime{text: "from groq"}
	openai := &stubRuntime{text: "from openai"}
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: openai},
	)
	resp, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "from groq" || resp.Provider != ProviderGroq {
		t.Fatalf("unexpected response: %q from %s", resp.Text(), resp.Provider)
	}
	if openai.calls != 0 {
		t.Fatalf("openai should not be called, got %d calls", openai.calls)
	}
}

func TestChainRetriesGroqThenFallsOver(t *testing.T) {
	boom := errors.New("connection refused")
	groq := &stubRuntime{errs: []error{boom, boom}}
	openai := &stubRuntime{text: "from openai"}
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: openai},
	)
	resp, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if groq.calls != 2 {
		t.Fatalf("expected groq retried twice, got %d calls", groq.calls)
	}
	if resp.Provider != ProviderOpenAI {
		t.Fatalf("expected openai to answer, got %s", resp.Provider)
	}
	if c.Active() != ProviderOpenAI {
		t.Fatalf("expected active provider openai, got %s", c.Active())
	}
}

func TestChainSticksToWorkingProvider(t *testing.T) {
	boom := errors.New("bad gateway")
	groq := &stubRuntime{errs: []error{boom, boom, boom, boom}}
	openai := &stubRuntime{text: "ok"}
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: openai},
	)
	if _, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "one"}}); err != nil {
		t.Fatalf("first Generate error: %v", err)
	}
	if _, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "two"}}); err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	// Active moved to openai after the first failure, so the second request
	// should not have touched groq again.
	if groq.calls != 2 {
		t.Fatalf("expected groq called only for first request, got %d calls", groq.calls)
	}
	if openai.calls != 2 {
		t.Fatalf("expected openai to answer both requests, got %d calls", openai.calls)
	}
}

func TestChainQuotaSignalSkipsGemini(t *testing.T) {
	rl := &RateLimitError{APIError: &APIError{StatusCode: http.StatusTooManyRequests, Message: "quota exceeded"}}
	groq := &stubRuntime{errs: []error{rl}}
	gemini := &stubRuntime{text: "from gemini"}
	openai := &stubRuntime{text: "from openai"}
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq},
		&ChainProvider{Name: ProviderGemini, Model: DefaultGeminiModel, Runtime: gemini},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: openai},
	)
	resp, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if groq.calls != 1 {
		t.Fatalf("quota errors should not be retried locally, got %d calls", groq.calls)
	}
	if gemini.calls != 0 {
		t.Fatalf("gemini should be skipped after a quota signal, got %d calls", gemini.calls)
	}
	if resp.Provider != ProviderOpenAI {
		t.Fatalf("expected openai to answer, got %s", resp.Provider)
	}
}

func TestChainLadderRevisitsGroq(t *testing.T) {
	boom := errors.New("bad gateway")
	groq := &stubRuntime{errs: []error{boom, boom, boom, boom}}
	gemini := &stubRuntime{errs: []error{nil, boom}, text: "from gemini"}
	openai := &stubRuntime{text: "from openai"}
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq},
		&ChainProvider{Name: ProviderGemini, Model: DefaultGeminiModel, Runtime: gemini},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: openai},
	)
	resp, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "one"}})
	if err != nil {
		t.Fatalf("first Generate error: %v", err)
	}
	if resp.Provider != ProviderGemini || c.Active() != ProviderGemini {
		t.Fatalf("expected gemini active after first request, got %s", c.Active())
	}

	// Gemini fails the second request. The ladder must come back around to
	// Groq (two attempts) before reaching OpenAI.
	resp, err = c.Generate(context.Background(), []Message{{Role: "user", Content: "two"}})
	if err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	if groq.calls != 4 {
		t.Fatalf("expected groq retried twice on the second request, got %d total calls", groq.calls)
	}
	if resp.Provider != ProviderOpenAI || c.Active() != ProviderOpenAI {
		t.Fatalf("expected openai to answer the second request, got %s", resp.Provider)
	}
}

func TestChainAllProvidersFailed(t *testing.T) {
	boom := errors.New("boom")
	c := testChain(
		&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: &stubRuntime{errs: []error{boom, boom}}},
		&ChainProvider{Name: ProviderOpenAI, Model: DefaultOpenAIModel, Runtime: &stubRuntime{errs: []error{boom}}},
	)
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %T: %v", err, err)
	}
	if len(all.Errors) != 2 {
		t.Fatalf("expected one failure per provider, got %d", len(all.Errors))
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error to unwrap")
	}
}

func TestChainStreamFallsBackToSingleDelta(t *testing.T) {
	groq := &stubRuntime{text: "whole answer"}
	c := testChain(&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq})
	var got string
	provider, err := c.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(d string) { got += d })
	if err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if provider != ProviderGroq || got != "whole answer" {
		t.Fatalf("unexpected stream result: provider=%s text=%q", provider, got)
	}
}

func TestChainStreamUsesNativeStreaming(t *testing.T) {
	groq := &stubStreamRuntime{chunks: []string{"hello ", "world"}}
	c := testChain(&ChainProvider{Name: ProviderGroq, Model: DefaultGroqModel, Runtime: groq})
	var got string
	if _, err := c.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(d string) { got += d }); err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("unexpected stream accumulation: %q", got)
	}
}

func TestNewChainRequiresAKey(t *testing.T) {
	if _, err := NewChain(ChainConfig{}); err == nil {
		t.Fatalf("expected error when no API keys are set")
	}
	c, err := NewChain(ChainConfig{GroqAPIKey: "k1", OpenAIAPIKey: "k2"})
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}
	want := []string{ProviderGroq, ProviderOpenAI}
	got := c.Providers()
	if len(got) != len(want) {
		t.Fatalf("unexpected providers: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected provider order: %v", got)
		}
	}
}

func TestIsQuotaSignal(t *testing.T) {
	if !isQuotaSignal(&QuotaExceededError{APIError: &APIError{StatusCode: 402, Message: "billing"}}) {
		t.Fatalf("quota error should be a quota signal")
	}
	if !isQuotaSignal(errors.New("429 RESOURCE_EXHAUSTED: quota exceeded")) {
		t.Fatalf("429 message should be a quota signal")
	}
	if isQuotaSignal(errors.New("connection refused")) {
		t.Fatalf("network error should not be a quota signal")
	}
}
