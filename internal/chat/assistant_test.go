package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rwelens/rwelens-cli/internal/ai"
	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/history"
	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/study"
)

func chatSummary(t *testing.T) *analysis.DataSummary {
	t.Helper()
	tab := &ingest.Table{
		Header: []string{
			"patient_id", "age", "sex", "country", "intervention",
			"start_date", "end_date", "baseline_bmi", "followup_bmi",
			"weight_change_kg", "adherence_rate", "outcome",
			"adverse_event", "hospitalizations", "comorbidities",
		},
		Rows: [][]string{
			{"P001", "52", "Female", "Germany", "Mounjaro", "2023-01-01", "2023-07-01", "36", "31", "-10", "0.9", "Significant Weight Loss", "Nausea", "0", "Type 2 Diabetes"},
			{"P002", "45", "Male", "Germany", "Mounjaro", "2023-01-01", "2023-06-01", "33", "30", "-8", "0.85", "Moderate Weight Loss", "None", "0", "None"},
			{"P003", "50", "Male", "France", "LifestyleOnly", "2023-01-01", "2023-07-01", "32", "31.5", "-2", "0.6", "No Change", "None", "0", "Hypertension"},
			{"P004", "60", "Female", "France", "LifestyleOnly", "2023-01-01", "2023-06-01", "31", "30.5", "-3", "0.7", "Moderate Weight Loss", "None", "1", "None"},
		},
	}
	ds, err := study.FromTable("chat", tab)
	if err != nil {
		t.Fatalf("FromTable: %v", err)
	}
	return analysis.Summary(ds)
}

type scriptedEngine struct {
	prompts []string
	answer  string
	err     error
}

func (s *scriptedEngine) Generate(_ context.Context, messages []ai.Message) (*ai.GenerateResponse, error) {
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{
		Choices:  []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.answer}}},
		Provider: ai.ProviderGroq,
	}, nil
}

func (s *scriptedEngine) GenerateStream(ctx context.Context, messages []ai.Message, onDelta func(string)) (string, error) {
	resp, err := s.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	onDelta(resp.Text())
	return resp.Provider, nil
}

func (s *scriptedEngine) Active() string { return ai.ProviderGroq }

func TestBuildContextSections(t *testing.T) {
	got := BuildContext(chatSummary(t))
	for _, want := range []string{
		"information about 4 patients",
		"DATASET OVERVIEW:",
		"- Total Patients: 4",
		"- Countries: Germany, France",
		"- Study Period: 2023-01-01 to 2023-07-01",
		"- Interventions: Mounjaro, LifestyleOnly",
		"DEMOGRAPHICS:",
		"CLINICAL MEASURES:",
		"TREATMENT EFFECTIVENESS:",
		"OUTCOME DISTRIBUTION:",
		"STATISTICAL FINDINGS:",
		"Mounjaro Vs Lifestyle:",
		"KEY INSIGHTS:",
		"ADVERSE EVENTS:",
		"- Total patients with adverse events: 1",
		"HOSPITALIZATIONS:",
		"1. Use specific numbers and statistics from the data",
		"You can discuss:",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("context missing %q", want)
		}
	}
}

func TestAskRecordsHistoryAndReplaysIt(t *testing.T) {
	ctx := context.Background()
	engine := &scriptedEngine{answer: "Mounjaro patients lost 9 kg on average."}
	a := New(engine, chatSummary(t), nil)

	answer, err := a.Ask(ctx, "How much weight did Mounjaro patients lose?", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != engine.answer {
		t.Fatalf("answer = %q", answer)
	}
	if !strings.Contains(engine.prompts[0], "Current question: How much weight did Mounjaro patients lose?") {
		t.Fatalf("prompt missing question")
	}
	if strings.Contains(engine.prompts[0], "Previous conversation:") {
		t.Fatalf("first prompt should have no history")
	}

	if _, err := a.Ask(ctx, "And lifestyle patients?", ""); err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	second := engine.prompts[1]
	if !strings.Contains(second, "Previous conversation:") {
		t.Fatalf("second prompt missing history")
	}
	if !strings.Contains(second, "Q: How much weight did Mounjaro patients lose?") {
		t.Fatalf("second prompt missing prior question")
	}

	entries, err := a.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 || entries[0].Provider != ai.ProviderGroq {
		t.Fatalf("history = %+v", entries)
	}
}

func TestAskTruncatesLongAnswersInHistory(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", 500)
	engine := &scriptedEngine{answer: long}
	a := New(engine, chatSummary(t), history.NewMemory(10))

	if _, err := a.Ask(ctx, "first", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := a.Ask(ctx, "second", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	replayed := engine.prompts[1]
	if !strings.Contains(replayed, strings.Repeat("x", 200)+"...") {
		t.Fatalf("expected truncated answer in replayed history")
	}
	if strings.Contains(replayed, strings.Repeat("x", 201)) {
		t.Fatalf("replayed answer not truncated to 200 chars")
	}
}

func TestAskStreamAccumulates(t *testing.T) {
	ctx := context.Background()
	engine := &scriptedEngine{answer: "streamed answer"}
	a := New(engine, chatSummary(t), nil)

	var got string
	provider, err := a.AskStream(ctx, "stream it", "", func(d string) { got += d })
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	if provider != ai.ProviderGroq || got != "streamed answer" {
		t.Fatalf("stream result: provider=%s text=%q", provider, got)
	}
	entries, _ := a.History(ctx)
	if len(entries) != 1 || entries[0].Answer != "streamed answer" {
		t.Fatalf("history = %+v", entries)
	}
}

func TestAskIncludesNotes(t *testing.T) {
	engine := &scriptedEngine{answer: "ok"}
	a := New(engine, chatSummary(t), nil)
	if _, err := a.Ask(context.Background(), "q", "--- Note: protocol ---\ndosing schedule"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(engine.prompts[0], "STUDY NOTES:") || !strings.Contains(engine.prompts[0], "dosing schedule") {
		t.Fatalf("prompt missing study notes")
	}
}

func TestFallbackAnswerMatchesIntents(t *testing.T) {
	a := New(&scriptedEngine{answer: "ok"}, chatSummary(t), nil)
	failure := &ai.AllProvidersFailedError{Errors: []error{
		errors.New("groq: 429 quota exceeded"),
		errors.New("openai: connection refused"),
	}}

	msg := a.FallbackAnswer("How effective is Mounjaro?", failure)
	if !strings.Contains(msg, "Mounjaro: 50.0% of patients achieved significant weight loss") {
		t.Fatalf("effectiveness numbers missing: %q", msg)
	}
	if !strings.Contains(msg, "groq: 429 quota exceeded") || !strings.Contains(msg, "openai: connection refused") {
		t.Fatalf("provider errors missing: %q", msg)
	}

	msg = a.FallbackAnswer("What are the adverse event risks?", failure)
	if !strings.Contains(msg, "Adverse events were recorded for 25.0% of the 4 patients") {
		t.Fatalf("safety numbers missing: %q", msg)
	}
	if strings.Contains(msg, "significant weight loss") {
		t.Fatalf("unrelated intent lines present: %q", msg)
	}

	// Questions with no recognizable intent still get grounded numbers.
	msg = a.FallbackAnswer("tell me something", errors.New("weird"))
	if !strings.Contains(msg, "4 patients across 2 countries") {
		t.Fatalf("default fallback missing data: %q", msg)
	}
	if !strings.Contains(msg, "weird") {
		t.Fatalf("single error missing: %q", msg)
	}
}

func TestDetectIntents(t *testing.T) {
	got := DetectIntents("Compare adverse event rates between men and women")
	want := map[string]bool{"safety": true, "demographics": true, "statistics": true, "comparison": true}
	if len(got) != len(want) {
		t.Fatalf("intents = %v", got)
	}
	for _, g := range got {
		if !want[g] {
			t.Fatalf("unexpected intent %q in %v", g, got)
		}
	}
	if intents := DetectIntents("hello there"); len(intents) != 0 {
		t.Fatalf("expected no intents, got %v", intents)
	}
}

func TestSuggestedQuestions(t *testing.T) {
	groups := SuggestedQuestions()
	if len(groups) != 6 {
		t.Fatalf("expected 6 question groups, got %d", len(groups))
	}
	seen := map[string]bool{}
	total := 0
	for _, g := range groups {
		if g.Topic == "" {
			t.Fatalf("group with empty topic")
		}
		if len(g.Questions) != 4 {
			t.Fatalf("group %q has %d questions", g.Topic, len(g.Questions))
		}
		for _, q := range g.Questions {
			if seen[q] {
				t.Fatalf("duplicate question %q", q)
			}
			seen[q] = true
			total++
		}
	}
	if total != 24 {
		t.Fatalf("expected 24 questions overall, got %d", total)
	}
}

func TestQuickStats(t *testing.T) {
	a := New(&scriptedEngine{answer: "ok"}, chatSummary(t), nil)
	qs := a.Stats()
	if qs.TotalPatients != 4 || qs.TotalCountries != 2 {
		t.Fatalf("quick stats = %+v", qs)
	}
	if qs.MounjaroSuccessRate != 50.0 {
		t.Fatalf("mounjaro success rate = %v", qs.MounjaroSuccessRate)
	}
	if qs.MeanWeightLossMjr != -9.0 || qs.MeanWeightLossLife != -2.5 {
		t.Fatalf("mean weight loss = %v / %v", qs.MeanWeightLossMjr, qs.MeanWeightLossLife)
	}
	if qs.AdverseEventRate != 25.0 {
		t.Fatalf("adverse event rate = %v", qs.AdverseEventRate)
	}
}

func TestHistorySummaryAndClear(t *testing.T) {
	ctx := context.Background()
	a := New(&scriptedEngine{answer: "short answer"}, chatSummary(t), nil)

	msg, err := a.HistorySummary(ctx)
	if err != nil || msg != "No conversation history available." {
		t.Fatalf("empty summary = %q err=%v", msg, err)
	}
	if _, err := a.Ask(ctx, "q1", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	msg, err = a.HistorySummary(ctx)
	if err != nil {
		t.Fatalf("HistorySummary: %v", err)
	}
	if !strings.Contains(msg, "Conversation History (1 exchanges):") || !strings.Contains(msg, "1. Q: q1") {
		t.Fatalf("summary = %q", msg)
	}
	if err := a.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	entries, _ := a.History(ctx)
	if len(entries) != 0 {
		t.Fatalf("history not cleared")
	}
}
