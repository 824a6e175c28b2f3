// Package chat implements the dataset Q&A assistant. It grounds an LLM in
// the cohort analysis results and keeps a short conversation history.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rwelens/rwelens-cli/internal/ai"
	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/history"
)

// historyExchanges is how many past exchanges are replayed into the prompt.
const historyExchanges = 3

// answerExcerptLen truncates stored answers when replaying history.
const answerExcerptLen = 200

// Engine is the slice of the AI fallback chain the assistant needs.
// *ai.Chain satisfies it.
type Engine interface {
	Generate(ctx context.Context, messages []ai.Message) (*ai.GenerateResponse, error)
	GenerateStream(ctx context.Context, messages []ai.Message, onDelta func(string)) (string, error)
	Active() string
}

// Assistant answers questions about one analyzed dataset.
type Assistant struct {
	engine  Engine
	summary *analysis.DataSummary
	context string
	store   history.Store
}

// New builds an assistant over a precomputed analysis summary. A nil store
// gets an in-memory history.
func New(engine Engine, summary *analysis.DataSummary, store history.Store) *Assistant {
	if store == nil {
		store = history.NewMemory(history.DefaultLimit)
	}
	return &Assistant{
		engine:  engine,
		summary: summary,
		context: BuildContext(summary),
		store:   store,
	}
}

// Context returns the grounding prompt built from the analysis summary.
func (a *Assistant) Context() string { return a.context }

// BuildContext renders the analysis summary into the system context the
// model is grounded in.
func BuildContext(s *analysis.DataSummary) string {
	var b strings.Builder
	overview := s.BasicStats.Overview
	demo := s.BasicStats.Demographics
	clinical := s.BasicStats.Clinical
	outcomes := s.BasicStats.Outcomes

	fmt.Fprintf(&b, `You are an AI assistant specialized in analyzing the RWE (Real World Evidence) Mounjaro Study dataset.
This dataset contains information about %d patients from a clinical study examining the effectiveness
of Mounjaro (tirzepatide) compared to lifestyle interventions for weight management.

`, overview.TotalPatients)

	fmt.Fprintf(&b, "DATASET OVERVIEW:\n")
	fmt.Fprintf(&b, "- Total Patients: %d\n", overview.TotalPatients)
	fmt.Fprintf(&b, "- Countries: %s\n", strings.Join(overview.Countries, ", "))
	fmt.Fprintf(&b, "- Study Period: %s to %s\n", overview.DateRange.Start, overview.DateRange.End)
	fmt.Fprintf(&b, "- Interventions: %s\n\n", strings.Join(overview.InterventionTypes, ", "))

	fmt.Fprintf(&b, "DEMOGRAPHICS:\n")
	fmt.Fprintf(&b, "- Age Range: %v-%v years (Mean: %v)\n", demo.AgeStats.Min, demo.AgeStats.Max, demo.AgeStats.Mean)
	fmt.Fprintf(&b, "- Gender Distribution: %s\n", compactJSON(demo.GenderDistribution))
	fmt.Fprintf(&b, "- Country Distribution: %s\n\n", compactJSON(demo.CountryDistribution))

	fmt.Fprintf(&b, "CLINICAL MEASURES:\n")
	fmt.Fprintf(&b, "- Baseline BMI: Mean %v, Median %v\n", clinical.BaselineBMI.Mean, clinical.BaselineBMI.Median)
	fmt.Fprintf(&b, "- Follow-up BMI: Mean %v, Median %v\n", clinical.FollowupBMI.Mean, clinical.FollowupBMI.Median)
	fmt.Fprintf(&b, "- Weight Change: Mean %v kg, Median %v kg\n", clinical.WeightChange.Mean, clinical.WeightChange.Median)
	fmt.Fprintf(&b, "- Adherence Rate: Mean %v, Median %v\n\n", clinical.AdherenceRate.Mean, clinical.AdherenceRate.Median)

	fmt.Fprintf(&b, "TREATMENT EFFECTIVENESS:\n%s\n\n", indentJSON(s.TreatmentEffectiveness))
	fmt.Fprintf(&b, "OUTCOME DISTRIBUTION:\n%s\n\n", compactJSON(outcomes.OutcomeDistribution))
	fmt.Fprintf(&b, "STATISTICAL FINDINGS:\n%s\n", formatStatisticalTests(s.StatisticalTests))

	fmt.Fprintf(&b, "KEY INSIGHTS:\n")
	for _, insight := range s.Insights {
		fmt.Fprintf(&b, "- %s\n", insight)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "ADVERSE EVENTS:\n")
	fmt.Fprintf(&b, "- Total patients with adverse events: %d\n", outcomes.AdverseEvents.TotalWithAE)
	fmt.Fprintf(&b, "- Adverse event types: %s\n\n", compactJSON(outcomes.AdverseEvents.Types))

	fmt.Fprintf(&b, "HOSPITALIZATIONS:\n")
	fmt.Fprintf(&b, "- Mean hospitalizations per patient: %v\n", outcomes.Hospitalizations.Mean)
	fmt.Fprintf(&b, "- Distribution: %s\n", compactJSON(outcomes.Hospitalizations.Distribution))

	b.WriteString(`
Please provide accurate, helpful, and context-aware responses about this dataset. When answering:
1. Use specific numbers and statistics from the data
2. Explain clinical significance when relevant
3. Compare interventions when appropriate
4. Mention statistical significance when discussing differences
5. Be conversational but professional
6. If you don't have specific data to answer a question, say so clearly
7. Always ground your answers in the actual data provided

You can discuss:
- Treatment effectiveness and outcomes
- Patient demographics and characteristics
- Safety profiles and adverse events
- Statistical comparisons between groups
- Clinical insights and recommendations
- Data quality and limitations
`)
	return b.String()
}

func formatStatisticalTests(tests *analysis.TestResults) string {
	if tests == nil {
		return ""
	}
	var b strings.Builder
	if tt := tests.MounjaroVsLifestyle; tt != nil {
		fmt.Fprintf(&b, "\nMounjaro Vs Lifestyle:\n")
		fmt.Fprintf(&b, "  - Test Type: %s\n", tt.TestType)
		fmt.Fprintf(&b, "  - T-statistic: %v\n", tt.TStatistic)
		writeTestTail(&b, tt.PValue, tt.Significant, tt.Interpretation)
	}
	if corr := tests.AdherenceWeightCorrelation; corr != nil {
		fmt.Fprintf(&b, "\nAdherence Weight Correlation:\n")
		fmt.Fprintf(&b, "  - Test Type: %s\n", corr.TestType)
		fmt.Fprintf(&b, "  - Correlation Coefficient: %v\n", corr.Coefficient)
		writeTestTail(&b, corr.PValue, corr.Significant, corr.Interpretation)
	}
	if av := tests.CountryWeightLossANOVA; av != nil {
		fmt.Fprintf(&b, "\nCountry Weight Loss Anova:\n")
		fmt.Fprintf(&b, "  - Test Type: %s\n", av.TestType)
		fmt.Fprintf(&b, "  - F-statistic: %v\n", av.FStatistic)
		writeTestTail(&b, av.PValue, av.Significant, av.Interpretation)
	}
	return b.String()
}

func writeTestTail(b *strings.Builder, p float64, significant bool, interpretation string) {
	fmt.Fprintf(b, "  - P-value: %v\n", p)
	yn := "No"
	if significant {
		yn = "Yes"
	}
	fmt.Fprintf(b, "  - Significant: %s\n", yn)
	fmt.Fprintf(b, "  - Interpretation: %s\n", interpretation)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// buildPrompt assembles the grounded prompt with optional extra study notes
// and the tail of the conversation.
func (a *Assistant) buildPrompt(ctx context.Context, question, notes string) string {
	var b strings.Builder
	b.WriteString(a.context)
	if notes != "" {
		b.WriteString("\n\nSTUDY NOTES:\n")
		b.WriteString(notes)
	}
	if recent, err := a.store.Recent(ctx, historyExchanges); err == nil && len(recent) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", e.Question, excerpt(e.Answer, answerExcerptLen))
		}
	}
	fmt.Fprintf(&b, "\nCurrent question: %s\n", question)
	b.WriteString("\nPlease provide a comprehensive answer based on the dataset information above.\nUse specific statistics and be precise in your response.\n")
	return b.String()
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Ask sends the question to the AI chain and records the exchange.
func (a *Assistant) Ask(ctx context.Context, question, notes string) (string, error) {
	prompt := a.buildPrompt(ctx, question, notes)
	resp, err := a.engine.Generate(ctx, []ai.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	answer := resp.Text()
	_ = a.store.Append(ctx, history.Entry{
		Question: question,
		Answer:   answer,
		Provider: resp.Provider,
		AskedAt:  time.Now().UTC(),
	})
	return answer, nil
}

// AskStream streams the answer through onDelta and records the full exchange
// once complete. It returns the provider that answered.
func (a *Assistant) AskStream(ctx context.Context, question, notes string, onDelta func(string)) (string, error) {
	prompt := a.buildPrompt(ctx, question, notes)
	var full strings.Builder
	provider, err := a.engine.GenerateStream(ctx, []ai.Message{{Role: "user", Content: prompt}}, func(d string) {
		full.WriteString(d)
		onDelta(d)
	})
	if err != nil {
		return "", err
	}
	_ = a.store.Append(ctx, history.Entry{
		Question: question,
		Answer:   full.String(),
		Provider: provider,
		AskedAt:  time.Now().UTC(),
	})
	return provider, nil
}

// FallbackAnswer produces a local, data-grounded answer when every provider
// fails: quick statistics matched to the question's intents, followed by the
// provider error list. The user always gets the dataset numbers even with no
// AI available.
func (a *Assistant) FallbackAnswer(question string, err error) string {
	qs := a.Stats()
	want := map[string]bool{}
	for _, intent := range DetectIntents(question) {
		want[intent] = true
	}
	if len(want) == 0 {
		want["effectiveness"] = true
		want["demographics"] = true
	}

	var lines []string
	if want["effectiveness"] || want["comparison"] || want["comorbidities"] {
		lines = append(lines, fmt.Sprintf(
			"Mounjaro: %.1f%% of patients achieved significant weight loss (mean %.1f kg lost); lifestyle only: %.1f%% (mean %.1f kg lost).",
			qs.MounjaroSuccessRate, qs.MeanWeightLossMjr, qs.LifestyleSuccessRate, qs.MeanWeightLossLife))
	}
	if want["safety"] {
		lines = append(lines, fmt.Sprintf(
			"Adverse events were recorded for %.1f%% of the %d patients.", qs.AdverseEventRate, qs.TotalPatients))
	}
	if want["demographics"] {
		lines = append(lines, fmt.Sprintf(
			"The cohort spans %d patients across %d countries.", qs.TotalPatients, qs.TotalCountries))
	}
	if want["adherence"] {
		lines = append(lines, fmt.Sprintf(
			"Mean adherence rate across the cohort: %v.", a.summary.BasicStats.Clinical.AdherenceRate.Mean))
	}
	if want["statistics"] && !want["effectiveness"] {
		lines = append(lines, fmt.Sprintf(
			"%d patients; mean weight change %.1f kg on Mounjaro vs %.1f kg on lifestyle alone.",
			qs.TotalPatients, qs.MeanWeightLossMjr, qs.MeanWeightLossLife))
	}

	var b strings.Builder
	b.WriteString("The AI providers are unavailable right now, so here is what the dataset itself shows:\n")
	for _, l := range lines {
		b.WriteString("- " + l + "\n")
	}
	if err != nil {
		b.WriteString("\nProvider errors:\n")
		var all *ai.AllProvidersFailedError
		if errors.As(err, &all) {
			for _, e := range all.Errors {
				fmt.Fprintf(&b, "- %v\n", e)
			}
		} else {
			fmt.Fprintf(&b, "- %v\n", err)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// QuestionGroup is a themed block of starter questions.
type QuestionGroup struct {
	Topic     string   `json:"topic"`
	Questions []string `json:"questions"`
}

// SuggestedQuestions lists the starter questions in their themed groups.
func SuggestedQuestions() []QuestionGroup {
	return []QuestionGroup{
		{Topic: "Treatment Effectiveness", Questions: []string{
			"How effective is Mounjaro compared to lifestyle intervention?",
			"What percentage of patients achieved significant weight loss?",
			"What is the average weight loss for Mounjaro patients?",
			"Are there statistically significant differences between treatments?",
		}},
		{Topic: "Demographics and Subgroups", Questions: []string{
			"Which age group responds best to treatment?",
			"Do men or women have better outcomes?",
			"How do outcomes vary by country?",
			"What is the effect of baseline BMI on treatment success?",
		}},
		{Topic: "Safety and Adherence", Questions: []string{
			"What are the most common adverse events?",
			"How does adherence affect treatment outcomes?",
			"What is the hospitalization rate for each treatment?",
			"Are there any safety concerns with Mounjaro?",
		}},
		{Topic: "Clinical Insights", Questions: []string{
			"How do comorbidities affect treatment outcomes?",
			"What factors predict successful weight loss?",
			"What is the typical patient profile for best outcomes?",
			"How long did patients stay on treatment?",
		}},
		{Topic: "Data Analysis", Questions: []string{
			"What are the key findings from this study?",
			"What correlations exist in the data?",
			"What are the study limitations?",
			"How many patients were included in each country?",
		}},
		{Topic: "Specific Metrics", Questions: []string{
			"What is the mean BMI change for each treatment?",
			"How many patients experienced weight gain?",
			"What percentage of patients had no adverse events?",
			"What is the adherence rate distribution?",
		}},
	}
}

var intentKeywords = map[string][]string{
	"effectiveness": {"effective", "success", "outcome", "result", "work", "benefit"},
	"safety":        {"safe", "adverse", "side effect", "risk", "hospital", "event"},
	"demographics":  {"age", "gender", "country", "men", "women", "group"},
	"statistics":    {"mean", "average", "percentage", "rate", "number", "how many"},
	"comparison":    {"compare", "versus", "vs", "difference", "better", "worse"},
	"adherence":     {"adherence", "compliance", "follow", "stick"},
	"comorbidities": {"comorbid", "condition", "disease", "diabetes", "hypertension"},
}

// intentOrder keeps DetectIntents output deterministic.
var intentOrder = []string{
	"effectiveness", "safety", "demographics", "statistics",
	"comparison", "adherence", "comorbidities",
}

// DetectIntents classifies a question into coarse topics by keyword.
func DetectIntents(question string) []string {
	lower := strings.ToLower(question)
	var out []string
	for _, intent := range intentOrder {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				out = append(out, intent)
				break
			}
		}
	}
	return out
}

// QuickStats is the headline banner shown before a chat session.
type QuickStats struct {
	TotalPatients        int     `json:"total_patients"`
	MounjaroSuccessRate  float64 `json:"mounjaro_success_rate"`
	LifestyleSuccessRate float64 `json:"lifestyle_success_rate"`
	MeanWeightLossMjr    float64 `json:"mean_weight_loss_mounjaro"`
	MeanWeightLossLife   float64 `json:"mean_weight_loss_lifestyle"`
	TotalCountries       int     `json:"total_countries"`
	AdverseEventRate     float64 `json:"adverse_event_rate"`
}

// Stats summarizes the dataset for display.
func (a *Assistant) Stats() QuickStats {
	s := a.summary
	qs := QuickStats{
		TotalPatients:  s.BasicStats.Overview.TotalPatients,
		TotalCountries: len(s.BasicStats.Demographics.CountryDistribution),
	}
	for _, e := range s.TreatmentEffectiveness {
		switch e.Intervention {
		case analysis.InterventionMounjaro:
			qs.MounjaroSuccessRate = e.SignificantWeightLossRate
			qs.MeanWeightLossMjr = e.MeanWeightLoss
		case analysis.InterventionLifestyle:
			qs.LifestyleSuccessRate = e.SignificantWeightLossRate
			qs.MeanWeightLossLife = e.MeanWeightLoss
		}
	}
	if qs.TotalPatients > 0 {
		rate := float64(s.BasicStats.Outcomes.AdverseEvents.TotalWithAE) / float64(qs.TotalPatients) * 100
		qs.AdverseEventRate = float64(int(rate*10+0.5)) / 10
	}
	return qs
}

// History returns the stored exchanges, oldest first.
func (a *Assistant) History(ctx context.Context) ([]history.Entry, error) {
	return a.store.Recent(ctx, 0)
}

// HistorySummary renders the conversation so far.
func (a *Assistant) HistorySummary(ctx context.Context) (string, error) {
	entries, err := a.store.Recent(ctx, 0)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No conversation history available.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation History (%d exchanges):\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n\n", i+1, e.Question, excerpt(e.Answer, 100))
	}
	return b.String(), nil
}

// ClearHistory drops the conversation history.
func (a *Assistant) ClearHistory(ctx context.Context) error {
	return a.store.Clear(ctx)
}
