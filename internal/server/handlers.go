package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rwelens/rwelens-cli/internal/ai"
	"github.com/rwelens/rwelens-cli/internal/analysis"
	"github.com/rwelens/rwelens-cli/internal/charts"
	"github.com/rwelens/rwelens-cli/internal/chat"
	"github.com/rwelens/rwelens-cli/internal/export"
	"github.com/rwelens/rwelens-cli/internal/history"
	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/store"
	"github.com/rwelens/rwelens-cli/internal/study"
	"github.com/rwelens/rwelens-cli/internal/utils"
)

const maxUploadBytes = 64 << 20

const previewRows = 10

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>RWE Lens</title></head>
<body>
<h1>RWE Lens</h1>
<form method="post" action="/api/datasets" enctype="multipart/form-data">
<input type="file" name="file" accept=".csv,.xlsx,.json">
<button type="submit">Upload dataset</button>
</form>
<h2>Datasets</h2>
<ul>
{{range .}}<li><a href="/api/datasets/{{.ID}}">{{.Name}}</a> ({{len .Patients}} patients)
 &middot; <a href="/api/datasets/{{.ID}}/charts">charts</a>
 &middot; <a href="/api/datasets/{{.ID}}/export/report.html">report</a></li>
{{end}}</ul>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	list := make([]*study.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		list = append(list, ds)
	}
	s.mu.RUnlock()
	w.Header().Set("Content-Type", export.ContentTypeHTML)
	if err := indexTmpl.Execute(w, list); err != nil {
		s.log.Error("render index", "error", err)
	}
}

type datasetSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Rows     int       `json:"rows"`
	Columns  int       `json:"columns"`
	Warnings int       `json:"warnings"`
	LoadedAt time.Time `json:"loaded_at"`
}

func summarize(ds *study.Dataset) datasetSummary {
	return datasetSummary{
		ID:       ds.ID,
		Name:     ds.Name,
		Rows:     len(ds.Patients),
		Columns:  len(ds.Columns),
		Warnings: len(ds.Warnings),
		LoadedAt: ds.LoadedAt,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad multipart upload: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload: %v", err)
		return
	}
	doc, err := ingest.ParseBytes(header.Filename, data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	tab, err := doc.FirstTable()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	ds, err := study.FromTable(header.Filename, tab)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	ds.SourcePath = header.Filename

	s.mu.Lock()
	s.datasets[ds.ID] = ds
	s.mu.Unlock()

	if s.cfg.DataDir != "" {
		payload, err := utils.PrettyJSON(ds)
		if err == nil {
			err = utils.SafeWriteFile(filepath.Join(s.cfg.DataDir, ds.ID+".json"), payload)
		}
		if err != nil {
			s.log.Warn("persist dataset", "id", ds.ID, "error", err)
		}
	}
	if s.cfg.Catalog != nil {
		err := s.cfg.Catalog.RecordDataset(r.Context(), store.DatasetRecord{
			ID:         ds.ID,
			Study:      "dashboard",
			Name:       ds.Name,
			SourcePath: ds.SourcePath,
			Rows:       len(ds.Patients),
			Columns:    len(ds.Columns),
			Warnings:   len(ds.Warnings),
		})
		if err != nil {
			s.log.Warn("catalog dataset", "id", ds.ID, "error", err)
		}
	}
	s.writeJSON(w, http.StatusCreated, summarize(ds))
}

func (s *Server) handleListDatasets(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	list := make([]datasetSummary, 0, len(s.datasets))
	for _, ds := range s.datasets {
		list = append(list, summarize(ds))
	}
	s.mu.RUnlock()
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) requireDataset(w http.ResponseWriter, r *http.Request) (*study.Dataset, bool) {
	id := chi.URLParam(r, "id")
	ds, ok := s.dataset(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown dataset %q", id)
		return nil, false
	}
	return ds, true
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	n := previewRows
	if n > len(ds.Patients) {
		n = len(ds.Patients)
	}
	rows := make([][]string, 0, n)
	for _, p := range ds.Patients[:n] {
		rows = append(rows, export.Record(p))
	}
	missing := map[string]int{}
	for _, col := range study.NumericColumns() {
		c := 0
		for _, v := range ds.Numeric(col) {
			if math.IsNaN(v) {
				c++
			}
		}
		if c > 0 {
			missing[col] = c
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"dataset":  summarize(ds),
		"columns":  study.DatasetColumns,
		"preview":  rows,
		"missing":  missing,
		"warnings": ds.Warnings,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, analysis.Describe(ds))
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	result, err := runAnalysis(ds, kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if s.cfg.Catalog != nil {
		if payload, err := json.Marshal(result); err == nil {
			rec := store.AnalysisRecord{
				ID:        fmt.Sprintf("%s-%s-%d", ds.ID, kind, time.Now().UnixNano()),
				DatasetID: ds.ID,
				Kind:      kind,
				Payload:   payload,
			}
			if err := s.cfg.Catalog.RecordAnalysis(r.Context(), rec); err != nil {
				s.log.Warn("catalog analysis", "kind", kind, "error", err)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, result)
}

// runAnalysis dispatches one analysis kind.
func runAnalysis(ds *study.Dataset, kind string) (any, error) {
	switch kind {
	case "basic":
		return analysis.BasicStatistics(ds), nil
	case "effectiveness":
		return analysis.TreatmentEffectiveness(ds), nil
	case "demographics":
		return analysis.Demographics(ds), nil
	case "comorbidities":
		return analysis.ComorbidityImpact(ds), nil
	case "tests":
		return analysis.HypothesisTests(ds), nil
	case "clusters":
		return analysis.ClusterPatients(ds, 4)
	case "insights":
		return analysis.Insights(ds), nil
	case "summary":
		return analysis.Summary(ds), nil
	default:
		return nil, fmt.Errorf("unknown analysis kind %q (want basic, effectiveness, demographics, comorbidities, tests, clusters, insights, or summary)", kind)
	}
}

func (s *Server) handleChartsPage(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeHTML)
	if err := charts.Render(charts.Dashboard(ds), w); err != nil {
		s.log.Error("render dashboard", "error", err)
	}
}

func chartByName(ds *study.Dataset, name string) (charts.Renderable, bool) {
	switch name {
	case "age":
		return charts.AgeHistogram(ds), true
	case "sex":
		return charts.SexPie(ds), true
	case "country":
		return charts.CountryBar(ds), true
	case "bmi":
		return charts.BMIScatter(ds), true
	case "weight-change":
		return charts.WeightChangeBox(ds), true
	case "outcome":
		return charts.OutcomePie(ds), true
	case "adverse-events":
		return charts.AdverseEventBar(ds), true
	case "adherence":
		return charts.AdherenceHistogram(ds), true
	case "correlation":
		return charts.CorrelationHeatmap(ds), true
	case "timeline":
		return charts.TimelineLine(ds), true
	}
	return nil, false
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	c, ok := chartByName(ds, name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown chart %q", name)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeHTML)
	if err := charts.Render(c, w); err != nil {
		s.log.Error("render chart", "name", name, "error", err)
	}
}

func filterFromQuery(r *http.Request) export.Filter {
	q := r.URL.Query()
	f := export.Filter{
		Interventions: q["intervention"],
		Countries:     q["country"],
		Sexes:         q["sex"],
		Outcomes:      q["outcome"],
	}
	if v, err := strconv.Atoi(q.Get("age_min")); err == nil {
		f.AgeMin = v
	}
	if v, err := strconv.Atoi(q.Get("age_max")); err == nil {
		f.AgeMax = v
	}
	return f
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.requireDataset(w, r)
	if !ok {
		return
	}
	format := chi.URLParam(r, "format")
	attach := func(name, contentType string) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	var err error
	switch format {
	case "csv":
		attach("filtered_data.csv", export.ContentTypeCSV)
		err = export.FilteredCSV(w, ds, filterFromQuery(r))
	case "stats.csv":
		attach("statistics.csv", export.ContentTypeCSV)
		err = export.StatsCSV(w, ds)
	case "report.html":
		attach("analysis_report.html", export.ContentTypeHTML)
		err = export.ReportHTML(w, ds, nil)
	case "adverse-events.html":
		attach("adverse_events.html", export.ContentTypeHTML)
		err = export.AdverseEventsHTML(w, ds)
	default:
		s.writeError(w, http.StatusNotFound, "unknown export format %q", format)
		return
	}
	if err != nil {
		s.log.Error("export", "format", format, "error", err)
	}
}

// assistantFor lazily builds one chat assistant per dataset.
func (s *Server) assistantFor(ds *study.Dataset) *chat.Assistant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assistants[ds.ID]; ok {
		return a
	}
	st := s.cfg.History
	if st == nil {
		st = history.NewMemory(s.cfg.HistoryLimit)
	}
	a := chat.New(s.cfg.Engine, analysis.Summary(ds), st)
	s.assistants[ds.ID] = a
	return a
}

type chatRequest struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
	Stream    bool   `json:"stream"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Engine == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no AI providers configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad request body: %v", err)
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	ds, ok := s.dataset(req.DatasetID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown dataset %q", req.DatasetID)
		return
	}
	assistant := s.assistantFor(ds)

	if req.Stream {
		s.streamChat(w, r, assistant, req.Question)
		return
	}
	answer, err := assistant.Ask(r.Context(), req.Question, "")
	if err != nil {
		s.aiRequests.WithLabelValues(s.cfg.Engine.Active(), "error").Inc()
		s.chatFailure(w, assistant, req.Question, err)
		return
	}
	s.aiRequests.WithLabelValues(s.cfg.Engine.Active(), "ok").Inc()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":   answer,
		"provider": s.cfg.Engine.Active(),
		"intents":  chat.DetectIntents(req.Question),
	})
}

// chatFailure maps an AI error to a response carrying the local fallback
// answer so the UI always has the dataset numbers to show.
func (s *Server) chatFailure(w http.ResponseWriter, assistant *chat.Assistant, question string, err error) {
	status := http.StatusBadGateway
	var all *ai.AllProvidersFailedError
	if !errors.As(err, &all) {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, map[string]any{
		"error":    err.Error(),
		"fallback": assistant.FallbackAnswer(question, err),
	})
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, assistant *chat.Assistant, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	provider, err := assistant.AskStream(r.Context(), question, "", func(delta string) {
		payload, _ := json.Marshal(map[string]string{"delta": delta})
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
		flusher.Flush()
	})
	if err != nil {
		s.aiRequests.WithLabelValues(s.cfg.Engine.Active(), "error").Inc()
		payload, _ := json.Marshal(map[string]string{
			"error":    err.Error(),
			"fallback": assistant.FallbackAnswer(question, err),
		})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}
	s.aiRequests.WithLabelValues(provider, "ok").Inc()
	payload, _ := json.Marshal(map[string]string{"provider": provider})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func (s *Server) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": chat.SuggestedQuestions()})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	st := s.cfg.History
	if st == nil {
		s.writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	limit := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	entries, err := st.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read history: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History != nil {
		if err := s.cfg.History.Clear(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, "clear history: %v", err)
			return
		}
	}
	s.mu.Lock()
	s.assistants = map[string]*chat.Assistant{}
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
