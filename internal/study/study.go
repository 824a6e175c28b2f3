package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rwelens/rwelens-cli/internal/ingest"
	"github.com/rwelens/rwelens-cli/internal/utils"
)

const studyFileName = "study.json"

// Study is an RWE study workspace persisted on disk. Datasets are stored as
// sibling <id>.json files next to study.json so the manifest stays small.
type Study struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Instructions string                 `json:"instructions"`
	Datasets     map[string]*DatasetRef `json:"datasets"`
	Notes        map[string]*Note       `json:"notes"`
	Config       *StudyConfig           `json:"config"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`

	// Not serialized: on-disk location of the study.json
	rootDir string `json:"-"`
}

// DatasetRef is the manifest entry for an attached dataset.
type DatasetRef struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Warnings   int       `json:"warnings"`
	AddedAt    time.Time `json:"added_at"`
}

// Note is a supporting document attached to the study for chat context.
type Note struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Tokens      int       `json:"tokens"`
	AddedAt     time.Time `json:"added_at"`
}

type StudyConfig struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// NewStudy constructs an in-memory study. Call Save() to persist.
func NewStudy(name, description, rootDir string) *Study {
	return &Study{
		Name:        name,
		Description: description,
		Datasets:    make(map[string]*DatasetRef),
		Notes:       make(map[string]*Note),
		Config:      &StudyConfig{},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		rootDir:     rootDir,
	}
}

// LoadStudy loads a study.json from the provided directory.
func LoadStudy(dir string) (*Study, error) {
	path := filepath.Join(dir, studyFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("study not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read study: %w", err)
	}
	var s Study
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse study: %w", err)
	}
	s.rootDir = dir
	if s.Datasets == nil {
		s.Datasets = make(map[string]*DatasetRef)
	}
	if s.Notes == nil {
		s.Notes = make(map[string]*Note)
	}
	if s.Config == nil {
		s.Config = &StudyConfig{}
	}
	return &s, nil
}

// RootDir returns the on-disk study directory path.
func (s *Study) RootDir() string { return s.rootDir }

// Save writes study.json using atomic write.
func (s *Study) Save() error {
	if s.rootDir == "" {
		return errors.New("study root directory not set")
	}
	if err := utils.EnsureDir(s.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	s.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, studyFileName), data)
}

// AttachDataset parses a tabular file, builds a cohort dataset from its
// first table, persists it as <id>.json, and records it in the manifest.
func (s *Study) AttachDataset(path string) (*Dataset, error) {
	doc, err := ingest.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("%s contains no tabular data", filepath.Base(path))
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ds, err := FromTable(name, doc.Tables[0])
	if err != nil {
		return nil, err
	}
	ds.SourcePath = path
	if err := s.saveDataset(ds); err != nil {
		return nil, err
	}
	s.Datasets[ds.ID] = &DatasetRef{
		ID:         ds.ID,
		Name:       ds.Name,
		SourcePath: path,
		Rows:       len(ds.Patients),
		Columns:    len(ds.Columns),
		Warnings:   len(ds.Warnings),
		AddedAt:    time.Now(),
	}
	s.UpdatedAt = time.Now()
	return ds, nil
}

func (s *Study) saveDataset(ds *Dataset) error {
	if s.rootDir == "" {
		return errors.New("study root directory not set")
	}
	data, err := utils.PrettyJSON(ds)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, ds.ID+".json"), data)
}

// Dataset loads the persisted dataset with the given manifest id.
func (s *Study) Dataset(id string) (*Dataset, error) {
	if _, ok := s.Datasets[id]; !ok {
		return nil, fmt.Errorf("dataset %s not found in study %s", id, s.Name)
	}
	b, err := os.ReadFile(filepath.Join(s.rootDir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return &ds, nil
}

// ActiveDataset returns the most recently attached dataset, the one the
// stats and chat commands operate on by default.
func (s *Study) ActiveDataset() (*Dataset, error) {
	if len(s.Datasets) == 0 {
		return nil, errors.New("no datasets attached to study")
	}
	var latest *DatasetRef
	for _, ref := range s.Datasets {
		if latest == nil || ref.AddedAt.After(latest.AddedAt) {
			latest = ref
		}
	}
	return s.Dataset(latest.ID)
}

// AttachNote reads a supporting document and caches its text for chat context.
func (s *Study) AttachNote(path, description string) (*Note, error) {
	doc, err := ingest.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse note: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat note: %w", err)
	}
	n := &Note{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        filepath.Base(path),
		Description: description,
		Content:     doc.Text,
		Tokens:      utils.CountTokens(doc.Text),
		AddedAt:     info.ModTime(),
	}
	if s.Notes == nil {
		s.Notes = make(map[string]*Note)
	}
	s.Notes[n.ID] = n
	s.UpdatedAt = time.Now()
	return n, nil
}

func (s *Study) SetInstructions(instructions string) {
	s.Instructions = strings.TrimSpace(instructions)
	s.UpdatedAt = time.Now()
}

// BuildChatNotes assembles the attached notes in deterministic order for
// inclusion in the assistant's context prompt.
func (s *Study) BuildChatNotes() string {
	if len(s.Notes) == 0 {
		return ""
	}
	ids := make([]string, 0, len(s.Notes))
	for id := range s.Notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var sb strings.Builder
	for _, id := range ids {
		n := s.Notes[id]
		sb.WriteString("--- Note: ")
		sb.WriteString(n.Name)
		if n.Description != "" {
			sb.WriteString(" (")
			sb.WriteString(n.Description)
			sb.WriteString(")")
		}
		sb.WriteString(" ---\n")
		sb.WriteString(n.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
