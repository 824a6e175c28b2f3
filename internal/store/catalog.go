// Package store persists a catalog of loaded datasets and analysis runs in
// a local SQLite database, so results can be listed and reopened across
// sessions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	study       TEXT NOT NULL,
	name        TEXT NOT NULL,
	source_path TEXT NOT NULL,
	rows        INTEGER NOT NULL,
	columns     INTEGER NOT NULL,
	warnings    INTEGER NOT NULL DEFAULT 0,
	added_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	dataset_id TEXT NOT NULL REFERENCES datasets(id),
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_dataset ON analyses(dataset_id, kind, created_at);
`

// DatasetRecord is one cataloged dataset.
type DatasetRecord struct {
	ID         string    `json:"id"`
	Study      string    `json:"study"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Warnings   int       `json:"warnings"`
	AddedAt    time.Time `json:"added_at"`
}

// AnalysisRecord is one stored analysis run. Payload holds the result JSON.
type AnalysisRecord struct {
	ID        string          `json:"id"`
	DatasetID string          `json:"dataset_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Catalog is the SQLite-backed dataset and analysis catalog.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids lock
	// contention errors under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// RecordDataset upserts a dataset row.
func (c *Catalog) RecordDataset(ctx context.Context, rec DatasetRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO datasets (id, study, name, source_path, rows, columns, warnings, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			study = excluded.study,
			name = excluded.name,
			source_path = excluded.source_path,
			rows = excluded.rows,
			columns = excluded.columns,
			warnings = excluded.warnings`,
		rec.ID, rec.Study, rec.Name, rec.SourcePath, rec.Rows, rec.Columns, rec.Warnings, rec.AddedAt)
	if err != nil {
		return fmt.Errorf("record dataset: %w", err)
	}
	return nil
}

// Datasets lists cataloged datasets, newest first. An empty study lists all.
func (c *Catalog) Datasets(ctx context.Context, studyName string) ([]DatasetRecord, error) {
	query := `SELECT id, study, name, source_path, rows, columns, warnings, added_at
		FROM datasets`
	args := []any{}
	if studyName != "" {
		query += ` WHERE study = ?`
		args = append(args, studyName)
	}
	query += ` ORDER BY added_at DESC, id`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()
	var out []DatasetRecord
	for rows.Next() {
		var r DatasetRecord
		if err := rows.Scan(&r.ID, &r.Study, &r.Name, &r.SourcePath, &r.Rows, &r.Columns, &r.Warnings, &r.AddedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Dataset fetches one record by ID.
func (c *Catalog) Dataset(ctx context.Context, id string) (*DatasetRecord, error) {
	var r DatasetRecord
	err := c.db.QueryRowContext(ctx, `SELECT id, study, name, source_path, rows, columns, warnings, added_at
		FROM datasets WHERE id = ?`, id).
		Scan(&r.ID, &r.Study, &r.Name, &r.SourcePath, &r.Rows, &r.Columns, &r.Warnings, &r.AddedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset %s not found in catalog", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return &r, nil
}

// RecordAnalysis stores one analysis result.
func (c *Catalog) RecordAnalysis(ctx context.Context, rec AnalysisRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO analyses (id, dataset_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.DatasetID, rec.Kind, string(rec.Payload), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	return nil
}

// Analyses lists stored runs for a dataset, newest first. An empty kind
// lists every kind.
func (c *Catalog) Analyses(ctx context.Context, datasetID, kind string) ([]AnalysisRecord, error) {
	query := `SELECT id, dataset_id, kind, payload, created_at FROM analyses WHERE dataset_id = ?`
	args := []any{datasetID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()
	var out []AnalysisRecord
	for rows.Next() {
		var r AnalysisRecord
		var payload string
		if err := rows.Scan(&r.ID, &r.DatasetID, &r.Kind, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestAnalysis returns the most recent run of one kind, or nil when none
// is stored yet.
func (c *Catalog) LatestAnalysis(ctx context.Context, datasetID, kind string) (*AnalysisRecord, error) {
	recs, err := c.Analyses(ctx, datasetID, kind)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}
