package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalogDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	rec := DatasetRecord{
		ID:         uuid.NewString(),
		Study:      "mounjaro-rwe",
		Name:       "cohort.csv",
		SourcePath: "/tmp/cohort.csv",
		Rows:       120,
		Columns:    15,
		Warnings:   2,
		AddedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.RecordDataset(ctx, rec))

	got, err := c.Dataset(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
	require.Equal(t, 120, got.Rows)
	require.Equal(t, 2, got.Warnings)

	// Upsert replaces metadata for the same ID.
	rec.Rows = 150
	require.NoError(t, c.RecordDataset(ctx, rec))
	got, err = c.Dataset(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 150, got.Rows)

	all, err := c.Datasets(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCatalogDatasetsFilteredByStudy(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	for i, studyName := range []string{"alpha", "alpha", "beta"} {
		require.NoError(t, c.RecordDataset(ctx, DatasetRecord{
			ID:         uuid.NewString(),
			Study:      studyName,
			Name:       "ds",
			SourcePath: "/tmp/ds.csv",
			Rows:       i,
			Columns:    3,
			AddedAt:    time.Date(2025, 6, 1, 10, i, 0, 0, time.UTC),
		}))
	}
	alpha, err := c.Datasets(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	// Newest first.
	require.Equal(t, 1, alpha[0].Rows)

	beta, err := c.Datasets(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, beta, 1)
}

func TestCatalogAnalyses(t *testing.T) {
	ctx := context.Background()
	c := openTestCatalog(t)

	dsID := uuid.NewString()
	require.NoError(t, c.RecordDataset(ctx, DatasetRecord{
		ID: dsID, Study: "s", Name: "d", SourcePath: "/x", Rows: 1, Columns: 1,
	}))

	payload, _ := json.Marshal(map[string]any{"mean_weight_loss": -8.2})
	older := AnalysisRecord{
		ID: uuid.NewString(), DatasetID: dsID, Kind: "effectiveness",
		Payload: payload, CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	newer := AnalysisRecord{
		ID: uuid.NewString(), DatasetID: dsID, Kind: "effectiveness",
		Payload: payload, CreatedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.RecordAnalysis(ctx, older))
	require.NoError(t, c.RecordAnalysis(ctx, newer))
	require.NoError(t, c.RecordAnalysis(ctx, AnalysisRecord{
		ID: uuid.NewString(), DatasetID: dsID, Kind: "clusters", Payload: payload,
	}))

	all, err := c.Analyses(ctx, dsID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	eff, err := c.Analyses(ctx, dsID, "effectiveness")
	require.NoError(t, err)
	require.Len(t, eff, 2)
	require.Equal(t, newer.ID, eff[0].ID)

	latest, err := c.LatestAnalysis(ctx, dsID, "effectiveness")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, newer.ID, latest.ID)
	require.JSONEq(t, string(payload), string(latest.Payload))

	missing, err := c.LatestAnalysis(ctx, dsID, "no-such-kind")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCatalogDatasetNotFound(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Dataset(context.Background(), "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
