package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Extraction.Provider = "stub"
	cfg.Supervisor.Provider = "heuristic"
	cfg.Standardize.EmbeddingProvider = "local"
	cfg.Graph.Enabled = false
	cfg.Events.Enabled = false
	cfg.Telemetry.Enabled = false
	return cfg
}

func testDocs() []pipeline.Document {
	return []pipeline.Document{
		{ID: "docA", Text: "LLZO conductivity study"},
		{ID: "docB", Text: "garnet electrolyte sintering"},
	}
}

func TestNewServiceWiresCollaborators(t *testing.T) {
	svc, err := NewService(context.Background(), testConfig(t), logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	assert.NotNil(t, svc.classifier)
	assert.NotNil(t, svc.extractor)
	assert.NotNil(t, svc.schema)
	assert.NotNil(t, svc.rowStore)
	assert.NotNil(t, svc.graphStore)
	assert.Nil(t, svc.neo4j)
}

func TestNewServiceFatalOnBadProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extraction.Provider = "carrier-pigeon"

	_, err := NewService(context.Background(), cfg, logging.NewTestLogger().Logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalConfig)
}

func TestServiceRunExtraction(t *testing.T) {
	svc, err := NewService(context.Background(), testConfig(t), logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	result, err := svc.Run(context.Background(), "extract the queued papers", testDocs())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Contains(t, result.Response, "Extraction complete. Processed 2 documents")
	assert.False(t, result.PartialFailure)
	assert.NotEmpty(t, result.RunID)
	assert.Positive(t, result.Iterations)
	assert.Contains(t, result.ReportText, "SCHEMA EVOLUTION APPROVAL REQUIRED")
}

func TestServiceRunAnalysisWithoutData(t *testing.T) {
	svc, err := NewService(context.Background(), testConfig(t), logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	result, err := svc.Run(context.Background(), "analyze the correlations", nil)
	require.NoError(t, err)

	assert.Contains(t, result.Response, "Analysis complete.")
	assert.Contains(t, result.Response, "No persisted data found")
}

func TestServiceRunEmptyQueue(t *testing.T) {
	svc, err := NewService(context.Background(), testConfig(t), logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	result, err := svc.Run(context.Background(), "extract everything", nil)
	require.NoError(t, err)
	assert.Equal(t, "No documents are queued for extraction.", result.Response)
}

func TestServiceArchivesRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ArchiveRuns = true
	cfg.Pipeline.RunsDir = t.TempDir()

	svc, err := NewService(context.Background(), cfg, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	defer svc.Close(context.Background())

	result, err := svc.Run(context.Background(), "extract the queued papers", testDocs())
	require.NoError(t, err)

	require.NotEmpty(t, result.ArchivePath)
	assert.Equal(t, filepath.Join(cfg.Pipeline.RunsDir, result.RunID, "context.json"), result.ArchivePath)
	_, statErr := os.Stat(result.ArchivePath)
	assert.NoError(t, statErr)
}

func TestArchiveWritesContextJSON(t *testing.T) {
	dir := t.TempDir()
	wc := pipeline.NewContext("hello", nil)

	path, err := Archive(dir, wc)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), wc.RunID)
}
