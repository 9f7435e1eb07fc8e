package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Pipeline.MaxIterations)
	assert.Equal(t, "gpt-oss:120b", cfg.Extraction.Model)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pipeline:
  max_iterations: 50
extraction:
  retry_budget: 3
  workers: 2
standardize:
  similarity_threshold: 0.9
  canonical_keys:
    - Ionic_Conductivity_mS_cm
    - Activation_Energy_eV
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 3, cfg.Extraction.RetryBudget)
	assert.Equal(t, 2, cfg.Extraction.Workers)
	assert.Equal(t, 0.9, cfg.Standardize.SimilarityThreshold)
	assert.Len(t, cfg.Standardize.CanonicalKeys, 2)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extraction:\n  retry_budget: 3\n"), 0600))

	t.Setenv("FEATMINE_EXTRACTION_RETRY_BUDGET", "5")
	t.Setenv("FEATMINE_PIPELINE_MAX_ITERATIONS", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Extraction.RetryBudget)
	assert.Equal(t, 42, cfg.Pipeline.MaxIterations)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	t.Setenv("FEATMINE_STANDARDIZE_SIMILARITY_THRESHOLD", "2.0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Pipeline.MaxIterations)
}
