// Package config provides configuration loading for featmine.
//
// Configuration is loaded from an optional YAML file and overridden by
// FEATMINE_-prefixed environment variables. Each pipeline component has its
// own sub-config with defaults and validation.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for configuration validation.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultCanonicalKeys is the seed set of canonical schema columns for
// solid electrolyte feature mining.
var DefaultCanonicalKeys = []string{
	"Ionic_Conductivity_mS_cm",
	"Activation_Energy_eV",
	"Sintering_Temp",
	"Ball_Milling_RPM",
	"Grain_Size_um",
	"Relative_Density",
}

// Config holds the complete featmine configuration.
type Config struct {
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
	Standardize StandardizeConfig `koanf:"standardize"`
	Store       StoreConfig       `koanf:"store"`
	Graph       GraphConfig       `koanf:"graph"`
	Events      EventsConfig      `koanf:"events"`
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// PipelineConfig controls the workflow engine.
type PipelineConfig struct {
	// MaxIterations is the engine-level guard against unbounded cycles,
	// independent of any per-stage retry budget.
	MaxIterations int `koanf:"max_iterations"`

	// RunsDir is where finished run contexts are archived.
	RunsDir string `koanf:"runs_dir"`

	// ArchiveRuns enables writing the final context to RunsDir.
	ArchiveRuns bool `koanf:"archive_runs"`
}

// ExtractionConfig controls the extractor collaborator and loop controller.
type ExtractionConfig struct {
	// Provider selects the extractor: "ollama" or "stub".
	Provider string `koanf:"provider"`

	// OllamaURL is the Ollama server base URL.
	OllamaURL string `koanf:"ollama_url"`

	// Model is the extraction model name.
	Model string `koanf:"model"`

	// RetryBudget is the run-level budget of retry attempts shared across
	// the document queue. A failed document consumes retries until the
	// budget is exhausted, then is skipped.
	RetryBudget int `koanf:"retry_budget"`

	// Workers is the width of the extraction worker pool.
	Workers int `koanf:"workers"`

	// RateLimit caps extraction calls per second. Zero means unlimited.
	RateLimit float64 `koanf:"rate_limit"`

	// Timeout bounds a single extraction call.
	Timeout Duration `koanf:"timeout"`
}

// SupervisorConfig controls intent classification.
type SupervisorConfig struct {
	// Provider selects the classifier: "ollama" or "heuristic".
	Provider string `koanf:"provider"`

	OllamaURL string `koanf:"ollama_url"`
	Model     string `koanf:"model"`

	// History is how many prior messages are given to the classifier.
	History int `koanf:"history"`
}

// StandardizeConfig controls unit conversion and schema mapping.
type StandardizeConfig struct {
	// SimilarityThreshold decides resolved vs needs-review mappings.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// EmbeddingProvider selects the schema index embedder: "ollama" or "local".
	EmbeddingProvider string `koanf:"embedding_provider"`

	// EmbeddingModel is the Ollama embedding model name.
	EmbeddingModel string `koanf:"embedding_model"`

	OllamaURL string `koanf:"ollama_url"`

	// CanonicalKeys seeds the canonical schema index.
	CanonicalKeys []string `koanf:"canonical_keys"`
}

// StoreConfig controls the tabular row store.
type StoreConfig struct {
	// Path is the CSV file the row store persists to. Empty selects the
	// in-memory store.
	Path string `koanf:"path"`
}

// GraphConfig controls the knowledge graph connection.
type GraphConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password Secret `koanf:"password"`
	Database string `koanf:"database"`
}

// EventsConfig controls transition event publishing.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// SubjectPrefix prefixes the per-run NATS subject.
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LogConfig holds the subset of logging settings exposed in the main config.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	ServiceName     string   `koanf:"service_name"`
	Insecure        bool     `koanf:"insecure"`
	MetricsEnabled  bool     `koanf:"metrics_enabled"`
	MetricsInterval Duration `koanf:"metrics_interval"`
}

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.MaxIterations == 0 {
		c.Pipeline.MaxIterations = 100
	}
	if c.Pipeline.RunsDir == "" {
		c.Pipeline.RunsDir = "runs"
	}
	if c.Extraction.Provider == "" {
		c.Extraction.Provider = "ollama"
	}
	if c.Extraction.OllamaURL == "" {
		c.Extraction.OllamaURL = "http://localhost:11434"
	}
	if c.Extraction.Model == "" {
		c.Extraction.Model = "gpt-oss:120b"
	}
	if c.Extraction.RetryBudget == 0 {
		c.Extraction.RetryBudget = 2
	}
	if c.Extraction.Workers == 0 {
		c.Extraction.Workers = 4
	}
	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = Duration(2 * time.Minute)
	}
	if c.Supervisor.Provider == "" {
		c.Supervisor.Provider = "heuristic"
	}
	if c.Supervisor.OllamaURL == "" {
		c.Supervisor.OllamaURL = c.Extraction.OllamaURL
	}
	if c.Supervisor.Model == "" {
		c.Supervisor.Model = c.Extraction.Model
	}
	if c.Supervisor.History == 0 {
		c.Supervisor.History = 10
	}
	if c.Standardize.SimilarityThreshold == 0 {
		c.Standardize.SimilarityThreshold = 0.85
	}
	if c.Standardize.EmbeddingProvider == "" {
		c.Standardize.EmbeddingProvider = "local"
	}
	if c.Standardize.EmbeddingModel == "" {
		c.Standardize.EmbeddingModel = "nomic-embed-text"
	}
	if c.Standardize.OllamaURL == "" {
		c.Standardize.OllamaURL = c.Extraction.OllamaURL
	}
	if len(c.Standardize.CanonicalKeys) == 0 {
		c.Standardize.CanonicalKeys = append([]string(nil), DefaultCanonicalKeys...)
	}
	if c.Graph.Database == "" {
		c.Graph.Database = "neo4j"
	}
	if c.Events.URL == "" {
		c.Events.URL = "nats://localhost:4222"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "featmine.run"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "featmine"
	}
	if c.Telemetry.MetricsInterval == 0 {
		c.Telemetry.MetricsInterval = Duration(30 * time.Second)
	}
}

// Validate checks configuration consistency. Violations here are fatal:
// a run must not start with an invalid configuration.
func (c *Config) Validate() error {
	if c.Pipeline.MaxIterations <= 0 {
		return fmt.Errorf("%w: pipeline.max_iterations must be positive", ErrInvalidConfig)
	}
	if c.Extraction.RetryBudget < 0 {
		return fmt.Errorf("%w: extraction.retry_budget cannot be negative", ErrInvalidConfig)
	}
	if c.Extraction.Workers <= 0 {
		return fmt.Errorf("%w: extraction.workers must be positive", ErrInvalidConfig)
	}
	if c.Extraction.RateLimit < 0 {
		return fmt.Errorf("%w: extraction.rate_limit cannot be negative", ErrInvalidConfig)
	}
	switch c.Extraction.Provider {
	case "ollama", "stub":
	default:
		return fmt.Errorf("%w: unknown extraction provider %q", ErrInvalidConfig, c.Extraction.Provider)
	}
	if c.Extraction.Provider == "ollama" && c.Extraction.OllamaURL == "" {
		return fmt.Errorf("%w: extraction.ollama_url required for ollama provider", ErrInvalidConfig)
	}
	switch c.Supervisor.Provider {
	case "ollama", "heuristic":
	default:
		return fmt.Errorf("%w: unknown supervisor provider %q", ErrInvalidConfig, c.Supervisor.Provider)
	}
	if c.Standardize.SimilarityThreshold < 0 || c.Standardize.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: standardize.similarity_threshold must be in [0,1]", ErrInvalidConfig)
	}
	switch c.Standardize.EmbeddingProvider {
	case "ollama", "local":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Standardize.EmbeddingProvider)
	}
	if c.Graph.Enabled {
		if c.Graph.URI == "" {
			return fmt.Errorf("%w: graph.uri required when graph is enabled", ErrInvalidConfig)
		}
		if c.Graph.Username == "" || !c.Graph.Password.IsSet() {
			return fmt.Errorf("%w: graph credentials required when graph is enabled", ErrInvalidConfig)
		}
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("%w: events.url required when events are enabled", ErrInvalidConfig)
	}
	return nil
}
