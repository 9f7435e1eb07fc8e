// Package run assembles configuration, collaborators and stage handlers into
// executable pipeline runs, and turns finished contexts into results.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/analysis"
	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/events"
	"github.com/fyrsmithlabs/featmine/internal/extraction"
	"github.com/fyrsmithlabs/featmine/internal/graph"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
	"github.com/fyrsmithlabs/featmine/internal/report"
	"github.com/fyrsmithlabs/featmine/internal/standardize"
	"github.com/fyrsmithlabs/featmine/internal/store"
	"github.com/fyrsmithlabs/featmine/internal/supervisor"
)

// ErrFatalConfig marks configuration errors that prevent a run from
// starting. It is the only error class raised before the engine loop.
var ErrFatalConfig = errors.New("fatal configuration error")

// Result is the final report of one run.
type Result struct {
	RunID          string                        `json:"run_id"`
	Processed      int                           `json:"processed"`
	Failed         int                           `json:"failed"`
	Skipped        int                           `json:"skipped"`
	NeedsReview    []pipeline.StandardizedRecord `json:"needs_review,omitempty"`
	Unpersisted    []string                      `json:"unpersisted,omitempty"`
	Response       string                        `json:"response"`
	ReportText     string                        `json:"report_text,omitempty"`
	Events         []pipeline.Event              `json:"events,omitempty"`
	PartialFailure bool                          `json:"partial_failure"`
	Iterations     int                           `json:"iterations"`
	Duration       time.Duration                 `json:"duration"`
	ArchivePath    string                        `json:"archive_path,omitempty"`
}

// Service wires collaborators once and executes runs against them.
type Service struct {
	cfg        *config.Config
	logger     *logging.Logger
	classifier supervisor.Classifier
	extractor  extraction.Extractor
	schema     *standardize.SchemaIndex
	rowStore   store.RowStore
	graphStore graph.Store
	neo4j      *graph.Neo4jStore
	publisher  pipeline.Publisher
	natsPub    *events.NATSPublisher
	reporter   *report.Reporter
}

// NewService validates configuration and connects every required
// collaborator. Any failure here is fatal: no stage may execute against a
// half-wired service.
func NewService(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	classifier, err := supervisor.NewClassifier(cfg.Supervisor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	extractor, err := extraction.NewExtractor(cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	embed, err := standardize.NewEmbeddingFunc(cfg.Standardize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	schema, err := standardize.NewSchemaIndex(ctx, cfg.Standardize.CanonicalKeys, embed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}

	var rowStore store.RowStore
	if cfg.Store.Path == "" {
		rowStore = store.NewMemoryStore()
	} else {
		rowStore, err = store.OpenCSVStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
		}
	}

	s := &Service{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier,
		extractor:  extractor,
		schema:     schema,
		rowStore:   rowStore,
		publisher:  pipeline.NopPublisher{},
		reporter:   report.New(cfg.Standardize.CanonicalKeys, logger),
	}

	if cfg.Graph.Enabled {
		neo4jStore, err := graph.NewNeo4jStore(ctx, cfg.Graph)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatalConfig, err)
		}
		s.neo4j = neo4jStore
		s.graphStore = neo4jStore
	} else {
		s.graphStore = graph.NewMemoryStore()
	}

	// Event publishing is an observer concern: an unreachable broker is
	// logged, not fatal.
	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events)
		if err != nil {
			logger.Warn(ctx, "event publisher unavailable", zap.Error(err))
		} else {
			s.natsPub = pub
			s.publisher = pub
		}
	}

	return s, nil
}

// Run executes one turn: a batch extraction or an analysis request.
func (s *Service) Run(ctx context.Context, input string, docs []pipeline.Document) (*Result, error) {
	wc := pipeline.NewContext(input, docs)
	engine := s.buildEngine()

	wc, runErr := engine.Run(ctx, wc)
	result := s.buildResult(wc)

	if s.cfg.Pipeline.ArchiveRuns {
		path, err := Archive(s.cfg.Pipeline.RunsDir, wc)
		if err != nil {
			s.logger.Warn(ctx, "run archive failed", zap.Error(err))
		} else {
			result.ArchivePath = path
		}
	}

	return result, runErr
}

// buildEngine registers a fresh handler set. The extraction loop carries
// per-run retry state, so every run gets its own.
func (s *Service) buildEngine() *pipeline.Engine {
	engine := pipeline.NewEngine(s.cfg.Pipeline.MaxIterations, s.logger)
	engine.SetPublisher(s.publisher)

	engine.RegisterHandler(supervisor.New(s.classifier, s.cfg.Supervisor.History, s.logger))
	engine.RegisterHandler(extraction.NewLoop(s.extractor, s.cfg.Extraction, s.schema.Keys(), s.logger))
	engine.RegisterHandler(standardize.New(
		standardize.NewUnitTable(), s.schema, s.cfg.Standardize.SimilarityThreshold, s.logger))
	engine.RegisterHandler(s.reporter)
	engine.RegisterHandler(store.NewUpdater(s.rowStore, s.logger))
	engine.RegisterHandler(graph.NewUpdater(s.graphStore, s.logger))
	engine.RegisterHandler(analysis.New(s.rowStore, s.graphStore, s.logger))

	return engine
}

func (s *Service) buildResult(wc *pipeline.Context) *Result {
	processed, failed, skipped := wc.ExtractionCounts()
	result := &Result{
		RunID:          wc.RunID,
		Processed:      processed,
		Failed:         failed,
		Skipped:        skipped,
		NeedsReview:    wc.NeedsReviewRecords(),
		Unpersisted:    wc.Unpersisted,
		Response:       wc.Response,
		Events:         wc.Events,
		PartialFailure: wc.PartialFailure,
		Iterations:     wc.Iterations,
		Duration:       time.Since(wc.StartedAt),
	}
	if wc.Report != nil {
		result.ReportText = s.reporter.Render(wc.Report)
	}
	return result
}

// Close releases external connections.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.neo4j != nil {
		if err := s.neo4j.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing neo4j: %w", err))
		}
	}
	if s.natsPub != nil {
		if err := s.natsPub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing nats: %w", err))
		}
	}
	return errors.Join(errs...)
}
