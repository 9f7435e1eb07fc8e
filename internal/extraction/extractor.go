package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

var (
	// ErrExtractionFailed indicates a recoverable per-document failure.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrEmptyDocument indicates a document with no text to extract from.
	ErrEmptyDocument = errors.New("document has no text")
)

// Failure wraps a per-document extraction error.
type Failure struct {
	DocumentID string
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extracting %s: %v", f.DocumentID, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Extractor turns one document into an ExtractionRecord.
//
// schemaHint lists the canonical keys the caller expects, so the extractor
// can bias field naming toward them.
type Extractor interface {
	Extract(ctx context.Context, doc pipeline.Document, schemaHint []string) (pipeline.ExtractionRecord, error)
}

// NewExtractor creates an extractor based on configuration.
func NewExtractor(cfg config.ExtractionConfig) (Extractor, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewLLMExtractor(cfg.OllamaURL, cfg.Model)
	case "stub":
		return &StubExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s", cfg.Provider)
	}
}

// StubExtractor returns empty records; used for dry runs without an LLM.
type StubExtractor struct{}

func (s *StubExtractor) Extract(_ context.Context, doc pipeline.Document, _ []string) (pipeline.ExtractionRecord, error) {
	if doc.Text == "" {
		return pipeline.ExtractionRecord{}, &Failure{DocumentID: doc.ID, Err: ErrEmptyDocument}
	}
	return pipeline.ExtractionRecord{
		DocumentID: doc.ID,
		Status:     pipeline.ExtractionSucceeded,
	}, nil
}
