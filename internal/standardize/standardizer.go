package standardize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Standardizer is the stage handler: a pure transform from the run's
// ExtractionRecords to StandardizedRecords. Records below the similarity
// threshold are retained with needs-review status and never reach the
// persistence stages.
type Standardizer struct {
	converter Converter
	matcher   Matcher
	threshold float64
	logger    *logging.Logger
}

// New creates the Standardizer handler.
func New(converter Converter, matcher Matcher, threshold float64, logger *logging.Logger) *Standardizer {
	return &Standardizer{
		converter: converter,
		matcher:   matcher,
		threshold: threshold,
		logger:    logger.Named("standardizer"),
	}
}

func (s *Standardizer) Node() pipeline.Node { return pipeline.NodeStandardizer }

// Execute standardizes the whole extracted batch.
func (s *Standardizer) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	var out []pipeline.StandardizedRecord

	for _, rec := range wc.Records {
		if rec.Status != pipeline.ExtractionSucceeded {
			continue
		}
		for _, f := range rec.Features {
			std, err := s.standardizeFeature(ctx, rec, f)
			if err != nil {
				return pipeline.Decision{}, err
			}
			out = append(out, std)
		}
	}

	wc.Standardized = out

	resolved := 0
	for _, r := range out {
		if r.Status == pipeline.ReviewResolved {
			resolved++
		}
	}
	s.logger.Info(ctx, "batch standardized",
		zap.Int("records", len(out)),
		zap.Int("resolved", resolved),
		zap.Int("needs_review", len(out)-resolved))

	return pipeline.Done("batch standardized"), nil
}

func (s *Standardizer) standardizeFeature(ctx context.Context, rec pipeline.ExtractionRecord, f pipeline.Feature) (pipeline.StandardizedRecord, error) {
	value, unit := s.converter.Convert(f.Value, f.Unit)

	key, score, err := s.matcher.Match(ctx, f.Name)
	if err != nil {
		return pipeline.StandardizedRecord{}, fmt.Errorf("matching field %q: %w", f.Name, err)
	}

	status := pipeline.ReviewNeedsReview
	if key != "" && score >= s.threshold {
		status = pipeline.ReviewResolved
	}

	return pipeline.StandardizedRecord{
		DocumentID:   rec.DocumentID,
		DOI:          rec.DOI,
		MaterialID:   rec.MaterialID,
		SourceField:  f.Name,
		CanonicalKey: key,
		Value:        value,
		Unit:         unit,
		Conditions:   f.Conditions,
		Similarity:   score,
		Status:       status,
	}, nil
}
