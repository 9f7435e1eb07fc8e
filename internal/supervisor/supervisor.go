// Package supervisor routes a run based on the user's intent.
//
// The Supervisor is the only stage permitted to interpret free-form input;
// every other stage consumes structured Context fields. Recognized intents
// map to fixed edges: extract → Extractor, analyze → Analyzer, everything
// else → End with a response. Ambiguity never reaches the extraction chain.
package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Supervisor is the routing stage handler.
type Supervisor struct {
	classifier Classifier
	fallback   Classifier
	history    int
	logger     *logging.Logger
}

// New creates the Supervisor handler.
//
// classifier decides intent; when it errors, the keyword heuristic takes
// over so classifier outages degrade to clarification, never misrouting.
func New(classifier Classifier, history int, logger *logging.Logger) *Supervisor {
	if history <= 0 {
		history = 10
	}
	return &Supervisor{
		classifier: classifier,
		fallback:   NewKeywordClassifier(),
		history:    history,
		logger:     logger.Named("supervisor"),
	}
}

func (s *Supervisor) Node() pipeline.Node { return pipeline.NodeSupervisor }

// Execute decides the next edge for the run.
func (s *Supervisor) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	// Re-entry after the Analyzer branch: format the final response.
	if wc.AnalysisResult != "" {
		wc.Response = "Analysis complete.\n\n" + wc.AnalysisResult
		wc.AppendMessage("assistant", wc.Response)
		return pipeline.Goto(pipeline.NodeEnd, "analysis complete"), nil
	}

	// Re-entry after the persistence chain: summarize the batch.
	if len(wc.Records) > 0 {
		processed, failed, skipped := wc.ExtractionCounts()
		wc.Response = fmt.Sprintf(
			"Extraction complete. Processed %d documents (%d failed, %d skipped).",
			processed, failed, skipped)
		if n := len(wc.NeedsReviewRecords()); n > 0 {
			wc.Response += fmt.Sprintf(" %d records held for review.", n)
		}
		wc.AppendMessage("assistant", wc.Response)
		return pipeline.Goto(pipeline.NodeEnd, "extraction complete"), nil
	}

	if wc.Input == "" {
		wc.Response = "Nothing to do. Ask me to extract documents or analyze existing data."
		return pipeline.Goto(pipeline.NodeEnd, "empty input"), nil
	}

	history := wc.Messages
	if len(history) > s.history {
		history = history[len(history)-s.history:]
	}

	intent, message, err := s.classifier.Classify(ctx, wc.Input, history)
	if err != nil {
		s.logger.Warn(ctx, "classifier failed, using heuristic", zap.Error(err))
		intent, message, err = s.fallback.Classify(ctx, wc.Input, history)
		if err != nil {
			intent, message = IntentRespond, "I could not understand the request. Please rephrase."
		}
	}

	s.logger.Info(ctx, "intent classified",
		zap.String("intent", string(intent)))

	wc.AppendMessage("user", wc.Input)
	wc.Intent = string(intent)

	switch intent {
	case IntentExtract:
		if len(wc.Queue) == 0 {
			wc.Intent = ""
			wc.Response = "No documents are queued for extraction."
			wc.AppendMessage("assistant", wc.Response)
			return pipeline.Goto(pipeline.NodeEnd, "empty queue"), nil
		}
		// Clear the input so post-chain re-entry takes the summary path.
		wc.Input = ""
		return pipeline.Goto(pipeline.NodeExtractor, "intent=extract"), nil

	case IntentAnalyze:
		// Input stays set: the Analyzer uses it to pick targeted sections.
		// Re-entry is routed by the AnalysisResult check above.
		return pipeline.Goto(pipeline.NodeAnalyzer, "intent=analyze"), nil

	case IntentDone:
		if message == "" {
			message = "Session ended."
		}
		wc.Response = message
		wc.AppendMessage("assistant", message)
		return pipeline.Goto(pipeline.NodeEnd, "intent=done"), nil

	default:
		if message == "" {
			message = "I can extract features from queued documents or analyze persisted data. What would you like?"
		}
		wc.Response = message
		wc.AppendMessage("assistant", message)
		return pipeline.Goto(pipeline.NodeEnd, "intent=respond"), nil
	}
}
