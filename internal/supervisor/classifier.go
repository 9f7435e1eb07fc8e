package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Intent is a recognized user intent.
type Intent string

const (
	IntentExtract Intent = "extract"
	IntentAnalyze Intent = "analyze"
	IntentRespond Intent = "respond"
	IntentDone    Intent = "done"
)

// Classifier maps free-form input to an Intent plus a user-facing message.
type Classifier interface {
	Classify(ctx context.Context, input string, history []pipeline.Message) (Intent, string, error)
}

// NewClassifier creates a classifier based on configuration.
func NewClassifier(cfg config.SupervisorConfig) (Classifier, error) {
	switch cfg.Provider {
	case "", "heuristic":
		return NewKeywordClassifier(), nil
	case "ollama":
		return NewLLMClassifier(cfg.OllamaURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown supervisor provider: %s", cfg.Provider)
	}
}

// KeywordClassifier is a deterministic heuristic classifier. It is the
// default provider and the degradation target when the LLM is unreachable.
type KeywordClassifier struct {
	extract []string
	analyze []string
	done    []string
}

// NewKeywordClassifier creates the heuristic classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		extract: []string{"extract", "process", "ingest", "mine", "paper", "document", "pdf"},
		analyze: []string{"analyze", "analysis", "correlat", "statistic", "pattern", "trend"},
		done:    []string{"quit", "exit", "bye", "goodbye"},
	}
}

// Classify matches the input against keyword lists. Unmatched input is
// always respond, never extract or analyze.
func (k *KeywordClassifier) Classify(_ context.Context, input string, _ []pipeline.Message) (Intent, string, error) {
	lower := strings.ToLower(input)

	for _, kw := range k.done {
		if strings.Contains(lower, kw) {
			return IntentDone, "Session ended.", nil
		}
	}
	for _, kw := range k.analyze {
		if strings.Contains(lower, kw) {
			return IntentAnalyze, "", nil
		}
	}
	for _, kw := range k.extract {
		if strings.Contains(lower, kw) {
			return IntentExtract, "", nil
		}
	}

	return IntentRespond, "I can extract features from queued documents or analyze persisted data. What would you like?", nil
}
