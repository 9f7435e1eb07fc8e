package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

const classifierSystemPrompt = `You are a research supervisor for solid electrolyte ionic conductivity analysis.

Based on the user's request, decide what action to take:
- "extract": the user wants to process papers and extract features
- "analyze": the user wants to analyze existing data (correlations, patterns, statistics)
- "respond": you can answer directly without running a pipeline
- "done": the user wants to end the session

Your response format must be:
ACTION: [extract/analyze/respond/done]
RESPONSE: [your message to the user]`

// LLMClassifier classifies intent with an Ollama-served model.
type LLMClassifier struct {
	llm   llms.Model
	model string
}

// NewLLMClassifier connects to an Ollama server.
func NewLLMClassifier(serverURL, model string) (*LLMClassifier, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to ollama: %w", err)
	}
	return &LLMClassifier{llm: llm, model: model}, nil
}

// Classify asks the model for an ACTION/RESPONSE pair.
func (c *LLMClassifier) Classify(ctx context.Context, input string, history []pipeline.Message) (Intent, string, error) {
	var b strings.Builder
	b.WriteString(classifierSystemPrompt)
	b.WriteString("\n\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "user: %s\n", input)

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, b.String(),
		llms.WithTemperature(0.1))
	if err != nil {
		return IntentRespond, "", fmt.Errorf("classifier generation: %w", err)
	}

	intent, message := parseDecision(out)
	return intent, message, nil
}

// parseDecision extracts the ACTION and RESPONSE lines from model output.
// Unparseable or invalid actions default to respond.
func parseDecision(response string) (Intent, string) {
	intent := IntentRespond
	message := strings.TrimSpace(response)

	for _, line := range strings.Split(response, "\n") {
		if after, ok := strings.CutPrefix(line, "ACTION:"); ok {
			switch Intent(strings.ToLower(strings.TrimSpace(after))) {
			case IntentExtract:
				intent = IntentExtract
			case IntentAnalyze:
				intent = IntentAnalyze
			case IntentDone:
				intent = IntentDone
			case IntentRespond:
				intent = IntentRespond
			}
		}
	}

	// RESPONSE may span multiple lines.
	if _, after, ok := strings.Cut(response, "RESPONSE:"); ok {
		message = strings.TrimSpace(after)
	}

	return intent, message
}
