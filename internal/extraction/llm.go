package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

const extractionSystemPrompt = `You are an expert in analyzing solid electrolyte ionic conductivity research papers.

Extract the following information from the given text:
1. DOI (if available)
2. Material composition (chemical formula like Li6PS5Cl)
3. Ionic conductivity value and unit
4. Activation energy (eV)
5. Sintering temperature (C)
6. Ball milling speed (rpm)
7. Any other relevant experimental parameters
8. Your confidence in the extraction (0.0-1.0)

Respond ONLY in valid JSON matching this structure:
{
    "doi": "10.xxxx/...",
    "material_id": "Li6PS5Cl",
    "ionic_conductivity": 3.6e-3,
    "ionic_conductivity_unit": "S/cm",
    "activation_energy": 0.30,
    "sintering_temp": 550,
    "ball_milling_rpm": 500,
    "additional_features": {"grain_size": 10, "relative_density": 95},
    "confidence": 0.9
}

If a value is not found, use null.`

// extractionResult is the JSON shape the model is asked to produce.
type extractionResult struct {
	DOI                   string             `json:"doi"`
	MaterialID            string             `json:"material_id"`
	IonicConductivity     *float64           `json:"ionic_conductivity"`
	IonicConductivityUnit string             `json:"ionic_conductivity_unit"`
	ActivationEnergy      *float64           `json:"activation_energy"`
	SinteringTemp         *float64           `json:"sintering_temp"`
	BallMillingRPM        *float64           `json:"ball_milling_rpm"`
	AdditionalFeatures    map[string]any     `json:"additional_features"`
	Confidence            float64            `json:"confidence"`
}

// LLMExtractor extracts features with an Ollama-served model.
type LLMExtractor struct {
	llm   llms.Model
	model string
}

// NewLLMExtractor connects to an Ollama server.
func NewLLMExtractor(serverURL, model string) (*LLMExtractor, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to ollama: %w", err)
	}
	return &LLMExtractor{llm: llm, model: model}, nil
}

// Extract runs the extraction prompt over one document.
func (e *LLMExtractor) Extract(ctx context.Context, doc pipeline.Document, schemaHint []string) (pipeline.ExtractionRecord, error) {
	if doc.Text == "" {
		return pipeline.ExtractionRecord{}, &Failure{DocumentID: doc.ID, Err: ErrEmptyDocument}
	}

	var b strings.Builder
	b.WriteString(extractionSystemPrompt)
	if len(schemaHint) > 0 {
		fmt.Fprintf(&b, "\n\nPrefer these canonical field names where applicable: %s", strings.Join(schemaHint, ", "))
	}
	fmt.Fprintf(&b, "\n\nPaper text:\n%s\n\nExtract all solid electrolyte ionic conductivity data from the above paper.", doc.Text)

	out, err := llms.GenerateFromSinglePrompt(ctx, e.llm, b.String(),
		llms.WithTemperature(0.1))
	if err != nil {
		return pipeline.ExtractionRecord{}, &Failure{DocumentID: doc.ID, Err: err}
	}

	result, err := parseExtraction(out)
	if err != nil {
		return pipeline.ExtractionRecord{}, &Failure{DocumentID: doc.ID, Err: err}
	}

	return result.toRecord(doc), nil
}

// parseExtraction decodes the model output, tolerating code fences around
// the JSON body.
func parseExtraction(out string) (*extractionResult, error) {
	text := strings.TrimSpace(out)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	// Some models wrap JSON in prose; cut to the outermost braces.
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndex(text, "}"); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("%w: unparseable model output: %v", ErrExtractionFailed, err)
	}
	return &result, nil
}

// toRecord converts the parsed result into an ExtractionRecord using the
// internal feature names the standardizer expects.
func (r *extractionResult) toRecord(doc pipeline.Document) pipeline.ExtractionRecord {
	rec := pipeline.ExtractionRecord{
		DocumentID: doc.ID,
		DOI:        r.DOI,
		MaterialID: r.MaterialID,
		Confidence: r.Confidence,
		Status:     pipeline.ExtractionSucceeded,
	}
	if rec.DOI == "" {
		rec.DOI = doc.ID
	}

	if r.IonicConductivity != nil {
		unit := r.IonicConductivityUnit
		if unit == "" {
			unit = "S/cm"
		}
		rec.Features = append(rec.Features, pipeline.Feature{
			Name: "ionic_cond", Value: *r.IonicConductivity, Unit: unit,
		})
	}
	if r.ActivationEnergy != nil {
		rec.Features = append(rec.Features, pipeline.Feature{
			Name: "act_energy", Value: *r.ActivationEnergy, Unit: "eV",
		})
	}
	if r.SinteringTemp != nil {
		rec.Features = append(rec.Features, pipeline.Feature{
			Name: "sintering_T", Value: *r.SinteringTemp, Unit: "C",
		})
	}
	if r.BallMillingRPM != nil {
		rec.Features = append(rec.Features, pipeline.Feature{
			Name: "milling_spd", Value: *r.BallMillingRPM, Unit: "rpm",
		})
	}

	for name, val := range r.AdditionalFeatures {
		if f, ok := toFloat(val); ok {
			rec.Features = append(rec.Features, pipeline.Feature{Name: name, Value: f})
		}
	}

	return rec
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
