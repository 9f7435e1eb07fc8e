package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Document is one unit of source text queued for extraction.
type Document struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
	Text string `json:"text"`
}

// ExtractionStatus is the terminal state of one document's extraction.
type ExtractionStatus string

const (
	ExtractionSucceeded      ExtractionStatus = "succeeded"
	ExtractionFailed         ExtractionStatus = "failed"
	ExtractionRetryExhausted ExtractionStatus = "retry_exhausted"
)

// Feature is one raw extracted field: a numeric value with its unit and any
// experimental conditions, keyed by the name the source text used.
type Feature struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Conditions string  `json:"conditions,omitempty"`
}

// ExtractionRecord is the outcome of extracting one document.
type ExtractionRecord struct {
	DocumentID string           `json:"document_id"`
	DOI        string           `json:"doi,omitempty"`
	MaterialID string           `json:"material_id,omitempty"`
	Features   []Feature        `json:"features,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Status     ExtractionStatus `json:"status"`
	Attempts   int              `json:"attempts"`
	Err        string           `json:"error,omitempty"`
}

// ReviewStatus is the standardization outcome for one feature.
type ReviewStatus string

const (
	ReviewResolved    ReviewStatus = "resolved"
	ReviewNeedsReview ReviewStatus = "needs_review"
)

// StandardizedRecord is one feature after unit normalization and schema
// mapping. Only resolved records flow to the persistence stages.
type StandardizedRecord struct {
	DocumentID   string       `json:"document_id"`
	DOI          string       `json:"doi,omitempty"`
	MaterialID   string       `json:"material_id"`
	SourceField  string       `json:"source_field"`
	CanonicalKey string       `json:"canonical_key,omitempty"`
	Value        float64      `json:"value"`
	Unit         string       `json:"unit,omitempty"`
	Conditions   string       `json:"conditions,omitempty"`
	Similarity   float64      `json:"similarity"`
	Status       ReviewStatus `json:"status"`
}

// KeyMapping records how a source field mapped onto the canonical schema.
type KeyMapping struct {
	SourceField  string  `json:"source_field"`
	CanonicalKey string  `json:"canonical_key"`
	Similarity   float64 `json:"similarity"`
}

// ApprovalReport is a read-only projection over a standardized batch,
// produced for human review before persistence.
type ApprovalReport struct {
	Accepted     int                  `json:"accepted"`
	NeedsReview  int                  `json:"needs_review"`
	Mappings     []KeyMapping         `json:"mappings,omitempty"`
	ProposedKeys []string             `json:"proposed_keys,omitempty"`
	Preview      []StandardizedRecord `json:"preview,omitempty"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// Context is the shared state threaded through every stage of a run.
//
// Exactly one run owns a Context; the engine hands the pointer to one handler
// at a time, so no locking is needed inside stages.
type Context struct {
	RunID       string `json:"run_id"`
	CurrentNode Node   `json:"current_node"`

	// Input is the free-form user request for this turn. Only the
	// Supervisor interprets it.
	Input  string `json:"input,omitempty"`
	Intent string `json:"intent,omitempty"`

	Messages []Message `json:"messages,omitempty"`

	Queue        []Document           `json:"queue,omitempty"`
	Records      []ExtractionRecord   `json:"records,omitempty"`
	Standardized []StandardizedRecord `json:"standardized,omitempty"`
	Report       *ApprovalReport      `json:"report,omitempty"`

	AnalysisResult string `json:"analysis_result,omitempty"`
	Response       string `json:"response,omitempty"`

	Events      []Event  `json:"events,omitempty"`
	Unpersisted []string `json:"unpersisted,omitempty"`

	Iterations     int  `json:"iterations"`
	RetriesUsed    int  `json:"retries_used"`
	PartialFailure bool `json:"partial_failure"`
	Done           bool `json:"done"`

	StartedAt time.Time `json:"started_at"`
}

// NewContext creates a fresh Context for one run.
func NewContext(input string, docs []Document) *Context {
	return &Context{
		RunID:       uuid.NewString(),
		CurrentNode: NodeStart,
		Input:       input,
		Queue:       docs,
		StartedAt:   time.Now().UTC(),
	}
}

// AppendMessage adds an entry to the conversation log.
func (c *Context) AppendMessage(role, content string) {
	c.Messages = append(c.Messages, Message{
		Role:    role,
		Content: content,
		Time:    time.Now().UTC(),
	})
}

// AddEvent records a non-fatal failure or condition.
func (c *Context) AddEvent(node Node, kind EventKind, message string, err error) {
	ev := Event{
		Node:    node,
		Kind:    kind,
		Message: message,
		Time:    time.Now().UTC(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	c.Events = append(c.Events, ev)
}

// ResolvedRecords returns the standardized records cleared for persistence.
func (c *Context) ResolvedRecords() []StandardizedRecord {
	out := make([]StandardizedRecord, 0, len(c.Standardized))
	for _, r := range c.Standardized {
		if r.Status == ReviewResolved {
			out = append(out, r)
		}
	}
	return out
}

// NeedsReviewRecords returns the records held for manual review.
func (c *Context) NeedsReviewRecords() []StandardizedRecord {
	var out []StandardizedRecord
	for _, r := range c.Standardized {
		if r.Status == ReviewNeedsReview {
			out = append(out, r)
		}
	}
	return out
}

// ExtractionCounts returns processed, failed and skipped document counts.
func (c *Context) ExtractionCounts() (processed, failed, skipped int) {
	for _, r := range c.Records {
		switch r.Status {
		case ExtractionSucceeded:
			processed++
		case ExtractionFailed:
			failed++
		case ExtractionRetryExhausted:
			skipped++
		}
	}
	return processed, failed, skipped
}
