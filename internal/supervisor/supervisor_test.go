package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, input string, history []pipeline.Message) (Intent, string, error) {
	args := m.Called(ctx, input, history)
	return args.Get(0).(Intent), args.String(1), args.Error(2)
}

func newSupervisor(c Classifier) *Supervisor {
	return New(c, 10, logging.NewTestLogger().Logger)
}

func TestRoutesExtractIntent(t *testing.T) {
	c := &mockClassifier{}
	c.On("Classify", mock.Anything, "extract the papers", mock.Anything).
		Return(IntentExtract, "", nil)

	wc := pipeline.NewContext("extract the papers", []pipeline.Document{{ID: "a"}})
	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.RouteGoto, d.Route)
	assert.Equal(t, pipeline.NodeExtractor, d.Next)
	assert.Equal(t, string(IntentExtract), wc.Intent)
	assert.Empty(t, wc.Input)
	c.AssertExpectations(t)
}

func TestRoutesAnalyzeIntent(t *testing.T) {
	c := &mockClassifier{}
	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(IntentAnalyze, "", nil)

	wc := pipeline.NewContext("show correlations", nil)
	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeAnalyzer, d.Next)
	assert.Equal(t, "show correlations", wc.Input)
}

func TestUnrecognizedIntentNeverMisroutes(t *testing.T) {
	c := &mockClassifier{}
	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(IntentRespond, "how can I help?", nil)

	wc := pipeline.NewContext("hello there", []pipeline.Document{{ID: "a"}})
	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeEnd, d.Next)
	assert.Equal(t, "how can I help?", wc.Response)
}

func TestExtractWithEmptyQueueClarifies(t *testing.T) {
	c := &mockClassifier{}
	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(IntentExtract, "", nil)

	wc := pipeline.NewContext("extract", nil)
	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeEnd, d.Next)
	assert.Contains(t, wc.Response, "No documents")
	assert.Empty(t, wc.Intent)
}

func TestClassifierErrorDegradesToHeuristic(t *testing.T) {
	c := &mockClassifier{}
	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(IntentRespond, "", errors.New("ollama unreachable"))

	// The heuristic still recognizes the analyze keyword.
	wc := pipeline.NewContext("run a correlation analysis", nil)
	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeAnalyzer, d.Next)
}

func TestPostChainReentrySummarizes(t *testing.T) {
	c := &mockClassifier{}

	wc := pipeline.NewContext("", nil)
	wc.Records = []pipeline.ExtractionRecord{
		{DocumentID: "a", Status: pipeline.ExtractionSucceeded},
		{DocumentID: "b", Status: pipeline.ExtractionSucceeded},
		{DocumentID: "c", Status: pipeline.ExtractionRetryExhausted},
	}
	wc.Standardized = []pipeline.StandardizedRecord{
		{SourceField: "odd field", Status: pipeline.ReviewNeedsReview},
	}

	d, err := newSupervisor(c).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeEnd, d.Next)
	assert.Contains(t, wc.Response, "Processed 2 documents")
	assert.Contains(t, wc.Response, "1 skipped")
	assert.Contains(t, wc.Response, "1 records held for review")
	// The classifier is never consulted on re-entry.
	c.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisReentryFormatsResponse(t *testing.T) {
	wc := pipeline.NewContext("", nil)
	wc.AnalysisResult = "| feature | r |"

	d, err := newSupervisor(&mockClassifier{}).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeEnd, d.Next)
	assert.Contains(t, wc.Response, "Analysis complete.")
	assert.Contains(t, wc.Response, "| feature | r |")
}

func TestEmptyInputClarifies(t *testing.T) {
	wc := pipeline.NewContext("", nil)
	d, err := newSupervisor(&mockClassifier{}).Execute(context.Background(), wc)
	require.NoError(t, err)

	assert.Equal(t, pipeline.NodeEnd, d.Next)
	assert.NotEmpty(t, wc.Response)
}
