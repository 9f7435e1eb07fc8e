package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// scriptedExtractor fails specific documents a fixed number of times and
// counts every call.
type scriptedExtractor struct {
	mu       sync.Mutex
	calls    int
	failures map[string]int // document id -> failures before success; -1 fails forever
}

func (s *scriptedExtractor) Extract(_ context.Context, doc pipeline.Document, _ []string) (pipeline.ExtractionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	remaining, ok := s.failures[doc.ID]
	if ok && (remaining == -1 || remaining > 0) {
		if remaining > 0 {
			s.failures[doc.ID] = remaining - 1
		}
		return pipeline.ExtractionRecord{}, &Failure{DocumentID: doc.ID, Err: errors.New("model error")}
	}

	return pipeline.ExtractionRecord{
		DocumentID: doc.ID,
		MaterialID: "Li6PS5Cl",
		Status:     pipeline.ExtractionSucceeded,
	}, nil
}

func runLoop(t *testing.T, loop *Loop, wc *pipeline.Context) {
	t.Helper()
	for i := 0; i < 100; i++ {
		d, err := loop.Execute(context.Background(), wc)
		require.NoError(t, err)
		if d.Route == pipeline.RouteDone {
			return
		}
	}
	t.Fatal("loop did not terminate")
}

func newLoop(ext Extractor, budget, workers int) *Loop {
	return NewLoop(ext, config.ExtractionConfig{
		RetryBudget: budget,
		Workers:     workers,
	}, nil, logging.NewTestLogger().Logger)
}

func TestLoopRetryBudgetScenario(t *testing.T) {
	// docA and docB succeed first try; docC always fails with budget 2:
	// exactly 2 + 1 + 2 = 5 extraction calls, processed=2, skipped=1.
	ext := &scriptedExtractor{failures: map[string]int{"docC": -1}}
	loop := newLoop(ext, 2, 1)

	wc := pipeline.NewContext("", []pipeline.Document{
		{ID: "docA", Text: "x"}, {ID: "docB", Text: "x"}, {ID: "docC", Text: "x"},
	})
	runLoop(t, loop, wc)

	assert.Equal(t, 5, ext.calls)
	processed, failed, skipped := wc.ExtractionCounts()
	assert.Equal(t, 2, processed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, wc.RetriesUsed)
	assert.Empty(t, wc.Queue)

	// The skip is observable as an event.
	require.Len(t, wc.Events, 1)
	assert.Equal(t, pipeline.EventExtractionFailure, wc.Events[0].Kind)
	assert.Contains(t, wc.Events[0].Message, "docC")
}

func TestLoopPreservesQueueOrder(t *testing.T) {
	ext := &scriptedExtractor{}
	loop := newLoop(ext, 0, 4)

	docs := []pipeline.Document{
		{ID: "a", Text: "x"}, {ID: "b", Text: "x"}, {ID: "c", Text: "x"},
		{ID: "d", Text: "x"}, {ID: "e", Text: "x"},
	}
	wc := pipeline.NewContext("", docs)
	runLoop(t, loop, wc)

	require.Len(t, wc.Records, len(docs))
	for i, rec := range wc.Records {
		assert.Equal(t, docs[i].ID, rec.DocumentID, "record %d out of order", i)
	}
}

func TestLoopRecoverableFailureWithinBudget(t *testing.T) {
	// docB fails once, then succeeds on its retry.
	ext := &scriptedExtractor{failures: map[string]int{"docB": 1}}
	loop := newLoop(ext, 2, 1)

	wc := pipeline.NewContext("", []pipeline.Document{
		{ID: "docA", Text: "x"}, {ID: "docB", Text: "x"},
	})
	runLoop(t, loop, wc)

	processed, failed, skipped := wc.ExtractionCounts()
	assert.Equal(t, 2, processed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 3, ext.calls)
	assert.Equal(t, 1, wc.RetriesUsed)
	assert.Equal(t, 2, wc.Records[1].Attempts)
}

func TestLoopZeroBudgetFailsWithoutRetry(t *testing.T) {
	ext := &scriptedExtractor{failures: map[string]int{"docA": -1}}
	loop := newLoop(ext, 0, 1)

	wc := pipeline.NewContext("", []pipeline.Document{{ID: "docA", Text: "x"}})
	runLoop(t, loop, wc)

	assert.Equal(t, 1, ext.calls)
	processed, failed, skipped := wc.ExtractionCounts()
	assert.Equal(t, 0, processed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
}

func TestLoopCallBoundForAnyQueue(t *testing.T) {
	// Every document fails forever; total calls may never exceed
	// len(queue) + budget.
	failures := map[string]int{}
	var docs []pipeline.Document
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		failures[id] = -1
		docs = append(docs, pipeline.Document{ID: id, Text: "x"})
	}
	ext := &scriptedExtractor{failures: failures}
	budget := 3
	loop := newLoop(ext, budget, 2)

	wc := pipeline.NewContext("", docs)
	runLoop(t, loop, wc)

	assert.LessOrEqual(t, ext.calls, len(docs)+budget)
	assert.Len(t, wc.Records, len(docs))
	assert.Empty(t, wc.Queue)
}

func TestLoopEmptyQueueIsDone(t *testing.T) {
	loop := newLoop(&scriptedExtractor{}, 2, 1)
	wc := pipeline.NewContext("", nil)

	d, err := loop.Execute(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RouteDone, d.Route)
	assert.Empty(t, wc.Records)
}

func TestLoopWavesContinueWhileQueueRemains(t *testing.T) {
	ext := &scriptedExtractor{}
	loop := newLoop(ext, 0, 2)

	wc := pipeline.NewContext("", []pipeline.Document{
		{ID: "a", Text: "x"}, {ID: "b", Text: "x"}, {ID: "c", Text: "x"},
	})

	d, err := loop.Execute(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RouteContinue, d.Route)
	assert.Len(t, wc.Records, 2)
	assert.Len(t, wc.Queue, 1)

	d, err = loop.Execute(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RouteDone, d.Route)
	assert.Len(t, wc.Records, 3)
	assert.Empty(t, wc.Queue)
}
