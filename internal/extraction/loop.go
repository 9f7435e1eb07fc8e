package extraction

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Loop is the extraction loop controller stage.
//
// Each Execute call consumes one wave of documents from the front of the
// queue, at most `workers` wide, and reassembles results in queue order.
// Failed extractions draw retries from a run-level budget shared across the
// whole queue; once the budget is gone, failing documents are skipped with a
// recorded event. The controller therefore performs at most
// len(queue)+budget extraction calls per run.
type Loop struct {
	extractor   Extractor
	schemaHint  []string
	workers     int
	callTimeout time.Duration
	limiter     *rate.Limiter
	retries     atomic.Int64
	budget      int
	logger      *logging.Logger
	documents   metric.Int64Counter
}

// NewLoop creates a loop controller for one run.
func NewLoop(extractor Extractor, cfg config.ExtractionConfig, schemaHint []string, logger *logging.Logger) *Loop {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	documents, _ := otel.Meter("featmine/extraction").Int64Counter(
		"featmine.extraction.documents",
		metric.WithDescription("Documents consumed by the extraction loop"),
	)

	l := &Loop{
		extractor:   extractor,
		schemaHint:  schemaHint,
		workers:     workers,
		callTimeout: cfg.Timeout.Duration(),
		limiter:     limiter,
		budget:      cfg.RetryBudget,
		logger:      logger.Named("extractor"),
		documents:   documents,
	}
	l.retries.Store(int64(cfg.RetryBudget))
	return l
}

func (l *Loop) Node() pipeline.Node { return pipeline.NodeExtractor }

// Execute processes one wave of the document queue.
func (l *Loop) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	if len(wc.Queue) == 0 {
		return pipeline.Done("queue empty"), nil
	}

	wave := l.workers
	if wave > len(wc.Queue) {
		wave = len(wc.Queue)
	}
	docs := wc.Queue[:wave]
	records := make([]pipeline.ExtractionRecord, wave)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, doc := range docs {
		g.Go(func() error {
			records[i] = l.extractDocument(gctx, doc)
			return nil
		})
	}
	// Workers never return errors; failures live in the records.
	_ = g.Wait()

	// Reassembled in queue order before anything flows downstream.
	for _, rec := range records {
		wc.Records = append(wc.Records, rec)
		switch rec.Status {
		case pipeline.ExtractionRetryExhausted:
			wc.AddEvent(pipeline.NodeExtractor, pipeline.EventExtractionFailure,
				fmt.Sprintf("document %s skipped after %d attempts", rec.DocumentID, rec.Attempts), nil)
		case pipeline.ExtractionFailed:
			wc.AddEvent(pipeline.NodeExtractor, pipeline.EventExtractionFailure,
				fmt.Sprintf("document %s failed, retry budget exhausted", rec.DocumentID), nil)
		}
		if l.documents != nil {
			l.documents.Add(ctx, 1, metric.WithAttributes(
				attribute.String("status", string(rec.Status))))
		}
	}
	wc.Queue = wc.Queue[wave:]
	wc.RetriesUsed = l.budget - int(l.retries.Load())

	if len(wc.Queue) > 0 {
		return pipeline.Continue(), nil
	}
	return pipeline.Done("queue empty"), nil
}

// extractDocument runs one document to a terminal status, drawing retries
// from the shared budget.
func (l *Loop) extractDocument(ctx context.Context, doc pipeline.Document) pipeline.ExtractionRecord {
	ctx = logging.ContextWithDocument(ctx, doc.ID)
	attempts := 0

	for {
		attempts++
		rec, err := l.extractOnce(ctx, doc)
		if err == nil {
			rec.Attempts = attempts
			l.logger.Debug(ctx, "document extracted",
				zap.Int("attempts", attempts),
				zap.Int("features", len(rec.Features)))
			return rec
		}

		l.logger.Warn(ctx, "extraction attempt failed",
			zap.Int("attempt", attempts),
			zap.Error(err))

		if ctx.Err() != nil || !l.reserveRetry() {
			status := pipeline.ExtractionFailed
			if attempts > 1 {
				status = pipeline.ExtractionRetryExhausted
			}
			return pipeline.ExtractionRecord{
				DocumentID: doc.ID,
				Status:     status,
				Attempts:   attempts,
				Err:        err.Error(),
			}
		}
	}
}

func (l *Loop) extractOnce(ctx context.Context, doc pipeline.Document) (pipeline.ExtractionRecord, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return pipeline.ExtractionRecord{}, err
		}
	}
	if l.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
	}
	return l.extractor.Extract(ctx, doc, l.schemaHint)
}

// reserveRetry takes one token from the shared budget.
func (l *Loop) reserveRetry() bool {
	for {
		cur := l.retries.Load()
		if cur <= 0 {
			return false
		}
		if l.retries.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}
