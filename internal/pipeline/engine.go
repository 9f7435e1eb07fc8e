package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/logging"
)

var (
	// ErrIterationBudget indicates the engine-level cycle guard tripped.
	ErrIterationBudget = errors.New("workflow iteration budget exceeded")
	// ErrNoHandler indicates a reachable node has no registered handler.
	ErrNoHandler = errors.New("no handler registered for node")
	// ErrInvalidTransition indicates a handler requested an edge that is not
	// in the workflow graph.
	ErrInvalidTransition = errors.New("invalid node transition")
)

// successors is the static edge table of the workflow graph. A handler's
// decision is only honored if the resulting edge appears here.
var successors = map[Node][]Node{
	NodeStart:        {NodeSupervisor},
	NodeSupervisor:   {NodeExtractor, NodeAnalyzer, NodeEnd},
	NodeExtractor:    {NodeExtractor, NodeStandardizer},
	NodeStandardizer: {NodeReporter},
	NodeReporter:     {NodeDBUpdater},
	NodeDBUpdater:    {NodeGraphUpdater},
	NodeGraphUpdater: {NodeSupervisor},
	NodeAnalyzer:     {NodeSupervisor},
	NodeEnd:          {},
}

// doneNext maps each node to the target of its fixed "done" edge.
var doneNext = map[Node]Node{
	NodeExtractor:    NodeStandardizer,
	NodeStandardizer: NodeReporter,
	NodeReporter:     NodeDBUpdater,
	NodeDBUpdater:    NodeGraphUpdater,
	NodeGraphUpdater: NodeSupervisor,
	NodeAnalyzer:     NodeSupervisor,
	NodeSupervisor:   NodeEnd,
}

// Engine executes a Context through the workflow graph.
type Engine struct {
	handlers      map[Node]Handler
	maxIterations int
	logger        *logging.Logger
	publisher     Publisher
	tracer        oteltrace.Tracer
	transitions   metric.Int64Counter
}

// NewEngine creates an engine with the given cycle guard.
//
// maxIterations bounds total node executions per run, independent of any
// stage-level retry budget.
func NewEngine(maxIterations int, logger *logging.Logger) *Engine {
	transitions, _ := otel.Meter("featmine/pipeline").Int64Counter(
		"featmine.engine.transitions",
		metric.WithDescription("Workflow node transitions taken"),
	)
	return &Engine{
		handlers:      make(map[Node]Handler),
		maxIterations: maxIterations,
		logger:        logger.Named("engine"),
		publisher:     NopPublisher{},
		tracer:        otel.Tracer("featmine/pipeline"),
		transitions:   transitions,
	}
}

// RegisterHandler registers a stage handler for its node.
func (e *Engine) RegisterHandler(h Handler) {
	e.handlers[h.Node()] = h
}

// SetPublisher sets the transition event publisher.
func (e *Engine) SetPublisher(p Publisher) {
	if p != nil {
		e.publisher = p
	}
}

// ValidTransition reports whether from→to is an edge of the workflow graph.
func ValidTransition(from, to Node) bool {
	for _, n := range successors[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Run executes the workflow until End, the iteration guard, cancellation, or
// a missing handler.
//
// Handler errors never propagate: they are recorded as events and the run
// transitions to End with the partial-failure flag set. The returned Context
// is always usable for reporting, even alongside a non-nil error.
func (e *Engine) Run(ctx context.Context, wc *Context) (*Context, error) {
	if wc.CurrentNode == "" {
		wc.CurrentNode = NodeStart
	}
	ctx = logging.ContextWithRunID(ctx, wc.RunID)

	e.logger.Info(ctx, "run started",
		zap.String("node", wc.CurrentNode.String()),
		zap.Int("queue", len(wc.Queue)))

	for wc.CurrentNode != NodeEnd {
		// Stage boundaries are the only safe cancellation points.
		select {
		case <-ctx.Done():
			wc.AddEvent(wc.CurrentNode, EventCanceled, "run canceled at stage boundary", ctx.Err())
			wc.PartialFailure = true
			wc.Done = true
			return wc, ctx.Err()
		default:
		}

		if wc.Iterations >= e.maxIterations {
			wc.AddEvent(wc.CurrentNode, EventIterationBudget,
				fmt.Sprintf("exceeded %d iterations", e.maxIterations), nil)
			wc.PartialFailure = true
			wc.Done = true
			return wc, fmt.Errorf("%w: %d", ErrIterationBudget, e.maxIterations)
		}
		wc.Iterations++

		if wc.CurrentNode == NodeStart {
			e.transition(ctx, wc, NodeSupervisor, "run start")
			continue
		}

		handler, ok := e.handlers[wc.CurrentNode]
		if !ok {
			wc.PartialFailure = true
			wc.Done = true
			return wc, fmt.Errorf("%w: %s", ErrNoHandler, wc.CurrentNode)
		}

		next, err := e.executeStage(ctx, wc, handler)
		if err != nil {
			wc.AddEvent(wc.CurrentNode, EventStageError, "stage failed", err)
			wc.PartialFailure = true
			e.logger.Error(ctx, "stage failed",
				zap.String("node", wc.CurrentNode.String()),
				zap.Error(err))
			e.transition(ctx, wc, NodeEnd, "stage error")
			continue
		}

		e.transition(ctx, wc, next, "")
	}

	wc.Done = true
	processed, failed, skipped := wc.ExtractionCounts()
	e.logger.Info(ctx, "run finished",
		zap.Int("iterations", wc.Iterations),
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Bool("partial_failure", wc.PartialFailure),
		zap.Duration("elapsed", time.Since(wc.StartedAt)))
	return wc, nil
}

// executeStage runs one handler inside a span and resolves its decision to
// the next node.
func (e *Engine) executeStage(ctx context.Context, wc *Context, handler Handler) (Node, error) {
	node := wc.CurrentNode
	ctx = logging.ContextWithNode(ctx, node.String())

	ctx, span := e.tracer.Start(ctx, "pipeline."+node.String(),
		oteltrace.WithAttributes(
			attribute.String("run.id", wc.RunID),
			attribute.Int("run.iteration", wc.Iterations),
		))
	defer span.End()

	decision, err := handler.Execute(ctx, wc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var next Node
	switch decision.Route {
	case RouteContinue:
		next = node
	case RouteDone:
		next = doneNext[node]
	case RouteGoto:
		next = decision.Next
	default:
		return "", fmt.Errorf("%w: %s returned unknown route %q", ErrInvalidTransition, node, decision.Route)
	}

	if !ValidTransition(node, next) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, node, next)
	}

	span.SetAttributes(
		attribute.String("decision.route", string(decision.Route)),
		attribute.String("decision.next", next.String()),
	)
	return next, nil
}

// transition advances the context and emits the trace event for the edge.
func (e *Engine) transition(ctx context.Context, wc *Context, to Node, reason string) {
	from := wc.CurrentNode
	wc.CurrentNode = to

	e.logger.Debug(ctx, "transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("iteration", wc.Iterations))

	if e.transitions != nil {
		e.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
		))
	}

	ev := TransitionEvent{
		RunID:     wc.RunID,
		From:      from,
		To:        to,
		Iteration: wc.Iterations,
		Reason:    reason,
		Time:      time.Now().UTC(),
	}
	if err := e.publisher.PublishTransition(ctx, ev); err != nil {
		e.logger.Warn(ctx, "transition publish failed", zap.Error(err))
	}
}
