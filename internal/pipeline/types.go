package pipeline

import (
	"context"
	"time"
)

// Node identifies a stage in the workflow graph.
type Node string

const (
	NodeStart        Node = "start"
	NodeSupervisor   Node = "supervisor"
	NodeExtractor    Node = "extractor"
	NodeStandardizer Node = "standardizer"
	NodeReporter     Node = "reporter"
	NodeDBUpdater    Node = "db_updater"
	NodeGraphUpdater Node = "graph_updater"
	NodeAnalyzer     Node = "analyzer"
	NodeEnd          Node = "end"
)

// AllNodes returns every node in the workflow graph.
func AllNodes() []Node {
	return []Node{
		NodeStart,
		NodeSupervisor,
		NodeExtractor,
		NodeStandardizer,
		NodeReporter,
		NodeDBUpdater,
		NodeGraphUpdater,
		NodeAnalyzer,
		NodeEnd,
	}
}

// Valid reports whether n is a member of the fixed node set.
func (n Node) Valid() bool {
	switch n {
	case NodeStart, NodeSupervisor, NodeExtractor, NodeStandardizer,
		NodeReporter, NodeDBUpdater, NodeGraphUpdater, NodeAnalyzer, NodeEnd:
		return true
	}
	return false
}

func (n Node) String() string {
	return string(n)
}

// Route is the kind of routing decision a handler returns.
type Route string

const (
	// RouteContinue keeps control on the current node (self-loop).
	RouteContinue Route = "continue"
	// RouteDone advances along the node's fixed outgoing chain.
	RouteDone Route = "done"
	// RouteGoto jumps to an explicit next node.
	RouteGoto Route = "goto"
)

// Decision is returned by a handler to tell the engine where to go next.
type Decision struct {
	Route  Route
	Next   Node
	Reason string
}

// Continue returns a self-loop decision.
func Continue() Decision {
	return Decision{Route: RouteContinue}
}

// Done returns a decision that advances along the fixed chain.
func Done(reason string) Decision {
	return Decision{Route: RouteDone, Reason: reason}
}

// Goto returns a decision that jumps to an explicit node.
func Goto(next Node, reason string) Decision {
	return Decision{Route: RouteGoto, Next: next, Reason: reason}
}

// Handler executes one stage of the workflow.
//
// Execute owns the Context for the duration of the call; no other stage may
// mutate it concurrently. A returned error is non-recoverable for the run:
// the engine records it and transitions to End with a partial-failure flag.
type Handler interface {
	Node() Node
	Execute(ctx context.Context, wc *Context) (Decision, error)
}

// Message is one entry in the append-only conversation log.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// EventKind classifies entries in the run's event log.
type EventKind string

const (
	EventExtractionFailure  EventKind = "extraction_failure"
	EventPersistenceFailure EventKind = "persistence_failure"
	EventStageError         EventKind = "stage_error"
	EventIterationBudget    EventKind = "iteration_budget"
	EventCanceled           EventKind = "canceled"
)

// Event records a non-fatal failure or notable condition during a run.
type Event struct {
	Node    Node      `json:"node"`
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Err     string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// TransitionEvent describes one edge taken by the engine.
type TransitionEvent struct {
	RunID     string    `json:"run_id"`
	From      Node      `json:"from"`
	To        Node      `json:"to"`
	Iteration int       `json:"iteration"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher receives transition events for external observers.
//
// Publish failures must be handled by the implementation (logged, dropped);
// the engine ignores returned errors beyond logging them.
type Publisher interface {
	PublishTransition(ctx context.Context, ev TransitionEvent) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, TransitionEvent) error { return nil }
