package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Updater is the GraphUpdater stage handler. It derives a Delta from the
// resolved batch and applies it; a failed merge is recorded as an event and
// the run continues.
type Updater struct {
	store  Store
	logger *logging.Logger
}

// NewUpdater creates the GraphUpdater handler.
func NewUpdater(store Store, logger *logging.Logger) *Updater {
	return &Updater{store: store, logger: logger.Named("graph_updater")}
}

func (u *Updater) Node() pipeline.Node { return pipeline.NodeGraphUpdater }

// Execute merges the batch into the knowledge graph.
func (u *Updater) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	delta := BuildDelta(wc.ResolvedRecords())
	if delta.Empty() {
		u.logger.Debug(ctx, "no graph delta for batch")
		return pipeline.Done("empty delta"), nil
	}

	if err := u.store.MergeNodesAndEdges(ctx, delta); err != nil {
		wc.AddEvent(pipeline.NodeGraphUpdater, pipeline.EventPersistenceFailure,
			"graph merge failed", err)
		u.logger.Warn(ctx, "graph merge failed", zap.Error(err))
		return pipeline.Done("graph merge failed"), nil
	}

	u.logger.Info(ctx, "graph updated",
		zap.Int("nodes", len(delta.Nodes)),
		zap.Int("edges", len(delta.Edges)))
	return pipeline.Done("graph updated"), nil
}
