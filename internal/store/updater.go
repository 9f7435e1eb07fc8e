package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Updater is the DBUpdater stage handler. It upserts only resolved records;
// per-row persistence failures become events and the run continues, marking
// the affected keys as unpersisted.
type Updater struct {
	store  RowStore
	logger *logging.Logger
}

// NewUpdater creates the DBUpdater handler.
func NewUpdater(store RowStore, logger *logging.Logger) *Updater {
	return &Updater{store: store, logger: logger.Named("db_updater")}
}

func (u *Updater) Node() pipeline.Node { return pipeline.NodeDBUpdater }

// Execute upserts the resolved batch.
func (u *Updater) Execute(ctx context.Context, wc *pipeline.Context) (pipeline.Decision, error) {
	written := 0
	for _, rec := range wc.ResolvedRecords() {
		key := Key{
			DocumentID: rec.DocumentID,
			MaterialID: rec.MaterialID,
			Property:   rec.CanonicalKey,
		}
		row := Row{
			Value:      rec.Value,
			Unit:       rec.Unit,
			DOI:        rec.DOI,
			Conditions: rec.Conditions,
			Similarity: rec.Similarity,
		}

		if err := u.store.AppendRow(ctx, key, row); err != nil {
			wc.AddEvent(pipeline.NodeDBUpdater, pipeline.EventPersistenceFailure,
				"row upsert failed: "+key.String(), err)
			wc.Unpersisted = append(wc.Unpersisted, key.String())
			u.logger.Warn(ctx, "row upsert failed",
				zap.String("key", key.String()),
				zap.Error(err))
			continue
		}
		written++
	}

	u.logger.Info(ctx, "rows persisted",
		zap.Int("written", written),
		zap.Int("failed", len(wc.Unpersisted)))
	return pipeline.Done("rows persisted"), nil
}
