package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/logging"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

func sampleBatch() []pipeline.StandardizedRecord {
	return []pipeline.StandardizedRecord{
		{DocumentID: "doc1", MaterialID: "Li6PS5Cl", CanonicalKey: "Ionic_Conductivity_mS_cm",
			Value: 3.6, Unit: "mS/cm", DOI: "10.1000/a", Similarity: 0.95,
			Status: pipeline.ReviewResolved},
		{DocumentID: "doc1", MaterialID: "Li6PS5Cl", CanonicalKey: "Sintering_Temp",
			Value: 550, Unit: "C", DOI: "10.1000/a", Similarity: 0.91,
			Status: pipeline.ReviewResolved},
		{DocumentID: "doc2", MaterialID: "LLZO", SourceField: "weird_param",
			Value: 7, Similarity: 0.3, Status: pipeline.ReviewNeedsReview},
	}
}

func TestMemoryStoreIdempotentAppend(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key := Key{DocumentID: "doc1", MaterialID: "LLZO", Property: "Sintering_Temp"}
	row := Row{Value: 550, Unit: "C"}

	require.NoError(t, s.AppendRow(ctx, key, row))
	require.NoError(t, s.AppendRow(ctx, key, row))

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[key])
}

func TestMemoryStoreLastWriterWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	key := Key{DocumentID: "doc1", MaterialID: "LLZO", Property: "Sintering_Temp"}
	require.NoError(t, s.AppendRow(ctx, key, Row{Value: 500, Unit: "C"}))
	require.NoError(t, s.AppendRow(ctx, key, Row{Value: 550, Unit: "C"}))

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 550.0, rows[key].Value)
}

func TestUpdaterPersistsOnlyResolved(t *testing.T) {
	s := NewMemoryStore()
	u := NewUpdater(s, logging.NewTestLogger().Logger)

	wc := pipeline.NewContext("", nil)
	wc.Standardized = sampleBatch()

	d, err := u.Execute(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RouteDone, d.Route)

	rows, err := s.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for key := range rows {
		assert.NotEmpty(t, key.Property, "needs-review record leaked into store")
	}
}

func TestUpdaterDoubleApplyIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	u := NewUpdater(s, logging.NewTestLogger().Logger)

	run := func() map[Key]Row {
		wc := pipeline.NewContext("", nil)
		wc.Standardized = sampleBatch()
		_, err := u.Execute(context.Background(), wc)
		require.NoError(t, err)
		rows, err := s.Rows(context.Background())
		require.NoError(t, err)
		return rows
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) AppendRow(context.Context, Key, Row) error {
	return errors.New("disk full")
}

func (failingStore) Rows(context.Context) (map[Key]Row, error) {
	return nil, nil
}

func TestUpdaterIsolatesPersistenceFailures(t *testing.T) {
	u := NewUpdater(failingStore{}, logging.NewTestLogger().Logger)

	wc := pipeline.NewContext("", nil)
	wc.Standardized = sampleBatch()

	// The run continues despite every row failing.
	d, err := u.Execute(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RouteDone, d.Route)

	assert.Len(t, wc.Unpersisted, 2)
	require.Len(t, wc.Events, 2)
	for _, ev := range wc.Events {
		assert.Equal(t, pipeline.EventPersistenceFailure, ev.Kind)
		assert.Contains(t, ev.Err, "disk full")
	}
}

func TestCSVStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	ctx := context.Background()

	s, err := OpenCSVStore(path)
	require.NoError(t, err)

	key := Key{DocumentID: "doc1", MaterialID: "Li6PS5Cl", Property: "Ionic_Conductivity_mS_cm"}
	row := Row{Value: 3.6, Unit: "mS/cm", DOI: "10.1000/a", Similarity: 0.95}
	require.NoError(t, s.AppendRow(ctx, key, row))
	require.NoError(t, s.AppendRow(ctx, key, row))

	// Reopen and verify the persisted state survived.
	reopened, err := OpenCSVStore(path)
	require.NoError(t, err)
	rows, err := reopened.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[key])
}

func TestCSVStoreMissingFileIsEmpty(t *testing.T) {
	s, err := OpenCSVStore(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)

	rows, err := s.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestKeyString(t *testing.T) {
	k := Key{DocumentID: "d", MaterialID: "m", Property: "p"}
	assert.Equal(t, "d/m/p", k.String())
}
