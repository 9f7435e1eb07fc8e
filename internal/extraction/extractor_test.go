package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

func TestNewExtractorProviders(t *testing.T) {
	ext, err := NewExtractor(config.ExtractionConfig{Provider: "stub"})
	require.NoError(t, err)
	assert.IsType(t, &StubExtractor{}, ext)

	_, err = NewExtractor(config.ExtractionConfig{Provider: "bogus"})
	assert.Error(t, err)
}

func TestStubExtractor(t *testing.T) {
	ext := &StubExtractor{}

	rec, err := ext.Extract(context.Background(), pipeline.Document{ID: "a", Text: "text"}, nil)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ExtractionSucceeded, rec.Status)

	_, err = ext.Extract(context.Background(), pipeline.Document{ID: "b"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "b", failure.DocumentID)
}
