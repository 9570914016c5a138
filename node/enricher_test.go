package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/internal/testutil"
	"github.com/frameiq/queryflow/tool"
)

func TestEnricher_AttachesMetadata(t *testing.T) {
	metadata := tool.NewMockMetadataClient()
	metadata.Add(tool.MetadataRecord{
		ID: "603", Title: "The Matrix", MediaType: "movie", Year: "1999",
		PosterURL: "https://img/matrix.jpg", Link: "https://catalog/movie/603",
	})

	e := NewEnricher(metadata)
	s := core.NewState("q", nil).MergeItems(core.Item{ID: "603", Title: "The Matrix"})

	got, next, err := e.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, core.NodeTerminate, next)

	enr, ok := got.Enrichment["603"]
	require.True(t, ok)
	assert.Equal(t, "https://img/matrix.jpg", enr.PosterURL)
	assert.Equal(t, "1999", enr.Year)
	assert.False(t, enr.Missing)
}

func TestEnricher_PartialFailureDoesNotCorruptOthers(t *testing.T) {
	metadata := tool.NewMockMetadataClient()
	metadata.Add(tool.MetadataRecord{ID: "603", Title: "The Matrix", PosterURL: "https://img/matrix.jpg"})
	metadata.FailKey("999", errors.New("malformed record"))
	metadata.FailKey("Broken Item", errors.New("malformed record"))

	e := NewEnricher(metadata)
	s := core.NewState("q", nil).MergeItems(
		core.Item{ID: "603", Title: "The Matrix"},
		core.Item{ID: "999", Title: "Broken Item"},
	)

	got, next, err := e.Execute(context.Background(), s)
	require.NoError(t, err, "partial failure never fails the run")
	assert.Equal(t, core.NodeTerminate, next)

	assert.Equal(t, "https://img/matrix.jpg", got.Enrichment["603"].PosterURL)
	assert.True(t, got.Enrichment["999"].Missing)
	assert.Empty(t, got.Unenriched(), "failed items are marked, not retried")
}

func TestEnricher_NotFoundMarksAbsent(t *testing.T) {
	e := NewEnricher(tool.NewMockMetadataClient())
	s := core.NewState("q", nil).MergeItems(core.Item{ID: "unknown", Title: "Unknown"})

	got, _, err := e.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, got.Enrichment["unknown"].Missing)
}

func TestEnricher_SkipsAlreadyEnriched(t *testing.T) {
	metadata := tool.NewMockMetadataClient()
	metadata.Add(tool.MetadataRecord{ID: "603", Title: "The Matrix"})

	e := NewEnricher(metadata)
	s := core.NewState("q", nil).
		MergeItems(core.Item{ID: "603", Title: "The Matrix"}).
		WithEnrichment("603", core.Enrichment{PosterURL: "https://img/cached.jpg"})

	got, _, err := e.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, metadata.Calls())
	assert.Equal(t, "https://img/cached.jpg", got.Enrichment["603"].PosterURL)
}

func TestEnricher_ManyUnknownItems(t *testing.T) {
	e := NewEnricher(tool.NewMockMetadataClient())
	s := core.NewState("q", nil).MergeItems(testutil.Items(40)...)

	got, next, err := e.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, core.NodeTerminate, next)
	require.Len(t, got.Enrichment, 40)
	for _, it := range got.Items {
		assert.True(t, got.Enrichment[it.ID].Missing)
	}
}

func TestEnricher_FallsBackToTitleLookup(t *testing.T) {
	metadata := tool.NewMockMetadataClient()
	// Record known only by title; the item's source id comes from the
	// semantic index and is not a catalog id.
	metadata.Add(tool.MetadataRecord{ID: "603", Title: "The Matrix", PosterURL: "https://img/matrix.jpg"})
	metadata.FailKey("vec-17", tool.ErrNotFound)

	e := NewEnricher(metadata)
	s := core.NewState("q", nil).MergeItems(core.Item{ID: "vec-17", Title: "The Matrix"})

	got, _, err := e.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "https://img/matrix.jpg", got.Enrichment["vec-17"].PosterURL)
	assert.False(t, got.Enrichment["vec-17"].Missing)
}
