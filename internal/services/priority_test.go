package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridor-platform/internal/cache"
	"corridor-platform/internal/geo"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/models"
	"corridor-platform/internal/store"
)

// recordingCache builds every request and remembers invalidated documents
type recordingCache struct {
	invalidated []int64
}

func (c *recordingCache) Get(ctx context.Context, _ int64, _ string, build cache.Builder) ([]byte, error) {
	return build(ctx)
}

func (c *recordingCache) Invalidate(_ context.Context, docID int64) error {
	c.invalidated = append(c.invalidated, docID)
	return nil
}

func newPriorityFixture(t *testing.T) (*PriorityService, *fakeStore, *recordingCache) {
	t.Helper()
	st := newFakeStore()
	c := &recordingCache{}
	return NewPriorityService(st, c, testLayers, logging.NewDiscardLogger()), st, c
}

func TestMarkPoorQualityRivers(t *testing.T) {
	svc, st, _ := newPriorityFixture(t)
	ctx := context.Background()

	liesbeek := st.addSpace(testLayers.Rivers, "Liesbeek", line(18.46, -33.95, 18.47, -33.92), map[string]any{"features": map[string]any{"ORDER": "2"}})
	st.addSpace(testLayers.Rivers, "Black River", line(18.48, -33.95, 18.49, -33.92), nil)
	st.addSpace(testLayers.Rivers, "Eerste", line(18.80, -34.0, 18.81, -33.9), nil)

	marked, err := svc.MarkPoorQualityRivers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	stored, err := st.GetSpace(ctx, liesbeek.ID)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Meta[PoorQualityFlag])
	assert.NotNil(t, stored.Meta["features"])

	flagged, err := st.ListSpaces(ctx, store.SpaceFilter{SourceID: &testLayers.Rivers, MetaFlag: PoorQualityFlag})
	require.NoError(t, err)
	assert.Len(t, flagged, 2)
}

func TestRebuildBuffersAndDifference(t *testing.T) {
	svc, st, c := newPriorityFixture(t)
	ctx := context.Background()

	st.addSpace(testLayers.Rivers, "Liesbeek", line(18.40, -33.95, 18.50, -33.95), nil)
	st.addSpace(testLayers.Bionet, "Reserve west", square(18.39, -33.96, 0.03), nil)
	st.addSpace(testLayers.Bionet, "Reserve east", square(18.42, -33.96, 0.01), nil)

	_, err := svc.MarkPoorQualityRivers(ctx)
	require.NoError(t, err)

	msgs, err := svc.RebuildBuffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"We created RIVERS WITH BUFFERS with 400m distance",
		"We created bionet as a single layer",
		"We created BIONET WITH BUFFERS with 400m distance",
	}, msgs)
	assert.Len(t, c.invalidated, 3)

	// rebuilding replaces the derived spaces instead of adding to them
	_, err = svc.RebuildBuffers(ctx)
	require.NoError(t, err)
	riverBuffer, _, err := st.GetOrCreateDocument(ctx, riverBufferDoc.name, models.Document{})
	require.NoError(t, err)
	assert.Len(t, st.spacesOf(riverBuffer.ID), 1)

	require.NoError(t, svc.CalculateDifference(ctx))

	layers, err := svc.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers.Rivers, 1)
	require.NotNil(t, layers.RiverBuffer)
	require.NotNil(t, layers.BionetFlat)
	require.NotNil(t, layers.BionetBuffer)
	require.NotNil(t, layers.RiverSegments)
	assert.Equal(t, "Rivers far from Bionet", layers.RiverSegments.Name)

	segments, err := geo.ParseGeoJSON(layers.RiverSegments.Geometry)
	require.NoError(t, err)
	buffer, err := geo.ParseGeoJSON(layers.RiverBuffer.Geometry)
	require.NoError(t, err)
	bionet, err := geo.ParseGeoJSON(layers.BionetBuffer.Geometry)
	require.NoError(t, err)

	// the eastern end of the river lies far from bionet, the western end does not
	east, err := geo.Intersects(segments, geo.Point(18.50, -33.95))
	require.NoError(t, err)
	assert.True(t, east)
	west, err := geo.Intersects(segments, geo.Point(18.40, -33.95))
	require.NoError(t, err)
	assert.False(t, west)
	inBuffer, err := geo.Intersects(buffer, geo.Point(18.40, -33.95))
	require.NoError(t, err)
	assert.True(t, inBuffer)
	inBionet, err := geo.Intersects(bionet, geo.Point(18.40, -33.95))
	require.NoError(t, err)
	assert.True(t, inBionet)
}

func TestCalculateDifferenceNeedsBuffers(t *testing.T) {
	svc, _, _ := newPriorityFixture(t)
	err := svc.CalculateDifference(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRebuildBuffersWithoutRivers(t *testing.T) {
	svc, st, _ := newPriorityFixture(t)
	st.addSpace(testLayers.Bionet, "Reserve", square(18.39, -33.96, 0.03), nil)

	_, err := svc.RebuildBuffers(context.Background())
	assert.ErrorIs(t, err, geo.ErrEmptyGeometry)
}
