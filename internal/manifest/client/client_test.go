package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playres/internal/manifest"
)

func TestFetchManifestDecodesDocument(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = manifest.Document{
		VideoTracks: []manifest.TrackDocument{
			{ID: 80, Bandwidth: 100, Codec: "avc", PrimaryURL: "https://cdn-a/v80"},
		},
	}

	c := New(ms.URL)
	m, err := c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	require.NoError(t, err)
	require.Len(t, m.VideoTracks, 1)
	assert.Equal(t, 80, m.VideoTracks[0].QualityID)
}

func TestFetchManifestBlockedEnvelopeCode(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.BlockPrimary = true
	ms.BypassToken = "tok-123"

	c := New(ms.URL)
	_, err := c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, "tok-123", BypassTokenFrom(err))

	// The bypass variant is served.
	m, err := c.FetchManifest(context.Background(), MediaRequest{
		MediaID: "bv1",
		Flags:   FormatFlags{BestEffort: true, BypassToken: "tok-123"},
	})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestFetchManifestConfigurableBlockedCodes(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.BlockPrimary = true
	ms.BlockCode = -999

	// -999 is not in the default block set: an ordinary upstream error.
	c := New(ms.URL)
	_, err := c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrBlocked)

	// With the code configured, the same response is a block.
	c = New(ms.URL, WithBlockedCodes([]int{-999}))
	_, err = c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestFetchManifestTransportFailures(t *testing.T) {
	ms := NewMockServer()
	ms.FailStatus = 503
	c := New(ms.URL)

	_, err := c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	assert.ErrorIs(t, err, ErrUpstream)

	ms.Close()
	_, err = c.FetchManifest(context.Background(), MediaRequest{MediaID: "bv1"})
	assert.ErrorIs(t, err, ErrUnavailable)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "manifest", pe.Operation)
}

func TestFetchOverlayEndpoints(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.OverlayMetaDoc = manifest.OverlayMetaDocument{SegmentSizeMs: 360_000, TotalSegments: 12}
	ms.OverlayItems = []manifest.OverlayItemDocument{
		{TimeMs: 1000, Category: "scroll", Payload: "hi"},
	}
	ms.SkipSegmentsDocs = []manifest.SkipSegmentDocument{
		{ID: "op", StartMs: 0, EndMs: 90_000, Action: "skip_intro"},
	}
	ms.ResumeDoc = map[string]int64{"positionMs": 120_000}

	c := New(ms.URL)
	ctx := context.Background()

	meta, err := c.FetchOverlayMeta(ctx, "bv1")
	require.NoError(t, err)
	assert.Equal(t, int64(360_000), meta.SegmentSizeMs)

	items, err := c.FetchOverlaySegment(ctx, "bv1", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	skips, err := c.FetchSkipSegments(ctx, "bv1")
	require.NoError(t, err)
	require.Len(t, skips, 1)

	resume, err := c.FetchResumePoint(ctx, "bv1")
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), resume.PositionMs)
}
