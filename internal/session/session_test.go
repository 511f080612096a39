package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"playres/internal/config"
	"playres/internal/manifest"
	"playres/internal/manifest/client"
	"playres/internal/selector"
)

func testManifestDoc() manifest.Document {
	return manifest.Document{
		VideoTracks: []manifest.TrackDocument{
			{ID: 120, Bandwidth: 8_000_000, Codec: "hevc", PrimaryURL: "https://cdn-a/120.m4s", BackupURLs: []string{"https://cdn-b/120.m4s"}, DolbyVision: true},
			{ID: 116, Bandwidth: 6_000_000, Codec: "hevc", PrimaryURL: "https://cdn-a/116.m4s"},
			{ID: 80, Bandwidth: 2_000_000, Codec: "avc1", PrimaryURL: "https://cdn-a/80.m4s"},
		},
		AudioTracks: []manifest.TrackDocument{
			{ID: 30280, Bandwidth: 192_000, Codec: "mp4a", PrimaryURL: "https://cdn-a/a.m4s"},
		},
		DolbyAudioTracks: []manifest.TrackDocument{
			{ID: 30250, Bandwidth: 640_000, Codec: "ec-3", PrimaryURL: "https://cdn-a/dolby.m4s"},
		},
	}
}

func newTestSession(t *testing.T, ms *client.MockServer, opts ...SessionOption) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Provider.BaseURL = ms.URL
	cfg.Prompt.CommitDelay = 30 * time.Millisecond
	return New(&cfg, client.New(ms.URL), opts...)
}

func TestLoadResolvesPlayable(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()
	ms.OverlayMetaDoc = map[string]any{"segmentSizeMs": 360_000, "totalSegments": 10}

	s := newTestSession(t, ms)
	res, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	assert.Equal(t, selector.ModeDash, res.Selection.Playable.Mode)
	assert.Equal(t, 116, res.Selection.ResolvedQualityID, "DV track filtered without device support")
	assert.False(t, res.Bypassed)
	assert.False(t, res.VideoOnly)
	assert.Equal(t, "https://cdn-a/116.m4s", res.ActiveCDN)
}

func TestLoadUsesBypassWhenBlocked(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()
	ms.BlockPrimary = true
	ms.BypassToken = "tok-1"

	s := newTestSession(t, ms)
	res, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)
	assert.True(t, res.Bypassed, "blocked primary must surface the bypass notice")
	assert.Equal(t, selector.ModeDash, res.Selection.Playable.Mode)
}

func TestLoadNoUsableURLsIsTerminal(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = manifest.Document{
		VideoTracks: []manifest.TrackDocument{{ID: 116, Codec: "hevc"}}, // no URLs anywhere
	}

	s := newTestSession(t, ms)
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrNoPlayableSource)
}

func TestDecodeErrorNarrowsAndReselects(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()

	s := newTestSession(t, ms, WithDolbyVisionDecode(true))
	res, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)
	require.True(t, res.Selection.Playable.Video.DolbyVision, "DV-capable device starts on the DV track")

	requestsBefore := ms.Requests()
	require.NoError(t, s.OnPlayerEvent(context.Background(), DecodeError{Err: assert.AnError}))

	sel, err := s.Selection()
	require.NoError(t, err)
	assert.False(t, sel.Playable.Video.DolbyVision, "reselect after narrowing avoids DV")
	assert.Equal(t, requestsBefore, ms.Requests(), "narrowing reselects from the cached manifest")

	// The narrowed playable carries no Dolby feature, so a second decode
	// failure has nothing left to disable.
	err = s.OnPlayerEvent(context.Background(), DecodeError{Err: assert.AnError})
	assert.ErrorIs(t, err, ErrDecodeUnsupported)
}

func TestDecodeErrorWithNothingToNarrowIsFatal(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = manifest.Document{
		VideoTracks: []manifest.TrackDocument{{ID: 80, Codec: "avc1", PrimaryURL: "https://cdn-a/80.m4s"}},
		AudioTracks: []manifest.TrackDocument{{ID: 30280, Codec: "mp4a", PrimaryURL: "https://cdn-a/a.m4s"}},
	}

	s := newTestSession(t, ms)
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	err = s.OnPlayerEvent(context.Background(), DecodeError{Err: assert.AnError})
	assert.ErrorIs(t, err, ErrDecodeUnsupported)
}

func TestReselectUsesCachedManifest(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()

	s := newTestSession(t, ms)
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	requestsBefore := ms.Requests()
	sel, err := s.Reselect(80, manifest.AudioNormal, 0)
	require.NoError(t, err)
	assert.Equal(t, 80, sel.ResolvedQualityID)
	assert.Equal(t, requestsBefore, ms.Requests())

	src, err := s.Source()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn-a/80.m4s", src.Active(), "CDN source follows the reselected track")
}

func TestResumeCommitsAfterCountdown(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()
	ms.ResumeDoc = map[string]any{"positionMs": 120_000}

	var resumed atomic.Int64
	s := newTestSession(t, ms, WithHooks(Hooks{OnResume: func(pos int64) { resumed.Store(pos) }}))
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return resumed.Load() == 120_000 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(120_000), s.Position())
}

func TestSeekBeforeCountdownCancelsResume(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()
	ms.ResumeDoc = map[string]any{"positionMs": 120_000}

	var resumed atomic.Bool
	s := newTestSession(t, ms, WithHooks(Hooks{OnResume: func(int64) { resumed.Store(true) }}))
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	require.NoError(t, s.OnPlayerEvent(context.Background(), Seek{PositionMs: 30_000}))
	time.Sleep(100 * time.Millisecond) // past the commit delay

	assert.False(t, resumed.Load(), "user seek must cancel the auto-resume countdown")
	assert.Equal(t, int64(30_000), s.Position())
}

func TestSkipCommitAdvancesPastSegment(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()
	ms.SkipSegmentsDocs = []map[string]any{
		{"id": "op", "startMs": 10_000, "endMs": 95_000, "action": "skip_intro"},
	}

	var skipped atomic.Value
	s := newTestSession(t, ms, WithHooks(Hooks{OnSkip: func(seg manifest.SkipSegment) { skipped.Store(seg.ID) }}))
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)

	require.NoError(t, s.OnPlayerEvent(context.Background(), PositionUpdate{PositionMs: 12_000}))
	require.Eventually(t, func() bool { return skipped.Load() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "op", skipped.Load())
	assert.Equal(t, int64(95_000), s.Position(), "skip commit lands at the segment end")
}

func TestEventsBeforeLoad(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	s := newTestSession(t, ms)

	require.NoError(t, s.OnPlayerEvent(context.Background(), PositionUpdate{PositionMs: 1_000}))
	err := s.OnPlayerEvent(context.Background(), DecodeError{Err: assert.AnError})
	assert.ErrorIs(t, err, ErrNoActiveLoad)

	_, err = s.Selection()
	assert.ErrorIs(t, err, ErrNoActiveLoad)
	_, err = s.Reselect(80, manifest.AudioNormal, 0)
	assert.ErrorIs(t, err, ErrNoActiveLoad)
}

func TestLoadLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()

	hc := &http.Client{}
	defer hc.CloseIdleConnections()

	cfg := config.Default()
	cfg.Provider.BaseURL = ms.URL
	s := New(&cfg, client.New(ms.URL, client.WithHTTPClient(hc)))
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)
}

func TestConcurrentLoadsInstallSingleWinner(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()

	s := newTestSession(t, ms)

	errs := make(map[string]error, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range []string{"bv1", "bv2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Load(context.Background(), LoadRequest{MediaID: id})
			mu.Lock()
			errs[id] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// The session must end up internally consistent: the installed media
	// id belongs to a load that did not report itself superseded, and a
	// selection is in place.
	winner := s.MediaID()
	require.Contains(t, []string{"bv1", "bv2"}, winner)
	assert.NoError(t, errs[winner])
	for id, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrLoadSuperseded)
			assert.NotEqual(t, winner, id)
		}
	}
	_, err := s.Selection()
	assert.NoError(t, err)
}

func TestLoadResetsConstraints(t *testing.T) {
	t.Parallel()

	ms := client.NewMockServer()
	defer ms.Close()
	ms.ManifestDoc = testManifestDoc()

	s := newTestSession(t, ms, WithDolbyVisionDecode(true))
	_, err := s.Load(context.Background(), LoadRequest{MediaID: "bv1"})
	require.NoError(t, err)
	require.NoError(t, s.OnPlayerEvent(context.Background(), DecodeError{Err: assert.AnError}))

	sel, err := s.Selection()
	require.NoError(t, err)
	require.False(t, sel.Playable.Video.DolbyVision)

	// A fresh load starts from the all-true constraint set again.
	res, err := s.Load(context.Background(), LoadRequest{MediaID: "bv2"})
	require.NoError(t, err)
	assert.True(t, res.Selection.Playable.Video.DolbyVision)
}
