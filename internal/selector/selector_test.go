package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playres/internal/manifest"
)

var testRank = RankTable{127: 100, 126: 95, 125: 90, 120: 85, 116: 80, 112: 75, 80: 70, 64: 60, 32: 50, 16: 40}

func video(id int, bw int64, codec string, dv bool, urls ...string) manifest.Track {
	return manifest.Track{
		Kind:          manifest.KindVideo,
		QualityID:     id,
		Codec:         codec,
		Bandwidth:     bw,
		DolbyVision:   dv,
		CandidateURLs: urls,
	}
}

func audio(id int, bw int64, kind manifest.AudioKind, urls ...string) manifest.Track {
	return manifest.Track{
		Kind:          manifest.KindAudio,
		QualityID:     id,
		Bandwidth:     bw,
		AudioKind:     kind,
		CandidateURLs: urls,
	}
}

func baseInput(m *manifest.Manifest) Input {
	return Input{
		Manifest:                   m,
		Constraints:                DefaultConstraints(),
		DeviceCanDecodeDolbyVision: true,
		Rank:                       testRank,
		PreferredCodec:             "hevc",
	}
}

func TestSelectDashPicksMaxBandwidthAtTargetQuality(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{
			video(80, 100, "avc", false, "https://cdn-a/v1"),
			video(80, 300, "hevc", false, "https://cdn-a/v2"),
			video(64, 900, "avc", false, "https://cdn-a/v3"),
		},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {
				audio(30216, 64, manifest.AudioNormal, "https://cdn-a/a1"),
				audio(30280, 192, manifest.AudioNormal, "https://cdn-a/a2"),
			},
		},
	}

	in := baseInput(m)
	in.DesiredQualityID = 80
	res, err := Select(in)
	require.NoError(t, err)

	assert.Equal(t, ModeDash, res.Playable.Mode)
	assert.Equal(t, int64(300), res.Playable.Video.Bandwidth)
	require.NotNil(t, res.Playable.Audio)
	assert.Equal(t, int64(192), res.Playable.Audio.Bandwidth)
	assert.Equal(t, 80, res.ResolvedQualityID)
	assert.Equal(t, 30280, res.ResolvedAudioID)
	assert.Equal(t, []int{80, 64}, res.AvailableQualityIDs)
	assert.Equal(t, ReasonDesiredQuality, res.Reason)
}

func TestSelectNeverPicksDolbyVisionWhenDisallowed(t *testing.T) {
	t.Parallel()

	// Desired quality exists only as a DV track: selection must degrade
	// to the non-DV track, not fail.
	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{
			video(80, 100, "avc", false, "https://cdn-a/v80"),
			video(120, 500, "hevc", true, "https://cdn-a/v120"),
		},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "https://cdn-a/a")},
		},
	}

	in := baseInput(m)
	in.DesiredQualityID = 120
	in.Constraints.AllowDolbyVision = false

	res, err := Select(in)
	require.NoError(t, err)
	assert.Equal(t, 80, res.Playable.Video.QualityID)
	assert.False(t, res.Playable.Video.DolbyVision)
	assert.Equal(t, []int{80}, res.AvailableQualityIDs)
}

func TestSelectDolbyVisionGatedByDeviceCapability(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{
			video(126, 800, "hevc", true, "https://cdn-a/dv"),
			video(80, 100, "avc", false, "https://cdn-a/v80"),
		},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "https://cdn-a/a")},
		},
	}

	in := baseInput(m)
	in.DeviceCanDecodeDolbyVision = false
	res, err := Select(in)
	require.NoError(t, err)
	assert.Equal(t, 80, res.Playable.Video.QualityID)

	in.DeviceCanDecodeDolbyVision = true
	res, err = Select(in)
	require.NoError(t, err)
	assert.Equal(t, 126, res.Playable.Video.QualityID)
}

func TestSelectRankTableOrdersNonNumerically(t *testing.T) {
	t.Parallel()

	// 126 (Dolby Vision) outranks 120 (4K) despite the smaller raw id
	// ordering being irrelevant; unlisted ids sink below listed ones.
	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{
			video(120, 900, "hevc", false, "https://cdn-a/v120"),
			video(126, 700, "hevc", true, "https://cdn-a/v126"),
			video(9999, 9999, "hevc", false, "https://cdn-a/v9999"),
		},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "https://cdn-a/a")},
		},
	}

	res, err := Select(baseInput(m))
	require.NoError(t, err)
	assert.Equal(t, 126, res.ResolvedQualityID)
	assert.Equal(t, []int{126, 120, 9999}, res.AvailableQualityIDs)
}

func TestSelectAudioNarrowingTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		audio       map[manifest.AudioKind][]manifest.Track
		desired     manifest.AudioKind
		constraints func(*Constraints)
		wantKind    manifest.AudioKind
		wantID      int
	}{
		{
			name: "desired kind present",
			audio: map[manifest.AudioKind][]manifest.Track{
				manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "u")},
				manifest.AudioDolby:  {audio(30250, 640, manifest.AudioDolby, "u")},
			},
			desired:  manifest.AudioDolby,
			wantKind: manifest.AudioDolby,
			wantID:   30250,
		},
		{
			name: "desired kind empty falls back to normal",
			audio: map[manifest.AudioKind][]manifest.Track{
				manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "u")},
			},
			desired:  manifest.AudioFlac,
			wantKind: manifest.AudioNormal,
			wantID:   30280,
		},
		{
			name: "disallowed kind removed when alternative exists",
			audio: map[manifest.AudioKind][]manifest.Track{
				manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "u")},
				manifest.AudioDolby:  {audio(30250, 640, manifest.AudioDolby, "u")},
			},
			desired:     manifest.AudioDolby,
			constraints: func(c *Constraints) { c.AllowDolbyAudio = false },
			wantKind:    manifest.AudioNormal,
			wantID:      30280,
		},
		{
			name: "disallowed kind kept as sole option",
			audio: map[manifest.AudioKind][]manifest.Track{
				manifest.AudioFlac: {audio(30251, 1400, manifest.AudioFlac, "u")},
			},
			desired:     manifest.AudioFlac,
			constraints: func(c *Constraints) { c.AllowFlacAudio = false },
			wantKind:    manifest.AudioFlac,
			wantID:      30251,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &manifest.Manifest{
				VideoTracks: []manifest.Track{video(80, 100, "avc", false, "https://cdn-a/v")},
				AudioTracks: tt.audio,
			}
			in := baseInput(m)
			in.DesiredAudioKind = tt.desired
			if tt.constraints != nil {
				tt.constraints(&in.Constraints)
			}

			res, err := Select(in)
			require.NoError(t, err)
			require.NotNil(t, res.Playable.Audio)
			assert.Equal(t, tt.wantKind, res.Playable.Audio.AudioKind)
			assert.Equal(t, tt.wantID, res.ResolvedAudioID)
		})
	}
}

func TestDolbyAudioDecodeFailureFallsBackToNormal(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{video(80, 100, "avc", false, "https://cdn-a/v")},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "https://cdn-a/a")},
			manifest.AudioDolby:  {audio(30250, 640, manifest.AudioDolby, "https://cdn-a/d")},
		},
	}
	in := baseInput(m)
	in.DesiredAudioKind = manifest.AudioDolby

	first, err := Select(in)
	require.NoError(t, err)
	require.NotNil(t, first.Playable.Audio)
	require.Equal(t, manifest.AudioDolby, first.Playable.Audio.AudioKind)

	// Decode failure on the dolby track narrows the constraint set; the
	// reselect must not hand back the same dolby track.
	narrowed, flag, ok := in.Constraints.NarrowFor(first.Playable)
	require.True(t, ok)
	require.Equal(t, FlagDolbyAudio, flag)
	in.Constraints = narrowed

	second, err := Select(in)
	require.NoError(t, err)
	require.NotNil(t, second.Playable.Audio)
	assert.Equal(t, manifest.AudioNormal, second.Playable.Audio.AudioKind)
	assert.Equal(t, 30280, second.ResolvedAudioID)
	assert.NotContains(t, second.AvailableAudioIDs, 30250, "disallowed kind leaves the settings surface")
}

func TestSelectVideoOnlyIsExplicitLastResort(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{video(80, 100, "avc", false, "https://cdn-a/v")},
	}

	res, err := Select(baseInput(m))
	require.NoError(t, err)
	assert.Equal(t, ModeVideoOnly, res.Playable.Mode)
	assert.Nil(t, res.Playable.Audio)
	assert.Equal(t, ReasonVideoOnly, res.Reason)
}

func TestSelectProgressiveFallback(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{video(80, 100, "avc", false)}, // no URLs
		ProgressiveFallback: []manifest.Track{
			video(16, 50, "avc", false), // no URLs either
			video(32, 80, "avc", false, "https://cdn-a/prog"),
		},
	}

	res, err := Select(baseInput(m))
	require.NoError(t, err)
	assert.Equal(t, ModeProgressive, res.Playable.Mode)
	assert.Equal(t, 32, res.ResolvedQualityID)
}

func TestSelectNoPlayableSource(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks:         []manifest.Track{video(80, 100, "avc", false)},
		ProgressiveFallback: []manifest.Track{video(16, 50, "avc", false)},
	}

	_, err := Select(baseInput(m))
	assert.ErrorIs(t, err, manifest.ErrNoPlayableSource)
}

func TestSelectCodecPreferenceBreaksBandwidthTies(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		VideoTracks: []manifest.Track{
			video(80, 300, "avc", false, "https://cdn-a/avc"),
			video(80, 300, "hevc", false, "https://cdn-a/hevc"),
		},
		AudioTracks: map[manifest.AudioKind][]manifest.Track{
			manifest.AudioNormal: {audio(30280, 192, manifest.AudioNormal, "u")},
		},
	}

	res, err := Select(baseInput(m))
	require.NoError(t, err)
	assert.Equal(t, "hevc", res.Playable.Video.Codec)
}
