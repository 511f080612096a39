// Package selector turns a delivery manifest and the current constraint
// set into a single playable source. Selection is pure: no I/O, no
// blocking, and "track missing" is encoded via emptiness and fallback
// tiers rather than errors. The only failure is
// manifest.ErrNoPlayableSource when every tier is exhausted.
package selector

import (
	"sort"

	"github.com/rs/zerolog"

	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/metrics"
)

// Mode tags the playable union.
type Mode string

const (
	ModeDash        Mode = "dash"
	ModeVideoOnly   Mode = "video_only"
	ModeProgressive Mode = "progressive"
)

// Reason describes why a selection came out the way it did.
type Reason string

const (
	ReasonDesiredQuality    Reason = "desired_quality"
	ReasonBestQuality       Reason = "best_quality"
	ReasonQualityFallback   Reason = "quality_fallback"
	ReasonVideoOnly         Reason = "video_only_last_resort"
	ReasonProgressive       Reason = "progressive_fallback"
	ReasonNoPlayableSource  Reason = "no_playable_source"
)

// Playable is the resolved source handed to the renderer. Video carries
// the selected video track for dash and video-only modes and the single
// progressive track for progressive mode. Audio is nil unless Mode is
// ModeDash.
type Playable struct {
	Mode  Mode
	Video manifest.Track
	Audio *manifest.Track
}

// Input carries everything selection depends on. Rank and PreferredCodec
// come from configuration; the desired fields come from the settings UI.
type Input struct {
	Manifest         *manifest.Manifest
	Constraints      Constraints
	DesiredQualityID int
	DesiredAudioKind manifest.AudioKind
	DesiredAudioID   int
	// DeviceCanDecodeDolbyVision gates DV tracks independently of the
	// constraint flag (capability vs. policy).
	DeviceCanDecodeDolbyVision bool
	Rank                       RankTable
	PreferredCodec             string
}

// Result is the selection outcome plus the settings surface exposed to
// the UI (available and resolved quality/audio ids).
type Result struct {
	Playable            Playable
	ResolvedQualityID   int
	ResolvedAudioID     int
	AvailableQualityIDs []int
	AvailableAudioIDs   []int
	Reason              Reason
}

// Select resolves the manifest into a playable source.
func Select(in Input) (Result, error) {
	logger := log.WithComponent("selector")

	videos := filterVideoTracks(in)
	availableQualities := qualityIDs(videos, in.Rank)

	if len(videos) == 0 {
		return progressiveFallback(in, availableQualities)
	}

	target := in.Rank.Best(availableQualities)
	reason := ReasonBestQuality
	if in.DesiredQualityID != 0 && containsInt(availableQualities, in.DesiredQualityID) {
		target = in.DesiredQualityID
		reason = ReasonDesiredQuality
	}

	pool := tracksAtQuality(videos, target)
	if len(pool) == 0 {
		// No track at the target quality: fall back to the full
		// filtered set rather than failing.
		pool = videos
		reason = ReasonQualityFallback
		logger.Warn().
			Int(log.FieldQualityID, target).
			Msg("no track at target quality, widening to full candidate set")
	}
	video := pickVideoTrack(pool, in.PreferredCodec)

	audioPool, availableAudioIDs := buildAudioPool(in)
	if len(audioPool) == 0 {
		// Explicitly allowed last resort. Never silently dropped: the
		// mode tells the caller to surface the muted-audio state.
		result := Result{
			Playable:            Playable{Mode: ModeVideoOnly, Video: video},
			ResolvedQualityID:   video.QualityID,
			AvailableQualityIDs: availableQualities,
			Reason:              ReasonVideoOnly,
		}
		logSelection(logger, result)
		return result, nil
	}

	audio := pickAudioTrack(audioPool, in.DesiredAudioID)
	result := Result{
		Playable:            Playable{Mode: ModeDash, Video: video, Audio: &audio},
		ResolvedQualityID:   video.QualityID,
		ResolvedAudioID:     audio.QualityID,
		AvailableQualityIDs: availableQualities,
		AvailableAudioIDs:   availableAudioIDs,
		Reason:              reason,
	}
	logSelection(logger, result)
	return result, nil
}

// filterVideoTracks keeps usable tracks and removes Dolby Vision tracks
// the device cannot decode or the constraints disallow.
func filterVideoTracks(in Input) []manifest.Track {
	var out []manifest.Track
	for _, t := range in.Manifest.VideoTracks {
		if !t.Usable() {
			continue
		}
		if t.DolbyVision && (!in.Constraints.AllowDolbyVision || !in.DeviceCanDecodeDolbyVision) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// qualityIDs returns the unique quality ids of tracks, rank-descending.
func qualityIDs(tracks []manifest.Track, rank RankTable) []int {
	seen := make(map[int]struct{}, len(tracks))
	var ids []int
	for _, t := range tracks {
		if _, dup := seen[t.QualityID]; dup {
			continue
		}
		seen[t.QualityID] = struct{}{}
		ids = append(ids, t.QualityID)
	}
	sort.Slice(ids, func(i, j int) bool { return rank.Compare(ids[i], ids[j]) > 0 })
	return ids
}

func tracksAtQuality(tracks []manifest.Track, quality int) []manifest.Track {
	var out []manifest.Track
	for _, t := range tracks {
		if t.QualityID == quality {
			out = append(out, t)
		}
	}
	return out
}

// pickVideoTrack maximizes (bandwidth, codecMatchesPreferred) lexicographically.
func pickVideoTrack(pool []manifest.Track, preferredCodec string) manifest.Track {
	best := pool[0]
	for _, t := range pool[1:] {
		switch {
		case t.Bandwidth > best.Bandwidth:
			best = t
		case t.Bandwidth == best.Bandwidth &&
			t.Codec == preferredCodec && best.Codec != preferredCodec:
			best = t
		}
	}
	return best
}

// buildAudioPool applies the audio narrowing tiers, each already filtered
// by the constraint flags: tracks of the desired kind, else normal
// tracks, else any allowed kind. A constraint-disallowed kind survives
// only when it is the sole usable audio in the whole manifest. The second
// return value is the constraint-filtered id list for the settings UI.
func buildAudioPool(in Input) ([]manifest.Track, []int) {
	m := in.Manifest

	usableAllowed := func(tracks []manifest.Track) []manifest.Track {
		var out []manifest.Track
		for _, t := range tracks {
			if t.Usable() && in.Constraints.allowsAudioKind(t.AudioKind) {
				out = append(out, t)
			}
		}
		return out
	}

	var available []int
	for _, t := range usableAllowed(m.AllAudioTracks()) {
		available = append(available, t.QualityID)
	}

	pool := usableAllowed(m.AudioTracks[in.DesiredAudioKind])
	if len(pool) == 0 {
		pool = usableAllowed(m.AudioTracks[manifest.AudioNormal])
	}
	if len(pool) == 0 {
		pool = usableAllowed(m.AllAudioTracks())
	}
	if len(pool) == 0 {
		for _, t := range m.AllAudioTracks() {
			if t.Usable() {
				pool = append(pool, t)
			}
		}
	}

	return pool, available
}

// pickAudioTrack maximizes (bandwidth, idMatchesDesired) lexicographically.
func pickAudioTrack(pool []manifest.Track, desiredID int) manifest.Track {
	best := pool[0]
	for _, t := range pool[1:] {
		switch {
		case t.Bandwidth > best.Bandwidth:
			best = t
		case t.Bandwidth == best.Bandwidth &&
			t.QualityID == desiredID && best.QualityID != desiredID:
			best = t
		}
	}
	return best
}

// progressiveFallback picks the first usable progressive entry, or fails
// with manifest.ErrNoPlayableSource when that tier is empty too. The
// caller-level compatibility retry (re-requesting the manifest with a
// most-compatible parameter set) lives in the session, not here.
func progressiveFallback(in Input, availableQualities []int) (Result, error) {
	for _, t := range in.Manifest.ProgressiveFallback {
		if !t.Usable() {
			continue
		}
		result := Result{
			Playable:            Playable{Mode: ModeProgressive, Video: t},
			ResolvedQualityID:   t.QualityID,
			AvailableQualityIDs: availableQualities,
			Reason:              ReasonProgressive,
		}
		logSelection(log.WithComponent("selector"), result)
		return result, nil
	}
	metrics.RecordSelection("", string(ReasonNoPlayableSource))
	return Result{}, manifest.ErrNoPlayableSource
}

func logSelection(logger zerolog.Logger, r Result) {
	metrics.RecordSelection(string(r.Playable.Mode), string(r.Reason))
	logger.Debug().
		Str(log.FieldMode, string(r.Playable.Mode)).
		Str(log.FieldReason, string(r.Reason)).
		Int(log.FieldQualityID, r.ResolvedQualityID).
		Int(log.FieldAudioID, r.ResolvedAudioID).
		Str(log.FieldCodec, r.Playable.Video.Codec).
		Msg("selection resolved")
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
