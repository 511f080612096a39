// Package manifest defines the typed delivery-manifest model and the
// parsing layer that maps provider JSON onto it. Absence and blank fields
// collapse to emptiness: a track with no usable URL has an empty
// CandidateURLs list, never a nil-vs-present distinction.
package manifest

// Kind distinguishes video from audio renditions.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// AudioKind groups audio tracks by codec family.
type AudioKind string

const (
	AudioNormal AudioKind = "normal"
	AudioDolby  AudioKind = "dolby"
	AudioFlac   AudioKind = "flac"
)

// Track is one encoded rendition with its ordered candidate mirror URLs.
type Track struct {
	Kind          Kind
	QualityID     int
	Codec         string
	Bandwidth     int64
	CandidateURLs []string // ordered: primary first, then backups, deduplicated
	AudioKind     AudioKind
	DolbyVision   bool
}

// Usable reports whether the track has at least one candidate URL.
func (t Track) Usable() bool {
	return len(t.CandidateURLs) > 0
}

// Manifest is the typed delivery manifest for one media item.
type Manifest struct {
	VideoTracks         []Track
	AudioTracks         map[AudioKind][]Track
	ProgressiveFallback []Track
}

// AllAudioTracks flattens the grouped audio tracks in kind order
// (normal, dolby, flac) for deterministic iteration.
func (m *Manifest) AllAudioTracks() []Track {
	var out []Track
	for _, kind := range []AudioKind{AudioNormal, AudioDolby, AudioFlac} {
		out = append(out, m.AudioTracks[kind]...)
	}
	return out
}

// Usable reports whether any track in any tier carries at least one URL.
// The all-false case is the "zero usable URLs" condition that triggers the
// bypass request variant even without an explicit block signal.
func (m *Manifest) Usable() bool {
	for _, t := range m.VideoTracks {
		if t.Usable() {
			return true
		}
	}
	for _, tracks := range m.AudioTracks {
		for _, t := range tracks {
			if t.Usable() {
				return true
			}
		}
	}
	for _, t := range m.ProgressiveFallback {
		if t.Usable() {
			return true
		}
	}
	return false
}

// OverlayMeta describes the secondary time-indexed overlay stream.
type OverlayMeta struct {
	SegmentSizeMs  int64
	TotalSegments  int // 0 means unknown (treated as unbounded)
	ShieldDefaults ShieldDefaults
}

// ShieldDefaults are per-content overrides for the overlay item filter.
type ShieldDefaults struct {
	BlockedCategories []string
	MinAIConfidence   float64
}

// OverlayItem is one time-anchored caption/annotation entry.
type OverlayItem struct {
	TimeMs   int64
	Category string
	AIScore  float64 // 0 for non-AI items
	Payload  string
}

// SkipSegment is a provider-supplied skippable range (intro, credits, ad).
type SkipSegment struct {
	ID      string
	StartMs int64
	EndMs   int64
	Action  string
}

// ResumePoint is the provider-supplied resume position for a media item.
type ResumePoint struct {
	PositionMs int64
}
