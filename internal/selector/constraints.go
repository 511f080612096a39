package selector

import "playres/internal/manifest"

// Constraints is the per-load narrowing policy. Every flag starts true on
// a fresh media load; a flag may only flip true to false within one load's
// retry chain, and the set is never widened back within a session.
type Constraints struct {
	AllowDolbyVision bool
	AllowDolbyAudio  bool
	AllowFlacAudio   bool
}

// Narrowable flag names, used for logging and metrics.
const (
	FlagDolbyVision = "dolby_vision"
	FlagDolbyAudio  = "dolby_audio"
	FlagFlacAudio   = "flac_audio"
)

// DefaultConstraints returns the all-true starting point for a new load.
func DefaultConstraints() Constraints {
	return Constraints{
		AllowDolbyVision: true,
		AllowDolbyAudio:  true,
		AllowFlacAudio:   true,
	}
}

// NarrowFor disables the single feature most likely responsible for a
// decoder-class failure of the given playable: Dolby Vision first, then
// Dolby audio, then FLAC audio. It returns the narrowed set, the name of
// the disabled flag, and false when no further narrowing is possible (the
// caller surfaces the decode error as fatal).
func (c Constraints) NarrowFor(p Playable) (Constraints, string, bool) {
	if p.Video.DolbyVision && c.AllowDolbyVision {
		c.AllowDolbyVision = false
		return c, FlagDolbyVision, true
	}
	if p.Audio != nil && p.Audio.AudioKind == manifest.AudioDolby && c.AllowDolbyAudio {
		c.AllowDolbyAudio = false
		return c, FlagDolbyAudio, true
	}
	if p.Audio != nil && p.Audio.AudioKind == manifest.AudioFlac && c.AllowFlacAudio {
		c.AllowFlacAudio = false
		return c, FlagFlacAudio, true
	}
	return c, "", false
}

// allowsAudioKind reports whether the constraint set permits the kind.
func (c Constraints) allowsAudioKind(kind manifest.AudioKind) bool {
	switch kind {
	case manifest.AudioDolby:
		return c.AllowDolbyAudio
	case manifest.AudioFlac:
		return c.AllowFlacAudio
	default:
		return true
	}
}
