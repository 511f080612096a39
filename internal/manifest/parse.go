package manifest

import (
	"strings"
)

// Wire types mirror the provider JSON document. The parsing layer is the
// only place raw provider fields are touched; everything downstream works
// on the typed model.

// TrackDocument is one track entry as delivered by the provider.
type TrackDocument struct {
	ID          int      `json:"id"`
	Bandwidth   int64    `json:"bandwidth"`
	Codec       string   `json:"codec"`
	PrimaryURL  string   `json:"primaryUrl"`
	BackupURLs  []string `json:"backupUrls"`
	DolbyVision bool     `json:"dolbyVision"`
}

// Document is the provider manifest payload.
type Document struct {
	VideoTracks         []TrackDocument `json:"videoTracks"`
	AudioTracks         []TrackDocument `json:"audioTracks"`
	DolbyAudioTracks    []TrackDocument `json:"dolbyAudioTracks"`
	FlacAudioTracks     []TrackDocument `json:"flacAudioTrack"`
	ProgressiveFallback []TrackDocument `json:"progressiveFallback"`
}

// FromDocument maps the wire document onto the typed manifest.
func FromDocument(doc Document) *Manifest {
	m := &Manifest{
		AudioTracks: make(map[AudioKind][]Track),
	}
	for _, td := range doc.VideoTracks {
		m.VideoTracks = append(m.VideoTracks, trackFromDocument(td, KindVideo, ""))
	}
	for _, td := range doc.AudioTracks {
		m.AudioTracks[AudioNormal] = append(m.AudioTracks[AudioNormal], trackFromDocument(td, KindAudio, AudioNormal))
	}
	for _, td := range doc.DolbyAudioTracks {
		m.AudioTracks[AudioDolby] = append(m.AudioTracks[AudioDolby], trackFromDocument(td, KindAudio, AudioDolby))
	}
	for _, td := range doc.FlacAudioTracks {
		m.AudioTracks[AudioFlac] = append(m.AudioTracks[AudioFlac], trackFromDocument(td, KindAudio, AudioFlac))
	}
	for _, td := range doc.ProgressiveFallback {
		m.ProgressiveFallback = append(m.ProgressiveFallback, trackFromDocument(td, KindVideo, ""))
	}
	return m
}

func trackFromDocument(td TrackDocument, kind Kind, audioKind AudioKind) Track {
	return Track{
		Kind:          kind,
		QualityID:     td.ID,
		Codec:         strings.ToLower(strings.TrimSpace(td.Codec)),
		Bandwidth:     td.Bandwidth,
		CandidateURLs: candidateURLs(td.PrimaryURL, td.BackupURLs),
		AudioKind:     audioKind,
		DolbyVision:   td.DolbyVision,
	}
}

// candidateURLs builds the ordered, deduplicated mirror list. Blank entries
// are dropped so "no usable URL" is always representable as an empty list.
func candidateURLs(primary string, backups []string) []string {
	var out []string
	seen := make(map[string]struct{}, 1+len(backups))
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	add(primary)
	for _, b := range backups {
		add(b)
	}
	return out
}

// OverlayMetaDocument is the provider overlay metadata payload.
type OverlayMetaDocument struct {
	SegmentSizeMs int64    `json:"segmentSizeMs"`
	TotalSegments int      `json:"totalSegments"`
	Blocked       []string `json:"shieldBlockedCategories"`
	MinAIScore    float64  `json:"shieldMinAiScore"`
}

// OverlayMetaFromDocument maps the wire overlay metadata onto the model.
func OverlayMetaFromDocument(doc OverlayMetaDocument) OverlayMeta {
	return OverlayMeta{
		SegmentSizeMs: doc.SegmentSizeMs,
		TotalSegments: doc.TotalSegments,
		ShieldDefaults: ShieldDefaults{
			BlockedCategories: doc.Blocked,
			MinAIConfidence:   doc.MinAIScore,
		},
	}
}

// OverlayItemDocument is one overlay entry as delivered by the provider.
type OverlayItemDocument struct {
	TimeMs   int64   `json:"timeMs"`
	Category string  `json:"category"`
	AIScore  float64 `json:"aiScore"`
	Payload  string  `json:"payload"`
}

// OverlayItemsFromDocuments maps wire overlay entries onto the model,
// dropping entries with an empty payload.
func OverlayItemsFromDocuments(docs []OverlayItemDocument) []OverlayItem {
	out := make([]OverlayItem, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Payload) == "" {
			continue
		}
		out = append(out, OverlayItem{
			TimeMs:   d.TimeMs,
			Category: strings.ToLower(strings.TrimSpace(d.Category)),
			AIScore:  d.AIScore,
			Payload:  d.Payload,
		})
	}
	return out
}

// SkipSegmentDocument is one skip range as delivered by the provider.
type SkipSegmentDocument struct {
	ID      string `json:"id"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Action  string `json:"action"`
}

// SkipSegmentsFromDocuments maps wire skip ranges onto the model, dropping
// entries with an empty id or an inverted range.
func SkipSegmentsFromDocuments(docs []SkipSegmentDocument) []SkipSegment {
	out := make([]SkipSegment, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.ID) == "" || d.EndMs <= d.StartMs {
			continue
		}
		out = append(out, SkipSegment{
			ID:      d.ID,
			StartMs: d.StartMs,
			EndMs:   d.EndMs,
			Action:  d.Action,
		})
	}
	return out
}
