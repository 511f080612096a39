package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldMediaID   = "media_id"
	FieldComponent = "component"

	// Generation / staleness fields
	FieldLoadGen = "load_gen"

	// Selection fields
	FieldQualityID = "quality_id"
	FieldAudioID   = "audio_id"
	FieldCodec     = "codec"
	FieldMode      = "mode"
	FieldReason    = "reason"

	// Transport fields
	FieldCandidate = "candidate"
	FieldAttempt   = "attempt"
	FieldStatus    = "status"

	// Overlay fields
	FieldSegment  = "segment"
	FieldAnchor   = "anchor"
	FieldEvicted  = "evicted"
	FieldPosition = "position_ms"

	// Prompt fields
	FieldSkipID = "skip_id"
)
