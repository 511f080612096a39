package session

// Event is a typed player notification consumed by OnPlayerEvent. All
// events funnel through the session's single mutation owner, so overlay
// window state, prompt machines, and constraint flags never race.
type Event interface {
	isEvent()
}

// PositionUpdate is the periodic playback clock report.
type PositionUpdate struct {
	PositionMs int64
}

// Seek is a user-initiated jump. It bypasses the overlay throttle and
// cancels any armed prompt.
type Seek struct {
	PositionMs int64
}

// DecodeError reports that the renderer could not decode the current
// playable. The session reacts by narrowing constraints and reselecting.
type DecodeError struct {
	Err error
}

// UserDismiss dismisses whichever prompt is currently armed.
type UserDismiss struct{}

func (PositionUpdate) isEvent() {}
func (Seek) isEvent()           {}
func (DecodeError) isEvent()    {}
func (UserDismiss) isEvent()    {}
