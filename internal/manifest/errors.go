package manifest

import "errors"

// ErrNoPlayableSource is the terminal resolution failure: every tier
// (dash, video-only, progressive, bypass) is exhausted. It deliberately
// carries no block-related meaning so callers do not infer that a retry
// would help.
var ErrNoPlayableSource = errors.New("playback: no playable source")
