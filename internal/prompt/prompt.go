// Package prompt implements the one-shot countdown coordinators for
// auto-resume and auto-skip. Each prompt is a small state machine:
// Idle -> Armed -> Committed or Cancelled. Arming starts a commit timer;
// dismissal, a user seek, or a newer load generation cancels it. Commit
// callbacks re-check the generation at fire time, so a timer surviving a
// media switch is a no-op.
package prompt

import "time"

// State is the lifecycle phase of a prompt.
type State string

const (
	StateIdle      State = "idle"
	StateArmed     State = "armed"
	StateCommitted State = "committed"
	StateCancelled State = "cancelled"
)

// timerHandle is the stoppable side of a scheduled commit.
type timerHandle interface {
	Stop() bool
}

// timerFunc schedules fn after d. Replaced in tests with a manual trigger.
type timerFunc func(d time.Duration, fn func()) timerHandle

func afterFunc(d time.Duration, fn func()) timerHandle {
	return time.AfterFunc(d, fn)
}
