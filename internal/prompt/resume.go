package prompt

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"playres/internal/config"
	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/metrics"
)

// ResumeAction is invoked once when the resume countdown commits. The
// position is the offered resume point in milliseconds.
type ResumeAction func(positionMs int64)

// AutoResumeCoordinator runs the resume-from-last-position prompt for a
// single media load. It arms at most once; after Committed or Cancelled it
// stays terminal until the owning session replaces it on the next load.
type AutoResumeCoordinator struct {
	mu         sync.Mutex
	state      State
	positionMs int64
	armedGen   uint64

	commitDelay time.Duration
	minResumeMs int64
	gen         func() uint64
	onCommit    ResumeAction
	newTimer    timerFunc
	timer       timerHandle
	logger      zerolog.Logger
}

// ResumeOption configures an AutoResumeCoordinator.
type ResumeOption func(*AutoResumeCoordinator)

// WithResumeTimer replaces the commit timer. Tests install a manual
// trigger to make the countdown deterministic.
func WithResumeTimer(fn timerFunc) ResumeOption {
	return func(c *AutoResumeCoordinator) { c.newTimer = fn }
}

// NewAutoResumeCoordinator builds the coordinator for one load. gen
// returns the session's current auto-resume generation.
func NewAutoResumeCoordinator(cfg config.PromptConfig, gen func() uint64, onCommit ResumeAction, opts ...ResumeOption) *AutoResumeCoordinator {
	c := &AutoResumeCoordinator{
		state:       StateIdle,
		commitDelay: cfg.CommitDelay,
		minResumeMs: cfg.MinResumeMs,
		gen:         gen,
		onCommit:    onCommit,
		newTimer:    afterFunc,
		logger:      log.WithComponent("autoresume"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Offer presents the provider-supplied resume point. Positions at or
// below the minimum threshold are ignored and the coordinator stays Idle.
func (c *AutoResumeCoordinator) Offer(point manifest.ResumePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return
	}
	if point.PositionMs <= c.minResumeMs {
		c.logger.Debug().
			Int64(log.FieldPosition, point.PositionMs).
			Msg("resume point below threshold, not arming")
		return
	}

	c.state = StateArmed
	c.positionMs = point.PositionMs
	c.armedGen = c.gen()
	c.timer = c.newTimer(c.commitDelay, c.commit)
	c.logger.Info().
		Int64(log.FieldPosition, point.PositionMs).
		Dur("commit_delay", c.commitDelay).
		Msg("resume prompt armed")
}

func (c *AutoResumeCoordinator) commit() {
	c.mu.Lock()
	if c.state != StateArmed {
		c.mu.Unlock()
		return
	}
	if c.gen() != c.armedGen {
		c.cancelLocked("stale generation")
		c.mu.Unlock()
		return
	}
	c.state = StateCommitted
	positionMs := c.positionMs
	c.mu.Unlock()

	metrics.RecordPromptOutcome(metrics.PromptKindResume, metrics.PromptOutcomeCommitted)
	c.logger.Info().Int64(log.FieldPosition, positionMs).Msg("resume committed")
	c.onCommit(positionMs)
}

// Dismiss cancels the prompt on explicit user dismissal.
func (c *AutoResumeCoordinator) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateArmed {
		c.cancelLocked("user dismissed")
	}
}

// OnUserSeek cancels the prompt: a manual seek supersedes auto-resume.
func (c *AutoResumeCoordinator) OnUserSeek() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateArmed {
		c.cancelLocked("user seek")
	}
}

func (c *AutoResumeCoordinator) cancelLocked(reason string) {
	c.state = StateCancelled
	if c.timer != nil {
		c.timer.Stop()
	}
	metrics.RecordPromptOutcome(metrics.PromptKindResume, metrics.PromptOutcomeCancelled)
	c.logger.Debug().Str(log.FieldReason, reason).Msg("resume prompt cancelled")
}

// State returns the current prompt state.
func (c *AutoResumeCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
