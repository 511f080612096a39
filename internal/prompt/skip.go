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

// SkipAction is invoked once when a skip countdown commits.
type SkipAction func(segment manifest.SkipSegment)

// AutoSkipCoordinator drives skippable-range prompts (intro, credits) for
// a single media load. Each segment prompts at most once: committed,
// dismissed, and seek-cancelled ids all land in the handled set and are
// never re-armed, even when playback re-enters their range. After a
// terminal outcome the machine returns to Idle so the next unhandled
// segment can arm.
type AutoSkipCoordinator struct {
	mu       sync.Mutex
	state    State
	segments []manifest.SkipSegment
	handled  map[string]struct{}
	armed    manifest.SkipSegment
	armedGen uint64

	commitDelay time.Duration
	lookaheadMs int64
	gen         func() uint64
	onCommit    SkipAction
	newTimer    timerFunc
	timer       timerHandle
	logger      zerolog.Logger
}

// SkipOption configures an AutoSkipCoordinator.
type SkipOption func(*AutoSkipCoordinator)

// WithSkipTimer replaces the commit timer for deterministic tests.
func WithSkipTimer(fn timerFunc) SkipOption {
	return func(c *AutoSkipCoordinator) { c.newTimer = fn }
}

// NewAutoSkipCoordinator builds the coordinator for one load. gen returns
// the session's current auto-skip generation.
func NewAutoSkipCoordinator(cfg config.PromptConfig, gen func() uint64, onCommit SkipAction, opts ...SkipOption) *AutoSkipCoordinator {
	c := &AutoSkipCoordinator{
		state:       StateIdle,
		handled:     make(map[string]struct{}),
		commitDelay: cfg.CommitDelay,
		lookaheadMs: cfg.SkipLookaheadMs,
		gen:         gen,
		onCommit:    onCommit,
		newTimer:    afterFunc,
		logger:      log.WithComponent("autoskip"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSegments installs the provider-supplied skip ranges. When the skip
// source fetch fails the session never calls this and the coordinator
// stays Idle for the whole load.
func (c *AutoSkipCoordinator) SetSegments(segments []manifest.SkipSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = segments
}

// OnPositionUpdate arms the first unhandled segment whose range contains
// the position or begins within the lookahead window.
func (c *AutoSkipCoordinator) OnPositionUpdate(positionMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return
	}
	for _, seg := range c.segments {
		if _, done := c.handled[seg.ID]; done {
			continue
		}
		if positionMs < seg.StartMs-c.lookaheadMs || positionMs >= seg.EndMs {
			continue
		}
		c.state = StateArmed
		c.armed = seg
		c.armedGen = c.gen()
		c.timer = c.newTimer(c.commitDelay, c.commit)
		c.logger.Info().
			Str(log.FieldSkipID, seg.ID).
			Str("action", seg.Action).
			Int64(log.FieldPosition, positionMs).
			Msg("skip prompt armed")
		return
	}
}

func (c *AutoSkipCoordinator) commit() {
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
	seg := c.armed
	c.handled[seg.ID] = struct{}{}
	c.state = StateIdle
	c.mu.Unlock()

	metrics.RecordPromptOutcome(metrics.PromptKindSkip, metrics.PromptOutcomeCommitted)
	c.logger.Info().Str(log.FieldSkipID, seg.ID).Int64("to_ms", seg.EndMs).Msg("skip committed")
	c.onCommit(seg)
}

// Dismiss cancels the armed prompt and marks its segment handled.
func (c *AutoSkipCoordinator) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateArmed {
		c.cancelLocked("user dismissed")
	}
}

// OnUserSeek cancels the armed prompt. The segment is marked handled so
// the same range never re-prompts within this load.
func (c *AutoSkipCoordinator) OnUserSeek() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateArmed {
		c.cancelLocked("user seek")
	}
}

func (c *AutoSkipCoordinator) cancelLocked(reason string) {
	c.handled[c.armed.ID] = struct{}{}
	c.state = StateIdle
	if c.timer != nil {
		c.timer.Stop()
	}
	metrics.RecordPromptOutcome(metrics.PromptKindSkip, metrics.PromptOutcomeCancelled)
	c.logger.Debug().
		Str(log.FieldSkipID, c.armed.ID).
		Str(log.FieldReason, reason).
		Msg("skip prompt cancelled")
}

// Armed returns the currently armed segment, if any.
func (c *AutoSkipCoordinator) Armed() (manifest.SkipSegment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed, c.state == StateArmed
}

// State returns the current prompt state.
func (c *AutoSkipCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandledIDs returns a copy of the segment ids resolved this load.
func (c *AutoSkipCoordinator) HandledIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.handled))
	for id := range c.handled {
		ids = append(ids, id)
	}
	return ids
}
