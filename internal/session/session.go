// Package session owns the per-player playback state: the current
// manifest, constraint flags, selection result, CDN source, overlay
// window, and prompt coordinators. Four independent generation counters
// (load, auto-resume, auto-skip, overlay load) make every async
// completion self-cancelling: a task captures the counter value at
// dispatch and is a no-op if the counter has advanced by completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"playres/internal/cdn"
	"playres/internal/config"
	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/manifest/client"
	"playres/internal/metrics"
	"playres/internal/overlay"
	"playres/internal/prompt"
	"playres/internal/riskcontrol"
	"playres/internal/selector"
)

var (
	// ErrDecodeUnsupported is the terminal decode failure: the renderer
	// rejected the stream and no constraint is left to narrow.
	ErrDecodeUnsupported = errors.New("playback: stream not decodable on this device")

	// ErrLoadSuperseded marks a Load whose result was discarded because a
	// newer Load started before it finished.
	ErrLoadSuperseded = errors.New("playback: load superseded by a newer load")

	// ErrNoActiveLoad is returned by operations that need a resolved
	// playable before any successful Load.
	ErrNoActiveLoad = errors.New("playback: no media loaded")
)

// LoadRequest carries the user-facing knobs for one media load.
type LoadRequest struct {
	MediaID          string
	DesiredQualityID int
	DesiredAudioKind manifest.AudioKind
	DesiredAudioID   int
}

// LoadResult is the resolved playable plus the diagnostics the UI
// surfaces: the bypass notice, video-only badge, and active CDN host.
type LoadResult struct {
	Selection selector.Result
	Bypassed  bool
	VideoOnly bool
	ActiveCDN string
}

// Hooks are optional callbacks into the embedding player. OnResume fires
// when the auto-resume countdown commits; OnSkip when an auto-skip
// commits. Both run outside the session lock.
type Hooks struct {
	OnResume func(positionMs int64)
	OnSkip   func(segment manifest.SkipSegment)
}

// Session is one player instance's resolution engine. It is reused
// across media switches; Load replaces all per-media state.
type Session struct {
	id       string
	cfg      *config.Config
	provider *client.Client
	risk     *riskcontrol.Coordinator
	hooks    Hooks
	canDV    bool
	logger   zerolog.Logger

	loadGen        atomic.Uint64
	autoResumeGen  atomic.Uint64
	autoSkipGen    atomic.Uint64
	overlayLoadGen atomic.Uint64

	// mu is the single mutation owner for everything below.
	mu            sync.Mutex
	mediaID       string
	man           *manifest.Manifest
	constraints   selector.Constraints
	current       selector.Result
	bypassed      bool
	desired       LoadRequest
	source        *cdn.Source
	overlayCache  *overlay.Cache
	resumePrompt  *prompt.AutoResumeCoordinator
	skipPrompt    *prompt.AutoSkipCoordinator
	positionMs    int64
	decodeRetries int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDolbyVisionDecode declares whether the device can decode Dolby
// Vision. Defaults to false: DV tracks are filtered out.
func WithDolbyVisionDecode(ok bool) SessionOption {
	return func(s *Session) { s.canDV = ok }
}

// WithHooks installs the player callbacks for prompt commits.
func WithHooks(h Hooks) SessionOption {
	return func(s *Session) { s.hooks = h }
}

// New builds a session against the configured provider.
func New(cfg *config.Config, provider *client.Client, opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		provider: provider,
		risk:     riskcontrol.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.WithComponent("session").With().Str(log.FieldSessionID, s.id).Logger()
	return s
}

// ID returns the session's identity used in logs.
func (s *Session) ID() string { return s.id }

// Load resolves one media item into a playable source. It bumps every
// generation counter first, so all in-flight work from the previous load
// turns into no-ops, then fetches the manifest (through the risk-control
// fallback), overlay metadata, and skip/resume metadata in parallel. If
// resolution yields nothing playable it retries once with the
// most-compatible request variant before giving up.
func (s *Session) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	// Generation bump and state reset happen under one lock acquisition:
	// concurrent Loads then reset in generation order, and only the
	// newest generation passes the install check below.
	s.mu.Lock()
	gen := s.loadGen.Add(1)
	s.autoResumeGen.Add(1)
	s.autoSkipGen.Add(1)
	s.overlayLoadGen.Add(1)
	if s.overlayCache != nil {
		s.overlayCache.Clear()
		s.overlayCache = nil
	}
	s.mediaID = req.MediaID
	s.desired = req
	s.man = nil
	s.bypassed = false
	s.current = selector.Result{}
	s.source = nil
	s.resumePrompt = nil
	s.skipPrompt = nil
	s.constraints = selector.DefaultConstraints()
	s.decodeRetries = 0
	s.positionMs = 0
	s.mu.Unlock()

	logger := s.logger.With().
		Str(log.FieldMediaID, req.MediaID).
		Uint64(log.FieldLoadGen, gen).
		Logger()
	logger.Info().Msg("loading media")

	var (
		man      *manifest.Manifest
		bypassed bool
		sel      selector.Result

		meta     manifest.OverlayMeta
		metaOK   bool
		skips    []manifest.SkipSegment
		skipsOK  bool
		resume   manifest.ResumePoint
		resumeOK bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		man, bypassed, sel, err = s.resolve(gctx, req, selector.DefaultConstraints())
		return err
	})
	g.Go(func() error {
		m, err := s.provider.FetchOverlayMeta(gctx, req.MediaID)
		if err != nil {
			// Degrades silently: playback runs without overlays.
			logger.Warn().Err(err).Msg("overlay metadata unavailable")
			return nil
		}
		meta, metaOK = m, true
		return nil
	})
	g.Go(func() error {
		segs, err := s.provider.FetchSkipSegments(gctx, req.MediaID)
		if err != nil {
			logger.Debug().Err(err).Msg("skip segments unavailable")
		} else {
			skips, skipsOK = segs, true
		}
		point, err := s.provider.FetchResumePoint(gctx, req.MediaID)
		if err != nil {
			logger.Debug().Err(err).Msg("resume point unavailable")
		} else {
			resume, resumeOK = point, true
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return LoadResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadGen.Load() != gen {
		logger.Debug().Msg("load superseded before install")
		return LoadResult{}, ErrLoadSuperseded
	}

	s.man = man
	s.bypassed = bypassed
	s.installSelectionLocked(sel)

	if metaOK {
		s.overlayCache = overlay.NewCache(req.MediaID, meta, s.cfg.Overlay, s.provider, s.overlayLoadGen.Load)
	}
	s.skipPrompt = prompt.NewAutoSkipCoordinator(s.cfg.Prompt, s.autoSkipGen.Load, s.commitSkip)
	if skipsOK {
		s.skipPrompt.SetSegments(skips)
	}
	s.resumePrompt = prompt.NewAutoResumeCoordinator(s.cfg.Prompt, s.autoResumeGen.Load, s.commitResume)
	if resumeOK {
		s.resumePrompt.Offer(resume)
	}

	res := LoadResult{
		Selection: sel,
		Bypassed:  bypassed,
		VideoOnly: sel.Playable.Mode == selector.ModeVideoOnly,
		ActiveCDN: s.source.Active(),
	}
	logger.Info().
		Str(log.FieldMode, string(sel.Playable.Mode)).
		Int(log.FieldQualityID, sel.ResolvedQualityID).
		Bool("bypassed", bypassed).
		Msg("media resolved")
	return res, nil
}

// resolve runs fetch + risk-control fallback + selection, retrying once
// with the most-compatible request variant when nothing is playable.
func (s *Session) resolve(ctx context.Context, req LoadRequest, cons selector.Constraints) (*manifest.Manifest, bool, selector.Result, error) {
	man, bypassed, sel, err := s.resolveOnce(ctx, req, cons, client.FormatFlags{})
	if err == nil {
		return man, bypassed, sel, nil
	}
	if !errors.Is(err, manifest.ErrNoPlayableSource) {
		return nil, false, selector.Result{}, err
	}

	s.logger.Info().Str(log.FieldMediaID, req.MediaID).Msg("retrying with most-compatible format")
	man, bypassed, sel, retryErr := s.resolveOnce(ctx, req, cons, client.FormatFlags{MostCompatible: true})
	if retryErr != nil {
		// Keep the terminal sentinel from the first pass.
		return nil, false, selector.Result{}, fmt.Errorf("most-compatible retry failed: %w", err)
	}
	return man, bypassed, sel, nil
}

func (s *Session) resolveOnce(ctx context.Context, req LoadRequest, cons selector.Constraints, flags client.FormatFlags) (*manifest.Manifest, bool, selector.Result, error) {
	fetch := func(fl client.FormatFlags) (*manifest.Manifest, error) {
		return s.provider.FetchManifest(ctx, client.MediaRequest{
			MediaID:     req.MediaID,
			QualityHint: req.DesiredQualityID,
			Flags:       fl,
		})
	}
	res, err := s.risk.Resolve(ctx,
		func(ctx context.Context) (*manifest.Manifest, error) {
			return fetch(flags)
		},
		func(ctx context.Context, token string) (*manifest.Manifest, error) {
			bypass := flags
			bypass.BestEffort = true
			bypass.BypassToken = token
			return fetch(bypass)
		},
	)
	if err != nil {
		return nil, false, selector.Result{}, err
	}

	sel, err := selector.Select(s.selectionInput(res.Manifest, req, cons))
	if err != nil {
		return nil, false, selector.Result{}, err
	}
	return res.Manifest, res.Bypassed, sel, nil
}

func (s *Session) selectionInput(man *manifest.Manifest, req LoadRequest, cons selector.Constraints) selector.Input {
	return selector.Input{
		Manifest:                   man,
		Constraints:                cons,
		DesiredQualityID:           req.DesiredQualityID,
		DesiredAudioKind:           req.DesiredAudioKind,
		DesiredAudioID:             req.DesiredAudioID,
		DeviceCanDecodeDolbyVision: s.canDV,
		Rank:                       selector.RankTable(s.cfg.Selection.QualityRank),
		PreferredCodec:             s.cfg.Selection.PreferredCodec,
	}
}

// installSelectionLocked swaps in a selection result and rebuilds the CDN
// source for its video track's candidate list.
func (s *Session) installSelectionLocked(sel selector.Result) {
	s.current = sel
	s.source = cdn.NewSource(
		string(sel.Playable.Mode),
		sel.Playable.Video.CandidateURLs,
		cdn.WithRetryableStatuses(s.cfg.Transport.RetryableStatuses),
	)
}

// OnPlayerEvent routes a typed player event through the session. All
// state mutation happens here, under the session lock.
func (s *Session) OnPlayerEvent(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case PositionUpdate:
		s.onPosition(ctx, e.PositionMs)
	case Seek:
		s.onSeek(ctx, e.PositionMs)
	case DecodeError:
		return s.onDecodeError(e)
	case UserDismiss:
		s.onDismiss()
	default:
		return fmt.Errorf("unknown player event %T", ev)
	}
	return nil
}

func (s *Session) onPosition(ctx context.Context, positionMs int64) {
	s.mu.Lock()
	s.positionMs = positionMs
	cache, skip := s.overlayCache, s.skipPrompt
	s.mu.Unlock()

	if cache != nil {
		cache.OnPositionUpdate(ctx, positionMs)
	}
	if skip != nil {
		skip.OnPositionUpdate(positionMs)
	}
}

func (s *Session) onSeek(ctx context.Context, positionMs int64) {
	s.mu.Lock()
	s.positionMs = positionMs
	cache, skip, resume := s.overlayCache, s.skipPrompt, s.resumePrompt
	s.mu.Unlock()

	if resume != nil {
		resume.OnUserSeek()
	}
	if skip != nil {
		skip.OnUserSeek()
	}
	if cache != nil {
		cache.OnSeek(ctx, positionMs)
	}
}

func (s *Session) onDismiss() {
	s.mu.Lock()
	skip, resume := s.skipPrompt, s.resumePrompt
	s.mu.Unlock()

	if resume != nil {
		resume.Dismiss()
	}
	if skip != nil {
		skip.Dismiss()
	}
}

// onDecodeError narrows the constraint set one flag at a time and
// reselects from the already-fetched manifest. When no flag is left the
// failure is terminal for this load.
func (s *Session) onDecodeError(e DecodeError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.man == nil {
		return ErrNoActiveLoad
	}

	narrowed, flag, ok := s.constraints.NarrowFor(s.current.Playable)
	if !ok {
		s.logger.Error().
			Err(e.Err).
			Int("decode_retries", s.decodeRetries).
			Msg("decode failed with no constraint left to narrow")
		return fmt.Errorf("%w: %w", ErrDecodeUnsupported, e.Err)
	}

	s.constraints = narrowed
	s.decodeRetries++
	metrics.RecordConstraintNarrow(flag)
	s.logger.Warn().
		Err(e.Err).
		Str("narrowed_flag", flag).
		Int("decode_retries", s.decodeRetries).
		Msg("decode failed, narrowing constraints and reselecting")

	sel, err := selector.Select(s.selectionInput(s.man, s.desired, s.constraints))
	if err != nil {
		return fmt.Errorf("%w: reselect after narrowing %s: %w", ErrDecodeUnsupported, flag, err)
	}
	s.installSelectionLocked(sel)
	return nil
}

// Reselect re-runs selection for a UI-driven quality or audio change
// using the already-fetched manifest. Constraints carry over unchanged;
// they are never widened within a load.
func (s *Session) Reselect(desiredQualityID int, desiredAudioKind manifest.AudioKind, desiredAudioID int) (selector.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.man == nil {
		return selector.Result{}, ErrNoActiveLoad
	}

	s.desired.DesiredQualityID = desiredQualityID
	s.desired.DesiredAudioKind = desiredAudioKind
	s.desired.DesiredAudioID = desiredAudioID

	sel, err := selector.Select(s.selectionInput(s.man, s.desired, s.constraints))
	if err != nil {
		return selector.Result{}, err
	}
	s.installSelectionLocked(sel)
	return sel, nil
}

func (s *Session) commitResume(positionMs int64) {
	s.mu.Lock()
	s.positionMs = positionMs
	cache := s.overlayCache
	s.mu.Unlock()

	if cache != nil {
		cache.OnSeek(context.Background(), positionMs)
	}
	if s.hooks.OnResume != nil {
		s.hooks.OnResume(positionMs)
	}
}

func (s *Session) commitSkip(seg manifest.SkipSegment) {
	s.mu.Lock()
	s.positionMs = seg.EndMs
	cache := s.overlayCache
	s.mu.Unlock()

	if cache != nil {
		cache.OnSeek(context.Background(), seg.EndMs)
	}
	if s.hooks.OnSkip != nil {
		s.hooks.OnSkip(seg)
	}
}

// Selection returns the current selection result.
func (s *Session) Selection() (selector.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.man == nil {
		return selector.Result{}, ErrNoActiveLoad
	}
	return s.current, nil
}

// Source returns the failover transport for the current video track.
func (s *Session) Source() (*cdn.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, ErrNoActiveLoad
	}
	return s.source, nil
}

// OverlayItems returns the currently loaded overlay render buffer.
func (s *Session) OverlayItems() []manifest.OverlayItem {
	s.mu.Lock()
	cache := s.overlayCache
	s.mu.Unlock()
	if cache == nil {
		return nil
	}
	return cache.Items()
}

// MediaID returns the media id of the current load.
func (s *Session) MediaID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaID
}

// Bypassed reports whether the current manifest came through the bypass
// request variant. Drives the one-time user-visible notice.
func (s *Session) Bypassed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bypassed
}

// Position returns the last reported playback position.
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionMs
}
