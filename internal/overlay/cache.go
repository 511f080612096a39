// Package overlay implements the sliding-window prefetch/eviction cache
// for time-indexed overlay segments (captions, annotations). Loading is
// driven by playback position updates; completions are validated against
// a generation token so stale async results never mutate the cache.
package overlay

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"playres/internal/config"
	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/metrics"
)

// Loader fetches one overlay segment. Implemented by the provider client.
type Loader interface {
	FetchOverlaySegment(ctx context.Context, mediaID string, index int) ([]manifest.OverlayItem, error)
}

type segmentState int

const (
	stateLoading segmentState = iota + 1
	stateLoaded
)

// Cache is the per-load overlay segment window. Completions arrive from
// loader goroutines, so the index is mutex-guarded; the mutex is the
// single mutation owner for segment states and the render buffer.
type Cache struct {
	mediaID string
	loader  Loader
	gen     func() uint64

	segmentSizeMs int64
	totalSegments int // 0: unknown, treated as unbounded
	prefetch      int
	capSegments   int
	shield        Shield
	limiter       *rate.Limiter
	logger        zerolog.Logger

	group singleflight.Group

	mu     sync.Mutex
	states map[int]segmentState
	items  map[int][]manifest.OverlayItem
	anchor int
}

// NewCache builds the window for one media load. gen returns the session's
// current overlay load generation; results dispatched under an older value
// are discarded on completion.
func NewCache(mediaID string, meta manifest.OverlayMeta, cfg config.OverlayConfig, loader Loader, gen func() uint64) *Cache {
	segmentSize := meta.SegmentSizeMs
	if segmentSize <= 0 {
		segmentSize = 360_000
	}
	return &Cache{
		mediaID:       mediaID,
		loader:        loader,
		gen:           gen,
		segmentSizeMs: segmentSize,
		totalSegments: meta.TotalSegments,
		prefetch:      cfg.PrefetchCount,
		capSegments:   cfg.CacheCapSegments,
		shield:        NewShield(cfg.Shield, meta.ShieldDefaults),
		limiter:       rate.NewLimiter(rate.Every(cfg.ThrottleInterval), 1),
		logger:        log.WithComponent("overlay").With().Str(log.FieldMediaID, mediaID).Logger(),
		states:        make(map[int]segmentState),
		items:         make(map[int][]manifest.OverlayItem),
	}
}

// OnPositionUpdate drives loading from periodic position reports. Updates
// are throttled; use OnSeek for jumps which must bypass the throttle.
func (c *Cache) OnPositionUpdate(ctx context.Context, positionMs int64) {
	if !c.limiter.Allow() {
		return
	}
	c.requestWindow(ctx, positionMs)
}

// OnSeek reloads the window for the new position immediately.
func (c *Cache) OnSeek(ctx context.Context, positionMs int64) {
	c.requestWindow(ctx, positionMs)
}

func (c *Cache) requestWindow(ctx context.Context, positionMs int64) {
	target := int(positionMs/c.segmentSizeMs) + 1

	c.mu.Lock()
	c.anchor = target
	var wanted []int
	for seg := target; seg <= target+c.prefetch; seg++ {
		if seg < 1 {
			continue
		}
		if c.totalSegments > 0 && seg > c.totalSegments {
			break
		}
		if _, busy := c.states[seg]; busy {
			continue
		}
		c.states[seg] = stateLoading
		wanted = append(wanted, seg)
	}
	c.mu.Unlock()

	for _, seg := range wanted {
		go c.load(ctx, seg, c.gen())
	}
}

// load fetches one segment and merges it on success. Concurrent loads of
// the same segment collapse via singleflight on top of the loading-state
// check (the state check covers this cache; singleflight also covers a
// racing seek that re-requests a just-failed segment).
func (c *Cache) load(ctx context.Context, seg int, dispatchGen uint64) {
	items, err, _ := c.group.Do(strconv.Itoa(seg), func() (any, error) {
		loaded, err := c.loader.FetchOverlaySegment(ctx, c.mediaID, seg)
		return loaded, err
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen() != dispatchGen {
		// Stale completion: the load generation advanced (new media or
		// cleared window). Leave the segment untouched.
		delete(c.states, seg)
		metrics.RecordOverlayLoad(metrics.OverlayOutcomeStale)
		return
	}

	if err != nil {
		// Non-fatal: back to not-loaded so a later pass may retry.
		delete(c.states, seg)
		metrics.RecordOverlayLoad(metrics.OverlayOutcomeFailed)
		c.logger.Debug().Err(err).Int(log.FieldSegment, seg).Msg("overlay segment fetch failed")
		return
	}

	kept := c.filterAndSort(items.([]manifest.OverlayItem))
	c.states[seg] = stateLoaded
	c.items[seg] = kept
	metrics.RecordOverlayLoad(metrics.OverlayOutcomeLoaded)

	c.trimLocked()
	metrics.SetOverlayLoadedSegments(c.loadedCountLocked())
}

func (c *Cache) filterAndSort(items []manifest.OverlayItem) []manifest.OverlayItem {
	kept := make([]manifest.OverlayItem, 0, len(items))
	for _, it := range items {
		if c.shield.Allow(it) {
			kept = append(kept, it)
		}
	}
	if shielded := len(items) - len(kept); shielded > 0 {
		metrics.RecordOverlayShieldedItems(shielded)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].TimeMs < kept[j].TimeMs })
	return kept
}

// trimLocked evicts loaded segments outside the cap window centred on the
// anchor. Eviction always removes the segments farthest from the anchor:
// the window [minSeg, maxSeg] retains exactly the closest ones.
func (c *Cache) trimLocked() {
	if c.loadedCountLocked() <= c.capSegments {
		return
	}
	minSeg := c.anchor - c.capSegments/2
	if minSeg < 1 {
		minSeg = 1
	}
	maxSeg := minSeg + c.capSegments - 1

	evicted := 0
	for seg, st := range c.states {
		if st != stateLoaded {
			continue
		}
		if seg < minSeg || seg > maxSeg {
			delete(c.states, seg)
			delete(c.items, seg)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.RecordOverlayEvictions(evicted)
		c.logger.Debug().
			Int(log.FieldAnchor, c.anchor).
			Int(log.FieldEvicted, evicted).
			Msg("trimmed overlay window")
	}
}

// Items returns the live render buffer: every loaded segment's items in
// segment order, each segment pre-sorted by time.
func (c *Cache) Items() []manifest.OverlayItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	segs := make([]int, 0, len(c.items))
	for seg := range c.items {
		segs = append(segs, seg)
	}
	sort.Ints(segs)

	var out []manifest.OverlayItem
	for _, seg := range segs {
		out = append(out, c.items[seg]...)
	}
	return out
}

// LoadedSegments returns the sorted indexes of loaded segments.
func (c *Cache) LoadedSegments() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var segs []int
	for seg, st := range c.states {
		if st == stateLoaded {
			segs = append(segs, seg)
		}
	}
	sort.Ints(segs)
	return segs
}

// Clear empties the window. The owning session bumps the overlay load
// generation first so in-flight completions discard themselves.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[int]segmentState)
	c.items = make(map[int][]manifest.OverlayItem)
	metrics.SetOverlayLoadedSegments(0)
}

func (c *Cache) loadedCountLocked() int {
	n := 0
	for _, st := range c.states {
		if st == stateLoaded {
			n++
		}
	}
	return n
}
