package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	overlaySegmentLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playres_overlay_segment_loads_total",
		Help: "Total number of overlay segment load completions by outcome",
	}, []string{"outcome"})

	overlayEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playres_overlay_evictions_total",
		Help: "Total number of overlay segments evicted from the window",
	})

	overlayLoadedSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playres_overlay_loaded_segments",
		Help: "Current number of loaded overlay segments",
	})

	overlayShieldedItems = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playres_overlay_shielded_items_total",
		Help: "Total number of overlay items suppressed by the shield filter",
	})
)

// Overlay segment load outcomes.
const (
	OverlayOutcomeLoaded = "loaded"
	OverlayOutcomeFailed = "failed"
	OverlayOutcomeStale  = "stale"
)

// RecordOverlayLoad records one segment load completion.
func RecordOverlayLoad(outcome string) {
	overlaySegmentLoads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// RecordOverlayEvictions adds to the eviction counter.
func RecordOverlayEvictions(n int) {
	overlayEvictions.Add(float64(n))
}

// SetOverlayLoadedSegments tracks the loaded-segment window size.
func SetOverlayLoadedSegments(n int) {
	overlayLoadedSegments.Set(float64(n))
}

// RecordOverlayShieldedItems adds to the shield suppression counter.
func RecordOverlayShieldedItems(n int) {
	overlayShieldedItems.Add(float64(n))
}
