// Package metrics exposes prometheus collectors for the resolution engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playres_selection_total",
		Help: "Total number of track selection outcomes by mode and reason",
	}, []string{"mode", "reason"})

	constraintNarrowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playres_constraint_narrow_total",
		Help: "Total number of constraint flags disabled after decode failures",
	}, []string{"flag"})
)

// RecordSelection records one track selection outcome.
func RecordSelection(mode, reason string) {
	selectionTotal.WithLabelValues(normalizeModeLabel(mode), normalizeLabel(reason)).Inc()
}

// RecordConstraintNarrow records one constraint flag being disabled.
func RecordConstraintNarrow(flag string) {
	constraintNarrowTotal.WithLabelValues(normalizeLabel(flag)).Inc()
}

func normalizeModeLabel(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "dash", "video_only", "progressive":
		return strings.ToLower(strings.TrimSpace(mode))
	default:
		return "unknown"
	}
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
