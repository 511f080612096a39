package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bypassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playres_riskcontrol_bypass_total",
		Help: "Total number of manifest bypass attempts by trigger and outcome",
	}, []string{"trigger", "outcome"})
)

// Bypass triggers.
const (
	BypassTriggerBlocked  = "blocked"
	BypassTriggerNoUsable = "no_usable_urls"
)

// Bypass outcomes.
const (
	BypassOutcomeOK     = "ok"
	BypassOutcomeFailed = "failed"
)

// RecordBypass records one bypass attempt.
func RecordBypass(trigger, outcome string) {
	bypassTotal.WithLabelValues(normalizeLabel(trigger), normalizeLabel(outcome)).Inc()
}
