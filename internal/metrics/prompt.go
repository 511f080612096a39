package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prompt kinds and terminal outcomes.
const (
	PromptKindResume = "resume"
	PromptKindSkip   = "skip"

	PromptOutcomeCommitted = "committed"
	PromptOutcomeCancelled = "cancelled"
)

var promptOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "playres_prompt_total",
		Help: "Terminal auto-resume/auto-skip prompt outcomes.",
	},
	[]string{"kind", "outcome"},
)

// RecordPromptOutcome counts one prompt reaching a terminal state.
func RecordPromptOutcome(kind, outcome string) {
	promptOutcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
