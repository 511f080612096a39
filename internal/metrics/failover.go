package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cdnAdvanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playres_cdn_advance_total",
		Help: "Total number of CDN candidate cursor advances by failure class",
	}, []string{"class"})

	cdnExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playres_cdn_exhausted_total",
		Help: "Total number of requests that exhausted every CDN candidate",
	})

	cdnActiveCandidate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playres_cdn_active_candidate_index",
		Help: "Index of the currently active CDN candidate per source",
	}, []string{"source"})
)

// RecordCDNAdvance records one candidate cursor advance. class is either
// "transport" (connection-level) or the HTTP status that triggered it.
func RecordCDNAdvance(status int) {
	class := "transport"
	if status > 0 {
		class = strconv.Itoa(status)
	}
	cdnAdvanceTotal.WithLabelValues(class).Inc()
}

// RecordCDNExhausted records a request that failed on every candidate.
func RecordCDNExhausted() {
	cdnExhaustedTotal.Inc()
}

// SetCDNActiveCandidate tracks the active candidate index for a source.
func SetCDNActiveCandidate(source string, index int) {
	cdnActiveCandidate.WithLabelValues(source).Set(float64(index))
}
