package coord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the shot pipeline. Registered on the default
// registry and served by the web surface.
var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "cycles_total",
		Help:      "Shot cycles started.",
	})

	cycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "cycle_failures_total",
		Help:      "Shot cycles ended in a failure classification.",
	}, []string{"reason"})

	resultsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "results_published_total",
		Help:      "Shot results handed to the reporting sink.",
	})

	peerRoundtrip = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "peer_roundtrip_seconds",
		Help:      "Capture request to image payload round trip.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
	})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "analysis_seconds",
		Help:      "Analysis pipeline duration per cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	peerCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strobeshot",
		Subsystem: "coord",
		Name:      "peer_captures_total",
		Help:      "Capture requests serviced by the strobe-camera node.",
	})
)
