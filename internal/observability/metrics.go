package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	xpGrantedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "engine",
		Name:      "xp_granted_total",
		Help:      "Total XP granted across all users.",
	})
	prsDetectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "engine",
		Name:      "prs_detected_total",
		Help:      "Total personal records detected.",
	})
	badgesGrantedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "engine",
		Name:      "badges_granted_total",
		Help:      "Total badges granted.",
	})
	rustTransitionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "engine",
		Name:      "rust_transitions_total",
		Help:      "Badge rust state transitions by direction.",
	}, []string{"direction"})
	pipelineRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamification_service",
		Subsystem: "engine",
		Name:      "last_pipeline_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed finish pipeline run.",
	})
)

func init() {
	prometheus.MustRegister(xpGrantedCounter, prsDetectedCounter, badgesGrantedCounter, rustTransitionsCounter, pipelineRunGauge)
}

// RecordXPGranted adds granted XP to the running counter.
func RecordXPGranted(amount int) {
	if amount <= 0 {
		return
	}
	xpGrantedCounter.Add(float64(amount))
}

// RecordPRsDetected adds detected records to the running counter.
func RecordPRsDetected(count int) {
	if count <= 0 {
		return
	}
	prsDetectedCounter.Add(float64(count))
}

// RecordBadgesGranted adds granted badges to the running counter.
func RecordBadgesGranted(count int) {
	if count <= 0 {
		return
	}
	badgesGrantedCounter.Add(float64(count))
}

// RecordRustTransition counts one badge flipping rusty or polished.
func RecordRustTransition(rusted bool) {
	direction := "polished"
	if rusted {
		direction = "rusted"
	}
	rustTransitionsCounter.WithLabelValues(direction).Inc()
}

// RecordPipelineRun updates the pipeline watermark gauge.
func RecordPipelineRun(ts time.Time) {
	if ts.IsZero() {
		return
	}
	pipelineRunGauge.Set(float64(ts.Unix()))
}
