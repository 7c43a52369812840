// Package metrics exposes the server's operational counters to Prometheus.
// They describe how the experiment machinery behaved, not the participant.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GazeSamplesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "samples_recorded_total",
		Help:      "Gaze samples appended to the session buffer, by phase.",
	}, []string{"phase"})

	GazeSamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "samples_dropped_total",
		Help:      "Gaze samples discarded before reaching the buffer, by reason.",
	}, []string{"reason"})

	SamplingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "sampling_fallbacks_total",
		Help:      "Foil draws that gave up on the exclusion constraints.",
	}, []string{"category"})

	CalibrationPoints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "calibration_points_acknowledged_total",
		Help:      "Calibration targets acknowledged by participants.",
	})

	TrialsSealed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "trials_sealed_total",
		Help:      "Trials completed and appended to a session, by kind.",
	}, []string{"kind"})

	PhaseOverrun = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gaze",
		Name:      "phase_overrun_seconds",
		Help:      "How much longer a trial phase took than its configured duration.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"phase"})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "sessions_finished_total",
		Help:      "Sessions that reached the end of their run, by outcome.",
	}, []string{"outcome"})

	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaze",
		Name:      "persistence_failures_total",
		Help:      "Failed attempts to store a session record, by store.",
	}, []string{"store"})
)
