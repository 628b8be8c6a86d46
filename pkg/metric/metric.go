// Package metric exposes the prometheus instrumentation for the core
// pipeline: per-stage latency histograms, live track/trajectory gauges, a
// trajectories-ended counter, and a fall-distance histogram for qualifying
// trajectories.
package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	segmentationLatencyHistogram *prometheus.HistogramVec
	trackerUpdateLatencyHistogram prometheus.Histogram
	fallDistanceHistogram        prometheus.Histogram

	activeTracksGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallcore_active_tracks",
			Help: "Number of live tracked bounding boxes.",
		},
	)
	activeTrajectoriesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallcore_active_trajectories",
			Help: "Number of in-flight trajectories.",
		},
	)
	trajectoriesEndedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallcore_trajectories_ended_total",
			Help: "Count of trajectories that ended, labeled by whether they qualified as a falling object.",
		},
		[]string{"qualified"},
	)
)

// Metric wraps the registered prometheus collectors behind a mutex so a
// single driver goroutine can safely update them between frames.
type Metric struct {
	mu sync.Mutex
}

// RegisterMetrics creates and registers the latency/fall-distance
// histograms with the given bucket boundaries (nil falls back to
// prometheus.DefBuckets) and registers every collector. Call once at
// startup.
func (m *Metric) RegisterMetrics(segmentationBuckets, trackerBuckets, fallDistanceBuckets []float64) {
	if segmentationBuckets == nil {
		segmentationBuckets = prometheus.DefBuckets
	}
	if trackerBuckets == nil {
		trackerBuckets = prometheus.DefBuckets
	}
	if fallDistanceBuckets == nil {
		fallDistanceBuckets = prometheus.DefBuckets
	}

	segmentationLatencyHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fallcore_segmentation_latency_ms",
			Help:    "Histogram of BackgroundModel.Segment latency in milliseconds.",
			Buckets: segmentationBuckets,
		},
		[]string{"stage"},
	)
	trackerUpdateLatencyHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fallcore_tracker_update_latency_ms",
			Help:    "Histogram of Tracker.Update latency in milliseconds.",
			Buckets: trackerBuckets,
		},
	)
	fallDistanceHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fallcore_fall_distance_px",
			Help:    "Histogram of qualifying trajectories' vertical fall distance in pixels.",
			Buckets: fallDistanceBuckets,
		},
	)

	prometheus.MustRegister(segmentationLatencyHistogram)
	prometheus.MustRegister(trackerUpdateLatencyHistogram)
	prometheus.MustRegister(fallDistanceHistogram)
	prometheus.MustRegister(activeTracksGauge)
	prometheus.MustRegister(activeTrajectoriesGauge)
	prometheus.MustRegister(trajectoriesEndedCounter)
}

// ObserveSegmentationLatency records one Segment call's latency for the
// named stage ("segment" or "update").
func (m *Metric) ObserveSegmentationLatency(stage string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	segmentationLatencyHistogram.WithLabelValues(stage).Observe(ms)
}

// ObserveTrackerUpdateLatency records one Tracker.Update call's latency.
func (m *Metric) ObserveTrackerUpdateLatency(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trackerUpdateLatencyHistogram.Observe(ms)
}

// SetActiveCounts updates the live track/trajectory gauges, called once per
// frame after Tracker.Update returns.
func (m *Metric) SetActiveCounts(tracks, trajectories int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	activeTracksGauge.Set(float64(tracks))
	activeTrajectoriesGauge.Set(float64(trajectories))
}

// ObserveTrajectoryEnded records a trajectory-ended event and, if it
// qualified as a falling object, its fall distance in pixels.
func (m *Metric) ObserveTrajectoryEnded(qualified bool, fallDistancePx float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qualified {
		trajectoriesEndedCounter.WithLabelValues("true").Inc()
		fallDistanceHistogram.Observe(fallDistancePx)
		return
	}
	trajectoriesEndedCounter.WithLabelValues("false").Inc()
}
