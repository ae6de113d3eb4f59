package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketplaceMetrics struct {
	reads        *prometheus.CounterVec
	readLatency  *prometheus.HistogramVec
	scans        *prometheus.CounterVec
	scanFound    prometheus.Histogram
	writes       *prometheus.CounterVec
	confirmation *prometheus.HistogramVec
}

var (
	marketplaceOnce     sync.Once
	marketplaceRegistry *marketplaceMetrics
)

// Marketplace returns the lazily registered marketplace metrics
func Marketplace() *marketplaceMetrics {
	marketplaceOnce.Do(func() {
		marketplaceRegistry = &marketplaceMetrics{
			reads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lp_marketplace",
				Subsystem: "contract",
				Name:      "reads_total",
				Help:      "Contract reads segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lp_marketplace",
				Subsystem: "contract",
				Name:      "read_duration_seconds",
				Help:      "Latency distribution for contract reads.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			scans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lp_marketplace",
				Subsystem: "discovery",
				Name:      "scans_total",
				Help:      "Discovery scans segmented by how they stopped.",
			}, []string{"stop_reason"}),
			scanFound: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "lp_marketplace",
				Subsystem: "discovery",
				Name:      "listings_found",
				Help:      "Number of listings returned per discovery scan.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			}),
			writes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lp_marketplace",
				Subsystem: "tx",
				Name:      "writes_total",
				Help:      "Marketplace writes segmented by action and final status.",
			}, []string{"action", "status", "error_kind"}),
			confirmation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lp_marketplace",
				Subsystem: "tx",
				Name:      "confirmation_seconds",
				Help:      "Time from submission to a final receipt.",
				Buckets:   []float64{1, 3, 5, 10, 20, 30, 60, 120, 300},
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			marketplaceRegistry.reads,
			marketplaceRegistry.readLatency,
			marketplaceRegistry.scans,
			marketplaceRegistry.scanFound,
			marketplaceRegistry.writes,
			marketplaceRegistry.confirmation,
		)
	})
	return marketplaceRegistry
}

// ObserveRead records a contract read. outcome is one of ok, not_found or error.
func (m *marketplaceMetrics) ObserveRead(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(method, outcome).Inc()
	m.readLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveScan records a finished discovery scan
func (m *marketplaceMetrics) ObserveScan(stopReason string, found int) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(stopReason).Inc()
	m.scanFound.Observe(float64(found))
}

// ObserveWrite records the final status of a marketplace write
func (m *marketplaceMetrics) ObserveWrite(action, status, errorKind string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(action, status, errorKind).Inc()
}

func (m *marketplaceMetrics) ObserveConfirmation(action string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.WithLabelValues(action).Observe(elapsed.Seconds())
}
