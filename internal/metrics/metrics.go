package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "opsboard"
)

var (
	scanDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}

	// Scan Metrics
	ScanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_runs_total",
		Help:      "Count of vulnerability scans by outcome.",
	}, []string{"status"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Time taken for a vulnerability scan request to complete.",
		Buckets:   scanDurationBuckets,
	})

	VulnerabilitiesOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vulnerabilities_open",
		Help:      "Open vulnerabilities from the last successful scan.",
	}, []string{"severity"})

	// State Metrics
	StoreMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_mutations_total",
		Help:      "Count of state mutations per store.",
	}, []string{"store"})

	PersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_failures_total",
		Help:      "Count of swallowed persistence failures.",
	}, []string{"store_key", "op"})

	// Connector Metrics
	ConnectorRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connector_refresh_total",
		Help:      "Count of connector refreshes by outcome.",
	}, []string{"connector", "status"})

	ConnectorLastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connector_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful connector refresh.",
	}, []string{"connector"})
)
