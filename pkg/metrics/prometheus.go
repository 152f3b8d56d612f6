package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container for the pipeline.
type Metrics struct {
	// Harvester (C2) metrics
	HarvestRequestsTotal *prometheus.CounterVec
	HarvestRequestRetries *prometheus.CounterVec
	HarvestRequestDuration *prometheus.HistogramVec
	HarvestPagesFetched  *prometheus.CounterVec
	HarvestRecordsFetched *prometheus.CounterVec
	HarvestRateLimitWaits *prometheus.CounterVec

	// Bronze (C3) metrics
	BronzeObjectsWritten *prometheus.CounterVec
	BronzeBytesWritten   *prometheus.CounterVec

	// Silver (C4) metrics
	SilverRowsLoaded   *prometheus.CounterVec
	SilverLoadDuration *prometheus.HistogramVec

	// Gold (C5) metrics
	GoldNodesSynced     *prometheus.CounterVec
	GoldRelationsSynced *prometheus.CounterVec
	GoldSyncDuration    prometheus.Histogram

	// Scheduler (C6) metrics
	AssetMaterializationsTotal    *prometheus.CounterVec
	AssetMaterializationDuration *prometheus.HistogramVec
	AssetsInFlight               prometheus.Gauge

	// Process-level metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the metrics container for a given
// Prometheus namespace/subsystem.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		HarvestRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_requests_total",
				Help:      "Total number of HTTP requests issued by the harvester",
			},
			[]string{"endpoint", "status"},
		),

		HarvestRequestRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_request_retries_total",
				Help:      "Total number of retried harvester requests, by reason",
			},
			[]string{"endpoint", "reason"},
		),

		HarvestRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_request_duration_seconds",
				Help:      "Duration of a single harvester HTTP request",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),

		HarvestPagesFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_pages_fetched_total",
				Help:      "Total number of pages fetched per endpoint",
			},
			[]string{"endpoint"},
		),

		HarvestRecordsFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_records_fetched_total",
				Help:      "Total number of raw records fetched per endpoint",
			},
			[]string{"endpoint"},
		),

		HarvestRateLimitWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "harvest_rate_limit_waits_total",
				Help:      "Total number of times the harvester waited on a rate limit",
			},
			[]string{"endpoint"},
		),

		BronzeObjectsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bronze_objects_written_total",
				Help:      "Total number of raw page objects written to the object store",
			},
			[]string{"endpoint", "bucket"},
		),

		BronzeBytesWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bronze_bytes_written_total",
				Help:      "Total number of bytes written to the object store",
			},
			[]string{"endpoint", "bucket"},
		),

		SilverRowsLoaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "silver_rows_loaded_total",
				Help:      "Total number of rows upserted into the warehouse",
			},
			[]string{"table"},
		),

		SilverLoadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "silver_load_duration_seconds",
				Help:      "Duration of a Silver partition load",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"table"},
		),

		GoldNodesSynced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gold_nodes_synced_total",
				Help:      "Total number of graph nodes merged",
			},
			[]string{"label"},
		),

		GoldRelationsSynced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gold_relations_synced_total",
				Help:      "Total number of graph relationships merged",
			},
			[]string{"type"},
		),

		GoldSyncDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gold_sync_duration_seconds",
				Help:      "Duration of a full graph synchronization pass",
				Buckets:   []float64{.5, 1, 5, 10, 30, 60, 300, 600},
			},
		),

		AssetMaterializationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "asset_materializations_total",
				Help:      "Total number of asset partition materializations, by outcome",
			},
			[]string{"asset", "status"},
		),

		AssetMaterializationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "asset_materialization_duration_seconds",
				Help:      "Duration of a single asset partition materialization",
				Buckets:   []float64{.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"asset"},
		),

		AssetsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "assets_in_flight",
				Help:      "Current number of asset materializations running",
			},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics container, initializing it with defaults
// if it hasn't been set up yet.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("hydropipe", "")
	}
	return defaultMetrics
}

// RecordHarvestRequest records a completed harvester HTTP request.
func (m *Metrics) RecordHarvestRequest(endpoint, status string, duration time.Duration) {
	m.HarvestRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.HarvestRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHarvestRetry records a retried harvester request.
func (m *Metrics) RecordHarvestRetry(endpoint, reason string) {
	m.HarvestRequestRetries.WithLabelValues(endpoint, reason).Inc()
}

// RecordHarvestPage records a successfully fetched page of raw records.
func (m *Metrics) RecordHarvestPage(endpoint string, records int) {
	m.HarvestPagesFetched.WithLabelValues(endpoint).Inc()
	m.HarvestRecordsFetched.WithLabelValues(endpoint).Add(float64(records))
}

// RecordBronzeWrite records a raw page object written to the object store.
func (m *Metrics) RecordBronzeWrite(endpoint, bucket string, bytes int) {
	m.BronzeObjectsWritten.WithLabelValues(endpoint, bucket).Inc()
	m.BronzeBytesWritten.WithLabelValues(endpoint, bucket).Add(float64(bytes))
}

// RecordSilverLoad records a completed partition load into the warehouse.
func (m *Metrics) RecordSilverLoad(table string, rows int, duration time.Duration) {
	m.SilverRowsLoaded.WithLabelValues(table).Add(float64(rows))
	m.SilverLoadDuration.WithLabelValues(table).Observe(duration.Seconds())
}

// RecordGoldSync records a completed graph synchronization pass.
func (m *Metrics) RecordGoldSync(nodesByLabel, relationsByType map[string]int, duration time.Duration) {
	for label, n := range nodesByLabel {
		m.GoldNodesSynced.WithLabelValues(label).Add(float64(n))
	}
	for relType, n := range relationsByType {
		m.GoldRelationsSynced.WithLabelValues(relType).Add(float64(n))
	}
	m.GoldSyncDuration.Observe(duration.Seconds())
}

// RecordMaterialization records a finished asset partition materialization.
func (m *Metrics) RecordMaterialization(asset, status string, duration time.Duration) {
	m.AssetMaterializationsTotal.WithLabelValues(asset, status).Inc()
	m.AssetMaterializationDuration.WithLabelValues(asset).Observe(duration.Seconds())
}

// SetServiceInfo sets the static service build info gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts a standalone HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure is not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
