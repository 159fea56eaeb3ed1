package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// Fetch Engine
	FetchRequestsTotal *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	FetchRetriesTotal  *prometheus.CounterVec

	// Cache
	CacheHitRatio *prometheus.GaugeVec
	CacheOpsTotal *prometheus.CounterVec

	// Evidence store / merge
	MergeOperations      *prometheus.CounterVec
	EvidenceRecordsTotal *prometheus.GaugeVec

	// Scoring engine
	ScoringRunDuration   *prometheus.HistogramVec
	SourceItemsProcessed *prometheus.CounterVec

	// Progress tracker / event bus
	SubscriberQueueDrops *prometheus.CounterVec
	ActiveRuns           prometheus.Gauge

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		FetchRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetch_requests_total",
				Help:      "Total number of source fetch attempts",
			},
			[]string{"source", "status"},
		),

		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of a single source fetch call",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		),

		FetchRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fetch_retries_total",
				Help:      "Total number of fetch retry attempts after a transient failure",
			},
			[]string{"source", "reason"},
		),

		CacheHitRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_hit_ratio",
				Help:      "Rolling cache hit ratio per namespace",
			},
			[]string{"namespace", "tier"},
		),

		CacheOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_operations_total",
				Help:      "Total cache operations by outcome",
			},
			[]string{"namespace", "tier", "outcome"},
		),

		MergeOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "merge_operations_total",
				Help:      "Total evidence merge operations by source",
			},
			[]string{"source", "outcome"},
		),

		EvidenceRecordsTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evidence_records_total",
				Help:      "Current count of active evidence records by source",
			},
			[]string{"source"},
		),

		ScoringRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scoring_run_duration_seconds",
				Help:      "Duration of a full scoring engine pass",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"track"},
		),

		SourceItemsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "source_items_processed_total",
				Help:      "Total items (genes) processed per source during a run",
			},
			[]string{"source", "outcome"},
		),

		SubscriberQueueDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriber_queue_drops_total",
				Help:      "Total progress events dropped because a subscriber's queue was full",
			},
			[]string{"run_id"},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_runs",
				Help:      "Current number of orchestrator runs in a non-terminal state",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("geneingest", "")
	}
	return defaultMetrics
}

// RecordFetch records the outcome of one source fetch call.
func (m *Metrics) RecordFetch(source, status string, duration time.Duration) {
	m.FetchRequestsTotal.WithLabelValues(source, status).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordFetchRetry records one retry attempt.
func (m *Metrics) RecordFetchRetry(source, reason string) {
	m.FetchRetriesTotal.WithLabelValues(source, reason).Inc()
}

// RecordCacheOp records a cache lookup outcome and refreshes the hit ratio gauge.
func (m *Metrics) RecordCacheOp(namespace, tier, outcome string, hitRatio float64) {
	m.CacheOpsTotal.WithLabelValues(namespace, tier, outcome).Inc()
	m.CacheHitRatio.WithLabelValues(namespace, tier).Set(hitRatio)
}

// RecordMerge records one evidence merge operation.
func (m *Metrics) RecordMerge(source, outcome string) {
	m.MergeOperations.WithLabelValues(source, outcome).Inc()
}

// SetEvidenceRecords sets the current active evidence record count for a source.
func (m *Metrics) SetEvidenceRecords(source string, count float64) {
	m.EvidenceRecordsTotal.WithLabelValues(source).Set(count)
}

// RecordScoringRun records the duration of a full scoring pass for one track.
func (m *Metrics) RecordScoringRun(track string, duration time.Duration) {
	m.ScoringRunDuration.WithLabelValues(track).Observe(duration.Seconds())
}

// RecordSourceItem records one gene processed by a source driver.
func (m *Metrics) RecordSourceItem(source, outcome string) {
	m.SourceItemsProcessed.WithLabelValues(source, outcome).Inc()
}

// RecordSubscriberDrop records one dropped progress event for a run.
func (m *Metrics) RecordSubscriberDrop(runID string) {
	m.SubscriberQueueDrops.WithLabelValues(runID).Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
