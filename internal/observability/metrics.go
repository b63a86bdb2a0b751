package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchDuration  *prometheus.HistogramVec
	searchResults   prometheus.Histogram
	addDuration     prometheus.Histogram
	cacheRefreshDur prometheus.Histogram

	indexSize     prometheus.Gauge
	cachedRecords prometheus.Gauge
	storeRecords  prometheus.Gauge

	cacheEvictions prometheus.Counter

	embeddingRequests *prometheus.CounterVec
	embeddingDuration prometheus.Histogram

	flushTotal    *prometheus.CounterVec
	flushDuration prometheus.Histogram

	poolQueueSize *prometheus.GaugeVec
	poolTaskDur   *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Hybrid search duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			searchResults: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_results",
					Help:    "Result count per hybrid search.",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
				},
			),
			addDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_add_duration_seconds",
					Help:    "Memory insertion duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			cacheRefreshDur: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_cache_refresh_duration_seconds",
					Help:    "Record cache refresh duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_index_size",
					Help: "Vectors currently held by the in-memory index.",
				},
			),
			cachedRecords: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_cached_records",
					Help: "Records currently held by the record cache.",
				},
			),
			storeRecords: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_store_records",
					Help: "Records persisted in the backing store.",
				},
			),
			cacheEvictions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_cache_evictions_total",
					Help: "Records evicted from the record cache.",
				},
			),
			embeddingRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_requests_total",
					Help: "Embedding service calls by status.",
				},
				[]string{"status"},
			),
			embeddingDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_embedding_duration_seconds",
					Help:    "Embedding service call duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			flushTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_index_flush_total",
					Help: "Index flushes to disk by trigger and status.",
				},
				[]string{"trigger", "status"},
			),
			flushDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_index_flush_duration_seconds",
					Help:    "Index flush duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			poolQueueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "workerpool_queue_size",
					Help: "Queued tasks by lane.",
				},
				[]string{"lane"},
			),
			poolTaskDur: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "workerpool_task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
		}

		prometheus.MustRegister(
			m.searchDuration,
			m.searchResults,
			m.addDuration,
			m.cacheRefreshDur,
			m.indexSize,
			m.cachedRecords,
			m.storeRecords,
			m.cacheEvictions,
			m.embeddingRequests,
			m.embeddingDuration,
			m.flushTotal,
			m.flushDuration,
			m.poolQueueSize,
			m.poolTaskDur,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the prometheus scrape handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordMemorySearch records a hybrid search by mode (semantic, keyword, hybrid).
func RecordMemorySearch(mode string, duration time.Duration, results int) {
	m := getMetrics()
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.searchResults.Observe(float64(results))
}

// RecordMemoryAdd records a memory insertion.
func RecordMemoryAdd(duration time.Duration) {
	getMetrics().addDuration.Observe(duration.Seconds())
}

// RecordCacheRefresh records a record cache refresh.
func RecordCacheRefresh(duration time.Duration) {
	getMetrics().cacheRefreshDur.Observe(duration.Seconds())
}

// SetIndexSize sets the current vector index cardinality.
func SetIndexSize(n int) {
	getMetrics().indexSize.Set(float64(n))
}

// SetCachedRecords sets the current record cache size.
func SetCachedRecords(n int) {
	getMetrics().cachedRecords.Set(float64(n))
}

// SetStoreRecords sets the backing store record count.
func SetStoreRecords(n int) {
	getMetrics().storeRecords.Set(float64(n))
}

// RecordCacheEvictions adds evicted record count.
func RecordCacheEvictions(n int) {
	getMetrics().cacheEvictions.Add(float64(n))
}

// RecordEmbeddingCall records an embedding service call.
func RecordEmbeddingCall(duration time.Duration, err error) {
	m := getMetrics()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.embeddingRequests.WithLabelValues(status).Inc()
	m.embeddingDuration.Observe(duration.Seconds())
}

// RecordIndexFlush records an index flush by trigger (debounce, periodic, force).
func RecordIndexFlush(trigger string, duration time.Duration, ok bool) {
	m := getMetrics()
	status := "success"
	if !ok {
		status = "error"
	}
	m.flushTotal.WithLabelValues(trigger, status).Inc()
	m.flushDuration.Observe(duration.Seconds())
}

// SetPoolQueueSize sets the queued task count for a lane.
func SetPoolQueueSize(lane string, n int) {
	getMetrics().poolQueueSize.WithLabelValues(lane).Set(float64(n))
}

// RecordPoolTask records a completed pool task for a lane.
func RecordPoolTask(lane string, duration time.Duration) {
	getMetrics().poolTaskDur.WithLabelValues(lane).Observe(duration.Seconds())
}
