package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RetrievalMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal          *prometheus.CounterVec
	retrievalDuration       *prometheus.HistogramVec
	retrievalResults        *prometheus.HistogramVec
	cacheLookupsTotal       *prometheus.CounterVec
	backendRequestsTotal    *prometheus.CounterVec
	breakerTransitionsTotal *prometheus.CounterVec
	breakerOpen             *prometheus.GaugeVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "abd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "abd",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abd",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by outcome.",
		},
		[]string{"service", "status"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "abd",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "abd",
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Distribution of fused results per retrieval request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abd",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total semantic cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	backendRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abd",
			Subsystem: "retrieval",
			Name:      "backend_requests_total",
			Help:      "Total backend searches by origin and status.",
		},
		[]string{"service", "backend", "status"},
	)
	breakerTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "abd",
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions.",
		},
		[]string{"service", "operation", "to"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "abd",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "Whether the circuit breaker for an operation is open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalResults,
		cacheLookupsTotal,
		backendRequestsTotal,
		breakerTransitionsTotal,
		breakerOpen,
	)

	return &RetrievalMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		retrievalTotal:          retrievalTotal,
		retrievalDuration:       retrievalDuration,
		retrievalResults:        retrievalResults,
		cacheLookupsTotal:       cacheLookupsTotal,
		backendRequestsTotal:    backendRequestsTotal,
		breakerTransitionsTotal: breakerTransitionsTotal,
		breakerOpen:             breakerOpen,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterBulkhead exposes live bulkhead occupancy through gauge
// callbacks, avoiding a sampling goroutine.
func (m *RetrievalMetrics) RegisterBulkhead(service string, active, queued func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "abd",
			Subsystem:   "resilience",
			Name:        "bulkhead_active",
			Help:        "Concurrent calls currently holding a bulkhead slot.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		func() float64 { return float64(active()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "abd",
			Subsystem:   "resilience",
			Name:        "bulkhead_queued",
			Help:        "Calls currently waiting for a bulkhead slot.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		func() float64 { return float64(queued()) },
	))
}

func (m *RetrievalMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *RetrievalMetrics) RecordRetrieval(service, status string, resultCount int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, status).Inc()
	m.retrievalDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.retrievalResults.WithLabelValues(service).Observe(float64(resultCount))
}

func (m *RetrievalMetrics) RecordCacheLookup(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.cacheLookupsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *RetrievalMetrics) RecordBackendRequest(service, backend, status string) {
	if backend == "" {
		backend = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.backendRequestsTotal.WithLabelValues(service, backend, status).Inc()
}

func (m *RetrievalMetrics) RecordBreakerTransition(service, operation, to string) {
	m.breakerTransitionsTotal.WithLabelValues(service, operation, to).Inc()
	if to == "open" {
		m.breakerOpen.WithLabelValues(service, operation).Set(1)
		return
	}
	m.breakerOpen.WithLabelValues(service, operation).Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
