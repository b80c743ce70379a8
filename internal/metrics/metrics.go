package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vehicle_state"

// Metrics holds the collectors shared by the store, cache, service and HTTP
// layers. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheRequests *prometheus.CounterVec
	CacheWrites   *prometheus.CounterVec
	Transactions  *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
	HTTPRequests  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, miss, error, invalid).",
		}, []string{"result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by result (ok, error).",
		}, []string{"result"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_transactions_total",
			Help:      "Store transactions by driver and result.",
		}, []string{"driver", "result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Point-in-time state resolutions by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.CacheRequests, m.CacheWrites, m.Transactions, m.Resolutions, m.HTTPRequests)
	}
	return m
}

func (m *Metrics) ObserveCacheRequest(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCacheWrite(result string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTransaction(driver, result string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(driver, result).Inc()
}

func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
