package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for fetch runs.
type Metrics struct {
	pagesFetched *prometheus.CounterVec
	pageFailures *prometheus.CounterVec
	records      *prometheus.CounterVec
	chainsDone   *prometheus.CounterVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cctp_stats_pages_fetched_total",
				Help: "Total number of subgraph pages fetched successfully",
			}, []string{"chain"}),
			pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cctp_stats_page_failures_total",
				Help: "Total number of subgraph page requests that failed",
			}, []string{"chain"}),
			records: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cctp_stats_records_total",
				Help: "Total number of burn events normalized",
			}, []string{"chain", "type"}),
			chainsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cctp_stats_chains_completed_total",
				Help: "Total number of chains whose pagination finished",
			}, []string{"chain", "truncated"}),
		}
		prometheus.MustRegister(
			metrics.pagesFetched,
			metrics.pageFailures,
			metrics.records,
			metrics.chainsDone,
		)
	})
	return metrics
}

// PageFetched increments the fetched pages counter.
func (m *Metrics) PageFetched(chain string) {
	if m != nil {
		m.pagesFetched.WithLabelValues(chain).Inc()
	}
}

// PageFailed increments the failed pages counter.
func (m *Metrics) PageFailed(chain string) {
	if m != nil {
		m.pageFailures.WithLabelValues(chain).Inc()
	}
}

// Records adds n normalized records of the given event type.
func (m *Metrics) Records(chain, eventType string, n int) {
	if m != nil && n > 0 {
		m.records.WithLabelValues(chain, eventType).Add(float64(n))
	}
}

// ChainCompleted marks a chain's pagination as finished.
func (m *Metrics) ChainCompleted(chain string, truncated bool) {
	if m != nil {
		label := "false"
		if truncated {
			label = "true"
		}
		m.chainsDone.WithLabelValues(chain, label).Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
