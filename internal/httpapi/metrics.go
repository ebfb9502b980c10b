package httpapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the HTTP API. A nil *Metrics
// records nothing.
type Metrics struct {
	// Requests by route pattern and status code
	Requests *prometheus.CounterVec

	// Request latency by route pattern
	Latency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tzdb_http_requests_total",
			Help: "Total HTTP API requests by route and status code",
		}, []string{"route", "code"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tzdb_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests by route",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"route"}),
	}
}

// ObserveRequest records a finished request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.Latency.WithLabelValues(route).Observe(d.Seconds())
}
