// Package metrics provides HTTP client metrics for observability
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snd-ksa/docmigrate/internal/logger"
)

// HTTPClientMetrics tracks outbound requests to the legacy store and
// legacy links.
type HTTPClientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	// started maps an in-flight request to its start time
	started sync.Map
}

// NewHTTPClientMetrics creates and registers HTTP client metrics.
func NewHTTPClientMetrics(registry prometheus.Registerer) (*HTTPClientMetrics, error) {
	m := &HTTPClientMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP client metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPClientMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_client_requests_total",
			Help:      "Outbound HTTP requests by host, method and status code.",
		},
		[]string{"host", "method", "status_code"}, // status_code is "error" on transport failure
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "Time to response headers for outbound HTTP requests.",
			Buckets:   durationBuckets,
		},
		[]string{"host", "method"},
	)

	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "http_client_requests_in_flight",
		Help:      "Outbound HTTP requests awaiting a response.",
	})
}

// BeforeRequest is installed as the client's before-request hook.
func (m *HTTPClientMetrics) BeforeRequest(req *http.Request) {
	m.started.Store(req, time.Now())
	m.inFlight.Inc()
}

// AfterResponse is installed as the client's after-response hook.
func (m *HTTPClientMetrics) AfterResponse(req *http.Request, resp *http.Response, err error) {
	host := LabelUnknown
	if req.URL != nil && req.URL.Host != "" {
		host = req.URL.Host
	}

	status := LabelError
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	m.requestsTotal.WithLabelValues(host, req.Method, status).Inc()

	v, ok := m.started.LoadAndDelete(req)
	if !ok {
		log.Debug("response without matching request start", logger.String("host", host))
		return
	}
	m.inFlight.Dec()
	m.requestDuration.WithLabelValues(host, req.Method).Observe(time.Since(v.(time.Time)).Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPClientMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.inFlight.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPClientMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.inFlight.Collect(ch)
}
