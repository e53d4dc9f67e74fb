package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sign-in metrics
	SignInsTotal      *prometheus.CounterVec
	ProvisionsTotal   *prometheus.CounterVec
	SignOutsTotal     prometheus.Counter
	ProviderCallsTime *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testapi_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "testapi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	signInsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testapi_signin_total",
			Help: "Sign-in steps by provider, step and result",
		},
		[]string{"provider", "step", "result"},
	)

	provisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testapi_directory_lookups_total",
			Help: "Directory lookups on sign-in by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	signOutsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "testapi_signout_total",
			Help: "Total number of sign-outs",
		},
	)

	providerCallsTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "testapi_signin_complete_duration_seconds",
			Help:    "Time spent completing a sign-in, provider round trips included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		signInsTotal,
		provisionsTotal,
		signOutsTotal,
		providerCallsTime,
	)

	return &Metrics{
		registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		SignInsTotal:        signInsTotal,
		ProvisionsTotal:     provisionsTotal,
		SignOutsTotal:       signOutsTotal,
		ProviderCallsTime:   providerCallsTime,
	}
}

func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSignIn counts one begin or complete step. result is "ok" or an
// error kind.
func (m *Metrics) RecordSignIn(provider, step, result string) {
	m.SignInsTotal.WithLabelValues(provider, step, result).Inc()
}

// RecordProvision counts a directory lookup; created distinguishes first
// logins from returning users.
func (m *Metrics) RecordProvision(provider string, created bool) {
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.ProvisionsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordSignOut() {
	m.SignOutsTotal.Inc()
}

func (m *Metrics) ObserveComplete(provider string, d time.Duration) {
	m.ProviderCallsTime.WithLabelValues(provider).Observe(d.Seconds())
}

// Middleware records request counts and latency per matched route.
// Unmatched paths share one label so scanners cannot blow up cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
