package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	namespace   string
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	httpInfl    *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	importQd    prometheus.Gauge
	importCnt   *prometheus.CounterVec
	importDur   prometheus.Histogram
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "authorization_transitions_total"}, []string{"status"})
	r.MustRegister(transitions)

	importQd := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "import_queue_depth"})
	importCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "import_tasks_total"}, []string{"outcome"})
	importDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "import_task_duration_seconds", Buckets: cfg.Buckets})
	r.MustRegister(importQd, importCnt, importDur)

	return &Metrics{
		registry:    r,
		namespace:   ns,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		httpInfl:    httpInfl,
		transitions: transitions,
		importQd:    importQd,
		importCnt:   importCnt,
		importDur:   importDur,
	}
}

// Transition records one authorization status transition.
func (m *Metrics) Transition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// ImportQueued tracks the current import queue depth.
func (m *Metrics) ImportQueued(depth int) {
	m.importQd.Set(float64(depth))
}

// ImportDone records a finished import task.
func (m *Metrics) ImportDone(outcome string, since time.Time) {
	m.importCnt.WithLabelValues(outcome).Inc()
	m.importDur.Observe(time.Since(since).Seconds())
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
