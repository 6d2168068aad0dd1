package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventfinder/internal/feed"
)

const namespace = "eventfinder"

// Metrics owns its own registry so tests and multiple servers in one
// process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups  *prometheus.CounterVec
	loads         *prometheus.CounterVec
	loadDuration  prometheus.Histogram
	events        prometheus.Gauge
	lastSuccessTS prometheus.Gauge
	fallback      prometheus.Gauge
	requests      *prometheus.CounterVec
	reqDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Event cache reads by result (hit or miss)",
	}, []string{"result"})
	m.loads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loads_total",
		Help:      "Event list loads by serving source and outcome",
	}, []string{"source", "outcome"})
	m.loadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "load_duration_seconds",
		Help:      "Time spent loading the event list, fallback included",
		Buckets:   prometheus.DefBuckets,
	})
	m.events = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_events",
		Help:      "Number of events in the current cache entry",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_load_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful load",
	})
	m.fallback = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "serving_fallback",
		Help:      "1 when the current cache entry came from the fallback source",
	})
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern and status code",
	}, []string{"route", "code"})
	m.reqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	m.registry.MustRegister(
		m.cacheLookups, m.loads, m.loadDuration,
		m.events, m.lastSuccessTS, m.fallback,
		m.requests, m.reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// LoadDone implements cache.Observer.
func (m *Metrics) LoadDone(res feed.Result, err error, took time.Duration) {
	m.loadDuration.Observe(took.Seconds())
	if err != nil {
		m.loads.WithLabelValues("none", "error").Inc()
		return
	}

	outcome := "ok"
	if res.Fallback {
		outcome = "fallback"
		m.fallback.Set(1)
	} else {
		m.fallback.Set(0)
	}
	m.loads.WithLabelValues(res.Source.Name, outcome).Inc()
	m.events.Set(float64(len(res.Events)))
	m.lastSuccessTS.SetToCurrentTime()
}

// ObserveRequest records one served HTTP request. route is the mux pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.reqDuration.WithLabelValues(route).Observe(took.Seconds())
}
