package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the collector.
type Config struct {
	Namespace     string `yaml:"namespace"`
	EnableGo      bool   `yaml:"enableGo"`
	EnableProcess bool   `yaml:"enableProcess"`
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:     "puzzle",
		EnableGo:      true,
		EnableProcess: true,
	}
}

// Collector owns the prometheus registry and the built-in metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	resolutions     *prometheus.CounterVec
	routes          *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetches         *prometheus.CounterVec
}

// New creates a collector registered on a fresh prometheus registry.
func New(config Config) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	if config.EnableGo {
		c.registry.MustRegister(collectors.NewGoCollector())
	}

	if config.EnableProcess {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	ns := config.Namespace

	c.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "di",
			Name:      "resolutions_total",
			Help:      "Total number of token resolutions by outcome",
		},
		[]string{"token", "outcome"},
	)
	c.routes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "gateway",
			Name:      "routes",
			Help:      "Number of routes registered by a gateway",
		},
		[]string{"gateway"},
	)
	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	c.fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "storefront",
			Name:      "fetches_total",
			Help:      "Total number of gateway configuration fetches by outcome",
		},
		[]string{"gateway", "outcome"},
	)

	c.registry.MustRegister(c.resolutions, c.routes, c.requests, c.requestDuration, c.fetches)

	return c
}

// Registry returns the underlying prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ResolutionObserved counts one token resolution.
func (c *Collector) ResolutionObserved(token, outcome string) {
	if c == nil {
		return
	}

	c.resolutions.WithLabelValues(token, outcome).Inc()
}

// RoutesRegistered records how many routes a gateway mounted.
func (c *Collector) RoutesRegistered(gateway string, n int) {
	if c == nil {
		return
	}

	c.routes.WithLabelValues(gateway).Set(float64(n))
}

// RequestObserved records one served HTTP request.
func (c *Collector) RequestObserved(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}

	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// FetchObserved counts one storefront configuration fetch.
func (c *Collector) FetchObserved(gateway, outcome string) {
	if c == nil {
		return
	}

	c.fetches.WithLabelValues(gateway, outcome).Inc()
}
