// Package metrics exposes chat activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the server.
// Every method is safe to call on a nil Collector.
type Collector struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	identities   prometheus.Gauge
	messages     prometheus.Counter
	throttled    prometheus.Counter
	moderation   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections",
		}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities_online",
			Help:      "Number of connections with a bound identity",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of broadcast chat messages",
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_throttled_total",
			Help:      "Total number of messages dropped by the rate limiter",
		}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_actions_total",
			Help:      "Moderation commands by action and result",
		}, []string{"action", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.connections,
		c.identities,
		c.messages,
		c.throttled,
		c.moderation,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.connections.Inc()
	}
}

func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.connections.Dec()
	}
}

func (c *Collector) IdentitiesOnline(n int) {
	if c != nil {
		c.identities.Set(float64(n))
	}
}

func (c *Collector) MessageSent() {
	if c != nil {
		c.messages.Inc()
	}
}

func (c *Collector) MessageThrottled() {
	if c != nil {
		c.throttled.Inc()
	}
}

func (c *Collector) ModerationAction(action, result string) {
	if c != nil {
		c.moderation.WithLabelValues(action, result).Inc()
	}
}

// ObserveHTTP records one finished HTTP request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
