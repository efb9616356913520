// Package metrics exposes dispatch and webhook counters on a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rtmbot"

// Collector holds every metric the bot records. A nil *Collector is valid
// and records nothing.
type Collector struct {
	Registry *prometheus.Registry

	EventsTotal      prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
	HandlerErrors    *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	WebhookRequests  *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Inbound gateway events dispatched.",
		}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Named commands resolved and invoked.",
		}, []string{"command"}),

		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_errors_total",
			Help:      "Handler failures contained by the dispatcher.",
		}, []string{"handler", "kind"}),

		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching one event.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Webhook requests by webhook name and HTTP status.",
		}, []string{"webhook", "status"}),
	}

	reg.MustRegister(
		c.EventsTotal,
		c.CommandsTotal,
		c.HandlerErrors,
		c.DispatchDuration,
		c.WebhookRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) ObserveEvent(elapsed time.Duration) {
	if c == nil {
		return
	}
	c.EventsTotal.Inc()
	c.DispatchDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveCommand(name string) {
	if c == nil {
		return
	}
	c.CommandsTotal.WithLabelValues(name).Inc()
}

// ObserveHandlerError records a contained failure; kind is "error" or "panic".
func (c *Collector) ObserveHandlerError(handler, kind string) {
	if c == nil {
		return
	}
	c.HandlerErrors.WithLabelValues(handler, kind).Inc()
}

func (c *Collector) ObserveWebhook(name string, status int) {
	if c == nil {
		return
	}
	c.WebhookRequests.WithLabelValues(name, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
