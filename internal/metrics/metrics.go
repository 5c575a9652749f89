// Package metrics exposes Prometheus instrumentation for the clips runtime
// and the development server.
//
// Metrics collected (with the default "clips" namespace):
//   - clips_renders_total: template renders by template and status
//   - clips_render_duration_seconds: template render duration by template
//   - clips_created_total / clips_destroyed_total: clip lifecycle by type
//   - clips_attached_total: confirmed attachments by type
//   - clips_events_total: fired events by type
//   - clips_listener_errors_total: failed listeners by event type
//   - clips_live_reloads_total: reload broadcasts sent by the server
//   - clips_websocket_clients: connected live-reload clients
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "clips").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for render duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "clips",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus records runtime and server metrics.
type Prometheus struct {
	renders          *prometheus.CounterVec
	renderDuration   *prometheus.HistogramVec
	created          *prometheus.CounterVec
	destroyed        *prometheus.CounterVec
	attached         *prometheus.CounterVec
	events           *prometheus.CounterVec
	listenerErrors   *prometheus.CounterVec
	reloads          prometheus.Counter
	websocketClients prometheus.Gauge
}

// New registers the collectors and returns the recorder.
func New(opts ...Option) *Prometheus {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Prometheus{
		renders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "renders_total",
			Help:        "Total number of template renders",
			ConstLabels: config.ConstLabels,
		}, []string{"template", "status"}),

		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "render_duration_seconds",
			Help:        "Template render duration in seconds, includes resolved",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"template"}),

		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "created_total",
			Help:        "Total number of clips created",
			ConstLabels: config.ConstLabels,
		}, []string{"clip"}),

		destroyed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "destroyed_total",
			Help:        "Total number of clips destroyed",
			ConstLabels: config.ConstLabels,
		}, []string{"clip"}),

		attached: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "attached_total",
			Help:        "Total number of confirmed clip attachments",
			ConstLabels: config.ConstLabels,
		}, []string{"clip"}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of events fired",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		listenerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "listener_errors_total",
			Help:        "Total number of event listeners that failed",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_reloads_total",
			Help:        "Total number of live reload broadcasts",
			ConstLabels: config.ConstLabels,
		}),

		websocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_clients",
			Help:        "Number of connected live reload clients",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveRender records one template render.
func (p *Prometheus) ObserveRender(template string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.renders.WithLabelValues(template, status).Inc()
	p.renderDuration.WithLabelValues(template).Observe(d.Seconds())
}

// ClipCreated records a created clip.
func (p *Prometheus) ClipCreated(name string) {
	p.created.WithLabelValues(name).Inc()
}

// ClipDestroyed records a destroyed clip.
func (p *Prometheus) ClipDestroyed(name string) {
	p.destroyed.WithLabelValues(name).Inc()
}

// ClipAttached records a confirmed attachment.
func (p *Prometheus) ClipAttached(name string) {
	p.attached.WithLabelValues(name).Inc()
}

// EventFired records a fired event.
func (p *Prometheus) EventFired(eventType string) {
	p.events.WithLabelValues(eventType).Inc()
}

// ListenerFailed records a failed listener.
func (p *Prometheus) ListenerFailed(eventType string) {
	p.listenerErrors.WithLabelValues(eventType).Inc()
}

// Reloaded records a live reload broadcast.
func (p *Prometheus) Reloaded() {
	p.reloads.Inc()
}

// ClientConnected increments the connected client gauge.
func (p *Prometheus) ClientConnected() {
	p.websocketClients.Inc()
}

// ClientDisconnected decrements the connected client gauge.
func (p *Prometheus) ClientDisconnected() {
	p.websocketClients.Dec()
}
