// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gitopia_relay"

// Metrics groups every collector exported by the relay.
type Metrics struct {
	FramesReceived     prometheus.Counter
	FramesDiscarded    *prometheus.CounterVec
	EventsDecoded      prometheus.Counter
	EventsSkipped      *prometheus.CounterVec
	NotificationsBuilt *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	LookupDuration     *prometheus.HistogramVec
	Reconnects         prometheus.Counter
	ConnectionState    prometheus.Gauge
	Subscriptions      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total frames read from the node websocket",
		}),
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_discarded_total",
			Help:      "Frames dropped without producing events",
		}, []string{"reason"}),
		EventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_decoded_total",
			Help:      "Message events decoded into attributes",
		}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_skipped_total",
			Help:      "Events that produced no notification",
		}, []string{"reason"}),
		NotificationsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notifications_built_total",
			Help:      "Notifications built per action",
		}, []string{"action"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Notification deliveries per outcome",
		}, []string{"status"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "duration_seconds",
			Help:      "Gitopia API lookup latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind", "status"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after a close or dial failure",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 subscribed",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscriptions",
			Help:      "Subscribed names across all channels",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.FramesDiscarded,
			m.EventsDecoded,
			m.EventsSkipped,
			m.NotificationsBuilt,
			m.Deliveries,
			m.LookupDuration,
			m.Reconnects,
			m.ConnectionState,
			m.Subscriptions,
		)
	}
	return m
}
