// Package metrics exposes the prometheus counters and gauges the
// realtime subsystem updates as hubs open and close, connections join
// and leave, and frames move across the wire.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every metric the realtime subsystem reports.
type Metrics struct {
	hubsOpen         prometheus.Gauge
	hubsCreatedTotal prometheus.Counter
	hubsClosedTotal  prometheus.Counter

	connectionsOpen         prometheus.Gauge
	connectionsAdmittedTotal prometheus.Counter
	connectionsDeniedTotal  *prometheus.CounterVec

	framesReceivedTotal *prometheus.CounterVec
	framesSentTotal     *prometheus.CounterVec

	broadcastDuration prometheus.Histogram
	keepAliveTimeouts prometheus.Counter
}

// NewMetrics registers every metric with the default registerer and
// returns a handle to record against.
func NewMetrics() *Metrics {
	return &Metrics{
		hubsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collab_hubs_open",
			Help: "Number of note hubs currently open",
		}),
		hubsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collab_hubs_created_total",
			Help: "Total number of note hubs created",
		}),
		hubsClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collab_hubs_closed_total",
			Help: "Total number of note hubs torn down",
		}),
		connectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collab_connections_open",
			Help: "Number of realtime connections currently open",
		}),
		connectionsAdmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collab_connections_admitted_total",
			Help: "Total number of realtime connections successfully admitted",
		}),
		connectionsDeniedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_connections_denied_total",
				Help: "Total number of realtime connections denied admission",
			},
			[]string{"reason"},
		),
		framesReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_frames_received_total",
				Help: "Total number of frames received from clients",
			},
			[]string{"type"},
		),
		framesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_frames_sent_total",
				Help: "Total number of frames sent to clients",
			},
			[]string{"type"},
		),
		broadcastDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collab_broadcast_duration_seconds",
			Help:    "Time spent fanning an update or awareness event out to a hub's connections",
			Buckets: prometheus.DefBuckets,
		}),
		keepAliveTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collab_keepalive_timeouts_total",
			Help: "Total number of connections force-closed for missing a pong",
		}),
	}
}

func (m *Metrics) HubCreated()            { m.hubsOpen.Inc(); m.hubsCreatedTotal.Inc() }
func (m *Metrics) HubClosed()             { m.hubsOpen.Dec(); m.hubsClosedTotal.Inc() }
func (m *Metrics) ConnectionAdmitted()    { m.connectionsOpen.Inc(); m.connectionsAdmittedTotal.Inc() }
func (m *Metrics) ConnectionClosed()      { m.connectionsOpen.Dec() }
func (m *Metrics) ConnectionDenied(reason string) {
	m.connectionsDeniedTotal.WithLabelValues(reason).Inc()
}
func (m *Metrics) FrameReceived(msgType string) { m.framesReceivedTotal.WithLabelValues(msgType).Inc() }
func (m *Metrics) FrameSent(msgType string)     { m.framesSentTotal.WithLabelValues(msgType).Inc() }
func (m *Metrics) ObserveBroadcastSeconds(seconds float64) { m.broadcastDuration.Observe(seconds) }
func (m *Metrics) KeepAliveTimeout()                       { m.keepAliveTimeouts.Inc() }

// Handler returns the HTTP handler prometheus scrapes.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
