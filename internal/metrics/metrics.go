// Package metrics exposes Prometheus collectors for the per-stream
// flow-control state, following the same registry-and-Gatherer shape
// the rest of this repository's daemons expose their stats through.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every gauge/counter the loopback and demo report
// into. Callers should register it once with a prometheus.Registerer and
// keep the returned value for updates.
type Collectors struct {
	SendWindow      *prometheus.GaugeVec
	ReceiveWindow   *prometheus.GaugeVec
	BytesAcked      *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	ActiveStreams   prometheus.Gauge
	StreamsReset    prometheus.Counter
	StreamsFinished prometheus.Counter
}

// New creates a fresh, unregistered set of collectors.
func New() *Collectors {
	return &Collectors{
		SendWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yamux_stream",
			Name:      "send_window_bytes",
			Help:      "Current send-window credit for a stream.",
		}, []string{"stream_id"}),
		ReceiveWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yamux_stream",
			Name:      "receive_window_bytes",
			Help:      "Current receive-window credit for a stream.",
		}, []string{"stream_id"}),
		BytesAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yamux_stream",
			Name:      "bytes_acked_total",
			Help:      "Total bytes ACKed back to the peer for a stream.",
		}, []string{"stream_id"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yamux_stream",
			Name:      "bytes_written_total",
			Help:      "Total bytes handed to the wire for a stream.",
		}, []string{"stream_id"}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yamux_stream",
			Name:      "active_streams",
			Help:      "Number of streams currently open on this endpoint.",
		}),
		StreamsReset: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamux_stream",
			Name:      "streams_reset_total",
			Help:      "Number of streams that ended in RST, either direction.",
		}),
		StreamsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamux_stream",
			Name:      "streams_finished_total",
			Help:      "Number of streams that closed cleanly on both halves.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error since that indicates a wiring bug.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.SendWindow,
		c.ReceiveWindow,
		c.BytesAcked,
		c.BytesWritten,
		c.ActiveStreams,
		c.StreamsReset,
		c.StreamsFinished,
	)
}

// Handler returns an http.Handler serving gath in the Prometheus text
// exposition format, for mounting at /metrics.
func Handler(gath prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}
