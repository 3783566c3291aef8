// ABOUTME: Prometheus collectors for the relay pipeline
// ABOUTME: Registered on a private registry exposed by the HTTP gateway
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every pcmrelay collector
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Input queue
	QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcmrelay_queue_depth",
			Help: "Messages waiting in the input queue",
		},
	)

	QueueEvictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_queue_evictions_total",
			Help: "Messages discarded by forced puts into a full input queue",
		},
	)

	// Device sink
	DriftRatio = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcmrelay_device_drift_ratio",
			Help: "Resampling ratio currently applied by the device sink",
		},
	)

	DeviceState = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcmrelay_device_state",
			Help: "Device sink state (0 uninitialized, 1 warming up, 2 steady)",
		},
	)

	DeviceUnderrunsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_device_underruns_total",
			Help: "Device write failures that forced a return to warm-up",
		},
	)

	DeviceQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcmrelay_device_queue_depth",
			Help: "Converted blocks waiting for the device writer",
		},
	)

	// Stream sink
	StreamSessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcmrelay_stream_sessions",
			Help: "Active HTTP pull sessions",
		},
	)

	StreamDropsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_stream_drops_total",
			Help: "Messages discarded from the stream sink's secondary buffer",
		},
	)

	StreamBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_stream_bytes_total",
			Help: "Bytes served to HTTP clients",
		},
	)

	// Network
	ReceiverFramesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_receiver_frames_total",
			Help: "Audio frames received from senders",
		},
	)

	ReceiverMissedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_receiver_missed_total",
			Help: "Audio frames missing from the received sequence",
		},
	)

	SenderPacketsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcmrelay_sender_packets_total",
			Help: "Paced packets handed downstream",
		},
	)
)

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
