// Package metrics provides the Prometheus metrics collectors shared by the
// dispatcher, communication buffer, synchronizer, and control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDecodedTotal counts successfully decoded CommandRequests by
	// source (serial|tcp).
	FramesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pytrain",
		Name:      "frames_decoded_total",
		Help:      "Total frames successfully decoded into CommandRequests.",
	}, []string{"source"})

	// FramesDiscardedTotal counts discarded frames by error kind, per
	// spec §7's requirement that every discard increments a counter.
	FramesDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pytrain",
		Name:      "frames_discarded_total",
		Help:      "Total frames discarded, labeled by error kind.",
	}, []string{"kind"})

	// DispatchQueueDepth tracks the dispatcher's inbound queue length.
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pytrain",
		Name:      "dispatch_queue_depth",
		Help:      "Current depth of the dispatcher's inbound command queue.",
	})

	// CommBufferQueueDepth tracks the outbound comm-buffer queue length.
	CommBufferQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pytrain",
		Name:      "commbuffer_queue_depth",
		Help:      "Current depth of the outbound comm-buffer queue, per sink.",
	}, []string{"sink"})

	// CommBufferSentTotal counts frames sent per sink.
	CommBufferSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pytrain",
		Name:      "commbuffer_sent_total",
		Help:      "Total commands transmitted, per sink.",
	}, []string{"sink"})

	// SyncRecordsPendingGauge tracks outstanding synchronizer expectations.
	SyncRecordsPendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pytrain",
		Name:      "sync_records_pending",
		Help:      "Number of outstanding startup-synchronization record requests.",
	})

	// ClientsConnectedGauge tracks the server's live client-session count.
	ClientsConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pytrain",
		Name:      "clients_connected",
		Help:      "Number of TCP client sessions currently registered.",
	})

	// ClientEvictionsTotal counts ClientEvicted events.
	ClientEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pytrain",
		Name:      "client_evictions_total",
		Help:      "Total client sessions evicted by a re-REGISTER from a new UUID.",
	})

	// SequencesActiveGauge tracks the number of in-flight sequence tasks.
	SequencesActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pytrain",
		Name:      "sequences_active",
		Help:      "Number of sequence tasks currently scheduling primitives.",
	})

	// SerialBytesReadTotal counts raw bytes read off the USB-serial link.
	SerialBytesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pytrain",
		Name:      "serial_bytes_read_total",
		Help:      "Total bytes read from the USB-serial link.",
	})
)

// IncDiscard increments FramesDiscardedTotal for the given error kind,
// defaulting to "unknown" for an empty label, mirroring the teacher's
// defensive label-normalization idiom.
func IncDiscard(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	FramesDiscardedTotal.WithLabelValues(kind).Inc()
}
