// Package metrics exports demuxer telemetry to Prometheus. Recorder
// implements demux.StatsRecorder.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/vdemux/internal/demux"
)

const namespace = "vdemux"

// Recorder holds the demuxer metrics.
type Recorder struct {
	Packets     *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	QueuePkts   *prometheus.GaugeVec
	QueueBytes  *prometheus.GaugeVec
	Overflows   *prometheus.CounterVec
	Seeks       *prometheus.CounterVec
	PacketSizes *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "packets_total",
			Help:      "Packets queued by the demuxer.",
		}, []string{"format", "type"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "packet_bytes_total",
			Help:      "Payload bytes queued by the demuxer.",
		}, []string{"format", "type"}),
		QueuePkts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "queue_packets",
			Help:      "Packets waiting in a track queue.",
		}, []string{"format", "type", "track"}),
		QueueBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "queue_bytes",
			Help:      "Bytes waiting in a track queue.",
		}, []string{"format", "type", "track"}),
		Overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "queue_overflows_total",
			Help:      "Times a track queue hit the packet or byte limit.",
		}, []string{"format"}),
		Seeks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "seeks_total",
			Help:      "Seek requests by outcome.",
		}, []string{"format", "result"}),
		PacketSizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "demux",
			Name:      "packet_size_bytes",
			Help:      "Size of queued packets.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"type"}),
	}

	reg.MustRegister(
		r.Packets,
		r.Bytes,
		r.QueuePkts,
		r.QueueBytes,
		r.Overflows,
		r.Seeks,
		r.PacketSizes,
	)
	return r
}

func (r *Recorder) RecordPacket(format string, typ demux.TrackType, bytes int) {
	r.Packets.WithLabelValues(format, typ.String()).Inc()
	r.Bytes.WithLabelValues(format, typ.String()).Add(float64(bytes))
	r.PacketSizes.WithLabelValues(typ.String()).Observe(float64(bytes))
}

func (r *Recorder) RecordQueueDepth(format string, typ demux.TrackType, index, packets, bytes int) {
	track := strconv.Itoa(index)
	r.QueuePkts.WithLabelValues(format, typ.String(), track).Set(float64(packets))
	r.QueueBytes.WithLabelValues(format, typ.String(), track).Set(float64(bytes))
}

func (r *Recorder) RecordOverflow(format string) {
	r.Overflows.WithLabelValues(format).Inc()
}

func (r *Recorder) RecordSeek(format string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.Seeks.WithLabelValues(format, result).Inc()
}

var _ demux.StatsRecorder = (*Recorder)(nil)
