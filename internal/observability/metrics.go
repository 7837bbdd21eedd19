package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdt",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames written to the datagram channel.",
		},
		[]string{"kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdt",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Verified frames read from the datagram channel.",
		},
		[]string{"kind"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdt",
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Datagrams discarded by the connection engine.",
		},
		[]string{"reason"},
	)
	retransmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdt",
			Subsystem: "session",
			Name:      "retransmissions_total",
			Help:      "Frames sent again after an ack timeout.",
		},
		[]string{"phase"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdt",
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Completed handshake attempts.",
		},
		[]string{"role", "result"},
	)
	sendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rdt",
			Subsystem: "session",
			Name:      "send_duration_seconds",
			Help:      "Time from first transmission to matching acknowledgment.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesReceived, framesDropped, retransmissions, handshakes, sendDuration)
	})
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordFrameSent(kind string) {
	RegisterMetrics()
	framesSent.WithLabelValues(kind).Inc()
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordRetransmission(phase string) {
	RegisterMetrics()
	retransmissions.WithLabelValues(phase).Inc()
}

func RecordHandshake(role string, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "failed"
	}
	handshakes.WithLabelValues(role, result).Inc()
}

func RecordSend(duration time.Duration) {
	RegisterMetrics()
	sendDuration.Observe(duration.Seconds())
}
