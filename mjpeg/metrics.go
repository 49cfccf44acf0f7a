package mjpeg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 标签取值固定，避免基数膨胀
var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_connections_accepted_total",
		Help: "Client connections accepted by the stream server",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjpeg_requests_total",
		Help: "Parsed request lines by response status",
	}, []string{"status"}) // "200", "400", "501"

	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_frames_sent_total",
		Help: "JPEG frames written to clients",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_frame_bytes_sent_total",
		Help: "JPEG payload bytes written to clients",
	})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mjpeg_frame_duration_seconds",
		Help:    "Time spent producing, encoding and sending one frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25, 0.5},
	})

	teardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjpeg_teardowns_total",
		Help: "Connections closed by the stream server",
	}, []string{"reason"}) // "io", "source", "shutdown"

	streamingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjpeg_streaming",
		Help: "1 while a client is receiving frames",
	})
)
