package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Turn counters
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "turns_total",
			Help:      "Total assistant turns by final status",
		},
		[]string{"status"},
	)

	// Turn duration histogram
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "turn_duration_seconds",
			Help:      "Assistant turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// Task step counters
	TaskStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "task_steps_total",
			Help:      "Total tool invocations observed during turns",
		},
		[]string{"toolkit", "status"},
	)

	// Stream error counter
	StreamErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "stream_errors_total",
			Help:      "Total completion stream failures",
		},
	)

	// Title inference counter
	TitleInferenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "title_inference_total",
			Help:      "Total background title inference tasks",
		},
		[]string{"status"},
	)

	// Title queue depth gauge
	TitleQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "isuite",
			Subsystem: "chat_api",
			Name:      "title_queue_depth",
			Help:      "Sessions awaiting background title inference",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordTurn records a finished assistant turn
func RecordTurn(status string, durationSec float64) {
	TurnsTotal.WithLabelValues(status).Inc()
	TurnDuration.Observe(durationSec)
}

// RecordTaskStep records a tool invocation
func RecordTaskStep(toolkit, status string) {
	TaskStepsTotal.WithLabelValues(toolkit, status).Inc()
}

// RecordStreamError records a completion stream failure
func RecordStreamError() {
	StreamErrorsTotal.Inc()
}

// RecordTitleInference records a title inference task
func RecordTitleInference(status string) {
	TitleInferenceTotal.WithLabelValues(status).Inc()
}

// SetTitleQueueDepth sets the current title queue depth
func SetTitleQueueDepth(depth int64) {
	TitleQueueDepth.Set(float64(depth))
}
