// Package metrics provides Prometheus metrics for the MobileCoder server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilecoder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mobilecoder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Project store metrics
	storeMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilecoder_store_mutations_total",
			Help: "Total project store mutations",
		},
		[]string{"op", "status"},
	)

	// Preview metrics
	previewComposeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mobilecoder_preview_compose_duration_seconds",
			Help:    "Time to compose a preview document",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	previewPlaceholdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mobilecoder_preview_placeholders_total",
			Help: "Total previews served without an HTML entry file",
		},
	)

	// Chat metrics
	chatStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilecoder_chat_streams_total",
			Help: "Total assistant streams by outcome",
		},
		[]string{"outcome"},
	)

	chatPromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mobilecoder_chat_prompt_tokens",
			Help:    "Estimated prompt size in tokens",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mobilecoder_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// Live preview channel metrics
	liveConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mobilecoder_live_connections_active",
			Help: "Number of open live preview websockets",
		},
	)

	liveEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilecoder_live_events_total",
			Help: "Total live preview messages sent",
		},
		[]string{"kind"},
	)

	// Gate metrics
	gateAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilecoder_gate_attempts_total",
			Help: "Total access key attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreMutation records a project store mutation.
func RecordStoreMutation(op string, err error) {
	storeMutationsTotal.WithLabelValues(op, statusLabel(err == nil)).Inc()
}

// RecordCompose records a preview composition.
func RecordCompose(duration time.Duration, placeholder bool) {
	previewComposeDuration.Observe(duration.Seconds())
	if placeholder {
		previewPlaceholdersTotal.Inc()
	}
}

// RecordChatStream records the outcome of an assistant stream ("success", "error", "busy").
func RecordChatStream(outcome string) {
	chatStreamsTotal.WithLabelValues(outcome).Inc()
}

// RecordPromptTokens records a prompt's estimated token count.
func RecordPromptTokens(n int) {
	chatPromptTokens.Observe(float64(n))
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// LiveConnectionOpened increments the open live connection gauge.
func LiveConnectionOpened() {
	liveConnectionsActive.Inc()
}

// LiveConnectionClosed decrements the open live connection gauge.
func LiveConnectionClosed() {
	liveConnectionsActive.Dec()
}

// RecordLiveEvent records a message pushed over the live channel.
func RecordLiveEvent(kind string) {
	liveEventsTotal.WithLabelValues(kind).Inc()
}

// RecordGateAttempt records an access key attempt.
func RecordGateAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	gateAttemptsTotal.WithLabelValues(result).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
