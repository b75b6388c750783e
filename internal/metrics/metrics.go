// Package metrics defines the process-wide Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bettervoice"

// Capture and transcription.
var (
	CaptureSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_sessions_total",
		Help:      "Capture sessions by outcome.",
	}, []string{"outcome"})

	CapturedAudioSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "captured_audio_seconds",
		Help:      "Length of captured canonical audio per session.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	TranscriptionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "Transcription latency by backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)

// Classification and enhancement.
var (
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifications_total",
		Help:      "Classified texts by document type and whether features overrode the model.",
	}, []string{"document_type", "overridden"})

	EnhancementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enhancements_total",
		Help:      "Enhancements by path (local|cloud|learned) and document type.",
	}, []string{"path", "document_type"})

	CloudFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cloud_failures_total",
		Help:      "Cloud enhancement failures recovered by local fallback.",
	}, []string{"provider", "reason"})

	CloudDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cloud_duration_seconds",
		Help:      "Cloud enhancement latency by provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
)

// Learning store and bridge.
var (
	PatternsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "patterns_recorded_total",
		Help:      "Edits recorded into the learning store by source.",
	}, []string{"source"})

	PatternsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "patterns_swept_total",
		Help:      "Patterns removed by retention sweeps.",
	})

	BridgeMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_messages_total",
		Help:      "Bridge messages by transport and result.",
	}, []string{"transport", "result"})

	BridgeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_connections",
		Help:      "Open bridge WebSocket connections.",
	})
)

// HTTP.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		CaptureSessionsTotal,
		CapturedAudioSeconds,
		TranscriptionDuration,
		ClassificationsTotal,
		EnhancementsTotal,
		CloudFailuresTotal,
		CloudDuration,
		PatternsRecordedTotal,
		PatternsSweptTotal,
		BridgeMessagesTotal,
		BridgeConnections,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// InstrumentHandler records request metrics labeled by chi's route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
