package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assistant"

// Metrics contains all Prometheus metrics for the audio assistant. Every
// Record/Set method is safe to call on a nil *Metrics.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsFailed    *prometheus.CounterVec
	RecordingsDegraded  prometheus.Counter
	RecordingDuration   prometheus.Histogram
	ArtifactSize        prometheus.Histogram
	RecorderState       *prometheus.GaugeVec
	SourceFailures      *prometheus.CounterVec
	ActiveSources       prometheus.Gauge
	MeterLevel          *prometheus.GaugeVec

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionAttempts  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// History metrics
	HistorySize      prometheus.Gauge
	HistoryEvictions prometheus.Counter
	StorageErrors    *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Recording metrics
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of recordings that reached the recording state",
		}),
		RecordingsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_completed_total",
			Help:      "Total number of recordings stopped with an artifact",
		}),
		RecordingsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_failed_total",
			Help:      "Total number of recordings that aborted before recording",
		}, []string{"kind"}),
		RecordingsDegraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_degraded_total",
			Help:      "Total number of recordings that continued without an optional source",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Wall-clock duration of completed recordings",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		ArtifactSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of finalized recording artifacts",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		RecorderState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recorder_state",
			Help:      "1 for the recorder's current state, 0 otherwise",
		}, []string{"state"}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_acquisition_failures_total",
			Help:      "Total number of failed source acquisitions",
		}, []string{"source", "kind"}),
		ActiveSources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sources",
			Help:      "Current number of acquired capture sources",
		}),
		MeterLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meter_level",
			Help:      "Latest meter level per tap (0-100)",
		}, []string{"tap"}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_requests_total",
			Help:      "Total number of transcription submissions",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_successes_total",
			Help:      "Total number of successful transcription submissions",
		}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Total number of failed transcription submissions",
		}, []string{"kind"}),
		TranscriptionAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_attempts",
			Help:      "Attempts used per transcription submission",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Total number of transcription request retries",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of transcription submissions including retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// History metrics
		HistorySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Current number of transcripts in history",
		}),
		HistoryEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Total number of transcripts evicted by the capacity bound",
		}),
		StorageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of key-value storage failures",
		}, []string{"operation"}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted counts a recording entering the recording state
func (m *Metrics) RecordRecordingStarted(degraded bool) {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	if degraded {
		m.RecordingsDegraded.Inc()
	}
}

// RecordRecordingCompleted records a finalized artifact
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.ArtifactSize.Observe(float64(sizeBytes))
}

// RecordRecordingFailed records an aborted start
func (m *Metrics) RecordRecordingFailed(kind string) {
	if m == nil {
		return
	}
	m.RecordingsFailed.WithLabelValues(kind).Inc()
}

// SetRecorderState marks state as the current recorder state
func (m *Metrics) SetRecorderState(states []string, current string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.RecorderState.WithLabelValues(s).Set(v)
	}
}

// RecordSourceFailure counts a failed acquisition
func (m *Metrics) RecordSourceFailure(source, kind string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source, kind).Inc()
}

// SetActiveSources sets the number of acquired sources
func (m *Metrics) SetActiveSources(count int) {
	if m == nil {
		return
	}
	m.ActiveSources.Set(float64(count))
}

// SetMeterLevel sets the latest level of a tap
func (m *Metrics) SetMeterLevel(tap string, level int) {
	if m == nil {
		return
	}
	m.MeterLevel.WithLabelValues(tap).Set(float64(level))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64, attempts int) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
	m.TranscriptionAttempts.Observe(float64(attempts))
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(kind string, durationSeconds float64, attempts int) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
	m.TranscriptionAttempts.Observe(float64(attempts))
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// SetHistorySize sets the number of stored transcripts
func (m *Metrics) SetHistorySize(size int) {
	if m == nil {
		return
	}
	m.HistorySize.Set(float64(size))
}

// RecordHistoryEvictions counts transcripts dropped by the capacity bound
func (m *Metrics) RecordHistoryEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryEvictions.Add(float64(n))
}

// RecordStorageError counts a failed storage operation
func (m *Metrics) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
