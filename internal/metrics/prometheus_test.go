package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRecordingStarted(true)
		m.RecordRecordingCompleted(1, 10)
		m.RecordRecordingFailed("PermissionDenied")
		m.SetRecorderState([]string{"idle"}, "idle")
		m.RecordSourceFailure("microphone", "DeviceUnavailable")
		m.SetActiveSources(1)
		m.SetMeterLevel("mixed", 50)
		m.RecordTranscriptionRequest()
		m.RecordTranscriptionSuccess(1, 1)
		m.RecordTranscriptionFailure("ServerError", 1, 4)
		m.RecordTranscriptionRetry()
		m.SetHistorySize(3)
		m.RecordHistoryEvictions(1)
		m.RecordStorageError("set")
		m.RecordHTTPRequest("GET", "/health", "200", 0.01)
		m.RecordHTTPError("GET", "/health", "internal")
	})
}

func TestMetricsPrivateRegistry(t *testing.T) {
	// two instances on separate registries must not collide
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, NewMetrics(prometheus.NewRegistry()))

	m.RecordRecordingStarted(true)
	m.RecordRecordingStarted(false)
	m.RecordTranscriptionRetry()
	m.RecordHistoryEvictions(2)
	m.RecordHistoryEvictions(0)
	m.SetRecorderState([]string{"idle", "recording"}, "recording")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordingsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsDegraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HistoryEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecorderState.WithLabelValues("recording")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RecorderState.WithLabelValues("idle")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
