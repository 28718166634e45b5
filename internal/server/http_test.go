package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/assistant"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/capture"
	"github.com/jayesh4work/audio-assistant-extension/internal/config"
	"github.com/jayesh4work/audio-assistant-extension/internal/history"
	"github.com/jayesh4work/audio-assistant-extension/internal/metrics"
	"github.com/jayesh4work/audio-assistant-extension/internal/recording"
	"github.com/jayesh4work/audio-assistant-extension/internal/settings"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	handler   http.Handler
	synthetic *capture.Synthetic
	sttStatus atomic.Int32
	// onSTT, when set before a request, runs as each STT call arrives
	onSTT func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.sttStatus.Store(http.StatusOK)

	stt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.onSTT != nil {
			env.onSTT()
		}
		if status := int(env.sttStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"transcript":     "testing one two",
			"provider":       r.FormValue("sttProvider"),
			"confidence":     0.9,
			"processingTime": 50,
			"language":       r.FormValue("language"),
			"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		})
	}))
	t.Cleanup(stt.Close)

	cfg := config.Default()
	cfg.Transcription.Endpoint = stt.URL
	cfg.Transcription.MaxRetries = 0

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	format := goaudio.Format{NumChannels: 1, SampleRate: 8000}
	env.synthetic = capture.NewSynthetic(capture.SyntheticConfig{
		Format:  format,
		Encoder: capture.EncoderConfig{Codec: capture.CodecWAV, FrameDuration: 5 * time.Millisecond},
	}, testLogger())
	sources := audio.NewSourceManager(env.synthetic, testLogger())

	recCfg := recording.DefaultConfig()
	recCfg.Format = format
	recorder := recording.NewRecorder(sources, env.synthetic, recCfg, m, testLogger())

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:   stt.URL,
		MaxRetries: 0,
	}, m, testLogger())
	require.NoError(t, err)

	store := history.NewStore(history.NewMemoryKV(), 5, m, testLogger())
	prefs := settings.NewService(history.NewMemoryKV(), settings.Defaults(), testLogger())
	a := assistant.New(recorder, client, store, prefs, testLogger())
	t.Cleanup(func() { a.Close() })

	srv := NewHTTPServer(cfg.HTTP, Dependencies{
		Config:    &cfg,
		Assistant: a,
		Sources:   sources,
		Client:    client,
		Metrics:   m,
		Gatherer:  reg,
	}, testLogger())
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, body = env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["endpoints"], "POST /recording/start")

	rec, _ = env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordingFlow(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/recording/start", `{"mode":"mic+tab"}`)
	require.Equal(t, http.StatusCreated, rec.Code, body)
	assert.Equal(t, "mic+tab", body["mode"])

	rec, body = env.do(t, http.MethodPost, "/recording/start", `{"mode":"mic-only"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.SessionActive), body["kind"])

	rec, body = env.do(t, http.MethodPut, "/recording/gain", `{"role":"tab","value":1.7}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, 1.0, body["value"])

	rec, body = env.do(t, http.MethodGet, "/recording/levels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "levels")

	time.Sleep(20 * time.Millisecond)
	rec, body = env.do(t, http.MethodPost, "/recording/stop", `{"language":"en-GB"}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	result := body["result"].(map[string]any)
	assert.Equal(t, "testing one two", result["transcript"])
	assert.Equal(t, "en-GB", result["language"])
	assert.Contains(t, body, "entry")

	rec, body = env.do(t, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["total"])

	rec, body = env.do(t, http.MethodGet, "/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, body["active_count"])
}

func TestStopCompletesAfterClientDisconnects(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/recording/start", `{"mode":"mic-only"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	time.Sleep(10 * time.Millisecond)

	// the caller goes away while the upload is in flight
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.onSTT = cancel

	req := httptest.NewRequest(http.MethodPost, "/recording/stop", strings.NewReader(`{"language":"en-US"}`)).WithContext(ctx)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Error(t, ctx.Err())

	env.onSTT = nil
	rec, body := env.do(t, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["total"], "transcript must be saved after the caller disconnects")
}

func TestStopWithoutRecordingConflicts(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/recording/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.NotRecording), body["kind"])

	rec, body = env.do(t, http.MethodGet, "/recording/levels", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.NotRecording), body["kind"])
}

func TestStartErrors(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/recording/start", `{"mode":"surround"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.InvalidInput), body["kind"])

	rec, _ = env.do(t, http.MethodPost, "/recording/start", `{"mode":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.synthetic.Fail(audio.Microphone, apperr.New(apperr.PermissionDenied, "Microphone access denied"))
	rec, body = env.do(t, http.MethodPost, "/recording/start", `{"mode":"mic-only"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(apperr.PermissionDenied), body["kind"])
	assert.Equal(t, "Microphone access denied", body["error"])
}

func TestTranscriptionFailureReturnsArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.sttStatus.Store(http.StatusServiceUnavailable)

	rec, _ := env.do(t, http.MethodPost, "/recording/start", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	time.Sleep(10 * time.Millisecond)

	rec, body := env.do(t, http.MethodPost, "/recording/stop", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(apperr.ServiceUnavailable), body["kind"])
	assert.Contains(t, body, "artifact")
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/recording/start", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	time.Sleep(10 * time.Millisecond)
	rec, body := env.do(t, http.MethodPost, "/recording/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ts := body["entry"].(map[string]any)["timestamp"].(string)

	rec, _ = env.do(t, http.MethodDelete, "/history/"+url.PathEscape(ts), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, body = env.do(t, http.MethodDelete, "/history/"+url.PathEscape(ts), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["kind"])

	rec, _ = env.do(t, http.MethodDelete, "/history/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/history", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mic-only", body["audioMode"])

	rec, body = env.do(t, http.MethodPut, "/settings", `{"sttProvider":"claude","autoSave":false}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "claude", body["sttProvider"])
	assert.Equal(t, false, body["autoSave"])
	assert.Equal(t, "en-US", body["language"])

	rec, body = env.do(t, http.MethodPut, "/settings", `{"audioMode":"surround"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.InvalidInput), body["kind"])
}

func TestConfigOmitsAPIKey(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "api_key")
}

func TestStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "transcription")

	rec, _ = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assistant_http_requests_total")
}

func TestStatusForKinds(t *testing.T) {
	tests := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.InvalidInput, http.StatusBadRequest},
		{apperr.PermissionDenied, http.StatusForbidden},
		{apperr.Unavailable, http.StatusServiceUnavailable},
		{apperr.SessionActive, http.StatusConflict},
		{apperr.RateLimited, http.StatusTooManyRequests},
		{apperr.TimeoutError, http.StatusGatewayTimeout},
		{apperr.ServerError, http.StatusBadGateway},
		{apperr.StorageError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(apperr.New(tt.kind, "x")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}
